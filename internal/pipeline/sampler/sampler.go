package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/chain/xrpl/rpc"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"github.com/emperorhan/xrpl-insights/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LedgerSource is the subset of the RPC client the sampler needs.
type LedgerSource interface {
	ServerInfo(ctx context.Context) (*rpc.ServerInfoResult, error)
	Ledger(ctx context.Context, seq int64) (*rpc.Ledger, error)
	CurrentEndpoint() string
}

// LatestSource names where the starting sequence came from.
type LatestSource string

const (
	LatestFromValidated LatestSource = "validated_ledger"
	LatestFromComplete  LatestSource = "complete_ledgers"
	LatestUnknown       LatestSource = ""
)

// Result is one sample. Records is never nil.
type Result struct {
	LatestSequence int64                     `json:"latest_sequence"`
	LatestSource   LatestSource              `json:"latest_source"`
	Depth          int                       `json:"depth"`
	Records        []model.TransactionRecord `json:"records"`
	Ledgers        []LedgerOutcome           `json:"ledgers"`
	Outcomes       []Outcome                 `json:"outcomes"`
	Endpoint       string                    `json:"endpoint"`
	// Reason is set when the walk did not start.
	Reason string `json:"reason,omitempty"`
}

// Skipped returns the sequences of ledgers that could not be used.
func (r *Result) Skipped() []int64 {
	var out []int64
	for _, l := range r.Ledgers {
		if !l.Fetched {
			out = append(out, l.Index)
		}
	}
	return out
}

// Excluded returns the outcomes dropped for the given reason.
func (r *Result) Excluded(reason Reason) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Kept && o.Reason == reason {
			out = append(out, o)
		}
	}
	return out
}

type Option func(*Sampler)

// WithClock overrides the acquisition clock used by the last timestamp tier.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.nowFn = now }
}

// Sampler walks backward from the latest validated ledger, one ledger at a
// time, and keeps the successful transactions it finds.
type Sampler struct {
	source  LedgerSource
	network string
	logger  *slog.Logger
	nowFn   func() time.Time
}

func New(source LedgerSource, network string, logger *slog.Logger, opts ...Option) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{
		source:  source,
		network: network,
		logger:  logger.With("component", "sampler"),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample fetches up to depth ledgers ending at the latest validated one.
// depth <= 0 is treated as 1. A failing ledger is skipped and the walk goes
// on. Errors are returned only when no endpoint answers server_info or ctx is
// done, always alongside the partial result. A server_info the node itself
// rejects yields an empty result with Reason set.
func (s *Sampler) Sample(ctx context.Context, depth int) (res *Result, err error) {
	if depth <= 0 {
		depth = 1
	}

	start := time.Now()
	ctx, span := tracing.Tracer("sampler").Start(ctx, "sampler.Sample",
		trace.WithAttributes(
			attribute.String("network", s.network),
			attribute.Int("depth", depth),
		),
	)
	defer func() {
		metrics.SamplerLatency.WithLabelValues(s.network).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("records", len(res.Records)))
		tracing.End(span, err)
	}()

	res = &Result{
		Depth:    depth,
		Records:  []model.TransactionRecord{},
		Ledgers:  []LedgerOutcome{},
		Outcomes: []Outcome{},
	}

	info, err := s.source.ServerInfo(ctx)
	if err != nil {
		res.Endpoint = s.source.CurrentEndpoint()
		if errors.Is(err, rpc.ErrAllEndpointsUnavailable) || ctx.Err() != nil {
			res.Reason = "server_info failed"
			s.logger.Warn("latest ledger lookup failed", "error", err)
			return res, fmt.Errorf("resolve latest ledger: %w", err)
		}
		// Remote-reported errors mean no usable sequence, not an outage.
		res.Reason = "server_info error: " + err.Error()
		s.logger.Warn("server_info reported an error", "error", err)
		return res, nil
	}

	latest, from := LatestSequence(info)
	res.LatestSequence = latest
	res.LatestSource = from
	if latest <= 0 {
		res.Reason = "no validated ledger reported"
		res.Endpoint = s.source.CurrentEndpoint()
		s.logger.Warn("server reported no validated ledger")
		return res, nil
	}
	span.SetAttributes(attribute.Int64("latest", latest))

	for seq := latest; seq > latest-int64(depth) && seq >= 1; seq-- {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Endpoint = s.source.CurrentEndpoint()
			return res, fmt.Errorf("sample interrupted at ledger %d: %w", seq, ctxErr)
		}
		lo := s.sampleLedger(ctx, seq, res)
		res.Ledgers = append(res.Ledgers, lo)
		if lo.Fetched {
			metrics.SamplerLedgersFetched.WithLabelValues(s.network).Inc()
			metrics.SamplerTimestampSource.WithLabelValues(s.network, string(lo.TimestampSource)).Inc()
		} else {
			metrics.SamplerLedgersSkipped.WithLabelValues(s.network).Inc()
			s.logger.Debug("ledger skipped", "ledger_index", seq, "error", lo.Err)
		}
	}

	res.Endpoint = s.source.CurrentEndpoint()
	s.logger.Debug("sample complete",
		"latest", latest,
		"depth", depth,
		"records", len(res.Records),
		"skipped", len(res.Skipped()),
	)
	return res, nil
}

func (s *Sampler) sampleLedger(ctx context.Context, seq int64, res *Result) LedgerOutcome {
	lo := LedgerOutcome{Index: seq}

	ledger, err := s.source.Ledger(ctx, seq)
	if err != nil {
		lo.Err = err
		return lo
	}

	txs, err := decodeTransactions(ledger.Transactions)
	if err != nil {
		lo.Err = fmt.Errorf("ledger %d: %w", seq, err)
		return lo
	}

	closedAt, src := closeTime(ledger.CloseTimeHuman, ledger.CloseTime, s.nowFn)
	lo.Fetched = true
	lo.TimestampSource = src
	lo.Transactions = len(txs)

	for i, raw := range txs {
		out, rec := classify(raw, seq, i, closedAt)
		res.Outcomes = append(res.Outcomes, out)
		metrics.SamplerTransactions.WithLabelValues(s.network, string(out.Reason)).Inc()
		if out.Kept {
			res.Records = append(res.Records, rec)
			lo.Kept++
		}
	}
	return lo
}

var errTransactionsNotArray = errors.New("transactions is not an array")

func decodeTransactions(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var txs []json.RawMessage
	if err := json.Unmarshal(trimmed, &txs); err != nil {
		return nil, errTransactionsNotArray
	}
	return txs, nil
}

// classify decides whether one expanded transaction becomes a record.
func classify(raw json.RawMessage, seq int64, pos int, closedAt time.Time) (Outcome, model.TransactionRecord) {
	out := Outcome{LedgerIndex: seq, Position: pos, Reason: ReasonMalformed}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return out, model.TransactionRecord{}
	}
	var tx rpc.LedgerTransaction
	if err := json.Unmarshal(trimmed, &tx); err != nil {
		return out, model.TransactionRecord{}
	}
	out.Hash = tx.Hash
	if tx.Hash == "" {
		return out, model.TransactionRecord{}
	}

	out.ResultCode = tx.ResultCode()
	switch out.ResultCode {
	case "":
		out.Reason = ReasonMissingResult
		return out, model.TransactionRecord{}
	case model.SuccessResultCode:
	default:
		out.Reason = ReasonNotSuccess
		return out, model.TransactionRecord{}
	}

	out.Kept = true
	out.Reason = ReasonKept
	return out, model.TransactionRecord{
		Hash:            tx.Hash,
		Timestamp:       closedAt,
		Amount:          model.NormalizeAmount(tx.Amount),
		FeeDrops:        string(tx.Fee),
		Account:         tx.Account,
		TransactionType: tx.TransactionType,
		LedgerIndex:     seq,
	}
}

// LatestSequence reads the validated ledger sequence, falling back to the
// upper bound of complete_ledgers. It returns 0 when neither is available.
func LatestSequence(info *rpc.ServerInfoResult) (int64, LatestSource) {
	if info == nil {
		return 0, LatestUnknown
	}
	if vl := info.Info.ValidatedLedger; vl != nil && vl.Seq > 0 {
		return vl.Seq, LatestFromValidated
	}
	if top := completeLedgersTop(info.Info.CompleteLedgers); top > 0 {
		return top, LatestFromComplete
	}
	return 0, LatestUnknown
}

// completeLedgersTop returns the highest sequence in a range list such as
// "32570-93214567" or "1000-2000,2005-2010". "empty" yields 0.
func completeLedgersTop(s string) int64 {
	var top int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "empty" {
			continue
		}
		hi := part
		if i := strings.LastIndexByte(part, '-'); i >= 0 {
			hi = part[i+1:]
		}
		n, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
		if err != nil {
			continue
		}
		if n > top {
			top = n
		}
	}
	return top
}
