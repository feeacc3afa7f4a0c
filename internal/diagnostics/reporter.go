package diagnostics

import (
	"context"
	"log/slog"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/chain/xrpl/rpc"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
)

// StatusSource is the subset of the RPC client the reporter needs.
type StatusSource interface {
	ServerInfo(ctx context.Context) (*rpc.ServerInfoResult, error)
	Fee(ctx context.Context) (*rpc.FeeResult, error)
	CurrentEndpoint() string
}

// Reporter produces a two-part network diagnostic. Each part is fetched
// once; a failing part is replaced by its error text and never hides the other.
type Reporter struct {
	source StatusSource
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewReporter(source StatusSource, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		source: source,
		logger: logger.With("component", "diagnostics"),
		nowFn:  time.Now,
	}
}

func (r *Reporter) Report(ctx context.Context) model.NetworkHealth {
	health := model.NetworkHealth{CheckedAt: r.nowFn().UTC()}

	info, err := r.source.ServerInfo(ctx)
	if err != nil {
		health.Status.Error = err.Error()
		r.logger.Warn("server_info unavailable", "error", err)
	} else {
		health.Status.Info = toServerStatus(info.Info)
	}

	fee, err := r.source.Fee(ctx)
	if err != nil {
		health.Fees.Error = err.Error()
		r.logger.Warn("fee unavailable", "error", err)
	} else {
		health.Fees.Schedule = toFeeSchedule(fee)
	}

	health.Endpoint = r.source.CurrentEndpoint()
	return health
}

func toServerStatus(info rpc.ServerInfo) *model.ServerStatus {
	st := &model.ServerStatus{
		BuildVersion:    info.BuildVersion,
		ServerState:     info.ServerState,
		Peers:           info.Peers,
		LoadFactor:      info.LoadFactor,
		CompleteLedgers: info.CompleteLedgers,
		Uptime:          info.Uptime,
	}
	if info.ValidatedLedger != nil {
		st.ValidatedLedgerSeq = info.ValidatedLedger.Seq
	}
	return st
}

func toFeeSchedule(fee *rpc.FeeResult) *model.FeeSchedule {
	return &model.FeeSchedule{
		BaseFee:            string(fee.Drops.BaseFee),
		MedianFee:          string(fee.Drops.MedianFee),
		MinimumFee:         string(fee.Drops.MinimumFee),
		OpenLedgerFee:      string(fee.Drops.OpenLedgerFee),
		CurrentQueueSize:   string(fee.CurrentQueueSize),
		ExpectedLedgerSize: string(fee.ExpectedLedgerSize),
		LedgerCurrentIndex: int64(fee.LedgerCurrentIndex),
	}
}
