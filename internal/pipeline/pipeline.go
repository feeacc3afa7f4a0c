package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/alert"
	"github.com/emperorhan/xrpl-insights/internal/chain/xrpl/rpc"
	"github.com/emperorhan/xrpl-insights/internal/circuitbreaker"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/emperorhan/xrpl-insights/internal/market"
	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"github.com/emperorhan/xrpl-insights/internal/pipeline/aggregator"
	"github.com/emperorhan/xrpl-insights/internal/pipeline/sampler"
	"github.com/emperorhan/xrpl-insights/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultDepth    = 20
)

// ErrCycleSuspended is returned while the endpoint breaker is open.
var ErrCycleSuspended = errors.New("refresh suspended: ledger endpoints unavailable")

// Sampler produces one ledger sample.
type Sampler interface {
	Sample(ctx context.Context, depth int) (*sampler.Result, error)
}

type Config struct {
	Network  model.Network
	Depth    int
	Interval time.Duration
	// PriceWindow is how far back the price series reaches. Zero disables it.
	PriceWindow        time.Duration
	UnhealthyThreshold int
}

// Snapshot is the immutable output of one refresh cycle.
type Snapshot struct {
	CycleID        string                    `json:"cycle_id"`
	Sequence       uint64                    `json:"sequence"`
	Network        string                    `json:"network"`
	StartedAt      time.Time                 `json:"started_at"`
	GeneratedAt    time.Time                 `json:"generated_at"`
	LatestSequence int64                     `json:"latest_sequence"`
	Depth          int                       `json:"depth"`
	Records        []model.TransactionRecord `json:"records"`
	Counts         []model.MinuteCount       `json:"counts"`
	AvgFees        []model.MinuteAvgFee      `json:"avg_fees"`
	Prices         []model.PricePoint        `json:"prices"`
	PriceError     string                    `json:"price_error,omitempty"`
	Endpoint       string                    `json:"endpoint,omitempty"`
	SkippedLedgers []int64                   `json:"skipped_ledgers"`
	Excluded       map[sampler.Reason]int    `json:"excluded"`
	Ledgers        []sampler.LedgerOutcome   `json:"ledgers"`
	Reason         string                    `json:"reason,omitempty"`
}

type Option func(*Refresher)

func WithPriceFeed(feed market.Feed) Option {
	return func(r *Refresher) { r.feed = feed }
}

func WithAlerter(a alert.Alerter) Option {
	return func(r *Refresher) { r.alerter = a }
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(r *Refresher) { r.breaker = b }
}

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.nowFn = now }
}

// Refresher runs sample, aggregate and price cycles and publishes each
// result as an immutable Snapshot. A cycle that fails leaves the previous
// snapshot in place.
type Refresher struct {
	cfg     Config
	sampler Sampler
	feed    market.Feed
	alerter alert.Alerter
	breaker *circuitbreaker.Breaker
	health  *Health
	logger  *slog.Logger
	nowFn   func() time.Time

	cycleSeq atomic.Uint64
	current  atomic.Pointer[Snapshot]
}

func NewRefresher(cfg Config, s Sampler, logger *slog.Logger, opts ...Option) *Refresher {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Refresher{
		cfg:     cfg,
		sampler: s,
		alerter: &alert.NoopAlerter{},
		health:  NewHealth(cfg.Network, cfg.UnhealthyThreshold),
		logger:  logger.With("component", "refresher", "network", cfg.Network.String()),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = NewEndpointBreaker(circuitbreaker.Config{}, cfg.Network, r.logger)
	}
	r.health.nowFn = r.nowFn
	return r
}

// NewEndpointBreaker returns a breaker tripped only by endpoint exhaustion.
func NewEndpointBreaker(cfg circuitbreaker.Config, network model.Network, logger *slog.Logger) *circuitbreaker.Breaker {
	cfg.Trips = func(err error) bool { return errors.Is(err, rpc.ErrAllEndpointsUnavailable) }
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.RefreshBreakerState.WithLabelValues(network.String()).Set(float64(to))
		if logger != nil {
			logger.Warn("endpoint breaker state changed", "from", from.String(), "to", to.String())
		}
	}
	return circuitbreaker.New(cfg)
}

// Snapshot returns the latest published snapshot, or nil before the first
// successful cycle.
func (r *Refresher) Snapshot() *Snapshot {
	return r.current.Load()
}

func (r *Refresher) Health() *Health {
	return r.health
}

func (r *Refresher) BreakerState() circuitbreaker.State {
	return r.breaker.State()
}

// Run refreshes immediately and then on every interval until ctx is done.
// A failed or panicking cycle is logged and the loop continues.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started", "interval", r.cfg.Interval, "depth", r.cfg.Depth)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := r.safeRefresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("refresh cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Refresher) safeRefresh(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("refresh panic: %v\n%s", rec, debug.Stack())
			r.recordFailure(ctx, err)
		}
	}()
	_, err = r.RefreshOnce(ctx)
	return err
}

// RefreshOnce runs one cycle. On success the returned snapshot has been
// published unless a newer cycle published first.
func (r *Refresher) RefreshOnce(ctx context.Context) (snap *Snapshot, err error) {
	seq := r.cycleSeq.Add(1)
	cycleID := uuid.NewString()
	started := r.nowFn().UTC()
	network := r.cfg.Network.String()

	ctx, span := tracing.Tracer("refresher").Start(ctx, "refresher.cycle",
		trace.WithAttributes(
			attribute.String("cycle_id", cycleID),
			attribute.String("network", network),
		),
	)
	defer func() { tracing.End(span, err) }()

	if err := r.breaker.Allow(); err != nil {
		metrics.RefreshCyclesTotal.WithLabelValues(network, "suspended").Inc()
		suspended := fmt.Errorf("%w: %v", ErrCycleSuspended, err)
		r.recordFailure(ctx, suspended)
		return nil, suspended
	}

	prevBreaker := r.breaker.State()
	res, err := r.sampler.Sample(ctx, r.cfg.Depth)
	r.breaker.Record(err)
	r.alertBreakerTransition(ctx, prevBreaker, r.breaker.State())
	if err != nil {
		metrics.RefreshCyclesTotal.WithLabelValues(network, "failed").Inc()
		r.recordFailure(ctx, err)
		return nil, fmt.Errorf("cycle %s: %w", cycleID, err)
	}

	snap = &Snapshot{
		CycleID:        cycleID,
		Sequence:       seq,
		Network:        network,
		StartedAt:      started,
		LatestSequence: res.LatestSequence,
		Depth:          res.Depth,
		Records:        res.Records,
		Counts:         aggregator.PerMinuteCounts(res.Records),
		AvgFees:        aggregator.PerMinuteAvgFee(res.Records),
		Prices:         []model.PricePoint{},
		Endpoint:       res.Endpoint,
		SkippedLedgers: res.Skipped(),
		Excluded:       excludedCounts(res.Outcomes),
		Ledgers:        res.Ledgers,
		Reason:         res.Reason,
	}
	if snap.SkippedLedgers == nil {
		snap.SkippedLedgers = []int64{}
	}
	r.attachPrices(ctx, snap)
	snap.GeneratedAt = r.nowFn().UTC()

	if !r.publish(snap) {
		metrics.RefreshCyclesTotal.WithLabelValues(network, "stale").Inc()
		r.logger.Debug("discarding stale snapshot", "cycle_id", cycleID, "sequence", seq)
		return snap, nil
	}

	metrics.RefreshCyclesTotal.WithLabelValues(network, "ok").Inc()
	metrics.RefreshSnapshotRecords.WithLabelValues(network).Set(float64(len(snap.Records)))
	if snap.LatestSequence > 0 {
		metrics.RefreshLatestLedger.WithLabelValues(network).Set(float64(snap.LatestSequence))
	}
	span.SetAttributes(attribute.Int("records", len(snap.Records)))

	if r.health.RecordSuccess(snap.GeneratedAt.Sub(started)) {
		r.send(ctx, alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Network: network,
			Title:   "Refresh recovered",
			Message: fmt.Sprintf("cycle %s published %d records", cycleID, len(snap.Records)),
		})
	}
	if snap.LatestSequence == 0 {
		r.send(ctx, alert.Alert{
			Type:    alert.AlertTypeNoValidatedData,
			Network: network,
			Title:   "No validated ledger reported",
			Message: snap.Reason,
			Fields:  map[string]string{"endpoint": snap.Endpoint},
		})
	}

	r.logger.Info("snapshot published",
		"cycle_id", cycleID,
		"latest", snap.LatestSequence,
		"records", len(snap.Records),
		"skipped", len(snap.SkippedLedgers),
		"endpoint", snap.Endpoint,
	)
	return snap, nil
}

// publish installs snap unless a snapshot from a later-started cycle is
// already installed.
func (r *Refresher) publish(snap *Snapshot) bool {
	for {
		cur := r.current.Load()
		if cur != nil && cur.Sequence > snap.Sequence {
			return false
		}
		if r.current.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

func (r *Refresher) attachPrices(ctx context.Context, snap *Snapshot) {
	if r.feed == nil || r.cfg.PriceWindow <= 0 {
		return
	}
	to := r.nowFn().UTC()
	prices, err := r.feed.History(ctx, to.Add(-r.cfg.PriceWindow), to)
	if err != nil {
		snap.PriceError = err.Error()
		r.logger.Warn("price history unavailable", "error", err)
		if prev := r.current.Load(); prev != nil {
			snap.Prices = prev.Prices
		}
		return
	}
	snap.Prices = prices
}

func (r *Refresher) recordFailure(ctx context.Context, err error) {
	if !r.health.RecordFailure(err) {
		return
	}
	snap := r.health.Snapshot()
	r.send(ctx, alert.Alert{
		Type:    alert.AlertTypeUnhealthy,
		Network: r.cfg.Network.String(),
		Title:   "Refresh failing",
		Message: fmt.Sprintf("%d consecutive refresh cycles failed", snap.ConsecutiveFailures),
		Fields: map[string]string{
			"last_error":           snap.LastError,
			"consecutive_failures": strconv.Itoa(snap.ConsecutiveFailures),
		},
	})
}

func (r *Refresher) alertBreakerTransition(ctx context.Context, from, to circuitbreaker.State) {
	switch {
	case from == to:
	case to == circuitbreaker.StateOpen:
		r.send(ctx, alert.Alert{
			Type:    alert.AlertTypeEndpointsDown,
			Network: r.cfg.Network.String(),
			Title:   "All ledger endpoints unavailable",
			Message: "refresh suspended until the endpoint breaker half-opens",
		})
	case to == circuitbreaker.StateClosed && from == circuitbreaker.StateHalfOpen:
		r.send(ctx, alert.Alert{
			Type:    alert.AlertTypeEndpointsUp,
			Network: r.cfg.Network.String(),
			Title:   "Ledger endpoints restored",
		})
	}
}

func (r *Refresher) send(ctx context.Context, a alert.Alert) {
	if err := r.alerter.Send(ctx, a); err != nil {
		r.logger.Warn("alert delivery failed", "type", a.Type, "error", err)
	}
}

func excludedCounts(outcomes []sampler.Outcome) map[sampler.Reason]int {
	counts := make(map[sampler.Reason]int)
	for _, o := range outcomes {
		if !o.Kept {
			counts[o.Reason]++
		}
	}
	return counts
}
