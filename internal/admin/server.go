package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/cache"
	"github.com/emperorhan/xrpl-insights/internal/circuitbreaker"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/emperorhan/xrpl-insights/internal/inspector"
	"github.com/emperorhan/xrpl-insights/internal/pipeline"
	"github.com/emperorhan/xrpl-insights/internal/pipeline/aggregator"
)

const (
	DefaultTxTableRows     = 50
	defaultCacheSize       = 1024
	defaultAccountCacheTTL = 15 * time.Second
	defaultNetworkCacheTTL = 10 * time.Second
)

// SnapshotSource exposes the refresher's published state.
type SnapshotSource interface {
	Snapshot() *pipeline.Snapshot
	Health() *pipeline.Health
	BreakerState() circuitbreaker.State
}

type AccountInspector interface {
	AccountState(ctx context.Context, address string) (*model.AccountSnapshot, error)
	AccountHistory(ctx context.Context, address string, limit int) (*model.AccountHistory, error)
}

type NetworkReporter interface {
	Report(ctx context.Context) model.NetworkHealth
}

// Server serves the read-only insights API.
type Server struct {
	snapshots SnapshotSource
	inspector AccountInspector
	reporter  NetworkReporter
	txRows    int
	logger    *slog.Logger
	nowFn     func() time.Time

	accounts *cache.Loading[*model.AccountSnapshot]
	history  *cache.Loading[*model.AccountHistory]
	network  *cache.Loading[model.NetworkHealth]
}

type Options struct {
	TxTableRows      int
	AccountCacheSize int
	AccountCacheTTL  time.Duration
	NetworkCacheTTL  time.Duration
}

func NewServer(snapshots SnapshotSource, insp AccountInspector, reporter NetworkReporter, opts Options, logger *slog.Logger) *Server {
	if opts.TxTableRows <= 0 {
		opts.TxTableRows = DefaultTxTableRows
	}
	if opts.AccountCacheSize <= 0 {
		opts.AccountCacheSize = defaultCacheSize
	}
	if opts.AccountCacheTTL <= 0 {
		opts.AccountCacheTTL = defaultAccountCacheTTL
	}
	if opts.NetworkCacheTTL <= 0 {
		opts.NetworkCacheTTL = defaultNetworkCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		snapshots: snapshots,
		inspector: insp,
		reporter:  reporter,
		txRows:    opts.TxTableRows,
		logger:    logger.With("component", "api"),
		nowFn:     time.Now,
		accounts:  cache.NewLoading[*model.AccountSnapshot]("account_state", opts.AccountCacheSize, opts.AccountCacheTTL),
		history:   cache.NewLoading[*model.AccountHistory]("account_history", opts.AccountCacheSize, opts.AccountCacheTTL),
		network:   cache.NewLoading[model.NetworkHealth]("network", 1, opts.NetworkCacheTTL),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/overview", s.handleOverview)
	mux.HandleFunc("GET /api/v1/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/v1/charts/throughput", s.handleThroughput)
	mux.HandleFunc("GET /api/v1/charts/fees", s.handleFees)
	mux.HandleFunc("GET /api/v1/prices", s.handlePrices)
	mux.HandleFunc("GET /api/v1/accounts/{address}", s.handleAccount)
	mux.HandleFunc("GET /api/v1/accounts/{address}/transactions", s.handleAccountTransactions)
	mux.HandleFunc("GET /api/v1/network", s.handleNetwork)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// currentSnapshot writes 503 and returns nil until the first cycle publishes.
func (s *Server) currentSnapshot(w http.ResponseWriter) *pipeline.Snapshot {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
	}
	return snap
}

// queryLimit parses ?limit=. A missing value yields def.
func queryLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

type overviewResponse struct {
	Network        string    `json:"network"`
	CycleID        string    `json:"cycle_id"`
	GeneratedAt    time.Time `json:"generated_at"`
	LatestSequence int64     `json:"latest_sequence"`
	LedgersSampled int       `json:"ledgers_sampled"`
	SkippedLedgers []int64   `json:"skipped_ledgers"`
	SampleSize     int       `json:"sample_size"`
	UniqueAccounts int       `json:"unique_accounts"`
	MeanFeeXRP     string    `json:"mean_fee_xrp,omitempty"`
	Endpoint       string    `json:"endpoint,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap := s.currentSnapshot(w)
	if snap == nil {
		return
	}
	resp := overviewResponse{
		Network:        snap.Network,
		CycleID:        snap.CycleID,
		GeneratedAt:    snap.GeneratedAt,
		LatestSequence: snap.LatestSequence,
		SkippedLedgers: snap.SkippedLedgers,
		SampleSize:     len(snap.Records),
		UniqueAccounts: aggregator.UniqueAccounts(snap.Records),
		Endpoint:       snap.Endpoint,
		Reason:         snap.Reason,
	}
	for _, l := range snap.Ledgers {
		if l.Fetched {
			resp.LedgersSampled++
		}
	}
	if mean, ok := aggregator.MeanFeeXRP(snap.Records); ok {
		resp.MeanFeeXRP = mean.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type transactionsResponse struct {
	GeneratedAt  time.Time                 `json:"generated_at"`
	Total        int                       `json:"total"`
	Transactions []model.TransactionRecord `json:"transactions"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, s.txRows)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	snap := s.currentSnapshot(w)
	if snap == nil {
		return
	}
	rows := snap.Records
	if len(rows) > limit {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, transactionsResponse{
		GeneratedAt:  snap.GeneratedAt,
		Total:        len(snap.Records),
		Transactions: rows,
	})
}

type seriesResponse[T any] struct {
	GeneratedAt time.Time `json:"generated_at"`
	Points      []T       `json:"points"`
	Error       string    `json:"error,omitempty"`
}

func (s *Server) handleThroughput(w http.ResponseWriter, r *http.Request) {
	snap := s.currentSnapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse[model.MinuteCount]{GeneratedAt: snap.GeneratedAt, Points: snap.Counts})
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	snap := s.currentSnapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse[model.MinuteAvgFee]{GeneratedAt: snap.GeneratedAt, Points: snap.AvgFees})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	snap := s.currentSnapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse[model.PricePoint]{
		GeneratedAt: snap.GeneratedAt,
		Points:      snap.Prices,
		Error:       snap.PriceError,
	})
}

// pathAddress returns the {address} segment if it is a classic address.
func pathAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := strings.TrimSpace(r.PathValue("address"))
	if !model.IsClassicAddress(address) {
		writeError(w, http.StatusBadRequest, "address must be a classic address starting with "+model.ClassicAddressPrefix)
		return "", false
	}
	return address, true
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address, ok := pathAddress(w, r)
	if !ok {
		return
	}
	snap, _, err := s.accounts.Get(r.Context(), address, func(ctx context.Context) (*model.AccountSnapshot, error) {
		return s.inspector.AccountState(ctx, address)
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Warn("account lookup failed", "address", address, "error", err)
		writeError(w, http.StatusBadGateway, "ledger endpoints unavailable")
		return
	}
	status := http.StatusOK
	if !snap.Found {
		status = http.StatusNotFound
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	address, ok := pathAddress(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(r, inspector.DefaultHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = inspector.ClampLimit(limit)

	key := address + "|" + strconv.Itoa(limit)
	hist, _, err := s.history.Get(r.Context(), key, func(ctx context.Context) (*model.AccountHistory, error) {
		return s.inspector.AccountHistory(ctx, address, limit)
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Warn("account history failed", "address", address, "error", err)
		writeError(w, http.StatusBadGateway, "ledger endpoints unavailable")
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// unreachableReportError carries a report whose halves both failed, so the
// loader serves it without caching it.
type unreachableReportError struct {
	report model.NetworkHealth
}

func (e *unreachableReportError) Error() string {
	return "network report: status and fees both failed"
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	report, _, err := s.network.Get(r.Context(), "network", func(ctx context.Context) (model.NetworkHealth, error) {
		h := s.reporter.Report(ctx)
		if h.Status.Error != "" && h.Fees.Error != "" {
			return h, &unreachableReportError{report: h}
		}
		return h, nil
	})
	if err != nil {
		var unreachable *unreachableReportError
		if !errors.As(err, &unreachable) {
			return
		}
		report = unreachable.report
	}
	writeJSON(w, http.StatusOK, report)
}

type healthResponse struct {
	Refresh        pipeline.HealthSnapshot `json:"refresh"`
	Breaker        string                  `json:"breaker"`
	SnapshotAgeSec *float64                `json:"snapshot_age_sec,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Refresh: s.snapshots.Health().Snapshot(),
		Breaker: s.snapshots.BreakerState().String(),
	}
	if snap := s.snapshots.Snapshot(); snap != nil {
		age := s.nowFn().Sub(snap.GeneratedAt).Seconds()
		resp.SnapshotAgeSec = &age
	}
	status := http.StatusOK
	if resp.Refresh.Status == string(pipeline.HealthStatusUnhealthy) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
