package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote calls, sampling and refresh cycles, partitioned by network.

var (
	// RPC caller
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total remote calls by outcome after endpoint rotation",
	}, []string{"network", "method", "status"})

	RPCAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "rpc",
		Name:      "endpoint_attempts_total",
		Help:      "Total per-endpoint attempts by failure class",
	}, []string{"network", "endpoint", "status"})

	RPCFailoversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "rpc",
		Name:      "failovers_total",
		Help:      "Total rotations to the next endpoint after a failed attempt",
	}, []string{"network"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times an attempt waited on the client-side rate limiter",
	}, []string{"network"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Remote call duration including rotation",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 60},
	}, []string{"network", "method"})

	// Sampler
	SamplerLedgersFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "sampler",
		Name:      "ledgers_fetched_total",
		Help:      "Total ledgers fetched during sampling",
	}, []string{"network"})

	SamplerLedgersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "sampler",
		Name:      "ledgers_skipped_total",
		Help:      "Total ledgers skipped because every endpoint failed",
	}, []string{"network"})

	SamplerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "sampler",
		Name:      "transactions_total",
		Help:      "Total sampled transactions by outcome",
	}, []string{"network", "outcome"})

	SamplerTimestampSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "sampler",
		Name:      "close_time_source_total",
		Help:      "Total ledgers by close-time fallback tier used",
	}, []string{"network", "source"})

	SamplerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights",
		Subsystem: "sampler",
		Name:      "sample_duration_seconds",
		Help:      "Duration of one bounded-depth sample",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"network"})

	// Refresher
	RefreshCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "refresh",
		Name:      "cycles_total",
		Help:      "Total refresh cycles by outcome",
	}, []string{"network", "status"})

	RefreshSnapshotRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insights",
		Subsystem: "refresh",
		Name:      "snapshot_records",
		Help:      "Transaction records in the published snapshot",
	}, []string{"network"})

	RefreshLatestLedger = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insights",
		Subsystem: "refresh",
		Name:      "latest_validated_ledger",
		Help:      "Latest validated ledger seen by the published snapshot",
	}, []string{"network"})

	RefreshBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insights",
		Subsystem: "refresh",
		Name:      "breaker_state",
		Help:      "Refresh circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"network"})

	// Market feed
	MarketPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "market",
		Name:      "pages_total",
		Help:      "Total market-history pages fetched by outcome",
	}, []string{"status"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by cooldown",
	}, []string{"channel", "type"})

	// Account cache
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Total cache lookups by cache and result (hit, miss, expired)",
	}, []string{"cache", "result"})

	CacheLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "cache",
		Name:      "loads_total",
		Help:      "Total upstream loads by cache and outcome, after coalescing",
	}, []string{"cache", "status"})

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests by route and status code",
	}, []string{"route", "code"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Total API requests rejected by the per-client limiter",
	}, []string{"tier"})
)
