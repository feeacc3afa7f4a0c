package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every endpoint of one RPC client.
// Public ledger servers throttle per client, so one budget covers all attempts.
type Limiter struct {
	limiter *rate.Limiter
	network string
}

// NewLimiter allows rps attempts per second with a burst of burst tokens.
func NewLimiter(rps float64, burst int, network string) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		network: network,
	}
}

// Wait blocks until one token is available or ctx is done. A cancelled wait
// returns its reservation to the bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	metrics.RPCRateLimitWaits.WithLabelValues(l.network).Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// RecordAttempt records one endpoint attempt with its failure class.
func RecordAttempt(network, endpoint string, err error) {
	metrics.RPCAttemptsTotal.WithLabelValues(network, endpoint, ClassifyRPCError(err)).Inc()
}

// RecordCall records the rotated outcome of one named call.
func RecordCall(network, method string, err error) {
	status := "ok"
	if err != nil {
		status = "exhausted"
	}
	metrics.RPCCallsTotal.WithLabelValues(network, method, status).Inc()
}

// ClassifyRPCError maps an attempt error to a metrics label.
func ClassifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "slowdown"):
		return "rate_limited"
	case strings.Contains(lower, "http status 5"):
		return "server_error"
	case strings.Contains(lower, "http status"):
		return "bad_status"
	case strings.Contains(lower, "missing result") || strings.Contains(lower, "unmarshal") || strings.Contains(lower, "decode"):
		return "malformed"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network is unreachable") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "broken pipe") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "other"
	}
}
