package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/chain/ratelimit"
	"github.com/emperorhan/xrpl-insights/internal/metrics"
)

const (
	DefaultTimeout = 20 * time.Second

	// maxResponseBytes bounds one expanded ledger; busy mainnet ledgers stay well below it.
	maxResponseBytes = 64 << 20

	maxErrorBodyBytes = 512
)

// Caller issues one named call and returns its result payload.
type Caller interface {
	Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	CurrentEndpoint() string
}

// Client calls an ordered list of XRPL JSON-RPC endpoints, returning the first
// successful result. Rotation across endpoints is its only resilience
// mechanism: an endpoint is never retried within one call.
type Client struct {
	httpClient *http.Client
	endpoints  []string
	network    string
	timeout    time.Duration
	logger     *slog.Logger
	limiter    *ratelimit.Limiter

	// current is the endpoint that last satisfied a call. Diagnostic only.
	current atomic.Pointer[string]
}

func NewClient(endpoints []string, timeout time.Duration, network string, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		endpoints:  append([]string(nil), endpoints...),
		network:    network,
		timeout:    timeout,
		logger:     logger.With("component", "xrpl_rpc"),
	}
}

// SetRateLimiter sets the limiter consulted before every endpoint attempt.
func (c *Client) SetRateLimiter(l *ratelimit.Limiter) {
	c.limiter = l
}

// Endpoints returns a copy of the configured rotation order.
func (c *Client) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

// CurrentEndpoint returns the endpoint that most recently succeeded, or "".
func (c *Client) CurrentEndpoint() string {
	if p := c.current.Load(); p != nil {
		return *p
	}
	return ""
}

// Call posts {"method": method, "params": [params]} to each endpoint in order
// until one answers with HTTP 200 and a result field. When every endpoint
// fails it returns an *AllEndpointsUnavailableError.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.RPCLatency.WithLabelValues(c.network, method).Observe(time.Since(start).Seconds())
	}()

	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(Request{Method: method, Params: []map[string]any{params}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	rot := newRotation(c.endpoints)
	for {
		endpoint, ok := rot.current()
		if !ok {
			break
		}

		result, err := c.attempt(ctx, endpoint, body)
		ratelimit.RecordAttempt(c.network, endpoint, err)
		if err == nil {
			rot.succeed()
			c.current.Store(&endpoint)
			ratelimit.RecordCall(c.network, method, nil)
			return result, nil
		}

		rot.fail(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", method, ctxErr)
		}
		if next, more := rot.current(); more {
			metrics.RPCFailoversTotal.WithLabelValues(c.network).Inc()
			c.logger.Debug("endpoint failed, rotating",
				"method", method,
				"endpoint", endpoint,
				"next", next,
				"error", err,
			)
		}
	}

	exhausted := rot.exhaustedError(method)
	ratelimit.RecordCall(c.network, method, exhausted)
	c.logger.Warn("all endpoints failed", "method", method, "attempts", len(exhausted.Attempts), "error", exhausted)
	return nil, exhausted
}

func (c *Client) attempt(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(respBody, maxErrorBodyBytes))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if isNull(rpcResp.Result) {
		return nil, ErrMissingResult
	}

	return rpcResp.Result, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
