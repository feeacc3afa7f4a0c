package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL    = "https://api.coingecko.com/api/v3"
	DefaultCoinID     = "ripple"
	DefaultVsCurrency = "usd"
	DefaultPageWidth  = 24 * time.Hour
	DefaultTimeout    = 15 * time.Second

	// MaxAttempts bounds the tries for one page, the first included.
	MaxAttempts     = 6
	initialInterval = 500 * time.Millisecond
	multiplier      = 2.0
)

// Feed returns an ascending price series for [from, to].
type Feed interface {
	History(ctx context.Context, from, to time.Time) ([]model.PricePoint, error)
}

// StatusError is a non-retryable HTTP answer from the price API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("market api status %d: %s", e.StatusCode, e.Body)
}

var errRetryableStatus = errors.New("retryable status")

type HTTPConfig struct {
	BaseURL    string
	CoinID     string
	VsCurrency string
	PageWidth  time.Duration
	Timeout    time.Duration
}

type Option func(*HTTPFeed)

// WithBackOff replaces the per-page retry policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *HTTPFeed) { f.newBackOff = newBackOff }
}

// HTTPFeed pages a {"prices": [[ms, price], ...]} range endpoint.
type HTTPFeed struct {
	client     *resty.Client
	coinID     string
	vsCurrency string
	pageWidth  time.Duration
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

func NewHTTPFeed(cfg HTTPConfig, logger *slog.Logger, opts ...Option) *HTTPFeed {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CoinID == "" {
		cfg.CoinID = DefaultCoinID
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = DefaultVsCurrency
	}
	if cfg.PageWidth <= 0 {
		cfg.PageWidth = DefaultPageWidth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &HTTPFeed{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		coinID:     cfg.CoinID,
		vsCurrency: cfg.VsCurrency,
		pageWidth:  cfg.PageWidth,
		newBackOff: defaultBackOff,
		logger:     logger.With("component", "market"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// defaultBackOff waits 0.5s, 1s, 2s, ... between tries with no jitter.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = initialInterval << (MaxAttempts - 1)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxAttempts-1)
}

// History fetches [from, to] page by page. Points shared by adjacent pages
// appear once. The result is ascending and never nil.
func (f *HTTPFeed) History(ctx context.Context, from, to time.Time) ([]model.PricePoint, error) {
	if !to.After(from) {
		return []model.PricePoint{}, nil
	}

	var all []model.PricePoint
	for start := from; start.Before(to); start = start.Add(f.pageWidth) {
		end := start.Add(f.pageWidth)
		if end.After(to) {
			end = to
		}
		page, err := f.fetchPage(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("price history %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}
		all = append(all, page...)
	}
	return normalize(all), nil
}

type rangeResponse struct {
	Prices [][]decimal.Decimal `json:"prices"`
}

func (f *HTTPFeed) fetchPage(ctx context.Context, from, to time.Time) ([]model.PricePoint, error) {
	var points []model.PricePoint

	op := func() error {
		resp, err := f.client.R().
			SetContext(ctx).
			SetResult(&rangeResponse{}).
			ForceContentType("application/json").
			SetQueryParams(map[string]string{
				"vs_currency": f.vsCurrency,
				"from":        strconv.FormatInt(from.Unix(), 10),
				"to":          strconv.FormatInt(to.Unix(), 10),
			}).
			Get("/coins/" + f.coinID + "/market_chart/range")
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			metrics.MarketPagesTotal.WithLabelValues("network_error").Inc()
			return err
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			metrics.MarketPagesTotal.WithLabelValues("retryable").Inc()
			return fmt.Errorf("%w: %d", errRetryableStatus, code)
		case !resp.IsSuccess():
			metrics.MarketPagesTotal.WithLabelValues("rejected").Inc()
			return backoff.Permanent(&StatusError{StatusCode: code, Body: truncate(resp.String(), 256)})
		}

		body, ok := resp.Result().(*rangeResponse)
		if !ok {
			return backoff.Permanent(errors.New("unexpected response type"))
		}
		points = toPoints(body.Prices)
		metrics.MarketPagesTotal.WithLabelValues("ok").Inc()
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.logger.Debug("price page failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(f.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return points, nil
}

func toPoints(raw [][]decimal.Decimal) []model.PricePoint {
	points := make([]model.PricePoint, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		points = append(points, model.PricePoint{
			Time:  time.UnixMilli(pair[0].IntPart()).UTC(),
			Price: pair[1],
		})
	}
	return points
}

func normalize(points []model.PricePoint) []model.PricePoint {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	out := make([]model.PricePoint, 0, len(points))
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
