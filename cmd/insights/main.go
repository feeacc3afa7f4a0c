package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/admin"
	"github.com/emperorhan/xrpl-insights/internal/alert"
	"github.com/emperorhan/xrpl-insights/internal/chain/ratelimit"
	"github.com/emperorhan/xrpl-insights/internal/chain/xrpl/rpc"
	"github.com/emperorhan/xrpl-insights/internal/circuitbreaker"
	"github.com/emperorhan/xrpl-insights/internal/config"
	"github.com/emperorhan/xrpl-insights/internal/diagnostics"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/emperorhan/xrpl-insights/internal/inspector"
	"github.com/emperorhan/xrpl-insights/internal/market"
	"github.com/emperorhan/xrpl-insights/internal/pipeline"
	"github.com/emperorhan/xrpl-insights/internal/pipeline/sampler"
	"github.com/emperorhan/xrpl-insights/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "xrpl-insights"
	shutdownTimeout = 5 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run a single refresh cycle, print the snapshot as JSON and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), serviceName, tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	network := model.Network(cfg.XRPL.Network)
	client := rpc.NewClient(cfg.XRPL.Endpoints, cfg.XRPL.Timeout(), network.String(), logger)
	if cfg.XRPL.RPS > 0 {
		client.SetRateLimiter(ratelimit.NewLimiter(cfg.XRPL.RPS, cfg.XRPL.Burst, network.String()))
	}
	logger.Info("xrpl client configured",
		"network", network,
		"endpoints", client.Endpoints(),
		"rps", cfg.XRPL.RPS,
	)

	refresher := buildRefresher(cfg, client, logger)

	if *once {
		if err := runOnce(context.Background(), refresher, os.Stdout); err != nil {
			logger.Error("refresh failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHTTPServer(gCtx, "health", cfg.Server.HealthPort, newOpsMux(logger), logger)
	})

	srv := admin.NewServer(refresher, inspector.New(client, logger), diagnostics.NewReporter(client, logger), admin.Options{
		TxTableRows:      cfg.Sampler.TxTableRows,
		AccountCacheSize: cfg.API.AccountCacheSize,
		AccountCacheTTL:  cfg.API.AccountCacheTTL(),
		NetworkCacheTTL:  cfg.API.NetworkCacheTTL(),
	}, logger)
	rl := admin.NewRateLimitMiddleware(
		admin.Tier{RPS: cfg.API.RPS, Burst: cfg.API.Burst},
		admin.Tier{RPS: cfg.API.AccountRPS, Burst: cfg.API.AccountBurst},
		logger,
	)
	defer rl.Stop()

	g.Go(func() error {
		return runHTTPServer(gCtx, "api", cfg.API.Port, admin.AccessLogMiddleware(logger, rl.Wrap(srv.Handler())), logger)
	})

	g.Go(func() error {
		return refresher.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	logger.Info("xrpl insights started",
		"network", network,
		"api_port", cfg.API.Port,
		"health_port", cfg.Server.HealthPort,
		"interval", cfg.Refresh.Interval(),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("insights exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("insights shut down gracefully")
}

func buildRefresher(cfg *config.Config, client *rpc.Client, logger *slog.Logger) *pipeline.Refresher {
	network := model.Network(cfg.XRPL.Network)

	smp := sampler.New(client, network.String(), logger)

	breaker := pipeline.NewEndpointBreaker(circuitbreaker.Config{
		FailureThreshold: cfg.Refresh.BreakerFailureThreshold,
		OpenTimeout:      cfg.Refresh.BreakerOpenTimeout(),
	}, network, logger)

	opts := []pipeline.Option{
		pipeline.WithBreaker(breaker),
		pipeline.WithAlerter(buildAlerter(cfg.Alert, logger)),
	}
	priceWindow := time.Duration(0)
	if cfg.Market.Enabled {
		priceWindow = cfg.Market.Window()
		opts = append(opts, pipeline.WithPriceFeed(market.NewHTTPFeed(market.HTTPConfig{
			BaseURL:    cfg.Market.BaseURL,
			CoinID:     cfg.Market.CoinID,
			VsCurrency: cfg.Market.VsCurrency,
			PageWidth:  cfg.Market.PageWidth(),
			Timeout:    cfg.Market.Timeout(),
		}, logger)))
	}

	return pipeline.NewRefresher(pipeline.Config{
		Network:            network,
		Depth:              cfg.Sampler.LedgersBack,
		Interval:           cfg.Refresh.Interval(),
		PriceWindow:        priceWindow,
		UnhealthyThreshold: cfg.Refresh.UnhealthyThreshold,
	}, smp, logger, opts...)
}

func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var sinks []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(sinks) == 0 {
		return &alert.NoopAlerter{}
	}
	logger.Info("alerting enabled", "sinks", len(sinks), "cooldown", cfg.Cooldown())
	return alert.NewMultiAlerter(cfg.Cooldown(), logger, sinks...)
}

type refreshOnce interface {
	RefreshOnce(ctx context.Context) (*pipeline.Snapshot, error)
}

func runOnce(ctx context.Context, r refreshOnce, out io.Writer) error {
	snap, err := r.RefreshOnce(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.New("refresh produced no snapshot")
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newOpsMux(logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runHTTPServer(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("server started", "server", name, "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
