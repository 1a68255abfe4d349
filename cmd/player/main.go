// Command player is an HLS playback proxy in front of a canister backend.
// Any standard HLS engine can play /{id}/playlist.m3u8 from it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "go.uber.org/automaxprocs"

	"canistream/internal/app"
	"canistream/internal/domain/ports"
	"canistream/internal/metrics"
	"canistream/internal/playback"
	"canistream/internal/services/canister/httpclient"
	"canistream/internal/telemetry"
)

const serviceName = "player"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	pcfg := cfg.Player
	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", pcfg.HTTPAddr),
		slog.String("backendURL", pcfg.BackendURL),
		slog.Int("maxConcurrentRequests", pcfg.MaxConcurrentRequests),
		slog.Int("segmentDuration", pcfg.SegmentDuration),
		slog.Duration("sessionIdle", pcfg.SessionIdle),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := httpclient.New(pcfg.BackendURL, httpclient.WithLogger(logger))
	manager := playback.NewManager(backend, managerConfig(pcfg), playback.WithManagerLogger(logger))

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		manager.Run(rootCtx)
	}()

	srv := &http.Server{
		Addr:              pcfg.HTTPAddr,
		Handler:           routes(manager),
		ReadHeaderTimeout: 5 * time.Second,
		// Segment responses wait on backend fetches.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("player started", slog.String("addr", pcfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	stop()
	<-reaperDone

	logger.Info("player stopped")
}

func managerConfig(pcfg app.PlayerConfig) playback.ManagerConfig {
	mcfg := playback.DefaultManagerConfig()
	if pcfg.MaxConcurrentRequests > 0 {
		mcfg.Session.Loader.MaxConcurrentRequests = pcfg.MaxConcurrentRequests
	}
	if pcfg.SegmentDuration > 0 {
		mcfg.Session.Playlist.TargetDuration = pcfg.SegmentDuration
		mcfg.Session.Playlist.SegmentDuration = float64(pcfg.SegmentDuration)
	}
	mcfg.IdleTTL = pcfg.SessionIdle
	return mcfg
}

func routes(manager *playback.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(manager.Handler(), serviceName))
	return mux
}

var _ ports.SegmentSource = (*httpclient.Client)(nil)
