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
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	apihttp "canistream/internal/api/http"
	"canistream/internal/app"
	"canistream/internal/domain"
	"canistream/internal/metrics"
	"canistream/internal/progress"
	"canistream/internal/services/canister"
	"canistream/internal/telemetry"
)

const serviceName = "canister"

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

	scfg := cfg.Server
	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", scfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("metadataStore", scfg.MetadataStore),
		slog.String("chunkStore", scfg.ChunkStore),
		slog.Int64("maxChunkBytes", scfg.MaxChunkBytes),
		slog.Bool("progressBus", scfg.RedisAddr != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	st, err := openStores(ctx, scfg, logger)
	cancel()
	if err != nil {
		logger.Error("storage init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	service := canister.NewService(st.Videos, st.Chunks,
		canister.WithMaxChunkBytes(int(scfg.MaxChunkBytes)),
		canister.WithLogger(logger),
	)
	service.SyncGauge(rootCtx)

	options := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithAllowedOrigins(scfg.CORSAllowedOrigins),
		// A full chunk is base64 encoded inside a JSON envelope.
		apihttp.WithMaxBodyBytes(scfg.MaxChunkBytes*2 + 64<<10),
	}

	var redisClient *redis.Client
	if scfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     scfg.RedisAddr,
			Password: scfg.RedisPassword,
		})
		options = append(options, apihttp.WithProgressStore(progress.NewRedisStore(redisClient)))
	}

	handler := apihttp.NewServer(service, options...)

	if redisClient != nil {
		go relayProgress(rootCtx, redisClient, handler, logger)
	}

	srv := &http.Server{
		Addr:              scfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", scfg.HTTPAddr))

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

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// relayProgress forwards upload progress from the bus to websocket clients,
// resubscribing after connection errors.
func relayProgress(ctx context.Context, client *redis.Client, srv *apihttp.Server, logger *slog.Logger) {
	backoff := time.Second
	for {
		err := progress.Subscribe(ctx, client, logger, func(p domain.UploadProgress) {
			srv.BroadcastProgress(p)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("progress subscription failed",
				slog.String("error", err.Error()),
				slog.Duration("retryIn", backoff),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
