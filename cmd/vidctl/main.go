// Command vidctl transcodes local video files and uploads them to a canister
// backend, and lists or deletes what is stored there.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"canistream/internal/app"
	"canistream/internal/metrics"
	"canistream/internal/services/canister/httpclient"
	"canistream/internal/telemetry"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	// stdout carries command output; logs go to stderr.
	logger := newStderrLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(ctx, "vidctl", logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}

	env := &cliEnv{
		cfg:     cfg,
		logger:  logger,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		backend: httpclient.New(cfg.Client.BackendURL, httpclient.WithLogger(logger)),
	}
	runErr := newRegistry().Execute(ctx, env, os.Args[1:])

	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "Error:", runErr)
		os.Exit(1)
	}
}

func newStderrLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: app.ParseLogLevel(level)}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

type cliEnv struct {
	cfg     app.Config
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
	backend *httpclient.Client
	// newTranscoder is replaced in tests.
	newTranscoder func() transcoder
}
