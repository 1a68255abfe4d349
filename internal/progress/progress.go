// Package progress fans upload progress out to logs and a Redis bus.
package progress

import (
	"context"
	"log/slog"

	"canistream/internal/domain"
)

// Reporter receives upload progress events. Implementations must not block
// the upload for long and must not fail it.
type Reporter interface {
	Report(ctx context.Context, p domain.UploadProgress)
}

type ReporterFunc func(ctx context.Context, p domain.UploadProgress)

func (f ReporterFunc) Report(ctx context.Context, p domain.UploadProgress) { f(ctx, p) }

// Multi reports to every non-nil reporter in order.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, p domain.UploadProgress) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, p)
		}
	}
}

type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(ctx context.Context, p domain.UploadProgress) {
	level := slog.LevelInfo
	if p.Phase == domain.PhaseFailed {
		level = slog.LevelError
	}
	r.logger.LogAttrs(ctx, level, "upload progress",
		slog.String("videoId", string(p.VideoID)),
		slog.String("phase", string(p.Phase)),
		slog.Float64("percent", p.Percent),
		slog.String("message", p.Message),
	)
}
