// Package upload pushes transcoded segments and thumbnails to the backend in
// size-bounded chunks.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
	"canistream/internal/metrics"
)

type Config struct {
	MaxChunkSize          int
	RetryCount            int
	RetryDelay            time.Duration
	MaxConcurrentSegments int
	// TranscodeWeight is the share of [0,100] consumed before uploading
	// starts. Upload progress fills the remainder.
	TranscodeWeight float64
}

func DefaultConfig() Config {
	return Config{
		MaxChunkSize:          1 << 20,
		RetryCount:            3,
		RetryDelay:            2 * time.Second,
		MaxConcurrentSegments: 3,
		TranscodeWeight:       30,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = def.MaxChunkSize
	}
	if c.RetryCount <= 0 {
		c.RetryCount = def.RetryCount
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.MaxConcurrentSegments <= 0 {
		c.MaxConcurrentSegments = def.MaxConcurrentSegments
	}
	if c.TranscodeWeight < 0 || c.TranscodeWeight >= 100 {
		c.TranscodeWeight = def.TranscodeWeight
	}
	return c
}

// ProgressFunc receives the aggregated upload percentage.
type ProgressFunc func(percent float64, message string)

type Coordinator struct {
	backend ports.Uploader
	cfg     Config
	logger  *slog.Logger
	sleep   SleepFunc
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleep replaces the wait used between retries.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Coordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewCoordinator(backend ports.Uploader, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Config() Config { return c.cfg }

// UploadSegments uploads every segment, up to MaxConcurrentSegments at a
// time. Chunks of one segment are sent strictly in order. The first segment
// that exhausts its retries cancels the rest and its *domain.ChunkUploadError
// is returned. Segments already stored are left on the backend.
func (c *Coordinator) UploadSegments(ctx context.Context, id domain.VideoID, segments []domain.MediaSegment, onProgress ProgressFunc) error {
	total := 0
	for _, seg := range segments {
		total += ChunkCount(len(seg.Data), c.cfg.MaxChunkSize)
	}
	tracker := newProgressTracker(c.cfg.TranscodeWeight, total, onProgress)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrentSegments)
	for _, seg := range segments {
		g.Go(func() error {
			send := func(ctx context.Context, chunkIndex, totalChunks int, data []byte) error {
				return c.backend.UploadSegmentChunk(ctx, id, seg.Index, chunkIndex, totalChunks, data)
			}
			return c.uploadBuffer(gctx, id, seg.Index, seg.Data, send, tracker.advance)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info("segments uploaded",
		slog.String("videoId", string(id)),
		slog.Int("segments", len(segments)),
		slog.Int("chunks", total),
	)
	return nil
}

// UploadThumbnail sends a thumbnail through the same chunking and retry path.
// Errors carry domain.ThumbnailIndex as their segment index.
func (c *Coordinator) UploadThumbnail(ctx context.Context, id domain.VideoID, data []byte) error {
	send := func(ctx context.Context, chunkIndex, totalChunks int, data []byte) error {
		return c.backend.UploadThumbnailChunk(ctx, id, chunkIndex, totalChunks, data)
	}
	return c.uploadBuffer(ctx, id, domain.ThumbnailIndex, data, send, nil)
}

type sendFunc func(ctx context.Context, chunkIndex, totalChunks int, data []byte) error

func (c *Coordinator) uploadBuffer(ctx context.Context, id domain.VideoID, segmentIndex int, data []byte, send sendFunc, onChunk func(segmentIndex, chunkIndex int)) error {
	chunks := SplitChunks(data, c.cfg.MaxChunkSize)
	totalChunks := len(chunks)
	for chunkIndex, chunk := range chunks {
		retry := RetryConfig{
			MaxAttempts:  c.cfg.RetryCount,
			InitialDelay: c.cfg.RetryDelay,
			Multiplier:   2.0,
			Sleep:        c.sleep,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				metrics.ChunkRetriesTotal.Inc()
				c.logger.Warn("chunk upload failed, retrying",
					slog.String("videoId", string(id)),
					slog.Int("segment", segmentIndex),
					slog.Int("chunk", chunkIndex),
					slog.Int("attempt", attempt),
					slog.Duration("wait", wait),
					slog.String("error", err.Error()),
				)
			},
		}
		err := RetryWithBackoff(ctx, retry, func() error {
			return send(ctx, chunkIndex, totalChunks, chunk)
		})
		if err != nil {
			metrics.ChunkFailuresTotal.Inc()
			return &domain.ChunkUploadError{SegmentIndex: segmentIndex, ChunkIndex: chunkIndex, Err: err}
		}
		metrics.ChunksUploadedTotal.Inc()
		metrics.UploadBytesTotal.Add(float64(len(chunk)))
		if onChunk != nil {
			onChunk(segmentIndex, chunkIndex)
		}
	}
	return nil
}

// progressTracker turns chunk completions into a monotonic percentage.
type progressTracker struct {
	mu       sync.Mutex
	offset   float64
	weight   float64
	total    int
	done     int
	report   ProgressFunc
	reported float64
}

func newProgressTracker(offset float64, total int, report ProgressFunc) *progressTracker {
	return &progressTracker{
		offset:   offset,
		weight:   100 - offset,
		total:    total,
		report:   report,
		reported: offset,
	}
}

func (p *progressTracker) advance(segmentIndex, chunkIndex int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.report == nil || p.total == 0 {
		return
	}
	percent := p.offset + float64(p.done)/float64(p.total)*p.weight
	if percent < p.reported {
		percent = p.reported
	}
	p.reported = percent
	p.report(percent, fmt.Sprintf("Uploaded segment %d chunk %d (%d/%d)", segmentIndex, chunkIndex, p.done, p.total))
}
