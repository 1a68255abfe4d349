// Package playback resolves a playback engine's segment requests against the
// backend with caching, de-duplication and bounded concurrency.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
	"canistream/internal/metrics"
	"canistream/internal/playlist"
)

var ErrSessionClosed = errors.New("playback session closed")

const (
	fillerReasonFetch   = "fetch_failed"
	fillerReasonCorrupt = "corrupt"
)

type LoaderConfig struct {
	MaxConcurrentRequests int
}

func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{MaxConcurrentRequests: 2}
}

// pendingFetch is shared by every caller waiting on one segment index.
// done is closed exactly once, after data is set.
type pendingFetch struct {
	done chan struct{}
	data []byte
}

// segmentFetchError is logged and masked by the filler; it never reaches
// callers of LoadSegment.
type segmentFetchError struct {
	segment int
	chunk   int
	err     error
}

func (e *segmentFetchError) Error() string {
	return fmt.Sprintf("fetch segment %d chunk %d: %v", e.segment, e.chunk, e.err)
}

func (e *segmentFetchError) Unwrap() error { return e.err }

// Loader caches reassembled segments for one video. Entries are never
// evicted; the cache lives as long as the Loader.
type Loader struct {
	ctx           context.Context
	source        ports.SegmentSource
	videoID       domain.VideoID
	maxConcurrent int
	logger        *slog.Logger
	indexByURI    map[string]int
	// segmentCount bounds valid indexes; negative means unbounded.
	segmentCount int

	mu      sync.Mutex
	cache   map[int][]byte
	pending map[int]*pendingFetch
	queue   []int
	active  int
	closed  bool
}

type LoaderOption func(*Loader)

func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithURIIndex installs the literal segment-reference mapping produced by
// the playlist normalizer.
func WithURIIndex(index map[string]int) LoaderOption {
	return func(l *Loader) {
		l.indexByURI = index
	}
}

// WithSegmentCount limits the loader to indexes [0, n). Requests outside
// that range fail with domain.ErrNotFound and never reach the backend or the
// cache.
func WithSegmentCount(n int) LoaderOption {
	return func(l *Loader) {
		if n >= 0 {
			l.segmentCount = n
		}
	}
}

// NewLoader returns a Loader whose backend fetches run on ctx. Cancelling
// ctx makes outstanding and future fetches resolve to the filler.
func NewLoader(ctx context.Context, source ports.SegmentSource, videoID domain.VideoID, cfg LoaderConfig, opts ...LoaderOption) *Loader {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = DefaultLoaderConfig().MaxConcurrentRequests
	}
	l := &Loader{
		ctx:           ctx,
		source:        source,
		videoID:       videoID,
		maxConcurrent: cfg.MaxConcurrentRequests,
		logger:        slog.Default(),
		segmentCount:  -1,
		cache:         make(map[int][]byte),
		pending:       make(map[int]*pendingFetch),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadSegment returns the bytes of segment index. Concurrent calls for the
// same index share one backend fetch. Fetch failures and corrupt segments
// resolve to FillerPacket rather than an error; an error is returned only
// when ctx ends first, the loader is closed, or index is not a segment of the
// video. The returned slice is the caller's own copy.
func (l *Loader) LoadSegment(ctx context.Context, index int) ([]byte, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: segment index %d", domain.ErrInvalidArgument, index)
	}
	if l.segmentCount >= 0 && index >= l.segmentCount {
		return nil, fmt.Errorf("%w: segment %d of %d", domain.ErrNotFound, index, l.segmentCount)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if data, ok := l.cache[index]; ok {
		l.mu.Unlock()
		metrics.SegmentCacheHitsTotal.Inc()
		return bytes.Clone(data), nil
	}
	p, ok := l.pending[index]
	if !ok {
		p = &pendingFetch{done: make(chan struct{})}
		l.pending[index] = p
		if l.active < l.maxConcurrent {
			l.startLocked(index, p)
		} else {
			l.queue = append(l.queue, index)
		}
	}
	l.mu.Unlock()

	select {
	case <-p.done:
		return bytes.Clone(p.data), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadURI resolves uri through the literal playlist mapping, falling back
// to the synthetic scheme://video/index form.
func (l *Loader) LoadURI(ctx context.Context, uri string) ([]byte, error) {
	index, err := l.ResolveURI(uri)
	if err != nil {
		return nil, err
	}
	return l.LoadSegment(ctx, index)
}

func (l *Loader) ResolveURI(uri string) (int, error) {
	if index, ok := l.indexByURI[uri]; ok {
		return index, nil
	}
	ref, err := playlist.ParseSegmentURI(uri)
	if err != nil {
		return 0, fmt.Errorf("%w: segment %q", domain.ErrNotFound, uri)
	}
	if ref.VideoID != l.videoID {
		return 0, fmt.Errorf("%w: segment %q belongs to video %s", domain.ErrNotFound, uri, ref.VideoID)
	}
	if l.segmentCount >= 0 && ref.Index >= l.segmentCount {
		return 0, fmt.Errorf("%w: segment %q is out of range", domain.ErrNotFound, uri)
	}
	return ref.Index, nil
}

// Cached reports whether index has resolved.
func (l *Loader) Cached(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cache[index]
	return ok
}

// Close drops the cache. Waiters on in-flight fetches still receive a
// result; new calls fail with ErrSessionClosed.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cache = make(map[int][]byte)
}

func (l *Loader) startLocked(index int, p *pendingFetch) {
	l.active++
	metrics.SegmentsInFlight.Inc()
	go l.fetch(index, p)
}

func (l *Loader) fetch(index int, p *pendingFetch) {
	data, err := l.assemble(index)
	switch {
	case err != nil:
		metrics.SegmentFillersTotal.WithLabelValues(fillerReasonFetch).Inc()
		l.logger.Warn("segment fetch failed, substituting filler",
			slog.String("videoId", string(l.videoID)),
			slog.Int("segment", index),
			slog.String("error", err.Error()),
		)
		data = FillerPacket()
	case !validSegment(data):
		metrics.SegmentFillersTotal.WithLabelValues(fillerReasonCorrupt).Inc()
		l.logger.Warn("segment failed validation, substituting filler",
			slog.String("videoId", string(l.videoID)),
			slog.Int("segment", index),
			slog.Int("bytes", len(data)),
		)
		data = FillerPacket()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.cache[index] = data
	}
	delete(l.pending, index)
	p.data = data
	close(p.done)
	l.active--
	metrics.SegmentsInFlight.Dec()

	for l.active < l.maxConcurrent && len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		if np, ok := l.pending[next]; ok {
			l.startLocked(next, np)
		}
	}
}

// assemble fetches chunk 0, then the remaining chunks in order, and
// concatenates them. It stops at the first failing chunk.
func (l *Loader) assemble(index int) ([]byte, error) {
	metrics.SegmentFetchesTotal.Inc()
	if err := l.ctx.Err(); err != nil {
		return nil, &segmentFetchError{segment: index, err: err}
	}
	first, err := l.source.GetSegmentChunk(l.ctx, l.videoID, index, 0)
	if err != nil {
		return nil, &segmentFetchError{segment: index, err: err}
	}
	buf := append([]byte(nil), first.Data...)
	for chunk := 1; chunk < first.TotalChunkCount; chunk++ {
		next, err := l.source.GetSegmentChunk(l.ctx, l.videoID, index, chunk)
		if err != nil {
			return nil, &segmentFetchError{segment: index, chunk: chunk, err: err}
		}
		buf = append(buf, next.Data...)
	}
	return buf, nil
}
