package upload

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"canistream/internal/domain"
)

type chunkCall struct {
	segment, chunk, total int
	data                  []byte
}

type fakeUploader struct {
	mu         sync.Mutex
	calls      []chunkCall
	thumbnail  []chunkCall
	failures   map[[2]int]int // (segment, chunk) -> remaining failures
	active     map[int]bool
	maxActive  int
	chunkDelay time.Duration
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{failures: map[[2]int]int{}, active: map[int]bool{}}
}

func (f *fakeUploader) CreateVideo(ctx context.Context, title, description string) (domain.VideoID, error) {
	return "vid", nil
}

func (f *fakeUploader) UploadPlaylist(ctx context.Context, id domain.VideoID, playlist string) error {
	return nil
}

func (f *fakeUploader) UploadSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex, totalChunks int, data []byte) error {
	f.mu.Lock()
	f.active[segmentIndex] = true
	if n := len(f.active); n > f.maxActive {
		f.maxActive = n
	}
	key := [2]int{segmentIndex, chunkIndex}
	if f.failures[key] > 0 {
		f.failures[key]--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()

	if f.chunkDelay > 0 {
		time.Sleep(f.chunkDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chunkCall{segmentIndex, chunkIndex, totalChunks, append([]byte(nil), data...)})
	if chunkIndex == totalChunks-1 {
		delete(f.active, segmentIndex)
	}
	return nil
}

func (f *fakeUploader) UploadThumbnailChunk(ctx context.Context, id domain.VideoID, chunkIndex, totalChunks int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]int{domain.ThumbnailIndex, chunkIndex}
	if f.failures[key] > 0 {
		f.failures[key]--
		return errors.New("timeout")
	}
	f.thumbnail = append(f.thumbnail, chunkCall{domain.ThumbnailIndex, chunkIndex, totalChunks, append([]byte(nil), data...)})
	return nil
}

func (f *fakeUploader) bySegment() map[int][]chunkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int][]chunkCall{}
	for _, c := range f.calls {
		out[c.segment] = append(out[c.segment], c)
	}
	return out
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestUploadSegmentsChunksLargeSegment(t *testing.T) {
	up := newFakeUploader()
	c := NewCoordinator(up, Config{MaxChunkSize: 1_000_000}, WithSleep(noSleep))

	segments := []domain.MediaSegment{
		{Index: 0, Data: filled(2_500_000, 0x47)},
		{Index: 1, Data: filled(10, 0x47)},
	}
	if err := c.UploadSegments(context.Background(), "vid", segments, nil); err != nil {
		t.Fatalf("UploadSegments: %v", err)
	}

	got := up.bySegment()
	if len(got[0]) != 3 {
		t.Fatalf("segment 0 chunks = %d, want 3", len(got[0]))
	}
	var joined []byte
	for i, call := range got[0] {
		if call.chunk != i || call.total != 3 {
			t.Fatalf("segment 0 call %d = (%d/%d)", i, call.chunk, call.total)
		}
		joined = append(joined, call.data...)
	}
	if !bytes.Equal(joined, segments[0].Data) {
		t.Fatalf("segment 0 reassembly mismatch")
	}
	if len(got[1]) != 1 || got[1][0].total != 1 {
		t.Fatalf("segment 1 calls = %+v", got[1])
	}
}

func TestUploadSegmentsRetriesThenSucceeds(t *testing.T) {
	up := newFakeUploader()
	up.failures[[2]int{0, 1}] = 2

	rec := &recordingSleep{}
	c := NewCoordinator(up, Config{MaxChunkSize: 4, RetryDelay: 2 * time.Second}, WithSleep(rec.sleep))

	err := c.UploadSegments(context.Background(), "vid", []domain.MediaSegment{{Index: 0, Data: filled(12, 1)}}, nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got, want := rec.total(), 6*time.Second; got != want {
		t.Fatalf("total wait = %v, want %v", got, want)
	}
	if n := len(up.bySegment()[0]); n != 3 {
		t.Fatalf("stored chunks = %d", n)
	}
}

func TestUploadSegmentsExhaustedRetries(t *testing.T) {
	up := newFakeUploader()
	up.failures[[2]int{2, 1}] = 10

	c := NewCoordinator(up, Config{MaxChunkSize: 4, RetryCount: 3, MaxConcurrentSegments: 1}, WithSleep(noSleep))
	segments := []domain.MediaSegment{
		{Index: 0, Data: filled(4, 1)},
		{Index: 1, Data: filled(4, 1)},
		{Index: 2, Data: filled(8, 1)},
	}
	err := c.UploadSegments(context.Background(), "vid", segments, nil)

	var chunkErr *domain.ChunkUploadError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected ChunkUploadError, got %v", err)
	}
	if chunkErr.SegmentIndex != 2 || chunkErr.ChunkIndex != 1 {
		t.Fatalf("error = %+v", chunkErr)
	}
	if remaining := up.failures[[2]int{2, 1}]; remaining != 7 {
		t.Fatalf("expected exactly 3 attempts, remaining failures = %d", remaining)
	}
	got := up.bySegment()
	if len(got[0]) != 1 || len(got[1]) != 1 {
		t.Fatalf("earlier segments should stay uploaded: %+v", got)
	}
}

func TestUploadSegmentsConcurrencyBound(t *testing.T) {
	up := newFakeUploader()
	up.chunkDelay = 5 * time.Millisecond

	c := NewCoordinator(up, Config{MaxChunkSize: 2, MaxConcurrentSegments: 2}, WithSleep(noSleep))
	var segments []domain.MediaSegment
	for i := 0; i < 6; i++ {
		segments = append(segments, domain.MediaSegment{Index: i, Data: filled(6, byte(i))})
	}
	if err := c.UploadSegments(context.Background(), "vid", segments, nil); err != nil {
		t.Fatalf("UploadSegments: %v", err)
	}
	if up.maxActive > 2 {
		t.Fatalf("max concurrent segments = %d, want <= 2", up.maxActive)
	}
	for idx, calls := range up.bySegment() {
		for i, call := range calls {
			if call.chunk != i {
				t.Fatalf("segment %d chunks out of order: %+v", idx, calls)
			}
		}
	}
}

func TestUploadSegmentsProgressMonotonic(t *testing.T) {
	up := newFakeUploader()
	c := NewCoordinator(up, Config{MaxChunkSize: 3, MaxConcurrentSegments: 4, TranscodeWeight: 30}, WithSleep(noSleep))

	var segments []domain.MediaSegment
	for i := 0; i < 8; i++ {
		segments = append(segments, domain.MediaSegment{Index: i, Data: filled(7, 1)})
	}

	var mu sync.Mutex
	var reported []float64
	err := c.UploadSegments(context.Background(), "vid", segments, func(p float64, msg string) {
		mu.Lock()
		reported = append(reported, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("UploadSegments: %v", err)
	}
	if len(reported) != 24 {
		t.Fatalf("progress reports = %d, want 24", len(reported))
	}
	prev := 30.0
	for i, p := range reported {
		if p < prev {
			t.Fatalf("report %d went backwards: %v < %v", i, p, prev)
		}
		if p < 30 || p > 100 {
			t.Fatalf("report %d out of range: %v", i, p)
		}
		prev = p
	}
	if last := reported[len(reported)-1]; last != 100 {
		t.Fatalf("last report = %v", last)
	}
}

func TestUploadThumbnail(t *testing.T) {
	up := newFakeUploader()
	c := NewCoordinator(up, Config{MaxChunkSize: 4}, WithSleep(noSleep))

	if err := c.UploadThumbnail(context.Background(), "vid", []byte("jpegdata!")); err != nil {
		t.Fatalf("UploadThumbnail: %v", err)
	}
	if len(up.thumbnail) != 3 {
		t.Fatalf("thumbnail chunks = %d", len(up.thumbnail))
	}

	up.failures[[2]int{domain.ThumbnailIndex, 0}] = 5
	err := c.UploadThumbnail(context.Background(), "vid", []byte("x"))
	var chunkErr *domain.ChunkUploadError
	if !errors.As(err, &chunkErr) || chunkErr.SegmentIndex != domain.ThumbnailIndex {
		t.Fatalf("expected thumbnail ChunkUploadError, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	def := DefaultConfig()
	if cfg.MaxChunkSize != def.MaxChunkSize || cfg.RetryCount != def.RetryCount ||
		cfg.RetryDelay != def.RetryDelay || cfg.MaxConcurrentSegments != def.MaxConcurrentSegments {
		t.Fatalf("withDefaults() = %+v, want %+v", cfg, def)
	}
	if cfg.TranscodeWeight != 0 {
		t.Fatalf("zero transcode weight should be kept, got %v", cfg.TranscodeWeight)
	}
}
