package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"canistream/internal/domain"
	"canistream/internal/progress"
	"canistream/internal/services/canister"
	"canistream/internal/storage/memory"
	"canistream/internal/transcode"
	"canistream/internal/upload"
)

type fakeTranscoder struct {
	loadErr      error
	transcodeErr error
	out          transcode.Output
	events       []domain.TranscodeProgress
	loads        int
}

func (f *fakeTranscoder) Load(ctx context.Context) error {
	f.loads++
	return f.loadErr
}

func (f *fakeTranscoder) Transcode(ctx context.Context, inputPath string, opts transcode.Options, onProgress transcode.ProgressFunc) (transcode.Output, error) {
	for _, ev := range f.events {
		if onProgress != nil {
			onProgress(ev)
		}
	}
	if f.transcodeErr != nil {
		return transcode.Output{}, f.transcodeErr
	}
	return f.out, nil
}

type recordingReporter struct {
	mu     sync.Mutex
	events []domain.UploadProgress
}

func (r *recordingReporter) Report(ctx context.Context, p domain.UploadProgress) {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
}

func (r *recordingReporter) all() []domain.UploadProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UploadProgress, len(r.events))
	copy(out, r.events)
	return out
}

var _ progress.Reporter = (*recordingReporter)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.mp4")
	if err := os.WriteFile(path, []byte("not really a movie"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func filled(n int, b byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = b
	}
	return data
}

func newUploadVideo(t *testing.T, tr Transcoder) (UploadVideo, *canister.Service, *memory.Store, *recordingReporter) {
	t.Helper()
	store := memory.NewStore()
	svc := canister.NewService(store, store, canister.WithLogger(discardLogger()))
	cfg := upload.DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	coord := upload.NewCoordinator(svc, cfg, upload.WithLogger(discardLogger()))
	rep := &recordingReporter{}
	uc := UploadVideo{
		Transcoder:      tr,
		Backend:         svc,
		Uploader:        coord,
		Reporter:        rep,
		Options:         transcode.DefaultOptions(),
		TranscodeWeight: cfg.TranscodeWeight,
		Logger:          discardLogger(),
	}
	return uc, svc, store, rep
}

func TestUploadVideoEndToEnd(t *testing.T) {
	segments := []domain.MediaSegment{{Index: 0, Data: filled(2_500_000, 0x47)}}
	playlist := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:2\n"
	for i := 0; i < 5; i++ {
		if i > 0 {
			segments = append(segments, domain.MediaSegment{Index: i, Data: filled(1000, 0x47)})
		}
		playlist += fmt.Sprintf("#EXTINF:2.0,\nsegment_%03d.ts\n", i)
	}
	playlist += "#EXT-X-ENDLIST\n"
	tr := &fakeTranscoder{
		out: transcode.Output{
			Playlist:  playlist,
			Segments:  segments,
			Thumbnail: []byte{0xff, 0xd8, 0xff, 0xd9},
		},
		events: []domain.TranscodeProgress{
			{Message: "Transcoding", Progress: &domain.StageProgress{Type: "transcoding", Percent: 50}},
			{Message: "processing", Progress: &domain.StageProgress{Type: "processing", Current: 1, Total: 5}},
		},
	}
	uc, svc, _, rep := newUploadVideo(t, tr)
	ctx := context.Background()

	res, err := uc.Execute(ctx, UploadInput{Path: writeInput(t), Title: "Holiday", Description: "beach"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.VideoID == "" {
		t.Fatalf("expected video id")
	}
	if res.Segments != 5 || !res.Thumbnail {
		t.Fatalf("unexpected result: %+v", res)
	}

	for i := 0; i < 3; i++ {
		chunk, err := svc.GetSegmentChunk(ctx, res.VideoID, 0, i)
		if err != nil {
			t.Fatalf("segment 0 chunk %d: %v", i, err)
		}
		if chunk.TotalChunkCount != 3 {
			t.Fatalf("expected 3 chunks, got %d", chunk.TotalChunkCount)
		}
	}
	if _, err := svc.GetSegmentChunk(ctx, res.VideoID, 0, 3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for chunk 3, got %v", err)
	}

	thumb, err := svc.GetThumbnail(ctx, res.VideoID)
	if err != nil {
		t.Fatalf("GetThumbnail: %v", err)
	}
	if string(thumb) != string(tr.out.Thumbnail) {
		t.Fatalf("thumbnail mismatch")
	}

	videos, err := ListVideos{Backend: svc}.Execute(ctx)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(videos) != 1 || videos[0].ID != res.VideoID || videos[0].Title != "Holiday" {
		t.Fatalf("unexpected videos: %+v", videos)
	}
	if videos[0].Hash == "" {
		t.Fatalf("expected content hash")
	}

	events := rep.all()
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := 0.0
	for _, ev := range events {
		if ev.Percent < last {
			t.Fatalf("progress went backwards: %v after %v", ev.Percent, last)
		}
		last = ev.Percent
		if ev.Phase == domain.PhaseTranscode && ev.Percent >= uc.TranscodeWeight {
			t.Fatalf("transcode progress %v reached the upload band", ev.Percent)
		}
	}
	final := events[len(events)-1]
	if final.Phase != domain.PhaseDone || final.Percent != 100 || final.VideoID != res.VideoID {
		t.Fatalf("unexpected final event: %+v", final)
	}
}

func TestUploadVideoValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		input UploadInput
	}{
		{"empty path", UploadInput{Title: "x"}},
		{"empty title", UploadInput{Path: writeInput(t), Title: "  "}},
		{"missing file", UploadInput{Path: filepath.Join(dir, "nope.mp4"), Title: "x"}},
		{"directory", UploadInput{Path: dir, Title: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranscoder{}
			uc, _, _, rep := newUploadVideo(t, tr)
			_, err := uc.Execute(context.Background(), tt.input)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if tr.loads != 0 {
				t.Fatalf("transcoder should not be loaded")
			}
			if len(rep.all()) != 0 {
				t.Fatalf("expected no progress events")
			}
		})
	}
}

func TestUploadVideoTranscodeFailure(t *testing.T) {
	tests := []struct {
		name string
		tr   *fakeTranscoder
	}{
		{"load", &fakeTranscoder{loadErr: &domain.TranscodeError{Stage: "load", Err: errors.New("no ffmpeg")}}},
		{"transcode", &fakeTranscoder{transcodeErr: &domain.TranscodeError{Stage: "encode", Err: errors.New("bad input")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, svc, _, rep := newUploadVideo(t, tt.tr)
			_, err := uc.Execute(context.Background(), UploadInput{Path: writeInput(t), Title: "x"})
			if !errors.Is(err, ErrTranscode) {
				t.Fatalf("expected ErrTranscode, got %v", err)
			}
			videos, _ := svc.ListVideos(context.Background())
			if len(videos) != 0 {
				t.Fatalf("no video should be created, got %d", len(videos))
			}
			events := rep.all()
			if len(events) == 0 || events[len(events)-1].Phase != domain.PhaseFailed {
				t.Fatalf("expected failed event, got %+v", events)
			}
		})
	}
}

type failingUploader struct {
	err error
}

func (f failingUploader) UploadSegments(ctx context.Context, id domain.VideoID, segments []domain.MediaSegment, onProgress upload.ProgressFunc) error {
	return f.err
}

func (f failingUploader) UploadThumbnail(ctx context.Context, id domain.VideoID, data []byte) error {
	return nil
}

func TestUploadVideoSegmentFailureKeepsVideoID(t *testing.T) {
	tr := &fakeTranscoder{out: transcode.Output{
		Playlist: "#EXTM3U\nsegment0.ts\n",
		Segments: []domain.MediaSegment{{Index: 0, Data: []byte{0x47}}},
	}}
	uc, _, _, rep := newUploadVideo(t, tr)
	chunkErr := &domain.ChunkUploadError{SegmentIndex: 0, ChunkIndex: 0, Err: errors.New("connection reset")}
	uc.Uploader = failingUploader{err: chunkErr}

	res, err := uc.Execute(context.Background(), UploadInput{Path: writeInput(t), Title: "x"})
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	var target *domain.ChunkUploadError
	if !errors.As(err, &target) {
		t.Fatalf("expected ChunkUploadError in chain, got %v", err)
	}
	if res.VideoID == "" {
		t.Fatalf("video id should be reported after a partial upload")
	}
	events := rep.all()
	final := events[len(events)-1]
	if final.Phase != domain.PhaseFailed || final.VideoID != res.VideoID {
		t.Fatalf("unexpected final event: %+v", final)
	}
}

func TestTranscodePercent(t *testing.T) {
	tests := []struct {
		name   string
		p      domain.TranscodeProgress
		want   float64
		wantOK bool
	}{
		{"no stage", domain.TranscodeProgress{Message: "Loading engine"}, 0, false},
		{"half encoded", domain.TranscodeProgress{Progress: &domain.StageProgress{Type: "transcoding", Percent: 50}}, 13.5, true},
		{"clamped", domain.TranscodeProgress{Progress: &domain.StageProgress{Type: "transcoding", Percent: 150}}, 27, true},
		{"reading segments", domain.TranscodeProgress{Progress: &domain.StageProgress{Type: "processing", Current: 2, Total: 2}}, 29.7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := transcodePercent(tt.p, 30)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("percent = %v, want %v", got, tt.want)
			}
		})
	}
}
