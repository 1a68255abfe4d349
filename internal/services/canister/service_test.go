package canister

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"canistream/internal/domain"
	"canistream/internal/storage/memory"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store := memory.NewStore()
	n := 0
	opts = append([]Option{WithIDGenerator(func() domain.VideoID {
		n++
		return domain.VideoID(fmt.Sprintf("vid-%d", n))
	})}, opts...)
	return NewService(store, store, opts...)
}

func TestCreateAndListVideos(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.CreateVideo(ctx, "  Holiday ", "beach")
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if id != "vid-1" {
		t.Fatalf("id = %q", id)
	}
	if _, err := svc.CreateVideo(ctx, " ", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("blank title: %v", err)
	}

	list, err := svc.ListVideos(ctx)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Holiday" || list[0].Hash != "" {
		t.Fatalf("list = %+v", list)
	}
}

func TestCreateVideoNormalizesTitle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Decomposed input: base letters followed by combining accents.
	if _, err := svc.CreateVideo(ctx, "Cafe\u0301", "cre\u0300me"); err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	list, err := svc.ListVideos(ctx)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if list[0].Title != "Caf\u00e9" || list[0].Description != "cr\u00e8me" {
		t.Fatalf("expected NFC text, got %q / %q", list[0].Title, list[0].Description)
	}
}

func TestListVideosEmptyIsNonNil(t *testing.T) {
	list, err := newTestService(t).ListVideos(context.Background())
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", list)
	}
}

func TestDefaultIDsAreUUIDs(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, store)
	id, err := svc.CreateVideo(context.Background(), "t", "")
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("id %q is not a uuid", id)
	}
}

func TestUploadPlaylistSetsHash(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id, _ := svc.CreateVideo(ctx, "t", "")

	if _, err := svc.GetPlaylist(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("playlist before upload: %v", err)
	}
	text := "#EXTM3U\n#EXTINF:2,\nsegment_000.ts\n"
	if err := svc.UploadPlaylist(ctx, id, text); err != nil {
		t.Fatalf("UploadPlaylist: %v", err)
	}
	got, err := svc.GetPlaylist(ctx, id)
	if err != nil || got != text {
		t.Fatalf("GetPlaylist = %q, %v", got, err)
	}
	sum := sha256.Sum256([]byte(text))
	list, _ := svc.ListVideos(ctx)
	if list[0].Hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash = %q", list[0].Hash)
	}

	if err := svc.UploadPlaylist(ctx, "missing", text); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("playlist for missing video: %v", err)
	}
	if err := svc.UploadPlaylist(ctx, id, "  "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty playlist: %v", err)
	}
}

func TestSegmentChunkRules(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithMaxChunkBytes(4))
	id, _ := svc.CreateVideo(ctx, "t", "")

	tests := []struct {
		name    string
		seg     int
		chunk   int
		total   int
		data    []byte
		wantErr error
	}{
		{name: "first chunk", seg: 0, chunk: 0, total: 2, data: []byte("ab")},
		{name: "idempotent re-upload", seg: 0, chunk: 0, total: 2, data: []byte("ab")},
		{name: "second chunk", seg: 0, chunk: 1, total: 2, data: []byte("cd")},
		{name: "inconsistent total", seg: 0, chunk: 1, total: 3, data: []byte("cd"), wantErr: domain.ErrInvalidArgument},
		{name: "index beyond total", seg: 1, chunk: 2, total: 2, data: []byte("x"), wantErr: domain.ErrInvalidArgument},
		{name: "negative segment", seg: -1, chunk: 0, total: 1, data: []byte("x"), wantErr: domain.ErrInvalidArgument},
		{name: "oversized", seg: 2, chunk: 0, total: 1, data: []byte("12345"), wantErr: domain.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UploadSegmentChunk(ctx, id, tt.seg, tt.chunk, tt.total, tt.data)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	got, err := svc.GetSegmentChunk(ctx, id, 0, 1)
	if err != nil {
		t.Fatalf("GetSegmentChunk: %v", err)
	}
	if string(got.Data) != "cd" || got.TotalChunkCount != 2 {
		t.Fatalf("chunk = %+v", got)
	}
	if _, err := svc.GetSegmentChunk(ctx, id, 5, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing chunk: %v", err)
	}
	if err := svc.UploadSegmentChunk(ctx, "nope", 0, 0, 1, []byte("x")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("chunk for unknown video: %v", err)
	}
}

func TestThumbnailAssembly(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id, _ := svc.CreateVideo(ctx, "t", "")

	if _, err := svc.GetThumbnail(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("thumbnail before upload: %v", err)
	}
	if err := svc.UploadThumbnailChunk(ctx, id, 1, 2, []byte("PEG")); err != nil {
		t.Fatalf("chunk 1: %v", err)
	}
	if err := svc.UploadThumbnailChunk(ctx, id, 0, 2, []byte("J")); err != nil {
		t.Fatalf("chunk 0: %v", err)
	}
	got, err := svc.GetThumbnail(ctx, id)
	if err != nil {
		t.Fatalf("GetThumbnail: %v", err)
	}
	if !bytes.Equal(got, []byte("JPEG")) {
		t.Fatalf("thumbnail = %q", got)
	}
}

func TestDeleteVideoRemovesChunks(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id, _ := svc.CreateVideo(ctx, "t", "")
	if err := svc.UploadSegmentChunk(ctx, id, 0, 0, 1, []byte("x")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := svc.DeleteVideo(ctx, id); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if _, err := svc.GetSegmentChunk(ctx, id, 0, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("chunk after delete: %v", err)
	}
	list, _ := svc.ListVideos(ctx)
	if len(list) != 0 {
		t.Fatalf("list after delete = %+v", list)
	}
	if err := svc.DeleteVideo(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
