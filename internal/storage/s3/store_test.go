package s3

import (
	"errors"
	"sort"
	"testing"

	"github.com/minio/minio-go/v7"

	"canistream/internal/domain"
)

func TestObjectKeyLayout(t *testing.T) {
	tests := []struct {
		name  string
		kind  domain.ChunkKind
		seg   int
		chunk int
		want  string
	}{
		{name: "segment", kind: domain.ChunkSegment, seg: 3, chunk: 1, want: "videos/vid/segment/3/000001"},
		{name: "thumbnail", kind: domain.ChunkThumbnail, seg: domain.ThumbnailIndex, chunk: 0, want: "videos/vid/thumbnail/-1/000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := objectKey("vid", tt.kind, tt.seg, tt.chunk); got != tt.want {
				t.Fatalf("objectKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObjectKeysSortInChunkOrder(t *testing.T) {
	keys := []string{
		objectKey("v", domain.ChunkSegment, 0, 10),
		objectKey("v", domain.ChunkSegment, 0, 2),
		objectKey("v", domain.ChunkSegment, 0, 0),
	}
	sort.Strings(keys)
	if keys[0] != objectKey("v", domain.ChunkSegment, 0, 0) || keys[2] != objectKey("v", domain.ChunkSegment, 0, 10) {
		t.Fatalf("keys not in chunk order: %v", keys)
	}
}

func TestSegmentPrefixDoesNotOverlap(t *testing.T) {
	// Segment 1 must not match keys of segment 10.
	p := segmentPrefix("v", domain.ChunkSegment, 1)
	k := objectKey("v", domain.ChunkSegment, 10, 0)
	if len(k) >= len(p) && k[:len(p)] == p {
		t.Fatalf("prefix %q matches %q", p, k)
	}
}

func TestTotalFromMetadata(t *testing.T) {
	tests := []struct {
		name    string
		meta    map[string]string
		want    int
		wantErr bool
	}{
		{name: "canonical", meta: map[string]string{"Total-Chunks": "3"}, want: 3},
		{name: "lower case", meta: map[string]string{"total-chunks": "2"}, want: 2},
		{name: "amz prefixed", meta: map[string]string{"X-Amz-Meta-Total-Chunks": "4"}, want: 4},
		{name: "missing", meta: map[string]string{}, wantErr: true},
		{name: "garbage", meta: map[string]string{"Total-Chunks": "x"}, wantErr: true},
		{name: "zero", meta: map[string]string{"Total-Chunks": "0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := totalFromMetadata(tt.meta)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestMapObjectError(t *testing.T) {
	notFound := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	if err := mapObjectError("k", notFound); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("NoSuchKey should map to ErrNotFound, got %v", err)
	}
	other := minio.ErrorResponse{Code: "AccessDenied"}
	if err := mapObjectError("k", other); errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("AccessDenied should not map to ErrNotFound")
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := contentTypeFor(domain.ChunkSegment); got != "video/mp2t" {
		t.Fatalf("segment content type = %q", got)
	}
	if got := contentTypeFor(domain.ChunkThumbnail); got != "application/octet-stream" {
		t.Fatalf("thumbnail content type = %q", got)
	}
}
