package ports

import (
	"context"

	"canistream/internal/domain"
)

// ChunkStore persists uploaded chunk payloads keyed by
// (videoId, kind, segmentIndex, chunkIndex). PutChunk is an upsert.
type ChunkStore interface {
	PutChunk(ctx context.Context, c domain.Chunk) error
	GetChunk(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex, chunkIndex int) (domain.Chunk, error)
	// TotalChunks reports the totalChunks recorded for a segment, if any
	// chunk of it is stored.
	TotalChunks(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex int) (int, bool, error)
	DeleteVideo(ctx context.Context, id domain.VideoID) error
}
