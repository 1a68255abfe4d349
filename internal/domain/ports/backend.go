package ports

import (
	"context"

	"canistream/internal/domain"
)

// Uploader is the write half of the backend used by the upload pipeline.
type Uploader interface {
	CreateVideo(ctx context.Context, title, description string) (domain.VideoID, error)
	UploadPlaylist(ctx context.Context, id domain.VideoID, playlist string) error
	UploadSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex, totalChunks int, data []byte) error
	UploadThumbnailChunk(ctx context.Context, id domain.VideoID, chunkIndex, totalChunks int, data []byte) error
}

// SegmentSource is the read half of the backend used during playback.
type SegmentSource interface {
	GetPlaylist(ctx context.Context, id domain.VideoID) (string, error)
	GetSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex int) (domain.SegmentChunk, error)
}

// Backend is the full video/segment/chunk CRUD surface of the remote store.
type Backend interface {
	Uploader
	SegmentSource
	GetThumbnail(ctx context.Context, id domain.VideoID) ([]byte, error)
	DeleteVideo(ctx context.Context, id domain.VideoID) error
	ListVideos(ctx context.Context) ([]domain.VideoSummary, error)
}
