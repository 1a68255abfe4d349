package domain

import "fmt"

// TSSyncByte starts every MPEG transport-stream packet.
const TSSyncByte byte = 0x47

// ThumbnailIndex is the segment index used for thumbnail chunks.
const ThumbnailIndex = -1

// MediaSegment is one transcoded transport-stream segment.
type MediaSegment struct {
	Index int
	Data  []byte
}

// ChunkKind separates segment chunks from thumbnail chunks in storage.
type ChunkKind string

const (
	ChunkSegment   ChunkKind = "segment"
	ChunkThumbnail ChunkKind = "thumbnail"
)

// Chunk is a contiguous slice of a segment or thumbnail.
type Chunk struct {
	VideoID      VideoID
	Kind         ChunkKind
	SegmentIndex int
	ChunkIndex   int
	TotalChunks  int
	Data         []byte
}

// Validate checks the (segmentIndex, chunkIndex, totalChunks) triple.
func (c Chunk) Validate() error {
	if c.VideoID == "" {
		return fmt.Errorf("%w: video id is required", ErrInvalidArgument)
	}
	if c.TotalChunks <= 0 {
		return fmt.Errorf("%w: totalChunks must be positive", ErrInvalidArgument)
	}
	if c.ChunkIndex < 0 || c.ChunkIndex >= c.TotalChunks {
		return fmt.Errorf("%w: chunkIndex %d out of range [0,%d)", ErrInvalidArgument, c.ChunkIndex, c.TotalChunks)
	}
	switch c.Kind {
	case ChunkSegment:
		if c.SegmentIndex < 0 {
			return fmt.Errorf("%w: segmentIndex must not be negative", ErrInvalidArgument)
		}
	case ChunkThumbnail:
	default:
		return fmt.Errorf("%w: unknown chunk kind %q", ErrInvalidArgument, c.Kind)
	}
	return nil
}

// SegmentChunk is the payload returned by GetSegmentChunk.
type SegmentChunk struct {
	Data            []byte `json:"data"`
	TotalChunkCount int    `json:"totalChunkCount"`
}
