// Package canister is the reference backend: video records, playlists and
// chunked segment/thumbnail payloads over pluggable storage.
package canister

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
	"canistream/internal/metrics"
)

const DefaultMaxChunkBytes = 2 << 20

type Service struct {
	videos        ports.VideoRepository
	chunks        ports.ChunkStore
	maxChunkBytes int
	timeout       time.Duration
	newID         func() domain.VideoID
	logger        *slog.Logger
}

type Option func(*Service)

func WithMaxChunkBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChunkBytes = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithIDGenerator(gen func() domain.VideoID) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func NewService(videos ports.VideoRepository, chunks ports.ChunkStore, opts ...Option) *Service {
	s := &Service{
		videos:        videos,
		chunks:        chunks,
		maxChunkBytes: DefaultMaxChunkBytes,
		timeout:       10 * time.Second,
		newID:         func() domain.VideoID { return domain.VideoID(uuid.NewString()) },
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.Backend = (*Service)(nil)

// CreateVideo stores titles and descriptions in NFC so equal strings typed on
// different platforms compare equal.
func (s *Service) CreateVideo(ctx context.Context, title, description string) (domain.VideoID, error) {
	record := domain.VideoRecord{
		ID:          s.newID(),
		Title:       norm.NFC.String(strings.TrimSpace(title)),
		Description: norm.NFC.String(description),
	}
	if err := record.Validate(); err != nil {
		return "", err
	}
	if err := s.videos.Create(ctx, record); err != nil {
		return "", err
	}
	metrics.VideosStored.Inc()
	s.logger.Info("video created",
		slog.String("videoId", string(record.ID)),
		slog.String("title", record.Title),
	)
	return record.ID, nil
}

func (s *Service) UploadPlaylist(ctx context.Context, id domain.VideoID, playlist string) error {
	if strings.TrimSpace(playlist) == "" {
		return fmt.Errorf("%w: playlist is empty", domain.ErrInvalidArgument)
	}
	sum := sha256.Sum256([]byte(playlist))
	return s.videos.SetPlaylist(ctx, id, playlist, hex.EncodeToString(sum[:]))
}

func (s *Service) UploadSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex, totalChunks int, data []byte) error {
	return s.putChunk(ctx, domain.Chunk{
		VideoID:      id,
		Kind:         domain.ChunkSegment,
		SegmentIndex: segmentIndex,
		ChunkIndex:   chunkIndex,
		TotalChunks:  totalChunks,
		Data:         data,
	})
}

func (s *Service) UploadThumbnailChunk(ctx context.Context, id domain.VideoID, chunkIndex, totalChunks int, data []byte) error {
	return s.putChunk(ctx, domain.Chunk{
		VideoID:      id,
		Kind:         domain.ChunkThumbnail,
		SegmentIndex: domain.ThumbnailIndex,
		ChunkIndex:   chunkIndex,
		TotalChunks:  totalChunks,
		Data:         data,
	})
}

func (s *Service) putChunk(ctx context.Context, c domain.Chunk) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Data) > s.maxChunkBytes {
		return fmt.Errorf("%w: chunk of %d bytes exceeds limit %d", domain.ErrInvalidArgument, len(c.Data), s.maxChunkBytes)
	}
	if _, err := s.videos.Get(ctx, c.VideoID); err != nil {
		return err
	}
	total, ok, err := s.chunks.TotalChunks(ctx, c.VideoID, c.Kind, c.SegmentIndex)
	if err != nil {
		return err
	}
	if ok && total != c.TotalChunks {
		return fmt.Errorf("%w: totalChunks %d conflicts with stored %d", domain.ErrInvalidArgument, c.TotalChunks, total)
	}
	if err := s.chunks.PutChunk(ctx, c); err != nil {
		return err
	}
	metrics.ChunksStoredTotal.WithLabelValues(string(c.Kind)).Inc()
	metrics.ChunkBytesStoredTotal.Add(float64(len(c.Data)))
	return nil
}

func (s *Service) GetPlaylist(ctx context.Context, id domain.VideoID) (string, error) {
	record, err := s.videos.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if record.Playlist == "" {
		return "", fmt.Errorf("playlist for video %s: %w", id, domain.ErrNotFound)
	}
	return record.Playlist, nil
}

func (s *Service) GetSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex int) (domain.SegmentChunk, error) {
	if segmentIndex < 0 || chunkIndex < 0 {
		return domain.SegmentChunk{}, fmt.Errorf("%w: negative segment or chunk index", domain.ErrInvalidArgument)
	}
	c, err := s.chunks.GetChunk(ctx, id, domain.ChunkSegment, segmentIndex, chunkIndex)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SegmentChunk{}, fmt.Errorf("segment %d chunk %d: %w", segmentIndex, chunkIndex, domain.ErrNotFound)
		}
		return domain.SegmentChunk{}, err
	}
	return domain.SegmentChunk{Data: c.Data, TotalChunkCount: c.TotalChunks}, nil
}

// GetThumbnail assembles every stored thumbnail chunk in order.
func (s *Service) GetThumbnail(ctx context.Context, id domain.VideoID) ([]byte, error) {
	total, ok, err := s.chunks.TotalChunks(ctx, id, domain.ChunkThumbnail, domain.ThumbnailIndex)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("thumbnail for video %s: %w", id, domain.ErrNotFound)
	}
	var out []byte
	for i := 0; i < total; i++ {
		c, err := s.chunks.GetChunk(ctx, id, domain.ChunkThumbnail, domain.ThumbnailIndex, i)
		if err != nil {
			return nil, fmt.Errorf("thumbnail chunk %d: %w", i, err)
		}
		out = append(out, c.Data...)
	}
	return out, nil
}

// DeleteVideo removes chunks before the record so a failed delete can be
// retried while the id is still listed.
func (s *Service) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	if _, err := s.videos.Get(ctx, id); err != nil {
		return err
	}
	if err := s.chunks.DeleteVideo(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.videos.Delete(ctx, id); err != nil {
		return err
	}
	metrics.VideosStored.Dec()
	s.logger.Info("video deleted", slog.String("videoId", string(id)))
	return nil
}

func (s *Service) ListVideos(ctx context.Context) ([]domain.VideoSummary, error) {
	records, err := s.videos.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VideoSummary, 0, len(records))
	for _, r := range records {
		out = append(out, r.Summary())
	}
	return out, nil
}

// SyncGauge sets the stored-videos gauge from the repository, used at startup.
func (s *Service) SyncGauge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	records, err := s.videos.List(ctx)
	if err != nil {
		s.logger.Warn("video gauge sync failed", slog.String("error", err.Error()))
		return
	}
	metrics.VideosStored.Set(float64(len(records)))
}
