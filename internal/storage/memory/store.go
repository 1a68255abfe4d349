// Package memory is an in-process implementation of the video repository
// and chunk store, used for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"canistream/internal/domain"
)

// ErrQuotaExceeded is returned when a chunk would push the store past its
// configured byte budget.
var ErrQuotaExceeded = errors.New("memory store quota exceeded")

type chunkKey struct {
	video   domain.VideoID
	kind    domain.ChunkKind
	segment int
	chunk   int
}

type segmentKey struct {
	video   domain.VideoID
	kind    domain.ChunkKind
	segment int
}

type Store struct {
	mu     sync.RWMutex
	videos map[domain.VideoID]domain.VideoRecord
	chunks map[chunkKey]domain.Chunk
	totals map[segmentKey]int

	maxBytes int64
	curBytes int64
	now      func() time.Time
}

type StoreOption func(*Store)

// WithMaxBytes caps the total chunk payload held in memory.
func WithMaxBytes(max int64) StoreOption {
	return func(s *Store) {
		if max > 0 {
			s.maxBytes = max
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		videos: make(map[domain.VideoID]domain.VideoRecord),
		chunks: make(map[chunkKey]domain.Chunk),
		totals: make(map[segmentKey]int),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, v domain.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[v.ID]; ok {
		return domain.ErrAlreadyExists
	}
	now := s.now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	s.videos[v.ID] = v
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.VideoID) (domain.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return domain.VideoRecord{}, domain.ErrNotFound
	}
	return v, nil
}

// List returns videos ordered by creation time, oldest first.
func (s *Store) List(ctx context.Context) ([]domain.VideoRecord, error) {
	s.mu.RLock()
	out := make([]domain.VideoRecord, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetPlaylist(ctx context.Context, id domain.VideoID, playlist, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.Playlist = playlist
	v.ContentHash = contentHash
	v.UpdatedAt = s.now().UTC()
	s.videos[id] = v
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.VideoID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *Store) PutChunk(ctx context.Context, c domain.Chunk) error {
	if err := c.Validate(); err != nil {
		return err
	}
	key := chunkKey{video: c.VideoID, kind: c.Kind, segment: c.SegmentIndex, chunk: c.ChunkIndex}
	seg := segmentKey{video: c.VideoID, kind: c.Kind, segment: c.SegmentIndex}

	s.mu.Lock()
	defer s.mu.Unlock()
	if total, ok := s.totals[seg]; ok && total != c.TotalChunks {
		return fmt.Errorf("%w: totalChunks %d conflicts with stored %d", domain.ErrInvalidArgument, c.TotalChunks, total)
	}
	delta := int64(len(c.Data))
	if old, ok := s.chunks[key]; ok {
		delta -= int64(len(old.Data))
	}
	if s.maxBytes > 0 && s.curBytes+delta > s.maxBytes {
		return ErrQuotaExceeded
	}
	c.Data = append([]byte(nil), c.Data...)
	s.chunks[key] = c
	s.totals[seg] = c.TotalChunks
	s.curBytes += delta
	return nil
}

func (s *Store) GetChunk(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex, chunkIndex int) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkKey{video: id, kind: kind, segment: segmentIndex, chunk: chunkIndex}]
	if !ok {
		return domain.Chunk{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) TotalChunks(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex int) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, ok := s.totals[segmentKey{video: id, kind: kind, segment: segmentIndex}]
	return total, ok, nil
}

func (s *Store) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.chunks {
		if key.video == id {
			s.curBytes -= int64(len(c.Data))
			delete(s.chunks, key)
		}
	}
	for key := range s.totals {
		if key.video == id {
			delete(s.totals, key)
		}
	}
	return nil
}

// Bytes returns the chunk payload currently held.
func (s *Store) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curBytes
}
