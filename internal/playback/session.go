package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
	"canistream/internal/playlist"
)

type SessionConfig struct {
	Loader   LoaderConfig
	Playlist playlist.Config
	// Scheme is used by SyntheticPlaylist.
	Scheme string
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Loader:   DefaultLoaderConfig(),
		Playlist: playlist.DefaultConfig(),
		Scheme:   "canister",
	}
}

// Session owns everything needed to play one video: the normalized
// playlist and the segment loader with its cache.
type Session struct {
	videoID  domain.VideoID
	playlist playlist.Normalized
	loader   *Loader
	scheme   string
	cancel   context.CancelFunc

	mu       sync.Mutex
	lastUsed time.Time
	closed   bool
}

// OpenSession fetches and normalizes the playlist of id. ctx bounds only the
// playlist fetch; segment fetches run until Close.
func OpenSession(ctx context.Context, source ports.SegmentSource, id domain.VideoID, cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = DefaultSessionConfig().Scheme
	}
	raw, err := source.GetPlaylist(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}
	norm, err := playlist.Normalize(raw, cfg.Playlist)
	if err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	logger = logger.With(slog.String("videoId", string(id)))
	s := &Session{
		videoID:  id,
		playlist: norm,
		loader:   NewLoader(sessionCtx, source, id, cfg.Loader, WithLoaderLogger(logger), WithURIIndex(norm.IndexByURI), WithSegmentCount(len(norm.SegmentURIs))),
		scheme:   cfg.Scheme,
		cancel:   cancel,
	}
	logger.Info("playback session opened", slog.Int("segments", len(norm.SegmentURIs)))
	return s, nil
}

func (s *Session) VideoID() domain.VideoID { return s.videoID }

// Playlist returns the normalized playlist text.
func (s *Session) Playlist() string { return s.playlist.Text }

// SyntheticPlaylist returns the playlist with segment references rewritten
// to scheme://<videoId>/<index>.
func (s *Session) SyntheticPlaylist() string {
	return playlist.RewriteSegmentURIs(s.playlist.Text, s.scheme, s.videoID)
}

func (s *Session) SegmentCount() int { return len(s.playlist.SegmentURIs) }

func (s *Session) Loader() *Loader { return s.loader }

func (s *Session) LoadURI(ctx context.Context, uri string) ([]byte, error) {
	return s.loader.LoadURI(ctx, uri)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastUsed) {
		s.lastUsed = now
	}
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Close cancels outstanding fetches and discards the segment cache. It is
// safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.loader.Close()
}
