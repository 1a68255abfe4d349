package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
	"canistream/internal/metrics"
)

type ManagerConfig struct {
	Session SessionConfig
	// IdleTTL closes sessions unused for longer than this. Zero disables
	// reaping.
	IdleTTL      time.Duration
	ReapInterval time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Session:      DefaultSessionConfig(),
		IdleTTL:      10 * time.Minute,
		ReapInterval: time.Minute,
	}
}

// Manager keys playback sessions by video id.
type Manager struct {
	source ports.SegmentSource
	cfg    ManagerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[domain.VideoID]*Session
}

type ManagerOption func(*Manager)

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(source ports.SegmentSource, cfg ManagerConfig, opts ...ManagerOption) *Manager {
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultManagerConfig().ReapInterval
	}
	m := &Manager{
		source:   source,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[domain.VideoID]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns the open session for id, opening one on first use.
func (m *Manager) Session(ctx context.Context, id domain.VideoID) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.touch(m.now())
		return s, nil
	}
	m.mu.Unlock()

	opened, err := OpenSession(ctx, m.source, id, m.cfg.Session, m.logger)
	if err != nil {
		return nil, err
	}
	opened.touch(m.now())

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		opened.Close()
		existing.touch(m.now())
		return existing, nil
	}
	m.sessions[id] = opened
	metrics.PlaybackSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return opened, nil
}

// Release closes the session for id. It reports whether one was open.
func (m *Manager) Release(id domain.VideoID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.PlaybackSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	if ok {
		s.Close()
		m.logger.Info("playback session released", slog.String("videoId", string(id)))
	}
	return ok
}

// ReapIdle closes every session idle for longer than IdleTTL and returns how
// many were closed.
func (m *Manager) ReapIdle() int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	metrics.PlaybackSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
		m.logger.Info("playback session reaped", slog.String("videoId", string(s.VideoID())))
	}
	return len(stale)
}

// Run reaps idle sessions until ctx ends, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			m.ReapIdle()
		}
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[domain.VideoID]*Session)
	metrics.PlaybackSessions.Set(0)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
