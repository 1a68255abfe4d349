// Package timer measures elapsed time across the stages of a pipeline run.
package timer

import (
	"log/slog"
	"sync"
	"time"
)

// Split is one named interval recorded by a Timer.
type Split struct {
	Label   string
	Elapsed time.Duration
}

type Timer struct {
	name   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	started time.Time
	last    time.Time
	splits  []Split
	running bool
}

type Option func(*Timer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		if now != nil {
			t.now = now
		}
	}
}

func New(name string, logger *slog.Logger, opts ...Option) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Timer{name: name, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start resets the timer and begins measuring.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.started = now
	t.last = now
	t.splits = nil
	t.running = true
}

// Split records the time since the previous split (or Start) under label.
// It returns zero when the timer is not running.
func (t *Timer) Split(label string) time.Duration {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return 0
	}
	now := t.now()
	elapsed := now.Sub(t.last)
	t.last = now
	t.splits = append(t.splits, Split{Label: label, Elapsed: elapsed})
	t.mu.Unlock()

	t.logger.Debug("timer split",
		slog.String("timer", t.name),
		slog.String("label", label),
		slog.Duration("elapsed", elapsed),
	)
	return elapsed
}

// Stop ends the measurement and returns the total elapsed time.
func (t *Timer) Stop() time.Duration {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return 0
	}
	total := t.now().Sub(t.started)
	t.running = false
	splits := len(t.splits)
	t.mu.Unlock()

	t.logger.Debug("timer stopped",
		slog.String("timer", t.name),
		slog.Duration("total", total),
		slog.Int("splits", splits),
	)
	return total
}

func (t *Timer) Splits() []Split {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Split, len(t.splits))
	copy(out, t.splits)
	return out
}
