package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow    = time.Second
	DefaultMaxEvents = 5
)

type Config struct {
	Window    time.Duration
	MaxEvents int
}

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window counter keyed by (handle, event kind).
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]map[string]*window // handle -> event -> window
	now     func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string]map[string]*window),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Allow counts one event and reports whether it fits in the current window.
func (l *Limiter) Allow(handle, event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	events, ok := l.windows[handle]
	if !ok {
		events = make(map[string]*window)
		l.windows[handle] = events
	}

	w, ok := events[event]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		events[event] = &window{start: now, count: 1}
		return true
	}
	if w.count < l.cfg.MaxEvents {
		w.count++
		return true
	}
	return false
}

// RetryAfter is the time left in the handle's window for event.
func (l *Limiter) RetryAfter(handle, event string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[handle][event]
	if !ok {
		return 0
	}
	left := l.cfg.Window - l.now().Sub(w.start)
	if left < 0 {
		return 0
	}
	return left
}

// Forget drops every window held for handle.
func (l *Limiter) Forget(handle string) {
	l.mu.Lock()
	delete(l.windows, handle)
	l.mu.Unlock()
}

func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
