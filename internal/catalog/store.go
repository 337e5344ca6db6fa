package catalog

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ChangeFunc is called after a reload published a catalog that differs from
// its predecessor. diff is never empty.
type ChangeFunc func(prev, next *Catalog, diff []string)

// Store owns the current catalog snapshot and keeps it in sync with a
// [Source]. Readers call [Store.Current] and never block on a reload.
type Store struct {
	src      Source
	interval time.Duration
	watch    string
	onChange ChangeFunc
	onReload func(c *Catalog, err error)

	current atomic.Pointer[Catalog]

	// mu serializes reloads.
	mu       sync.Mutex
	loaded   bool
	lastHash [sha256.Size]byte
}

// Option configures a [Store].
type Option func(*Store)

// WithInterval sets the polling interval. The default is 10 seconds.
func WithInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithOnChange registers the callback invoked once per detected change.
func WithOnChange(fn ChangeFunc) Option {
	return func(s *Store) { s.onChange = fn }
}

// WithOnReload registers a callback invoked after every reload attempt that
// read the source, successful or not. c is the published snapshot.
func WithOnReload(fn func(c *Catalog, err error)) Option {
	return func(s *Store) { s.onReload = fn }
}

// WithWatch makes [Store.Run] watch path with fsnotify and reload as soon as
// it is written, in addition to polling.
func WithWatch(path string) Option {
	return func(s *Store) { s.watch = path }
}

// NewStore creates a store reading from src. It does not load anything; call
// [Store.Reload] for the initial load and [Store.Run] for the refresh loop.
func NewStore(src Source, opts ...Option) *Store {
	s := &Store{
		src:      src,
		interval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&Catalog{})
	return s
}

// Current returns the most recently published snapshot. Before the first
// successful load it is an empty catalog, never nil.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Loaded reports whether at least one reload succeeded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Reload reads the source and publishes a new snapshot if its content
// changed. It returns the current snapshot and the diff against the previous
// one. The diff is nil on the first load and when nothing changed. On error
// the published snapshot is left untouched.
func (s *Store) Reload(ctx context.Context) (*Catalog, []string, error) {
	s.mu.Lock()

	data, err := s.src.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		s.reloaded(nil, err)
		return s.Current(), nil, err
	}

	hash := sha256.Sum256(data)
	if s.loaded && hash == s.lastHash {
		s.mu.Unlock()
		return s.Current(), nil, nil
	}

	next, err := Parse(data)
	if err != nil {
		s.mu.Unlock()
		s.reloaded(nil, err)
		return s.Current(), nil, err
	}

	prev := s.current.Swap(next)
	first := !s.loaded
	s.loaded = true
	s.lastHash = hash
	s.mu.Unlock()

	s.reloaded(next, nil)

	if first {
		slog.Info("catalog loaded", "triggers", next.Len())
		return next, nil, nil
	}

	diff := Diff(prev, next)
	slog.Info("catalog reloaded", "triggers", next.Len(), "new_or_changed", len(diff))

	// Invoke the callback outside the lock so it can safely call Current().
	if len(diff) > 0 && s.onChange != nil {
		s.onChange(prev, next, diff)
	}
	return next, diff, nil
}

func (s *Store) reloaded(c *Catalog, err error) {
	if s.onReload != nil {
		s.onReload(c, err)
	}
}

// Run reloads on every tick and, when watching is enabled, on file writes.
// It blocks until ctx is cancelled and returns ctx.Err().
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var kick <-chan struct{}
	if s.watch != "" {
		ch, err := watchFile(ctx, s.watch)
		if err != nil {
			slog.Warn("catalog: file watch unavailable, polling only", "path", s.watch, "err", err)
		} else {
			kick = ch
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-kick:
		}
		if _, _, err := s.Reload(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("catalog: reload failed, keeping previous catalog", "err", err)
		}
	}
}
