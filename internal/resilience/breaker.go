// Package resilience keeps a failing backend from slowing down every caller.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [GuardStats] wraps a play counter store with one so that an unreachable
// database fails fast instead of costing every trigger a full I/O timeout.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cool-down elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default: 5.
	MaxFailures int

	// CoolDown is how long the breaker stays open before probing.
	// Default: 30s.
	CoolDown time.Duration

	// Probes is how many successful half-open calls close the breaker.
	// Default: 2.
	Probes int

	// OnStateChange, when set, is called with the lock released after every
	// transition.
	OnStateChange func(from, to State)
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	probes      int
	onChange    func(from, to State)
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		coolDown:    cfg.CoolDown,
		probes:      cfg.Probes,
		onChange:    cfg.OnStateChange,
		now:         time.Now,
	}
}

// Do runs fn unless the breaker is open. Errors caused by ctx ending are
// returned but not counted as backend failures.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release(probe)
		return err
	}
	b.record(probe, err)
	return err
}

// admit decides whether a call may run. probe reports a half-open call.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.inFlight = 0
		fallthrough
	case StateHalfOpen:
		if b.successes+b.inFlight >= b.probes {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.inFlight++
		probe = true
	}
	to := b.state
	b.mu.Unlock()
	b.changed(from, to)
	return probe, nil
}

func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	from := b.state
	if probe && b.state == StateHalfOpen {
		b.inFlight--
	}

	switch {
	case err != nil && (b.state == StateHalfOpen || b.failures+1 >= b.maxFailures):
		b.state = StateOpen
		b.openedAt = b.now()
		b.failures = b.maxFailures
	case err != nil:
		b.failures++
	case b.state == StateHalfOpen:
		b.successes++
		if b.successes >= b.probes {
			b.state = StateClosed
			b.failures = 0
		}
	default:
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()
	b.changed(from, to)
}

func (b *Breaker) changed(from, to State) {
	if from == to {
		return
	}
	log := slog.With("name", b.name, "from", from, "to", to)
	if to == StateOpen {
		log.Warn("circuit breaker opened", "cool_down", b.coolDown)
	} else {
		log.Info("circuit breaker state changed")
	}
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	b.mu.Unlock()
	b.changed(from, StateClosed)
}
