package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/currybot/internal/stats"
)

// GuardedStats is a [stats.Store] whose backend calls pass through a
// [Breaker]. While the breaker is open, Increment and Snapshot fail at once
// with an error wrapping both [stats.ErrPersistence] and [ErrOpen].
type GuardedStats struct {
	store   stats.Store
	breaker *Breaker
}

var _ stats.Store = (*GuardedStats)(nil)

// GuardStats wraps store with a breaker configured by cfg.
func GuardStats(store stats.Store, cfg BreakerConfig) *GuardedStats {
	if cfg.Name == "" {
		cfg.Name = "stats"
	}
	return &GuardedStats{store: store, breaker: NewBreaker(cfg)}
}

// Breaker returns the breaker guarding the store.
func (g *GuardedStats) Breaker() *Breaker { return g.breaker }

// Increment implements [stats.Store].
func (g *GuardedStats) Increment(ctx context.Context, user, trigger string) error {
	return g.wrap(g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.store.Increment(ctx, user, trigger)
	}))
}

// Snapshot implements [stats.Store].
func (g *GuardedStats) Snapshot(ctx context.Context) (stats.Table, error) {
	var t stats.Table
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		t, err = g.store.Snapshot(ctx)
		return err
	})
	if err != nil {
		return nil, g.wrap(err)
	}
	return t, nil
}

// Ping checks the backend directly, bypassing the breaker, so readiness
// reflects the real connection. Stores without a Ping method are always
// reachable.
func (g *GuardedStats) Ping(ctx context.Context) error {
	p, ok := g.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// Close implements [stats.Store].
func (g *GuardedStats) Close() error { return g.store.Close() }

func (g *GuardedStats) wrap(err error) error {
	if errors.Is(err, ErrOpen) {
		return fmt.Errorf("%w: %w", stats.ErrPersistence, err)
	}
	return err
}
