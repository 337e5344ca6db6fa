// Package stats records how often each user has played each trigger.
//
// Every backend implements [Store]. Increments are serialized per store so
// concurrent updates are never lost, and a failed write never leaves a
// half-written table behind.
package stats

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrPersistence is wrapped by every error caused by reading or writing the
// durable table.
var ErrPersistence = errors.New("stats: persistence failure")

// Table maps user id → trigger → play count.
type Table map[string]map[string]int

// Count returns the recorded plays of trigger by user.
func (t Table) Count(user, trigger string) int {
	return t[user][trigger]
}

// Total returns the sum of all plays by user.
func (t Table) Total(user string) int {
	n := 0
	for _, c := range t[user] {
		n += c
	}
	return n
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for u, row := range t {
		out[u] = maps.Clone(row)
	}
	return out
}

func (t Table) increment(user, trigger string) {
	row := t[user]
	if row == nil {
		row = make(map[string]int)
		t[user] = row
	}
	row[trigger]++
}

// Store persists play counters.
type Store interface {
	// Increment adds one play of trigger by user. A cell that does not exist
	// yet is created with a count of one.
	Increment(ctx context.Context, user, trigger string) error

	// Snapshot returns a copy of the whole durable table.
	Snapshot(ctx context.Context) (Table, error)

	// Close releases the backend's resources.
	Close() error
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Report renders the stats reply for user. Triggers are listed
// alphabetically so the output is stable.
func Report(t Table, user string) string {
	row := t[user]
	if len(row) == 0 {
		return "No stats have been recorded for you yet. Get spammin'!"
	}
	var b strings.Builder
	b.WriteString("You've been spammin', hot dayumn!\n")
	for _, k := range slices.Sorted(maps.Keys(row)) {
		fmt.Fprintf(&b, "%s: %d\n", k, row[k])
	}
	fmt.Fprintf(&b, "Total play count: %d", t.Total(user))
	return b.String()
}
