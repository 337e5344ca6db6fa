// Package catalog holds the trigger → clip mapping that drives the soundboard.
//
// A [Catalog] is an immutable snapshot. Keys keep the order in which they
// appear in the source document, which is the order soft matches are tried
// in and the order "oldest first" listings use. A [Store] owns the current
// snapshot and replaces it wholesale on every successful reload.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrLoad is wrapped by every error caused by an unreadable or malformed
// catalog source. The previously published snapshot stays in effect.
var ErrLoad = errors.New("catalog: load failed")

// Order selects how [Catalog.Keys] lists triggers.
type Order int

const (
	// Ascending lists triggers oldest first (source order).
	Ascending Order = iota

	// Descending lists triggers newest first.
	Descending

	// Alphabetical lists triggers sorted by key.
	Alphabetical
)

// String returns the human readable listing label used in replies.
func (o Order) String() string {
	switch o {
	case Descending:
		return "newest first"
	case Alphabetical:
		return "sorted alphabetically"
	default:
		return "oldest first"
	}
}

// Entry is a single trigger and the clip it plays.
type Entry struct {
	Key  string
	Clip string
}

// Catalog is an ordered, immutable trigger → clip mapping.
// The zero value is an empty catalog.
type Catalog struct {
	keys  []string
	clips map[string]string
}

// New builds a catalog from entries in the given order. Keys are normalized
// with [Normalize]. Empty keys, empty clips and keys that collide after
// normalization are rejected.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		keys:  make([]string, 0, len(entries)),
		clips: make(map[string]string, len(entries)),
	}
	var errs []error
	for _, e := range entries {
		key := Normalize(e.Key)
		switch {
		case key == "":
			errs = append(errs, fmt.Errorf("empty trigger for clip %q", e.Clip))
			continue
		case e.Clip == "":
			errs = append(errs, fmt.Errorf("trigger %q has no clip", key))
			continue
		}
		if _, dup := c.clips[key]; dup {
			errs = append(errs, fmt.Errorf("trigger %q is defined more than once", key))
			continue
		}
		c.keys = append(c.keys, key)
		c.clips[key] = e.Clip
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return c, nil
}

// Parse decodes a JSON object of trigger → clip pairs, keeping the key order
// of the document.
func Parse(data []byte) (*Catalog, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrLoad)
	}
	om := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, om); err != nil {
		return nil, fmt.Errorf("%w: decode json: %w", ErrLoad, err)
	}
	entries := make([]Entry, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, Entry{Key: pair.Key, Clip: pair.Value})
	}
	return New(entries...)
}

// Len returns the number of triggers.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clip returns the clip reference for key.
func (c *Catalog) Clip(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	clip, ok := c.clips[key]
	return clip, ok
}

// Keys returns a fresh slice of the triggers in the requested order.
func (c *Catalog) Keys(order Order) []string {
	if c == nil {
		return nil
	}
	keys := slices.Clone(c.keys)
	switch order {
	case Descending:
		slices.Reverse(keys)
	case Alphabetical:
		slices.Sort(keys)
	}
	return keys
}

// Entries returns the catalog contents in source order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.keys))
	for i, k := range c.keys {
		out[i] = Entry{Key: k, Clip: c.clips[k]}
	}
	return out
}
