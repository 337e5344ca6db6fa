package stats

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore keeps the table as one JSON document on disk. Every increment is
// a full read-modify-write under the store mutex, and the document is
// replaced atomically with a rename, so a crash leaves either the old or
// the new table.
type FileStore struct {
	mu    sync.Mutex
	path  string
	cache Table
}

// NewFileStore returns a store backed by the JSON document at path. If the
// file does not exist an empty table is written before returning.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cache = t
	return s, nil
}

// Increment implements [Store].
func (s *FileStore) Increment(ctx context.Context, user, trigger string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return err
	}
	t.increment(user, trigger)
	if err := s.write(t); err != nil {
		return err
	}
	s.cache = t
	return nil
}

// Snapshot implements [Store]. It re-reads the document so edits made
// outside the process are picked up.
func (s *FileStore) Snapshot(ctx context.Context) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cache = t
	return t.Clone(), nil
}

// Cached returns a copy of the table as of the last successful read or
// write, without touching the disk.
func (s *FileStore) Cached() Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Clone()
}

// Close implements [Store]. The file store holds no open resources.
func (s *FileStore) Close() error { return nil }

// load reads the document, creating it first if it is absent.
// Callers must hold s.mu.
func (s *FileStore) load() (Table, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		t := Table{}
		if err := s.write(t); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err != nil {
		return nil, persistErr("read", err)
	}
	t := Table{}
	if len(data) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, persistErr("decode", err)
	}
	// A hand-edited "null" document decodes to a nil table.
	if t == nil {
		t = Table{}
	}
	return t, nil
}

// write replaces the document with t. Callers must hold s.mu.
func (s *FileStore) write(t Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return persistErr("marshal", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return persistErr("create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return persistErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return persistErr("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return persistErr("close", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return persistErr("rename", err)
	}
	return nil
}
