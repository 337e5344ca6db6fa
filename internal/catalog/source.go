package catalog

import (
	"context"
	"fmt"
	"os"
)

// Source yields the raw catalog document.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
}

// FileSource reads the catalog from a JSON file on disk.
type FileSource struct {
	Path string
}

var _ Source = FileSource{}

// Load reads the whole file.
func (s FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %w", ErrLoad, s.Path, err)
	}
	return data, nil
}

// SourceFunc adapts a plain function to [Source].
type SourceFunc func(ctx context.Context) ([]byte, error)

// Load calls f(ctx).
func (f SourceFunc) Load(ctx context.Context) ([]byte, error) { return f(ctx) }
