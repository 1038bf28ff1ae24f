// Package assets discovers creative files for a campaign and exposes them
// by size to the template decision engine.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store lists and reads creative files. Names are relative to the store root.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
}

// DirStore serves creatives from a local directory. Subdirectories are ignored.
type DirStore struct {
	Dir string
}

// List implements Store.
func (s DirStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list creatives in %s: %w", s.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read implements Store.
func (s DirStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("read creative %s: %w", name, err)
	}
	return b, nil
}
