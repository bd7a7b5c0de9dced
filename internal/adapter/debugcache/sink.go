// Package debugcache keeps copies of raw API payloads for offline inspection.
package debugcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sink stores a named payload.
type Sink interface {
	Save(ctx context.Context, name string, body []byte) error
}

// FileSink writes payloads into a local directory, replacing older copies.
type FileSink struct {
	dir string
}

// NewFileSink returns a FileSink rooted at dir. The directory is created on first Save.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the target directory.
func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) Save(_ context.Context, name string, body []byte) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("debugcache: invalid name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("debugcache: create dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("debugcache: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("debugcache: rename %s: %w", name, err)
	}
	return nil
}

// Multi fans a payload out to every sink. All sinks are tried; errors are joined.
type Multi []Sink

func (m Multi) Save(ctx context.Context, name string, body []byte) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, name, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
