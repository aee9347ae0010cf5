package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openmined/keshig/internal/utils"
)

// Store reads and rewrites the index file. It keeps no cached copy: every
// call starts from what is on disk, so changes made by other invocations are
// always seen. Callers that read, modify and write must hold the workspace
// lock around the sequence.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the index file, creating an empty one if it does not exist yet.
// Malformed records are logged and left in Index.Corrupt.
func (s *Store) Load() (*Index, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.create(); err != nil {
			return nil, err
		}
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", s.path, err)
	}

	idx := Parse(data)
	for _, rec := range idx.Corrupt {
		slog.Warn("skipping malformed index record", "index", s.path, "line", rec.Line, "reason", rec.Reason)
	}
	return idx, nil
}

// Save rewrites the whole index file from idx.
func (s *Store) Save(idx *Index) error {
	if n := len(idx.Corrupt); n > 0 {
		slog.Warn("dropping malformed index records on rewrite", "index", s.path, "count", n)
	}
	if err := utils.WriteFileAtomic(s.path, idx.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write index %s: %w", s.path, err)
	}
	slog.Debug("index written", "index", s.path, "entries", idx.Len())
	return nil
}

// Contains reloads the index and reports whether path is tracked.
func (s *Store) Contains(path string) (bool, error) {
	idx, err := s.Load()
	if err != nil {
		return false, err
	}
	return idx.Contains(path), nil
}

// Append reloads the index, adds e and rewrites the file.
func (s *Store) Append(e Entry) (*Index, error) {
	return s.update(func(idx *Index) error { return idx.Append(e) })
}

// Put reloads the index, inserts or replaces the entry for e.Path and
// rewrites the file.
func (s *Store) Put(e Entry) (*Index, error) {
	return s.update(func(idx *Index) error {
		_, err := idx.Put(e)
		return err
	})
}

// Remove reloads the index and drops the entry for path. The file is only
// rewritten when something was removed.
func (s *Store) Remove(path string) (bool, error) {
	idx, err := s.Load()
	if err != nil {
		return false, err
	}
	if !idx.Remove(path) {
		return false, nil
	}
	return true, s.Save(idx)
}

func (s *Store) update(fn func(*Index) error) (*Index, error) {
	idx, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(idx); err != nil {
		return nil, err
	}
	if err := s.Save(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Store) create() error {
	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.path, err)
	}
	return f.Close()
}
