package tracker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// sniffLen is how much of a file is read to decide whether it is binary.
const sniffLen = 8000

// Reason names why check reported a file.
type Reason string

const (
	ReasonSize    Reason = "size"
	ReasonPattern Reason = "pattern"
	ReasonBinary  Reason = "binary"
)

// Candidate is a working tree file that looks like it belongs in the cache.
type Candidate struct {
	Path    string   `json:"path"`
	Size    int64    `json:"size"`
	Reasons []Reason `json:"reasons"`
	// Indexed is set when the path already has an index entry.
	Indexed bool `json:"indexed"`
	// Changed is set for an indexed path whose content differs from the
	// recorded fingerprint.
	Changed bool `json:"changed"`
}

type checkTarget struct {
	abs  string
	rel  string
	size int64
}

// Check walks the working tree and reports files that exceed the size
// threshold, match a tracked pattern or look binary. Ignored paths and the
// control directory are skipped. Nothing is modified.
func (e *Engine) Check(ctx context.Context) ([]Candidate, error) {
	if err := e.ws.EnsureRepository(); err != nil {
		return nil, err
	}

	idx, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	targets, err := e.collect(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*Candidate, len(targets))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, t := range targets {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			c, err := e.inspect(t)
			if err != nil {
				// the file may have vanished mid-walk
				slog.Warn("check skipped file", "path", t.rel, "error", err)
				return nil
			}
			if c == nil {
				return nil
			}
			if entry, ok := idx.Get(t.rel); ok {
				c.Indexed = true
				sum, err := e.fp.Fingerprint(t.abs)
				if err != nil {
					slog.Warn("check fingerprint failed", "path", t.rel, "error", err)
				} else {
					c.Changed = sum != entry.Fingerprint
				}
			}
			results[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, nil
}

func (e *Engine) collect(ctx context.Context) ([]checkTarget, error) {
	ignore := loadIgnoreList(e.ws.Root, e.ws.ControlDir)

	var targets []checkTarget
	err := filepath.WalkDir(e.ws.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("check walk error", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == e.ws.Root {
			return nil
		}
		if e.ws.InControlDir(path) {
			return filepath.SkipDir
		}

		rel, err := e.ws.RelPath(path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if ignore.ShouldIgnore(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.ShouldIgnore(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		targets = append(targets, checkTarget{abs: path, rel: rel, size: info.Size()})
		return nil
	})
	return targets, err
}

// inspect returns nil when the file gives no reason to be reported.
func (e *Engine) inspect(t checkTarget) (*Candidate, error) {
	var reasons []Reason

	if e.cfg.Threshold > 0 && t.size >= e.cfg.Threshold {
		reasons = append(reasons, ReasonSize)
	}
	if matchesAny(e.cfg.Track, t.rel) {
		reasons = append(reasons, ReasonPattern)
	}

	binary, err := isBinary(t.abs)
	if err != nil {
		return nil, err
	}
	if binary {
		reasons = append(reasons, ReasonBinary)
	}

	if len(reasons) == 0 {
		return nil, nil
	}
	return &Candidate{Path: t.rel, Size: t.size, Reasons: reasons}, nil
}

func matchesAny(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, relPath)
		if err != nil {
			slog.Warn("invalid track pattern", "pattern", pattern, "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// isBinary uses the same rule as git: a NUL byte in the first 8000 bytes.
func isBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}
