// Package cache moves working tree files into the content-addressed cache in
// the git control directory. Blobs are named by identifier and never
// rewritten once placed.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/keshig/internal/fingerprint"
	"github.com/openmined/keshig/internal/ident"
	"github.com/openmined/keshig/internal/utils"
)

var (
	ErrRelocationFailed = errors.New("failed to move original file")
	ErrNotRegular       = errors.New("not a regular file")
	ErrBlobExists       = errors.New("cache blob already exists")
	ErrBlobMismatch     = errors.New("cache blob does not match source fingerprint")
	ErrInvalidID        = errors.New("invalid cache identifier")
)

// Result describes a completed relocation.
type Result struct {
	Source      string
	Dest        string
	Identifier  string
	Fingerprint string
	Size        int64
	// Mode is the permission the source had before it was moved.
	Mode os.FileMode
	// Privileged is set when the fallback mover did the work.
	Privileged bool
}

type Relocator struct {
	dir         string
	fingerprint fingerprint.Fingerprinter
	mover       Mover
	fallback    Mover
}

type Option func(*Relocator)

// WithMover replaces the unprivileged mover.
func WithMover(m Mover) Option {
	return func(r *Relocator) { r.mover = m }
}

// WithFallback sets the mover tried once after the first move fails. nil
// disables the retry.
func WithFallback(m Mover) Option {
	return func(r *Relocator) { r.fallback = m }
}

func NewRelocator(dir string, fp fingerprint.Fingerprinter, opts ...Option) *Relocator {
	r := &Relocator{
		dir:         dir,
		fingerprint: fp,
		mover:       RenameMover{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the blob path for id.
func (r *Relocator) Path(id string) string {
	return filepath.Join(r.dir, id)
}

// Exists reports whether a blob named id is present.
func (r *Relocator) Exists(id string) bool {
	return utils.PathExists(r.Path(id))
}

func (r *Relocator) Stat(id string) (os.FileInfo, error) {
	return os.Stat(r.Path(id))
}

// Relocate moves src into the cache as blob id. On success src is gone and
// the blob holds its exact bytes. On failure src is left where it was, as far
// as the movers allow.
func (r *Relocator) Relocate(ctx context.Context, src, id string) (*Result, error) {
	if !ident.Valid(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotRegular, src, info.Mode().Type())
	}

	sum, err := r.fingerprint.Fingerprint(src)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", src, err)
	}

	if err := utils.EnsureDir(r.dir); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", r.dir, err)
	}
	dst := r.Path(id)
	if utils.PathExists(dst) {
		return nil, fmt.Errorf("%w: %s", ErrBlobExists, dst)
	}

	slog.Info("relocating", "path", src, "md5", sum, "id", id)
	res := &Result{Source: src, Dest: dst, Identifier: id, Fingerprint: sum, Size: info.Size(), Mode: info.Mode().Perm()}

	var moveErrs []error
	if err := r.mover.Move(ctx, src, dst); err != nil {
		moveErrs = append(moveErrs, err)
		if r.fallback != nil && ctx.Err() == nil {
			slog.Warn("move failed, retrying with privileges", "path", src, "error", err)
			res.Privileged = true
			if err := r.fallback.Move(ctx, src, dst); err != nil {
				moveErrs = append(moveErrs, err)
			}
		}
	}

	if utils.PathExists(src) {
		if utils.PathExists(dst) {
			// source is intact, drop the stray copy
			if err := os.Remove(dst); err != nil {
				slog.Warn("failed to remove stray cache blob", "path", dst, "error", err)
			}
		}
		return nil, relocationError(src+" is still present", moveErrs)
	}
	if !utils.PathExists(dst) {
		return nil, relocationError(src+" vanished without reaching "+dst, moveErrs)
	}
	if len(moveErrs) > 0 && !res.Privileged {
		// the mover complained but the file did move
		slog.Warn("move reported an error but completed", "path", src, "error", errors.Join(moveErrs...))
	}

	got, err := r.fingerprint.Fingerprint(dst)
	if err != nil {
		r.Restore(ctx, res)
		return nil, fmt.Errorf("verify %s: %w", dst, err)
	}
	if got != sum {
		r.Restore(ctx, res)
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrBlobMismatch, dst, got, sum)
	}

	// blobs are immutable; owner may differ after a privileged move
	if err := os.Chmod(dst, info.Mode().Perm()&^0o222); err != nil {
		slog.Debug("could not make cache blob read-only", "path", dst, "error", err)
	}

	return res, nil
}

// Restore moves the blob of res back to its source path with the source's
// original permissions. Failures are logged with both paths so the content
// can be recovered by hand.
func (r *Relocator) Restore(ctx context.Context, res *Result) bool {
	if err := (RenameMover{}).Move(ctx, res.Dest, res.Source); err != nil {
		slog.Error("could not put file back from the cache",
			"path", res.Source, "blob", res.Dest, "error", err)
		return false
	}
	if err := os.Chmod(res.Source, res.Mode); err != nil {
		slog.Warn("could not restore file mode", "path", res.Source, "mode", res.Mode, "error", err)
	}
	slog.Warn("file put back from the cache", "path", res.Source)
	return true
}

func relocationError(what string, causes []error) error {
	if len(causes) == 0 {
		return fmt.Errorf("%w: %s", ErrRelocationFailed, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrRelocationFailed, what, errors.Join(causes...))
}
