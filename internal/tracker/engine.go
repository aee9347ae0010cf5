// Package tracker decides, per path, whether a file has to leave the working
// tree for the cache, and carries out that decision.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/keshig/internal/cache"
	"github.com/openmined/keshig/internal/config"
	"github.com/openmined/keshig/internal/fingerprint"
	"github.com/openmined/keshig/internal/ident"
	"github.com/openmined/keshig/internal/index"
	"github.com/openmined/keshig/internal/vcs"
	"github.com/openmined/keshig/internal/workspace"
)

// Action is what Add ended up doing.
type Action int

const (
	// ActionNone: git reported nothing that calls for relocation.
	ActionNone Action = iota
	// ActionRelocated: the file moved into the cache and the index was written.
	ActionRelocated
	// ActionUnchanged: the index already holds this exact content.
	ActionUnchanged
)

func (a Action) String() string {
	switch a {
	case ActionRelocated:
		return "relocated"
	case ActionUnchanged:
		return "unchanged"
	default:
		return "none"
	}
}

// Outcome reports what happened to one path.
type Outcome struct {
	Path   string // repository-relative
	Status *vcs.Status
	Action Action
	Entry  index.Entry
	// Replaced is set when an existing index entry was updated.
	Replaced bool
	Result   *cache.Result
}

type Engine struct {
	ws        *workspace.Workspace
	cfg       *config.Config
	store     *index.Store
	status    vcs.StatusReporter
	fp        fingerprint.Fingerprinter
	ids       ident.Generator
	relocator *cache.Relocator
	baseDir   string
	prune     bool

	cacheOpts []cache.Option
}

type Option func(*Engine)

func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithStatusReporter(s vcs.StatusReporter) Option {
	return func(e *Engine) { e.status = s }
}

func WithFingerprinter(fp fingerprint.Fingerprinter) Option {
	return func(e *Engine) { e.fp = fp }
}

func WithIdentifiers(g ident.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithCacheOptions configures the relocator, e.g. its movers.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(e *Engine) { e.cacheOpts = append(e.cacheOpts, opts...) }
}

// WithBaseDir sets the directory relative paths are resolved against. It
// defaults to the process working directory.
func WithBaseDir(dir string) Option {
	return func(e *Engine) { e.baseDir = dir }
}

// WithPrune makes Add drop the index entry of a path that no longer exists
// when its cache blob is gone too. Entries whose blob is still cached are
// kept, since every relocated path is missing from the working tree.
func WithPrune(prune bool) Option {
	return func(e *Engine) { e.prune = prune }
}

func New(ws *workspace.Workspace, opts ...Option) *Engine {
	e := &Engine{
		ws:     ws,
		cfg:    config.Default(),
		store:  index.NewStore(ws.IndexPath),
		status: vcs.NewGit(),
		fp:     fingerprint.NewMemo(fingerprint.MD5{}, 0),
		ids:    ident.UUID{},
	}
	for _, opt := range opts {
		opt(e)
	}

	relocOpts := []cache.Option{cache.WithFallback(cache.Privileged(e.cfg.PrivilegedMove))}
	e.relocator = cache.NewRelocator(ws.CacheDir, e.fp, append(relocOpts, e.cacheOpts...)...)
	return e
}

// Add checks path and, when git reports it as modified or untracked, moves
// its content into the cache and records it in the index.
func (e *Engine) Add(ctx context.Context, path string) (*Outcome, error) {
	if err := e.ws.EnsureRepository(); err != nil {
		return nil, err
	}

	abs, rel, err := e.resolve(path)
	if err != nil {
		return nil, err
	}

	kind, err := Classify(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	switch kind {
	case KindRegular:
	case KindMissing:
		if e.prune {
			if err := e.pruneEntry(rel); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%s: %w", rel, ErrPathNotFound)
	case KindDirectory:
		return nil, fmt.Errorf("%s: %w", rel, ErrPathIsDirectory)
	case KindSymlink, KindDevice, KindOther:
		return nil, fmt.Errorf("%s is a %s: %w", rel, kind, ErrUnsupportedType)
	}

	st, err := e.status.Status(ctx, e.ws.Root, rel)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Path: rel, Status: st}

	if st.Class == vcs.Unchanged {
		slog.Info("nothing to relocate", "path", rel, "status", st.Codes)
		return out, nil
	}
	slog.Info("relocation required", "path", rel, "status", st.Class)

	if err := e.ws.Lock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.ws.Unlock(); err != nil {
			slog.Warn("failed to unlock workspace", "error", err)
		}
	}()

	if err := e.ws.Setup(); err != nil {
		return nil, err
	}

	idx, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	sum, err := e.fp.Fingerprint(abs)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", rel, err)
	}
	if prev, ok := idx.Get(rel); ok && prev.Fingerprint == sum && e.relocator.Exists(prev.Identifier) {
		slog.Info("content already cached", "path", rel, "id", prev.Identifier)
		out.Action = ActionUnchanged
		out.Entry = prev
		return out, nil
	}

	id, err := idx.UniqueIdentifier(e.ids, e.relocator.Exists)
	if err != nil {
		return nil, err
	}
	if err := (index.Entry{Path: rel, Fingerprint: sum, Identifier: id}).Validate(); err != nil {
		return nil, fmt.Errorf("cannot index %s: %w", rel, err)
	}

	res, err := e.relocator.Relocate(ctx, abs, id)
	if err != nil {
		return nil, err
	}
	if memo, ok := e.fp.(*fingerprint.Memo); ok {
		memo.Forget(abs)
	}

	entry := index.Entry{Path: rel, Fingerprint: res.Fingerprint, Identifier: id}
	replaced, err := idx.Put(entry)
	if err == nil {
		err = e.store.Save(idx)
	}
	if err != nil {
		e.relocator.Restore(ctx, res)
		return nil, fmt.Errorf("record %s in index: %w", rel, err)
	}

	out.Action = ActionRelocated
	out.Entry = entry
	out.Replaced = replaced
	out.Result = res
	return out, nil
}

// resolve turns a user supplied path into its absolute and repository
// relative forms.
func (e *Engine) resolve(path string) (string, string, error) {
	if path == "" {
		return "", "", fmt.Errorf("empty path: %w", ErrPathNotFound)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		base := e.baseDir
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", "", err
			}
			base = wd
		}
		abs = filepath.Join(base, abs)
	}
	abs = filepath.Clean(abs)

	if e.ws.InControlDir(abs) {
		return "", "", fmt.Errorf("%s is inside %s: %w", path, e.ws.ControlDir, ErrOutsideRepository)
	}
	rel, err := e.ws.RelPath(abs)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrOutsideRepository, err)
	}
	return abs, rel, nil
}

func (e *Engine) pruneEntry(rel string) error {
	if err := e.ws.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := e.ws.Unlock(); err != nil {
			slog.Warn("failed to unlock workspace", "error", err)
		}
	}()

	idx, err := e.store.Load()
	if err != nil {
		return err
	}
	entry, ok := idx.Get(rel)
	if !ok {
		return nil
	}
	if e.relocator.Exists(entry.Identifier) {
		slog.Info("keeping index entry, its content is cached", "path", rel, "id", entry.Identifier)
		return nil
	}

	idx.Remove(rel)
	if err := e.store.Save(idx); err != nil {
		return err
	}
	slog.Info("removed stale index entry", "path", rel, "id", entry.Identifier)
	return nil
}
