package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/keshig/internal/utils"
)

const (
	controlDir = ".git"
	configFile = "keshig"
	cacheDir   = "bin-cache"
	indexFile  = "bin-index"
	lockFile   = "bin-index.lock"
)

var (
	ErrNotARepository  = errors.New("not a git repository")
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the layout of one git working tree and the keshig state kept
// inside its control directory.
type Workspace struct {
	Root       string
	ControlDir string
	CacheDir   string
	IndexPath  string
	ConfigPath string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	control := filepath.Join(root, controlDir)
	return &Workspace{
		Root:       root,
		ControlDir: control,
		CacheDir:   filepath.Join(control, cacheDir),
		IndexPath:  filepath.Join(control, indexFile),
		ConfigPath: filepath.Join(control, configFile),
		flock:      flock.New(filepath.Join(control, lockFile)),
	}, nil
}

// Discover returns the workspace whose root is dir or its nearest ancestor
// holding a .git directory.
func Discover(dir string) (*Workspace, error) {
	start, err := utils.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	for cur := start; ; {
		if utils.DirExists(filepath.Join(cur, controlDir)) {
			return NewWorkspace(cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, start)
		}
		cur = parent
	}
}

// IsRepository reports whether the control directory exists.
func (w *Workspace) IsRepository() bool {
	return utils.DirExists(w.ControlDir)
}

// EnsureRepository returns ErrNotARepository unless the control directory
// exists.
func (w *Workspace) EnsureRepository() error {
	if !w.IsRepository() {
		return fmt.Errorf("%w: %s", ErrNotARepository, w.Root)
	}
	return nil
}

// Setup creates the cache directory.
func (w *Workspace) Setup() error {
	if err := w.EnsureRepository(); err != nil {
		return err
	}
	if err := utils.EnsureDir(w.CacheDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.CacheDir, err)
	}
	slog.Debug("workspace", "root", w.Root, "cache", w.CacheDir)
	return nil
}

// Lock takes the exclusive lock guarding the index and the cache. It does
// not block: a second holder gets ErrWorkspaceLocked.
func (w *Workspace) Lock() error {
	if err := w.EnsureRepository(); err != nil {
		return err
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

// Unlock releases the lock. The lock file stays in place: removing it would
// let a process that opened the old file and one that creates a new file
// hold the lock at the same time.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return nil
}

// AbsPath returns the absolute path of a repository-relative path.
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath returns the normalized repository-relative form of absPath.
func (w *Workspace) RelPath(absPath string) (string, error) {
	if !utils.IsWithin(w.Root, absPath) {
		return "", fmt.Errorf("%s is outside repository %s", absPath, w.Root)
	}
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	return NormPath(relPath), nil
}

// InControlDir reports whether absPath is the control directory or inside it.
func (w *Workspace) InControlDir(absPath string) bool {
	return utils.IsWithin(w.ControlDir, absPath)
}
