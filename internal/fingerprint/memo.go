package fingerprint

import (
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoSize = 256

type memoKey struct {
	path  string
	size  int64
	mtime time.Time
	inode uint64
}

// Memo caches digests of unchanged files. A file counts as unchanged while its
// path, size, modification time and inode stay the same.
type Memo struct {
	inner Fingerprinter
	cache *lru.Cache[memoKey, string]
}

func NewMemo(inner Fingerprinter, size int) *Memo {
	if size <= 0 {
		size = defaultMemoSize
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[memoKey, string](size)
	return &Memo{inner: inner, cache: cache}
}

func (m *Memo) Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	key := memoKey{path: path, size: info.Size(), mtime: info.ModTime(), inode: inodeOf(info)}

	if digest, ok := m.cache.Get(key); ok {
		slog.Debug("fingerprint memo hit", "path", path)
		return digest, nil
	}

	digest, err := m.inner.Fingerprint(path)
	if err != nil {
		return "", err
	}
	m.cache.Add(key, digest)
	return digest, nil
}

// Forget drops every cached digest for path.
func (m *Memo) Forget(path string) {
	for _, key := range m.cache.Keys() {
		if key.path == path {
			m.cache.Remove(key)
		}
	}
}
