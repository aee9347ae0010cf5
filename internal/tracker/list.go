package tracker

import (
	"github.com/openmined/keshig/internal/index"
	"github.com/openmined/keshig/internal/utils"
)

// Listing is an index entry joined with what is on disk for it.
type Listing struct {
	index.Entry
	// Cached is set when the blob exists in the cache.
	Cached bool `json:"cached"`
	// Size of the cached blob, zero when it is missing.
	Size int64 `json:"size"`
	// InWorkTree is set when a file is present at the entry path again.
	InWorkTree bool `json:"inWorkTree"`
}

// List returns every index entry in file order together with the malformed
// records that were skipped while reading it.
func (e *Engine) List() ([]Listing, []*index.RecordError, error) {
	if err := e.ws.EnsureRepository(); err != nil {
		return nil, nil, err
	}

	idx, err := e.store.Load()
	if err != nil {
		return nil, nil, err
	}

	entries := idx.Entries()
	listings := make([]Listing, 0, len(entries))
	for _, entry := range entries {
		l := Listing{
			Entry:      entry,
			InWorkTree: utils.FileExists(e.ws.AbsPath(entry.Path)),
		}
		if info, err := e.relocator.Stat(entry.Identifier); err == nil {
			l.Cached = true
			l.Size = info.Size()
		}
		listings = append(listings, l)
	}
	return listings, idx.Corrupt, nil
}
