// Package index holds the table of tracked files, mapping each working tree
// path to the fingerprint of its content and the identifier of the cache blob
// that stores it.
//
// On disk the index is a plain text file with one record per line:
//
//	path<--->fingerprint<--->identifier
//
// Records that cannot be parsed are skipped and reported, never fatal.
package index

import (
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/keshig/internal/ident"
)

const maxIdentifierAttempts = 64

var ErrIdentifierExhausted = errors.New("could not generate an unused identifier")

// Index is an in-memory copy of the index file. It is not safe for
// concurrent use and is meant to live for one command.
type Index struct {
	entries []Entry
	paths   map[string]int
	ids     mapset.Set[string]

	// Corrupt lists the records skipped while parsing.
	Corrupt []*RecordError
}

func New() *Index {
	return &Index{
		paths: make(map[string]int),
		ids:   mapset.NewThreadUnsafeSet[string](),
	}
}

// Parse builds an index from file content. Lines with the wrong number of
// fields, empty fields, or a path or identifier already seen are recorded in
// Corrupt; the first occurrence of a path or identifier wins.
func Parse(data []byte) *Index {
	idx := New()
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		reject := func(reason string) {
			idx.Corrupt = append(idx.Corrupt, &RecordError{Line: n + 1, Raw: line, Reason: reason})
		}

		e, reason, ok := parseRecord(line)
		switch {
		case !ok:
			reject(reason)
		case idx.Contains(e.Path):
			reject(fmt.Sprintf("duplicate path %q", e.Path))
		case idx.HasIdentifier(e.Identifier):
			reject(fmt.Sprintf("duplicate identifier %q", e.Identifier))
		default:
			idx.add(e)
		}
	}
	return idx
}

// Bytes serializes the well-formed entries in order. Corrupt records are not
// written back.
func (i *Index) Bytes() []byte {
	var b strings.Builder
	for _, e := range i.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (i *Index) Len() int {
	return len(i.entries)
}

// Entries returns a copy of the entries in file order.
func (i *Index) Entries() []Entry {
	out := make([]Entry, len(i.entries))
	copy(out, i.entries)
	return out
}

func (i *Index) Get(path string) (Entry, bool) {
	pos, ok := i.paths[path]
	if !ok {
		return Entry{}, false
	}
	return i.entries[pos], true
}

func (i *Index) Contains(path string) bool {
	_, ok := i.paths[path]
	return ok
}

func (i *Index) HasIdentifier(id string) bool {
	return i.ids.Contains(id)
}

// Append adds a new entry at the end. The path and identifier must both be
// unused.
func (i *Index) Append(e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if i.Contains(e.Path) {
		return fmt.Errorf("%w: path %q already indexed", ErrInvalidEntry, e.Path)
	}
	if i.HasIdentifier(e.Identifier) {
		return fmt.Errorf("%w: identifier %q already in use", ErrInvalidEntry, e.Identifier)
	}
	i.add(e)
	return nil
}

// Put updates the entry for e.Path in place, or appends it when the path is
// new. It reports whether an existing entry was replaced.
func (i *Index) Put(e Entry) (bool, error) {
	pos, ok := i.paths[e.Path]
	if !ok {
		return false, i.Append(e)
	}
	if err := e.Validate(); err != nil {
		return false, err
	}

	old := i.entries[pos]
	if e.Identifier != old.Identifier && i.HasIdentifier(e.Identifier) {
		return false, fmt.Errorf("%w: identifier %q already in use", ErrInvalidEntry, e.Identifier)
	}
	i.ids.Remove(old.Identifier)
	i.ids.Add(e.Identifier)
	i.entries[pos] = e
	return true, nil
}

// Remove drops the entry for path and reports whether there was one.
func (i *Index) Remove(path string) bool {
	pos, ok := i.paths[path]
	if !ok {
		return false
	}

	i.ids.Remove(i.entries[pos].Identifier)
	i.entries = append(i.entries[:pos], i.entries[pos+1:]...)
	delete(i.paths, path)
	for p, at := range i.paths {
		if at > pos {
			i.paths[p] = at - 1
		}
	}
	return true
}

// UniqueIdentifier draws identifiers from gen until one is found that no
// entry uses and that inUse, when given, does not reject.
func (i *Index) UniqueIdentifier(gen ident.Generator, inUse func(id string) bool) (string, error) {
	for range maxIdentifierAttempts {
		id := gen.NewID()
		if !ident.Valid(id) || i.HasIdentifier(id) {
			continue
		}
		if inUse != nil && inUse(id) {
			continue
		}
		return id, nil
	}
	return "", ErrIdentifierExhausted
}

func (i *Index) add(e Entry) {
	i.paths[e.Path] = len(i.entries)
	i.ids.Add(e.Identifier)
	i.entries = append(i.entries, e)
}
