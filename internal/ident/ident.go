// Package ident mints the random identifiers that name cache blobs.
package ident

import "github.com/google/uuid"

// Generator produces random, collision-resistant identifiers. Uniqueness
// against already used identifiers is the caller's job.
type Generator interface {
	NewID() string
}

// UUID generates random version 4 UUIDs in their 36 character text form.
type UUID struct{}

func (UUID) NewID() string {
	return uuid.NewString()
}

// Func adapts a plain function to Generator.
type Func func() string

func (f Func) NewID() string { return f() }

// Sequence replays ids in order and then repeats the last one. Useful to force
// collisions.
func Sequence(ids ...string) Generator {
	i := 0
	return Func(func() string {
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id
	})
}

// Valid reports whether id is usable as a cache blob name: non-empty and free
// of path separators and dot segments.
func Valid(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch r {
		case '/', '\\', '\n', '\r', 0:
			return false
		}
	}
	return true
}
