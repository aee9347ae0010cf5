package index

import (
	"errors"
	"fmt"
	"strings"
)

// Separator delimits the fields of one index record.
const Separator = "<--->"

const fieldCount = 3

var ErrInvalidEntry = errors.New("invalid index entry")

// Entry is one tracked file: where it lives in the working tree, the digest of
// its content when it was relocated, and the cache blob holding that content.
type Entry struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Identifier  string `json:"identifier"`
}

// Validate checks that every field is present and that none of them would
// break the line format.
func (e Entry) Validate() error {
	fields := []struct{ name, value string }{
		{"path", e.Path},
		{"fingerprint", e.Fingerprint},
		{"identifier", e.Identifier},
	}
	for _, f := range fields {
		name, value := f.name, f.value
		if value == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidEntry, name)
		}
		if strings.Contains(value, Separator) {
			return fmt.Errorf("%w: %s %q contains %q", ErrInvalidEntry, name, value, Separator)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%w: %s %q contains a line break", ErrInvalidEntry, name, value)
		}
	}
	return nil
}

// String renders the record without a trailing newline.
func (e Entry) String() string {
	return e.Path + Separator + e.Fingerprint + Separator + e.Identifier
}

// RecordError describes an index line that could not be turned into an entry.
type RecordError struct {
	Line   int    // 1-based line number in the index file
	Raw    string // the offending line
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("index line %d: %s", e.Line, e.Reason)
}

// parseRecord splits one line into an entry.
func parseRecord(line string) (Entry, string, bool) {
	fields := strings.Split(line, Separator)
	if len(fields) != fieldCount {
		return Entry{}, fmt.Sprintf("expected %d fields, got %d", fieldCount, len(fields)), false
	}

	e := Entry{Path: fields[0], Fingerprint: fields[1], Identifier: fields[2]}
	if err := e.Validate(); err != nil {
		return Entry{}, err.Error(), false
	}
	return e, "", true
}
