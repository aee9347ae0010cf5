// Package vcs talks to the git executable that owns the working tree.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openmined/keshig/internal/utils"
)

var ErrStatusFailed = errors.New("git status failed")

// Class is the decision-relevant classification of a path's status.
type Class int

const (
	Unchanged Class = iota
	Modified
	Untracked
)

func (c Class) String() string {
	switch c {
	case Modified:
		return "modified"
	case Untracked:
		return "untracked"
	default:
		return "unchanged"
	}
}

// Status is what git reported for one path.
type Status struct {
	Path string
	// Codes holds the trimmed two-letter status code of every reported line,
	// e.g. "M", "??", "A", "MM".
	Codes []string
	Class Class
}

// StatusReporter classifies a repository-relative path.
type StatusReporter interface {
	Status(ctx context.Context, root, relPath string) (*Status, error)
}

// ParseStatus reads short-format (porcelain v1) status output. "??" means
// untracked and a lone M in either column means modified. Combined codes such
// as AM, MM or RM are only reported. Untracked takes precedence when both
// show up.
func ParseStatus(path string, output []byte) *Status {
	st := &Status{Path: path}
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 3 {
			continue
		}

		code := strings.TrimSpace(line[:2])
		st.Codes = append(st.Codes, code)

		switch {
		case code == "??":
			st.Class = Untracked
		case code == "M" && st.Class != Untracked:
			st.Class = Modified
		}
	}
	return st
}

// Git runs the git binary.
type Git struct {
	Binary  string
	Timeout time.Duration
}

func NewGit() *Git {
	return &Git{Binary: "git"}
}

func (g *Git) Status(ctx context.Context, root, relPath string) (*Status, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	args := []string{"status", "--porcelain", "--untracked-files=all", "--", relPath}
	out, err := utils.RunCommand(ctx, root, g.binary(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatusFailed, err)
	}

	st := ParseStatus(relPath, out)
	slog.Debug("git status", "path", relPath, "codes", st.Codes, "class", st.Class)
	return st, nil
}

func (g *Git) binary() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}
