package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/keshig/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		name   string
		output string
		class  Class
		codes  []string
	}{
		{"clean", "", Unchanged, nil},
		{"untracked", "?? notes.bin\n", Untracked, []string{"??"}},
		{"staged-modified", "M  notes.bin\n", Modified, []string{"M"}},
		{"worktree-modified", " M notes.bin\n", Modified, []string{"M"}},
		{"crlf", " M notes.bin\r\n", Modified, []string{"M"}},
		{"both-modified", "MM notes.bin\n", Unchanged, []string{"MM"}},
		{"added-then-modified", "AM notes.bin\n", Unchanged, []string{"AM"}},
		{"renamed-then-modified", "RM old.bin -> notes.bin\n", Unchanged, []string{"RM"}},
		{"modified-then-deleted", "MD notes.bin\n", Unchanged, []string{"MD"}},
		{"added", "A  notes.bin\n", Unchanged, []string{"A"}},
		{"deleted", " D notes.bin\n", Unchanged, []string{"D"}},
		{"file-named-M", "A  M\n", Unchanged, []string{"A"}},
		{"untracked-wins", " M a.bin\n?? b.bin\n", Untracked, []string{"M", "??"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := ParseStatus("notes.bin", []byte(c.output))
			assert.Equal(t, c.class, st.Class)
			assert.Equal(t, c.codes, st.Codes)
		})
	}
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "untracked", Untracked.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}

func gitRepo(t *testing.T) string {
	t.Helper()
	if !utils.CommandAvailable("git") {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	_, err := utils.RunCommand(context.Background(), root, "git", "init", "-q")
	require.NoError(t, err)
	return root
}

func TestGit_StatusAgainstRealRepository(t *testing.T) {
	root := gitRepo(t)
	ctx := context.Background()
	git := NewGit()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.bin"), []byte("hello"), 0o644))
	st, err := git.Status(ctx, root, "notes.bin")
	require.NoError(t, err)
	assert.Equal(t, Untracked, st.Class)

	run := func(args ...string) {
		_, err := utils.RunCommand(ctx, root, "git", append([]string{"-c", "user.name=t", "-c", "user.email=t@example.com"}, args...)...)
		require.NoError(t, err)
	}
	run("add", "notes.bin")
	run("commit", "-q", "-m", "init")

	st, err = git.Status(ctx, root, "notes.bin")
	require.NoError(t, err)
	assert.Equal(t, Unchanged, st.Class)
	assert.Empty(t, st.Codes)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.bin"), []byte("changed"), 0o644))
	st, err = git.Status(ctx, root, "notes.bin")
	require.NoError(t, err)
	assert.Equal(t, Modified, st.Class)
}

func TestGit_StatusFailure(t *testing.T) {
	if !utils.CommandAvailable("git") {
		t.Skip("git not installed")
	}
	// not a repository: git exits non-zero
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))

	_, err := NewGit().Status(context.Background(), dir, "x.bin")
	require.ErrorIs(t, err, ErrStatusFailed)

	var cmdErr *utils.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.NotZero(t, cmdErr.ExitCode)
}

func TestGit_MissingBinary(t *testing.T) {
	git := &Git{Binary: "keshig-no-such-git"}
	_, err := git.Status(context.Background(), t.TempDir(), "x.bin")
	require.ErrorIs(t, err, ErrStatusFailed)
}
