package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/openmined/keshig/internal/fingerprint"
	"github.com/openmined/keshig/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "0b6d2f0e-1c2b-4a4b-9a51-3f3c8f1f0a11"

type fakeMover struct {
	calls int
	fn    func(src, dst string) error
}

func (m *fakeMover) Move(_ context.Context, src, dst string) error {
	m.calls++
	return m.fn(src, dst)
}

func failing(err error) *fakeMover {
	return &fakeMover{fn: func(string, string) error { return err }}
}

func renaming() *fakeMover {
	return &fakeMover{fn: os.Rename}
}

func setup(t *testing.T, content string) (src, cacheDir string) {
	t.Helper()
	root := t.TempDir()
	src = filepath.Join(root, "notes.bin")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	return src, filepath.Join(root, ".git", "bin-cache")
}

func TestRelocate_MovesContentIntoCache(t *testing.T) {
	src, dir := setup(t, "hello")
	r := NewRelocator(dir, fingerprint.MD5{})

	res, err := r.Relocate(context.Background(), src, testID)
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	assert.Equal(t, filepath.Join(dir, testID), res.Dest)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", res.Fingerprint)
	assert.Equal(t, int64(5), res.Size)
	assert.False(t, res.Privileged)

	data, err := os.ReadFile(res.Dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, r.Exists(testID))
}

func TestRelocate_RefusesNonRegularFiles(t *testing.T) {
	src, dir := setup(t, "hello")
	r := NewRelocator(dir, fingerprint.MD5{}, WithMover(renaming()))

	link := filepath.Join(filepath.Dir(src), "link.bin")
	require.NoError(t, os.Symlink(src, link))
	_, err := r.Relocate(context.Background(), link, testID)
	require.ErrorIs(t, err, ErrNotRegular)
	assert.FileExists(t, link)

	_, err = r.Relocate(context.Background(), filepath.Dir(src), testID)
	require.ErrorIs(t, err, ErrNotRegular)

	assert.False(t, r.Exists(testID))
}

func TestRelocate_RefusesExistingBlob(t *testing.T) {
	src, dir := setup(t, "hello")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, testID), []byte("older"), 0o444))

	_, err := NewRelocator(dir, fingerprint.MD5{}).Relocate(context.Background(), src, testID)
	require.ErrorIs(t, err, ErrBlobExists)
	assert.FileExists(t, src)
}

func TestRelocate_RejectsBadIdentifier(t *testing.T) {
	src, dir := setup(t, "hello")
	_, err := NewRelocator(dir, fingerprint.MD5{}).Relocate(context.Background(), src, "../escape")
	require.ErrorIs(t, err, ErrInvalidID)
	assert.FileExists(t, src)
}

func TestRelocate_FallsBackOnceToPrivilegedMover(t *testing.T) {
	src, dir := setup(t, "hello")
	first := failing(os.ErrPermission)
	fallback := renaming()
	r := NewRelocator(dir, fingerprint.MD5{}, WithMover(first), WithFallback(fallback))

	res, err := r.Relocate(context.Background(), src, testID)
	require.NoError(t, err)
	assert.True(t, res.Privileged)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.NoFileExists(t, src)
}

func TestRelocate_NoFallbackWhenFirstMoveWorks(t *testing.T) {
	src, dir := setup(t, "hello")
	fallback := renaming()
	r := NewRelocator(dir, fingerprint.MD5{}, WithMover(renaming()), WithFallback(fallback))

	_, err := r.Relocate(context.Background(), src, testID)
	require.NoError(t, err)
	assert.Zero(t, fallback.calls)
}

func TestRelocate_FailureLeavesSourceIntact(t *testing.T) {
	src, dir := setup(t, "hello")
	r := NewRelocator(dir, fingerprint.MD5{},
		WithMover(failing(os.ErrPermission)),
		WithFallback(failing(errors.New("sudo: a password is required"))),
	)

	_, err := r.Relocate(context.Background(), src, testID)
	require.ErrorIs(t, err, ErrRelocationFailed)
	require.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "password is required")

	data, readErr := os.ReadFile(src)
	require.NoError(t, readErr)
	assert.Equal(t, "hello", string(data))
	assert.False(t, r.Exists(testID))
}

func TestRelocate_CopyWithoutRemoveIsAFailure(t *testing.T) {
	src, dir := setup(t, "hello")
	copying := &fakeMover{fn: utils.CopyFile}
	r := NewRelocator(dir, fingerprint.MD5{}, WithMover(copying))

	_, err := r.Relocate(context.Background(), src, testID)
	require.ErrorIs(t, err, ErrRelocationFailed)
	assert.FileExists(t, src)
}

func TestRelocate_DetectsCorruptedBlob(t *testing.T) {
	src, dir := setup(t, "hello")
	corrupting := &fakeMover{fn: func(src, dst string) error {
		if err := os.WriteFile(dst, []byte("HELLO"), 0o644); err != nil {
			return err
		}
		return os.Remove(src)
	}}
	r := NewRelocator(dir, fingerprint.MD5{}, WithMover(corrupting))

	_, err := r.Relocate(context.Background(), src, testID)
	require.ErrorIs(t, err, ErrBlobMismatch)

	// the file is back where it was, with its mode, and no blob is left
	assert.FileExists(t, src)
	assert.NoFileExists(t, filepath.Join(dir, testID))
	info, err := os.Stat(src)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestRestore_PutsModeBack(t *testing.T) {
	src, dir := setup(t, "hello")
	require.NoError(t, os.Chmod(src, 0o640))
	r := NewRelocator(dir, fingerprint.MD5{})

	res, err := r.Relocate(context.Background(), src, testID)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), res.Mode)

	require.True(t, r.Restore(context.Background(), res))
	info, err := os.Stat(src)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.NoFileExists(t, filepath.Join(dir, testID))
}

func TestCommandMover_UsesMv(t *testing.T) {
	if runtime.GOOS == "windows" || !utils.CommandAvailable("mv") {
		t.Skip("needs mv")
	}
	src, dir := setup(t, "hello")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dst := filepath.Join(dir, testID)

	require.NoError(t, CommandMover{}.Move(context.Background(), src, dst))
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)

	err := CommandMover{}.Move(context.Background(), src, dst)
	var cmdErr *utils.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.NotZero(t, cmdErr.ExitCode)
}

func TestPrivileged(t *testing.T) {
	assert.Nil(t, Privileged(nil))
	assert.Equal(t, CommandMover{Prefix: []string{"sudo", "-n"}}, Privileged([]string{"sudo", "-n"}))
}

func TestRenameMover(t *testing.T) {
	src, dir := setup(t, "hello")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dst := filepath.Join(dir, testID)

	require.NoError(t, RenameMover{}.Move(context.Background(), src, dst))
	assert.NoFileExists(t, src)

	err := RenameMover{}.Move(context.Background(), src, dst)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRelocate_CopyWithoutRemoveDropsStrayBlob(t *testing.T) {
	src, dir := setup(t, "hello")
	r := NewRelocator(dir, fingerprint.MD5{}, WithMover(&fakeMover{fn: utils.CopyFile}))

	_, err := r.Relocate(context.Background(), src, testID)
	require.Error(t, err)
	assert.False(t, r.Exists(testID))
}
