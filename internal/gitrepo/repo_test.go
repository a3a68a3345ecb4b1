package gitrepo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with test_a.py committed.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "test_a.py"), "import unittest\n")
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("test_a.py")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestOpen_FromSubdirectory(t *testing.T) {
	dir := initRepo(t)
	sub := filepath.Join(dir, "pkg", "tests")
	require.NoError(t, os.MkdirAll(sub, 0755))

	r, err := Open(sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(r.Root())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, r.Head(), 40)
}

func TestTrackedFiles(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, filepath.Join(dir, "test_untracked.py"), "x = 1\n")

	r, err := Open(dir)
	require.NoError(t, err)
	tracked, err := r.TrackedFiles()
	require.NoError(t, err)

	assert.True(t, tracked[filepath.Join(r.Root(), "test_a.py")])
	assert.False(t, tracked[filepath.Join(r.Root(), "test_untracked.py")])
}

func TestDirtyFiles(t *testing.T) {
	dir := initRepo(t)
	r, err := Open(dir)
	require.NoError(t, err)

	dirty, err := r.DirtyFiles()
	require.NoError(t, err)
	assert.Empty(t, dirty)
	assert.NoError(t, r.RequireClean())

	writeFile(t, filepath.Join(dir, "test_a.py"), "import pytest\n")
	writeFile(t, filepath.Join(dir, "new.py"), "")

	dirty, err = r.DirtyFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"new.py", "test_a.py"}, dirty)

	err = r.RequireClean()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 uncommitted")
}

func TestHead_NoCommits(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	r, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "", r.Head())
}
