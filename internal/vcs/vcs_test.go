package vcs

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

func initRepoWithCommit(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	filePath := filepath.Join(dir, "train.py")
	require.NoError(t, os.WriteFile(filePath, []byte("print(1)\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("train.py")
	require.NoError(t, err)

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestEnsureClean_CleanTreePasses(t *testing.T) {
	dir := initRepoWithCommit(t)
	r, err := Open(dir)
	require.NoError(t, err)
	assert.NoError(t, r.EnsureClean())
}

func TestEnsureClean_DirtyTreeFails(t *testing.T) {
	dir := initRepoWithCommit(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.py"), []byte("print(2)\n"), 0o644))

	r, err := Open(dir)
	require.NoError(t, err)
	assert.Error(t, r.EnsureClean())
}

func TestIsTracked(t *testing.T) {
	dir := initRepoWithCommit(t)
	r, err := Open(dir)
	require.NoError(t, err)

	assert.True(t, r.IsTracked("train.py"))
	assert.False(t, r.IsTracked("untracked.py"))
}

func TestCommitAndBranch(t *testing.T) {
	dir := initRepoWithCommit(t)
	r, err := Open(dir)
	require.NoError(t, err)

	commit, err := r.Commit()
	require.NoError(t, err)
	assert.Len(t, commit, 40)

	branch, err := r.Branch()
	require.NoError(t, err)
	assert.NotEmpty(t, branch)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "abc1234", ShortHash("abc1234567890"))
	assert.Equal(t, "abc", ShortHash("abc"))
}

func TestIsRepoSubpath(t *testing.T) {
	assert.True(t, IsRepoSubpath("/repo/a.py", "/repo"))
	assert.True(t, IsRepoSubpath("/repo", "/repo"))
	assert.False(t, IsRepoSubpath("/repository/a.py", "/repo"))
}
