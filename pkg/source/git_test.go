package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo builds a throwaway repository with two commits touching
// different templates and returns the manager plus both revisions.
func initRepo(t *testing.T) (*RepoMngr, string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(path, contents string) string {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.Dir(path)), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, path), []byte(contents), 0644))
		_, err := wt.Add(path)
		require.NoError(t, err)
		h, err := wt.Commit("update "+path, &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@localhost", When: time.Now()},
		})
		require.NoError(t, err)
		return h.String()
	}

	first := commit("srcpkgs/foo/template", "version:1.0\nrevision:1\n")
	second := commit("srcpkgs/bar/template", "version:2.0\nrevision:1\n")

	r := New(hclog.NewNullLogger())
	r.Path = dir
	require.NoError(t, r.Bootstrap())
	return r, first, second
}

func TestBootstrapAndLastCommit(t *testing.T) {
	r, _, second := initRepo(t)

	head, err := r.LastCommit()
	require.NoError(t, err)
	assert.Equal(t, second, head)
}

func TestChangedPaths(t *testing.T) {
	r, first, second := initRepo(t)

	paths, err := r.ChangedPaths(first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"srcpkgs/bar/template"}, paths)
}

func TestChangedPathsNoBaseline(t *testing.T) {
	r, _, second := initRepo(t)

	// First run ever: no prior revision means no diff to take.
	paths, err := r.ChangedPaths("", second)
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = r.ChangedPaths(second, second)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFileAt(t *testing.T) {
	r, first, second := initRepo(t)

	contents, err := r.FileAt(first, "srcpkgs/foo/template")
	require.NoError(t, err)
	assert.Equal(t, "version:1.0\nrevision:1\n", string(contents))

	// bar does not exist yet at the first revision.
	_, err = r.FileAt(first, "srcpkgs/bar/template")
	assert.Error(t, err)

	contents, err = r.FileAt(second, "srcpkgs/bar/template")
	require.NoError(t, err)
	assert.Equal(t, "version:2.0\nrevision:1\n", string(contents))
}

func TestHardResetToHEAD(t *testing.T) {
	r, _, _ := initRepo(t)

	dirty := filepath.Join(r.Path, "srcpkgs", "foo", "template")
	require.NoError(t, os.WriteFile(dirty, []byte("version:9.9\n"), 0644))

	require.NoError(t, r.HardResetToHEAD())

	contents, err := os.ReadFile(dirty)
	require.NoError(t, err)
	assert.Equal(t, "version:1.0\nrevision:1\n", string(contents))
}
