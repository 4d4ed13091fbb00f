package source

import (
	"os"
	"sync"

	git "github.com/go-git/go-git/v5"
	gitPlumbing "github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-hclog"
)

// New creates a new instance of RepoMngr
func New(l hclog.Logger) *RepoMngr {
	x := RepoMngr{
		l:  l.Named("git"),
		Mu: new(sync.Mutex),
	}
	return &x
}

// Bootstrap opens the checkout at Path, cloning it from Url first if
// it does not exist yet.
func (r *RepoMngr) Bootstrap() error {
	if r.Path == "" {
		r.l.Warn("Error in repo manager, path must be set to bootstrap")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	var err error
	if _, serr := os.Stat(r.Path); os.IsNotExist(serr) {
		if r.Url == "" {
			r.l.Warn("Error in repo manager, url must be set to clone")
		}
		r.l.Debug("Cloning repository", "path", r.Path, "url", r.Url)
		// Don't do a shallow clone (Depth: BIG)
		r.repo, err = git.PlainClone(r.Path, false,
			&git.CloneOptions{URL: r.Url, Depth: 99999999})
		return err
	}
	r.repo, err = git.PlainOpen(r.Path)
	if err != nil {
		r.l.Trace("Error running PlainOpen")
		return err
	}
	return nil
}

// Pull brings the checkout up to date with origin.  An already
// current checkout is not an error.
func (r *RepoMngr) Pull() error {
	if r.repo == nil {
		r.l.Warn("Error in repo manager, repo must be bootstrapped to pull")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		r.l.Trace("Error getting worktree")
		return err
	}
	err = worktree.Pull(&git.PullOptions{RemoteName: "origin", Force: true})
	if err == git.NoErrAlreadyUpToDate {
		r.l.Trace("Nothing changed in pull")
		return nil
	}
	return err
}

// HardResetToHEAD discards any local modification in the worktree,
// putting the checkout back to a clean state before a run.
func (r *RepoMngr) HardResetToHEAD() error {
	if r.repo == nil {
		r.l.Warn("Error in repo manager, repo must be bootstrapped to reset")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		r.l.Trace("Error getting worktree")
		return err
	}
	return worktree.Reset(&git.ResetOptions{Mode: git.HardReset})
}

// LastCommit returns the current HEAD hash.
func (r *RepoMngr) LastCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		r.l.Trace("Error getting HEAD")
		return "", err
	}
	return head.Hash().String(), nil
}

// ChangedPaths diffs two revisions and returns the paths that differ
// between them.
func (r *RepoMngr) ChangedPaths(oldRev, newRev string) ([]string, error) {
	if oldRev == newRev || oldRev == "" {
		return nil, nil
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	oldCommit, err := r.repo.CommitObject(gitPlumbing.NewHash(oldRev))
	if err != nil {
		r.l.Trace("Error getting old CommitObject")
		return nil, err
	}
	newCommit, err := r.repo.CommitObject(gitPlumbing.NewHash(newRev))
	if err != nil {
		r.l.Trace("Error getting new CommitObject")
		return nil, err
	}
	diff, err := newCommit.Patch(oldCommit)
	if err != nil {
		r.l.Trace("Error getting patch")
		return nil, err
	}
	diffFileStats := diff.Stats()
	changedFiles := make([]string, len(diffFileStats))
	for i := 0; i < len(diffFileStats); i++ {
		r.l.Trace("File was changed", "path", diffFileStats[i].Name)
		changedFiles[i] = diffFileStats[i].Name
	}
	r.l.Debug("Files changed between revisions", "old", oldRev, "new", newRev, "count", len(changedFiles))
	return changedFiles, nil
}

// FileAt returns the contents of a file as it existed at a specific
// revision.  Used by the update classifier to compare old recipes
// against the checkout.
func (r *RepoMngr) FileAt(rev, path string) ([]byte, error) {
	commit, err := r.repo.CommitObject(gitPlumbing.NewHash(rev))
	if err != nil {
		r.l.Trace("Error getting CommitObject", "rev", rev)
		return nil, err
	}
	f, err := commit.File(path)
	if err != nil {
		r.l.Trace("Error getting file from commit", "path", path)
		return nil, err
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return []byte(contents), nil
}

// Push sends local commits to origin.  An up to date remote is not
// an error.
func (r *RepoMngr) Push() error {
	if r.repo == nil {
		r.l.Warn("Error in repo manager, repo must be bootstrapped to push")
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()

	err := r.repo.Push(&git.PushOptions{RemoteName: "origin"})
	if err == git.NoErrAlreadyUpToDate {
		return nil
	}
	return err
}
