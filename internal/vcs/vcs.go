// Package vcs wraps the git operations roar needs around a traced run:
// clean-tree preflight, and commit/branch/remote extraction for the
// session's git context (spec §4.1, §6, §7).
package vcs

import (
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/roar-ml/roar/internal/rerr"
)

// Repo is a thin handle over an opened repository.
type Repo struct {
	repo *git.Repository
	root string
}

// Open discovers the repository containing dir by walking up parent
// directories, the way `git rev-parse --show-toplevel` does.
func Open(dir string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, rerr.Wrap(rerr.KindPreflight, "not a git repository", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, rerr.Wrap(rerr.KindPreflight, "resolve worktree", err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the repository's working-tree root.
func (r *Repo) Root() string { return r.root }

// EnsureClean enforces spec §6's "requires a clean git working tree"
// precondition for `run`/`build`.
func (r *Repo) EnsureClean() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return rerr.Wrap(rerr.KindPreflight, "resolve worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return rerr.Wrap(rerr.KindPreflight, "read working tree status", err)
	}
	if !status.IsClean() {
		return rerr.New(rerr.KindPreflight, "working tree is dirty; commit or stash changes before running")
	}
	return nil
}

// IsTracked reports whether a repo-relative path is tracked in HEAD, used
// by the file classifier's repo/unmanaged split (spec §4.6 rule 3).
func (r *Repo) IsTracked(relPath string) bool {
	head, err := r.repo.Head()
	if err != nil {
		return false
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return false
	}
	tree, err := commit.Tree()
	if err != nil {
		return false
	}
	_, err = tree.File(relPath)
	return err == nil
}

// Commit is the current HEAD commit hash.
func (r *Repo) Commit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", rerr.Wrap(rerr.KindPreflight, "resolve HEAD", err)
	}
	return head.Hash().String(), nil
}

// Branch is the current branch's short name, or "" when HEAD is detached.
func (r *Repo) Branch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", rerr.Wrap(rerr.KindPreflight, "resolve HEAD", err)
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "", nil
}

// RemoteURL is the "origin" remote's URL, or "" if there is none.
func (r *Repo) RemoteURL() string {
	remote, err := r.repo.Remote("origin")
	if err != nil || remote == nil {
		return ""
	}
	cfg := remote.Config()
	if cfg == nil || len(cfg.URLs) == 0 {
		return ""
	}
	return cfg.URLs[0]
}

// ResolveRevision resolves a revision string (branch, tag, short hash) to
// a full commit hash, used by `roar reproduce` when cross-checking a
// reproduced pipeline's recorded commit against the current tree.
func (r *Repo) ResolveRevision(rev string) (string, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", rerr.Wrap(rerr.KindPreflight, "resolve revision "+rev, err)
	}
	return h.String(), nil
}

// ShortHash truncates a full hash to the conventional 7-char short form.
func ShortHash(hash string) string {
	if len(hash) <= 7 {
		return hash
	}
	return hash[:7]
}

// IsRepoSubpath reports whether path lies within root, used alongside the
// classifier's repo-root prefix check.
func IsRepoSubpath(path, root string) bool {
	root = strings.TrimRight(root, "/")
	return path == root || strings.HasPrefix(path, root+"/")
}
