// Package testutil builds upstream git repositories for tests.
//
// Upstreams are ordinary repositories on the host filesystem, created with
// go-git and cloned by tests over file:// URLs so that shallow clones behave
// as they do against a remote.
package testutil

import (
	"fmt"
	osexec "os/exec"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Test user information used for every commit.
const (
	TestAuthor = "Test User"
	TestEmail  = "test@example.com"
)

// CargoManifest returns a minimal Cargo.toml declaring the named package.
func CargoManifest(name string) string {
	return fmt.Sprintf("[package]\nname = %q\nversion = \"0.1.0\"\nedition = \"2021\"\n", name)
}

// GitAvailable reports whether the git binary is on PATH.
func GitAvailable() bool {
	_, err := osexec.LookPath("git")
	return err == nil
}

// Upstream is a repository that tests clone from.
type Upstream struct {
	Dir  string
	repo *gogit.Repository
}

// NewUpstream initializes a repository in dir on branch master and commits
// files to it at the given time.
func NewUpstream(dir string, files map[string]string, when time.Time) (*Upstream, error) {
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to init upstream: %w", err)
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("failed to set HEAD: %w", err)
	}

	u := &Upstream{Dir: dir, repo: repo}
	if _, err := u.Commit(files, "Initial commit", when); err != nil {
		return nil, err
	}

	return u, nil
}

// URL returns the file:// URL of the upstream.
func (u *Upstream) URL() string {
	return "file://" + filepath.ToSlash(u.Dir)
}

// Commit writes files and commits them on the current branch.
func (u *Upstream) Commit(files map[string]string, message string, when time.Time) (plumbing.Hash, error) {
	wt, err := u.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get worktree: %w", err)
	}

	for path, content := range files {
		if err := util.WriteFile(wt.Filesystem, path, []byte(content), 0o644); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to write %s: %w", path, err)
		}
		if _, err := wt.Add(path); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to add %s: %w", path, err)
		}
	}

	sig := &object.Signature{Name: TestAuthor, Email: TestEmail, When: when}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to commit: %w", err)
	}

	return hash, nil
}

// RenameBranch renames branch from to branch to and points HEAD at it, as a
// forge does when the default branch is renamed.
func (u *Upstream) RenameBranch(from, to string) error {
	fromRef := plumbing.NewBranchReferenceName(from)
	toRef := plumbing.NewBranchReferenceName(to)

	ref, err := u.repo.Reference(fromRef, true)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", from, err)
	}

	if err := u.repo.Storer.SetReference(plumbing.NewHashReference(toRef, ref.Hash())); err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}
	if err := u.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, toRef)); err != nil {
		return fmt.Errorf("failed to set HEAD: %w", err)
	}
	if err := u.repo.Storer.RemoveReference(fromRef); err != nil {
		return fmt.Errorf("failed to remove %s: %w", from, err)
	}

	return nil
}

// HeadBranch returns the branch HEAD points to in the repository at dir.
func HeadBranch(dir string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", dir, err)
	}
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return head.Target().Short(), nil
}
