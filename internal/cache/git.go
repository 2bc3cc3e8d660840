package cache

import (
	"context"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
)

// nonInteractiveEnv keeps git and credential helpers from prompting, so an
// inaccessible repository fails instead of hanging.
var nonInteractiveEnv = map[string]string{
	"GCM_INTERACTIVE":     "never",
	"GIT_ASKPASS":         "echo",
	"GIT_TERMINAL_PROMPT": "0",
}

// GitOperations defines the git operations the cache performs on clones.
// This interface abstracts the git CLI to enable testing.
type GitOperations interface {
	// Clone makes a shallow clone of url into dir without checking out a
	// branch or any files.
	Clone(ctx context.Context, url, dir string) error

	// Fetch updates the clone in dir by fetching only its current branch from
	// origin into itself.
	Fetch(ctx context.Context, dir string) error
}

// cliGitOps implements GitOperations with the git CLI via the exec module.
type cliGitOps struct {
	command *exec.Command
}

// NewGitOperations creates a GitOperations that runs the git binary.
// If command is nil, a new default command is created.
func NewGitOperations(command *exec.Command) GitOperations {
	if command == nil {
		command = exec.New()
	}
	return &cliGitOps{command: command}
}

// Clone runs 'git clone --depth=1 --no-checkout'.
func (g *cliGitOps) Clone(ctx context.Context, url, dir string) error {
	git := exec.NewWrapper(g.command, "git")
	_, err := git.WithInheritEnv().WithEnv(nonInteractiveEnv).WithContext(ctx).
		Run("clone", "--depth=1", "--no-checkout", "--quiet", url, dir)
	if err != nil {
		return mapGitExecError(err, "failed to clone "+url)
	}
	return nil
}

// Fetch runs 'git fetch' for the clone's current branch with a forced
// refspec, so a rewritten upstream history still updates the local branch.
func (g *cliGitOps) Fetch(ctx context.Context, dir string) error {
	branch, err := currentBranch(dir)
	if err != nil {
		return err
	}

	refspec := "+" + branch + ":" + branch
	git := exec.NewWrapper(g.command, "git")
	_, err = git.WithDir(dir).WithInheritEnv().WithEnv(nonInteractiveEnv).WithContext(ctx).
		Run("fetch", "--depth=1", "--quiet", "--update-head-ok", "origin", refspec)
	if err != nil {
		return mapGitExecError(err, "failed to fetch "+branch)
	}
	return nil
}

// currentBranch returns the short name of the branch HEAD points to.
func currentBranch(dir string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeNotFound, "failed to open repository %s", dir)
	}

	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeNotFound, "failed to read HEAD of %s", dir)
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		err := errors.New(errors.CodeConflict, "HEAD is not on a branch")
		return "", errors.WithContext(err, "dir", dir)
	}

	return head.Target().Short(), nil
}
