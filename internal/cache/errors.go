package cache

import (
	"fmt"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
)

// ErrUnnamed is returned when a package declares no repository URL.
var ErrUnnamed = errors.New(errors.CodeInvalidInput, "package has no repository url")

// CloneError reports that every candidate URL of a package failed to clone or
// fetch. Failures holds one message per distinct failure, in the order they
// occurred.
type CloneError struct {
	Package  string
	URLs     []string
	Failures []string
}

// Error implements the error interface.
func (e *CloneError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to clone %s from %s", e.Package, strings.Join(e.URLs, ", "))
	for _, failure := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(failure)
	}
	return b.String()
}

// isRemoteBranchNotFound reports whether a fetch failed because the branch it
// asked for no longer exists upstream, which is what happens after the
// default branch is renamed.
//
// This relies on git's English error text. Keep any future hardening (exit
// codes, porcelain output) inside this function.
func isRemoteBranchNotFound(err error) bool {
	var execErr *exec.ExecError
	if !errors.As(err, &execErr) {
		return false
	}
	return strings.Contains(strings.ToLower(execErr.Stderr), "couldn't find remote ref")
}

// mapGitExecError converts an exec.ExecError from a git command to a platform
// error, using git's stderr to pick the code.
func mapGitExecError(err error, context string) error {
	var execErr *exec.ExecError
	if !errors.As(err, &execErr) {
		return errors.Wrap(err, errors.CodeExecutionFailed, context)
	}

	stderr := strings.TrimSpace(execErr.Stderr)
	lower := strings.ToLower(stderr)

	code := errors.CodeExecutionFailed
	switch {
	case isRemoteBranchNotFound(err),
		strings.Contains(lower, "repository not found"),
		strings.Contains(lower, "does not appear to be a git repository"):
		code = errors.CodeNotFound
	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "terminal prompts disabled"):
		code = errors.CodeUnauthorized
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "timed out"):
		code = errors.CodeNetwork
	}

	wrapped := errors.Wrap(err, code, context)
	if stderr != "" {
		return errors.WithContext(wrapped, "stderr", stderr)
	}
	return wrapped
}

// failureText is the message recorded for a failed candidate: git's stderr
// when there is one, otherwise the error itself.
func failureText(err error) string {
	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
			return stderr
		}
	}
	return err.Error()
}

// uniqueStrings returns a deduplicated slice of strings, preserving order.
func uniqueStrings(input []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(input))

	for _, s := range input {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	return result
}
