package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/exec"

	"github.com/jmgilman/go/unmaintained/internal/registry"
)

// fakeGit records git invocations and simulates clones by creating
// directories on the cache filesystem.
type fakeGit struct {
	fs        billy.Filesystem
	calls     []string
	cloneErrs map[string]error
	fetchErrs []error
}

func (f *fakeGit) Clone(_ context.Context, url, dir string) error {
	f.calls = append(f.calls, "clone "+url)
	if err := f.cloneErrs[url]; err != nil {
		return err
	}
	return util.WriteFile(f.fs, filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/master\n"), 0o644)
}

func (f *fakeGit) Fetch(_ context.Context, dir string) error {
	f.calls = append(f.calls, "fetch "+dir)
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return err
	}
	return nil
}

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// fakeSource serves fixed version lists and counts requests.
type fakeSource struct {
	versions map[string][]registry.Version
	err      error
	calls    int
}

func (s *fakeSource) Versions(_ context.Context, name string) ([]registry.Version, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.versions[name], nil
}

// failingFS fails every file creation, simulating a read-only cache.
type failingFS struct {
	billy.Filesystem
}

func (f failingFS) Create(string) (billy.File, error) {
	return nil, os.ErrPermission
}

func (f failingFS) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&os.O_CREATE != 0 {
		return nil, os.ErrPermission
	}
	return f.Filesystem.OpenFile(name, flag, perm)
}

// newTestCache creates a temporary cache on memfs with a fake git and a
// fixed clock.
func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeGit, *testClock) {
	t.Helper()

	fs := memfs.New()
	git := &fakeGit{fs: fs, cloneErrs: make(map[string]error)}
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}

	all := append([]Option{
		WithFilesystem(fs),
		WithGitOperations(git),
		WithClock(clock.Now),
	}, opts...)

	c, err := New(Config{Temporary: true, MaxAge: 365}, all...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c, git, clock
}

// branchNotFound is what a fetch of a renamed branch fails with.
func branchNotFound(branch string) error {
	return mapGitExecError(&exec.ExecError{
		Command:  []string{"git", "fetch", "origin", "+" + branch + ":" + branch},
		ExitCode: 128,
		Stderr:   "fatal: couldn't find remote ref " + branch + "\n",
	}, "failed to fetch "+branch)
}

// gitFailure is a generic git failure with the given stderr.
func gitFailure(stderr string) error {
	return mapGitExecError(&exec.ExecError{
		Command:  []string{"git"},
		ExitCode: 128,
		Stderr:   stderr,
	}, "git failed")
}
