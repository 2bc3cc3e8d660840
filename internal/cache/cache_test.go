package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/jmgilman/go/errors"
)

// newPersistentCache creates a persistent cache under a temporary root on the
// host filesystem, with a fake git.
func newPersistentCache(t *testing.T, root string) (*Cache, *fakeGit) {
	t.Helper()

	fs := osfs.New("/")
	git := &fakeGit{fs: fs, cloneErrs: make(map[string]error)}

	c, err := New(Config{Root: root, MaxAge: 365}, WithFilesystem(fs), WithGitOperations(git))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c, git
}

func TestNew(t *testing.T) {
	t.Run("temporary mode creates a private directory", func(t *testing.T) {
		fs := memfs.New()
		c, err := New(Config{Temporary: true, MaxAge: 365}, WithFilesystem(fs))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if !c.Temporary() {
			t.Error("Temporary() = false, want true")
		}
		if c.lock != nil {
			t.Error("temporary cache has a lock")
		}
		if _, err := fs.Stat(c.BaseDir()); err != nil {
			t.Fatalf("temporary directory was not created: %v", err)
		}

		if err := c.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := fs.Stat(c.BaseDir()); !os.IsNotExist(err) {
			t.Errorf("temporary directory survived Close(): %v", err)
		}
	})

	t.Run("persistent mode is versioned and lazy", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "cargo-unmaintained")
		c, _ := newPersistentCache(t, root)

		if c.Temporary() {
			t.Error("Temporary() = true, want false")
		}
		if want := filepath.Join(root, FormatVersion); c.BaseDir() != want {
			t.Errorf("BaseDir() = %v, want %v", c.BaseDir(), want)
		}
		if _, err := os.Stat(root); !os.IsNotExist(err) {
			t.Errorf("root created before first write: %v", err)
		}
	})

	t.Run("refresh age is capped", func(t *testing.T) {
		tests := []struct {
			maxAge uint64
			want   uint64
		}{
			{maxAge: 365, want: DefaultRefreshAge},
			{maxAge: 7, want: 7},
			{maxAge: 0, want: 0},
		}

		for _, tt := range tests {
			c, err := New(Config{Temporary: true, MaxAge: tt.maxAge}, WithFilesystem(memfs.New()))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := c.RefreshAge(); got != tt.want {
				t.Errorf("RefreshAge() with max age %d = %d, want %d", tt.maxAge, got, tt.want)
			}
		}
	})
}

func TestDefaultRoot(t *testing.T) {
	t.Run("environment override", func(t *testing.T) {
		t.Setenv(EnvCacheDir, "/somewhere/else")
		if got := DefaultRoot(); got != "/somewhere/else" {
			t.Errorf("DefaultRoot() = %v, want /somewhere/else", got)
		}
	})

	t.Run("platform cache directory", func(t *testing.T) {
		t.Setenv(EnvCacheDir, "")
		if got := DefaultRoot(); filepath.Base(got) != "cargo-unmaintained" {
			t.Errorf("DefaultRoot() = %v, want a cargo-unmaintained directory", got)
		}
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()

	t.Run("missing cache is a no-op", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "cache")
		removed, err := Purge(ctx, root, WithFilesystem(osfs.New("/")))
		if err != nil {
			t.Fatalf("Purge() error = %v", err)
		}
		if removed {
			t.Error("Purge() = true for missing cache")
		}
	})

	t.Run("removes everything and later calls start over", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "cache")
		c, git := newPersistentCache(t, root)

		url1, dir1, err := c.CloneRepository(ctx, anyhow)
		if err != nil {
			t.Fatalf("CloneRepository() error = %v", err)
		}
		firstCalls := append([]string(nil), git.calls...)

		// Another format version is left alone.
		oldFormat := filepath.Join(root, "v1")
		if err := os.MkdirAll(oldFormat, 0o755); err != nil {
			t.Fatal(err)
		}

		removed, err := c.Purge(ctx)
		if err != nil {
			t.Fatalf("Purge() error = %v", err)
		}
		if !removed {
			t.Error("Purge() = false, want true")
		}
		if _, err := os.Stat(c.BaseDir()); !os.IsNotExist(err) {
			t.Errorf("base directory survived Purge(): %v", err)
		}
		if _, err := os.Stat(oldFormat); err != nil {
			t.Errorf("other format version was removed: %v", err)
		}

		git.calls = nil
		url2, dir2, err := c.CloneRepository(ctx, anyhow)
		if err != nil {
			t.Fatalf("CloneRepository() error = %v", err)
		}
		if url1 != url2 || dir1 != dir2 {
			t.Errorf("after purge = (%v, %v), want (%v, %v)", url2, dir2, url1, dir1)
		}
		if len(git.calls) != len(firstCalls) || git.calls[0] != firstCalls[0] {
			t.Errorf("git calls after purge = %v, want %v", git.calls, firstCalls)
		}
	})

	t.Run("temporary cache purges its own directory", func(t *testing.T) {
		c, _, _ := newTestCache(t)
		if _, _, err := c.CloneRepository(ctx, anyhow); err != nil {
			t.Fatalf("CloneRepository() error = %v", err)
		}

		removed, err := c.Purge(ctx)
		if err != nil || !removed {
			t.Fatalf("Purge() = %v, %v", removed, err)
		}
		stats, err := c.Stats()
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.Entries != 0 || stats.Repositories != 0 {
			t.Errorf("Stats() after purge = %+v", stats)
		}
	})
}

func TestLock(t *testing.T) {
	ctx := context.Background()

	t.Run("held lock blocks until context expires", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "cache")
		c, git := newPersistentCache(t, root)
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatal(err)
		}

		other := flock.New(filepath.Join(root, FormatVersion+".lock"))
		if err := other.Lock(); err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		defer other.Unlock()

		ctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()

		_, _, err := c.CloneRepository(ctx, anyhow)
		if errors.GetCode(err) != errors.CodeUnavailable {
			t.Fatalf("CloneRepository() error = %v, want code %v", err, errors.CodeUnavailable)
		}
		if len(git.calls) != 0 {
			t.Errorf("git ran without the lock: %v", git.calls)
		}
	})

	t.Run("released after each operation", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "cache")
		c1, _ := newPersistentCache(t, root)
		c2, _ := newPersistentCache(t, root)

		if _, _, err := c1.CloneRepository(ctx, anyhow); err != nil {
			t.Fatalf("CloneRepository() error = %v", err)
		}
		if _, _, err := c2.CloneRepository(ctx, anyhow); err != nil {
			t.Fatalf("CloneRepository() error = %v", err)
		}
		if _, err := c1.Purge(ctx); err != nil {
			t.Fatalf("Purge() error = %v", err)
		}
	})

	t.Run("unwritable root is a hard error", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions are not enforced for root")
		}
		parent := t.TempDir()
		if err := os.Chmod(parent, 0o555); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chmod(parent, 0o755) })

		c, _ := newPersistentCache(t, filepath.Join(parent, "cache"))
		_, _, err := c.CloneRepository(ctx, anyhow)
		if errors.GetCode(err) != errors.CodeUnavailable {
			t.Errorf("CloneRepository() error = %v, want code %v", err, errors.CodeUnavailable)
		}
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	for _, repo := range []string{"https://github.com/a/one", "https://github.com/a/two"} {
		pkg := anyhow
		pkg.Name = filepath.Base(repo)
		pkg.Repository = repo
		if _, _, err := c.CloneRepository(ctx, pkg); err != nil {
			t.Fatalf("CloneRepository() error = %v", err)
		}
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Entries != 2 || stats.Repositories != 2 || stats.Versions != 0 {
		t.Errorf("Stats() = %+v, want 2 entries and 2 repositories", stats)
	}
	if !stats.Temporary || stats.RefreshAge != DefaultRefreshAge {
		t.Errorf("Stats() = %+v", stats)
	}
}
