package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofrs/flock"
	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"

	"github.com/jmgilman/go/unmaintained/internal/registry"
)

// DefaultRoot returns the persistent cache root: $CARGO_UNMAINTAINED_CACHE if
// set, otherwise cargo-unmaintained under the platform cache directory.
func DefaultRoot() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir
	}
	if xdg.CacheHome == "" {
		return ""
	}
	return filepath.Join(xdg.CacheHome, "cargo-unmaintained")
}

// New creates a cache.
//
// In temporary mode a fresh directory is created immediately. In persistent
// mode nothing is created until the first write; the store directories are
// created on demand. If no persistent root can be determined for the current
// platform, New falls back to temporary mode.
//
// Example:
//
//	c, err := cache.New(cache.Config{MaxAge: 365},
//	    cache.WithLogger(logger),
//	    cache.WithVersionsSource(registry.NewClient()))
func New(cfg Config, opts ...Option) (*Cache, error) {
	c := &Cache{
		fs:                   osfs.New("/"),
		logger:               slog.New(slog.DiscardHandler),
		now:                  time.Now,
		refreshAge:           min(DefaultRefreshAge, cfg.MaxAge),
		entries:              make(map[string]Entry),
		repositoryTimestamps: make(map[string]time.Time),
		versions:             make(map[string][]registry.Version),
		versionsTimestamps:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.git == nil {
		c.git = NewGitOperations(exec.New())
	}

	root := cfg.Root
	if !cfg.Temporary && root == "" {
		root = DefaultRoot()
		if root == "" {
			c.logger.Debug("no persistent cache directory available; using a temporary cache")
		}
	}

	if cfg.Temporary || root == "" {
		dir, err := util.TempDir(c.fs, "", "cargo-unmaintained-")
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to create temporary directory")
		}
		c.temporary = true
		c.root = dir
		c.baseDir = dir
		return c, nil
	}

	c.root = root
	c.baseDir = filepath.Join(root, FormatVersion)
	c.lock = flock.New(filepath.Join(root, FormatVersion+".lock"))

	c.logger.Debug("using persistent cache", "dir", c.baseDir, "refresh_age_days", c.refreshAge)

	return c, nil
}

// Close releases the cache. A temporary cache's directory is removed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lock != nil {
		if err := c.lock.Close(); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to release cache lock")
		}
	}

	if !c.temporary {
		return nil
	}
	if err := c.removeAll(c.baseDir); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "failed to remove temporary cache %s", c.baseDir)
	}
	return nil
}

// BaseDir returns the directory holding the cache stores.
func (c *Cache) BaseDir() string {
	return c.baseDir
}

// Temporary reports whether the cache is discarded on Close.
func (c *Cache) Temporary() bool {
	return c.temporary
}

// RefreshAge returns the effective refresh age in days.
func (c *Cache) RefreshAge() uint64 {
	return c.refreshAge
}

// Stats returns statistics about what the cache holds on disk.
func (c *Cache) Stats() (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &Stats{
		BaseDir:    c.baseDir,
		Temporary:  c.temporary,
		RefreshAge: c.refreshAge,
	}

	counts := []struct {
		dir   string
		count *int
	}{
		{entriesDir, &stats.Entries},
		{repositoriesDir, &stats.Repositories},
		{versionsDir, &stats.Versions},
	}
	for _, item := range counts {
		infos, err := c.fs.ReadDir(filepath.Join(c.baseDir, item.dir))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, errors.CodeInternal, "failed to read %s directory", item.dir)
		}
		for _, info := range infos {
			if isTempName(info.Name()) {
				continue
			}
			*item.count++
		}
	}

	return stats, nil
}

func (c *Cache) entriesDir() string {
	return filepath.Join(c.baseDir, entriesDir)
}

func (c *Cache) repositoriesDir() string {
	return filepath.Join(c.baseDir, repositoriesDir)
}

func (c *Cache) repositoryTimestampsDir() string {
	return filepath.Join(c.baseDir, repositoryTimestampDir)
}

func (c *Cache) versionsDir() string {
	return filepath.Join(c.baseDir, versionsDir)
}

func (c *Cache) versionsTimestampsDir() string {
	return filepath.Join(c.baseDir, versionsTimestampDir)
}

// RepositoryDir returns the directory a URL is cloned into.
func (c *Cache) RepositoryDir(url string) string {
	return filepath.Join(c.repositoriesDir(), Digest(url))
}
