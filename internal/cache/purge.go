package cache

import (
	"context"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/unmaintained/internal/packages"
	"github.com/jmgilman/go/unmaintained/internal/registry"
)

// PurgeEntry removes everything cached for a package: its versions, its
// entry, and the clone the entry points at together with the clone's
// timestamp. Missing pieces are skipped.
func (c *Cache) PurgeEntry(ctx context.Context, pkg packages.Package) error {
	if err := packages.ValidateName(pkg.Name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	url := ""
	if entry, ok := c.storedEntry(pkg.Name); ok {
		url = entry.ClonedURL
	}

	return c.purgeEntry(pkg.Name, url)
}

type removal struct {
	what string
	path string
}

// purgeEntry removes a package's cached state in a fixed order: versions,
// versions timestamp, repository timestamp, entry, and the clone last. An
// interrupted purge leaves at worst metadata-free files behind, which later
// reads treat as missing or stale.
//
// An empty url skips the repository timestamp and directory.
func (c *Cache) purgeEntry(name, url string) error {
	delete(c.versions, name)
	delete(c.versionsTimestamps, name)
	delete(c.entries, name)

	steps := []removal{
		{"versions", c.versionsPath(name)},
		{"versions timestamp", c.versionsTimestampPath(name)},
	}
	if url != "" {
		delete(c.repositoryTimestamps, Digest(url))
		steps = append(steps, removal{"repository timestamp", c.repositoryTimestampPath(Digest(url))})
	}
	steps = append(steps, removal{"entry", c.entryPath(name)})

	for _, step := range steps {
		if err := c.removeFile(step.path); err != nil {
			wrapped := errors.Wrapf(err, errors.CodeInternal, "failed to remove %s", step.what)
			return errors.WithContext(wrapped, "path", step.path)
		}
	}

	if url == "" {
		return nil
	}

	dir := c.RepositoryDir(url)
	if err := c.removeAll(dir); err != nil {
		wrapped := errors.Wrap(err, errors.CodeInternal, "failed to remove repository")
		return errors.WithContext(wrapped, "dir", dir)
	}

	return nil
}

// Purge removes the cache's current-format directory and everything in it,
// and forgets all in-memory records. It reports whether there was anything
// to remove. Other format versions under the same root are left alone.
func (c *Cache) Purge(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.acquireLock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	c.entries = make(map[string]Entry)
	c.repositoryTimestamps = make(map[string]time.Time)
	c.versions = make(map[string][]registry.Version)
	c.versionsTimestamps = make(map[string]time.Time)

	exists, err := c.exists(c.baseDir)
	if err != nil {
		return false, errors.Wrapf(err, errors.CodeInternal, "failed to stat %s", c.baseDir)
	}
	if !exists {
		return false, nil
	}

	if err := c.removeAll(c.baseDir); err != nil {
		wrapped := errors.Wrap(err, errors.CodeInternal, "failed to purge cache")
		return false, errors.WithContext(wrapped, "dir", c.baseDir)
	}

	c.logger.Info("purged cache", "dir", c.baseDir)
	return true, nil
}

// Purge removes the persistent cache rooted at root (DefaultRoot() if empty).
// It is a no-op if the cache does not exist.
func Purge(ctx context.Context, root string, opts ...Option) (bool, error) {
	c, err := New(Config{Root: root}, opts...)
	if err != nil {
		return false, err
	}
	defer c.Close()

	if c.temporary {
		return false, errors.New(errors.CodeInvalidConfig, "no persistent cache directory available")
	}

	return c.Purge(ctx)
}
