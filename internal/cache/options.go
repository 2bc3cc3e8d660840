package cache

import (
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/jmgilman/go/unmaintained/internal/registry"
)

// WithFilesystem sets the billy filesystem used for all cache I/O.
// If not provided, defaults to osfs.New("/").
//
// Filesystems other than the host filesystem are useful for exercising the
// stores in tests but cannot back real git operations.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithGitOperations replaces the git subprocess runner.
func WithGitOperations(ops GitOperations) Option {
	return func(c *Cache) {
		c.git = ops
	}
}

// WithVersionsSource sets where FetchVersions gets version lists from on a
// cache miss.
func WithVersionsSource(source registry.Source) Option {
	return func(c *Cache) {
		c.registry = source
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source used for timestamps and freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}
