package cache

import (
	"context"
	"time"

	"github.com/jmgilman/go/errors"
)

const lockRetryDelay = 100 * time.Millisecond

// acquireLock takes the process-level lock on the persistent cache and
// returns the function that releases it. Temporary caches are never shared
// and take no lock.
//
// The lock is held for one top-level operation at a time; operations never
// nest, so it does not need to be reentrant.
func (c *Cache) acquireLock(ctx context.Context) (func(), error) {
	if c.lock == nil {
		return func() {}, nil
	}

	if err := c.fs.MkdirAll(c.root, 0o755); err != nil {
		wrapped := errors.Wrap(err, errors.CodeUnavailable, "failed to create cache directory")
		return nil, errors.WithContext(wrapped, "path", c.root)
	}

	locked, err := c.lock.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = ctx.Err()
	}
	if err != nil {
		wrapped := errors.Wrap(err, errors.CodeUnavailable, "failed to lock cache")
		return nil, errors.WithContext(wrapped, "path", c.lock.Path())
	}

	return func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("failed to unlock cache", "path", c.lock.Path(), "error", err)
		}
	}, nil
}
