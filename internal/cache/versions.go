package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/unmaintained/internal/packages"
	"github.com/jmgilman/go/unmaintained/internal/registry"
)

// FetchVersions returns the published versions of a package, from the cache
// if they were fetched within the refresh age, otherwise from the versions
// source.
//
// A fetched list is usable for the rest of the process even if it could not
// be written to disk. The timestamp is only written after the list itself, so
// a failed list write never leaves a current timestamp for stale data.
func (c *Cache) FetchVersions(ctx context.Context, name string) ([]registry.Version, error) {
	if err := packages.ValidateName(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if versions, ok := c.cachedVersions(name); ok && c.versionsAreCurrent(name) {
		return versions, nil
	}

	if c.registry == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "no versions source configured")
	}

	versions, err := c.registry.Versions(ctx, name)
	if err != nil {
		return nil, err
	}

	c.setVersions(name, versions, c.now())

	return versions, nil
}

func (c *Cache) versionsPath(name string) string {
	return filepath.Join(c.versionsDir(), name)
}

func (c *Cache) versionsTimestampPath(name string) string {
	return filepath.Join(c.versionsTimestampsDir(), name)
}

func (c *Cache) cachedVersions(name string) ([]registry.Version, bool) {
	if versions, ok := c.versions[name]; ok {
		return versions, true
	}

	data, err := c.readFile(c.versionsPath(name))
	if err != nil {
		c.logger.Debug("versions miss", "package", name, "error", err)
		return nil, false
	}

	var versions []registry.Version
	if err := json.Unmarshal(data, &versions); err != nil {
		c.logger.Debug("versions miss", "package", name, "error", fmt.Errorf("failed to parse versions: %w", err))
		return nil, false
	}

	c.versions[name] = versions
	return versions, true
}

func (c *Cache) versionsAreCurrent(name string) bool {
	ts, ok := c.versionsTimestamps[name]
	if !ok {
		var err error
		ts, err = c.readTimestamp(c.versionsTimestampPath(name))
		if err != nil {
			c.logger.Debug("versions timestamp miss", "package", name, "error", err)
			return false
		}
		c.versionsTimestamps[name] = ts
	}
	return c.isCurrent(ts, c.refreshAge)
}

func (c *Cache) setVersions(name string, versions []registry.Version, when time.Time) {
	c.versions[name] = versions
	c.versionsTimestamps[name] = when

	path := c.versionsPath(name)
	data, err := json.MarshalIndent(versions, "", "  ")
	if err == nil {
		err = c.writeFile(path, data)
	}
	if err != nil {
		c.writeFailed("versions", path, err)
		return
	}

	tsPath := c.versionsTimestampPath(name)
	if err := c.writeTimestamp(tsPath, when); err != nil {
		c.writeFailed("versions timestamp", tsPath, err)
	}
}
