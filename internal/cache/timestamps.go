package cache

import (
	"path/filepath"
	"time"
)

func (c *Cache) repositoryTimestampPath(digest string) string {
	return filepath.Join(c.repositoryTimestampsDir(), digest)
}

// repositoryTimestamp returns when the URL's clone was last cloned or fetched.
func (c *Cache) repositoryTimestamp(url string) (time.Time, bool) {
	digest := Digest(url)
	if ts, ok := c.repositoryTimestamps[digest]; ok {
		return ts, true
	}

	path := c.repositoryTimestampPath(digest)
	ts, err := c.readTimestamp(path)
	if err != nil {
		c.logger.Debug("repository timestamp miss", "url", url, "error", err)
		return time.Time{}, false
	}

	c.repositoryTimestamps[digest] = ts
	return ts, true
}

// repositoryIsCurrent reports whether the URL's clone was refreshed within the
// refresh age. Any read failure means not current.
func (c *Cache) repositoryIsCurrent(url string) bool {
	ts, ok := c.repositoryTimestamp(url)
	if !ok {
		return false
	}
	return c.isCurrent(ts, c.refreshAge)
}

func (c *Cache) setRepositoryTimestamp(url string, when time.Time) {
	digest := Digest(url)
	path := c.repositoryTimestampPath(digest)
	if err := c.writeTimestamp(path, when); err != nil {
		c.writeFailed("repository timestamp", path, err)
	}
	c.repositoryTimestamps[digest] = when
}
