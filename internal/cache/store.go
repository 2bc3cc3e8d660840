package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
)

// tmpSuffix marks in-progress writes. Each writer gets its own temporary file
// named <base>.tmp-<random> next to the target.
const tmpSuffix = ".tmp"

// writeFile writes data to path atomically, creating the parent directory if
// needed. Readers never observe a partially written file, and concurrent
// writers of the same path never share a temporary file.
func (c *Cache) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := util.TempFile(c.fs, dir, filepath.Base(path)+tmpSuffix+"-")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := c.fs.Rename(tmpPath, path); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// isTempName reports whether name is an in-progress write.
func isTempName(name string) bool {
	return strings.Contains(name, tmpSuffix)
}

func (c *Cache) readFile(path string) ([]byte, error) {
	return util.ReadFile(c.fs, path)
}

// writeTimestamp stores when as seconds since the Unix epoch.
func (c *Cache) writeTimestamp(path string, when time.Time) error {
	secs := when.Unix()
	if secs < 0 {
		return fmt.Errorf("timestamp %v precedes the Unix epoch", when)
	}
	return c.writeFile(path, []byte(strconv.FormatInt(secs, 10)))
}

func (c *Cache) readTimestamp(path string) (time.Time, error) {
	data, err := c.readFile(path)
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 63)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp in %s: %w", path, err)
	}
	return time.Unix(int64(secs), 0), nil
}

// isCurrent reports whether less than days have passed since ts. A timestamp
// in the future is never current.
func (c *Cache) isCurrent(ts time.Time, days uint64) bool {
	age := c.now().Sub(ts)
	if age < 0 {
		return false
	}
	return uint64(age/time.Second) < days*secondsPerDay
}

func (c *Cache) exists(path string) (bool, error) {
	if _, err := c.fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// removeAll removes a path and all its children.
func (c *Cache) removeAll(path string) error {
	info, err := c.fs.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if !info.IsDir() {
		return c.fs.Remove(path)
	}

	entries, err := c.fs.ReadDir(path)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := c.removeAll(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}

	return c.fs.Remove(path)
}

// removeFile removes a single file, ignoring its absence.
func (c *Cache) removeFile(path string) error {
	if err := c.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeFailed logs a failed cache write. The first failure is a warning since
// it usually means nothing will be persisted this run; later ones are debug.
func (c *Cache) writeFailed(what, path string, err error) {
	if c.writeFailureReported {
		c.logger.Debug("failed to write cache "+what, "path", path, "error", err)
		return
	}
	c.writeFailureReported = true
	c.logger.Warn("failed to write cache "+what+"; results will not be persisted", "path", path, "error", err)
}
