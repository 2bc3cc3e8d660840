package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/jmgilman/go/unmaintained/internal/packages"
)

func (c *Cache) entryPath(name string) string {
	return filepath.Join(c.entriesDir(), name)
}

// entry returns the package's entry if one exists and was recorded for the
// package's current repository URL. An entry recorded under a different
// declared URL is a miss.
func (c *Cache) entry(pkg packages.Package) (Entry, bool) {
	entry, ok := c.entries[pkg.Name]
	if !ok {
		var err error
		entry, err = c.readEntry(pkg.Name)
		if err != nil {
			c.logger.Debug("entry miss", "package", pkg.Name, "error", err)
			return Entry{}, false
		}
	}

	if entry.NamedURL != pkg.Repository {
		c.logger.Debug("entry recorded for a different repository",
			"package", pkg.Name, "named_url", entry.NamedURL, "repository", pkg.Repository)
		return Entry{}, false
	}

	c.entries[pkg.Name] = entry
	return entry, true
}

// storedEntry returns whatever entry is recorded for name, regardless of the
// URL it was recorded under.
func (c *Cache) storedEntry(name string) (Entry, bool) {
	if entry, ok := c.entries[name]; ok {
		return entry, true
	}
	entry, err := c.readEntry(name)
	if err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) readEntry(name string) (Entry, error) {
	data, err := c.readFile(c.entryPath(name))
	if err != nil {
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to parse entry: %w", err)
	}
	return entry, nil
}

func (c *Cache) setEntry(name string, entry Entry) {
	path := c.entryPath(name)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err == nil {
		err = c.writeFile(path, data)
	}
	if err != nil {
		c.writeFailed("entry", path, err)
	}
	c.entries[name] = entry
}
