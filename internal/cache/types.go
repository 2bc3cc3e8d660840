package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/gofrs/flock"

	"github.com/jmgilman/go/unmaintained/internal/registry"
)

const (
	// FormatVersion names the subdirectory holding the current on-disk layout.
	FormatVersion = "v2"

	// DefaultRefreshAge bounds how many days a clone or version list may go
	// unrefreshed, regardless of the configured maximum age.
	DefaultRefreshAge uint64 = 30

	// EnvCacheDir overrides the persistent cache root when set.
	EnvCacheDir = "CARGO_UNMAINTAINED_CACHE"

	secondsPerDay = 24 * 60 * 60

	entriesDir             = "entries"
	repositoriesDir        = "repositories"
	repositoryTimestampDir = "timestamps"
	versionsDir            = "versions"
	versionsTimestampDir   = "versions_timestamps"
)

// Config selects the backing store and freshness policy of a Cache.
type Config struct {
	// Temporary places the cache in a fresh temporary directory that Close
	// removes.
	Temporary bool

	// MaxAge is the user's maintenance threshold in days. The refresh age is
	// the smaller of this and DefaultRefreshAge.
	MaxAge uint64

	// Root is the persistent cache root. Defaults to DefaultRoot().
	Root string
}

// Entry binds a package's declared repository URL to the URL that was
// actually cloned.
type Entry struct {
	NamedURL  string `json:"named_url"`
	ClonedURL string `json:"cloned_url"`
}

// Cache is the on-disk cache together with in-memory copies of the records
// read or written during this process. The in-memory maps never override the
// disk: a miss in memory falls through to a disk read.
type Cache struct {
	fs         billy.Filesystem
	root       string
	baseDir    string
	temporary  bool
	refreshAge uint64 // days

	git      GitOperations
	registry registry.Source
	logger   *slog.Logger
	now      func() time.Time
	lock     *flock.Flock // nil in temporary mode

	entries              map[string]Entry
	repositoryTimestamps map[string]time.Time
	versions             map[string][]registry.Version
	versionsTimestamps   map[string]time.Time

	writeFailureReported bool

	mu sync.Mutex
}

// Stats summarizes what the cache currently holds on disk.
type Stats struct {
	BaseDir      string
	Temporary    bool
	RefreshAge   uint64
	Entries      int
	Repositories int
	Versions     int
}

// Option configures Cache creation.
type Option func(*Cache)
