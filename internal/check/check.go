// Package check decides whether packages are unmaintained.
//
// A package is unmaintained when its repository is archived, missing,
// uncloneable, or does not contain the package, or when the repository's
// latest commit is at least the maximum age old. Repository clones and
// registry version lists come from the on-disk cache.
package check

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/unmaintained/internal/cache"
	"github.com/jmgilman/go/unmaintained/internal/packages"
	"github.com/jmgilman/go/unmaintained/internal/registry"
	"github.com/jmgilman/go/unmaintained/internal/upstream"
)

// DefaultMaxAge is the default maximum repository age, in days.
const DefaultMaxAge uint64 = 365

// Cloner provides shallow clones of package repositories.
type Cloner interface {
	CloneRepository(ctx context.Context, pkg packages.Package) (url, dir string, err error)
}

// VersionsFetcher provides the published versions of a package.
type VersionsFetcher interface {
	FetchVersions(ctx context.Context, name string) ([]registry.Version, error)
}

// UpstreamChecker reports whether repositories exist or are archived.
type UpstreamChecker interface {
	UsesAPI(url string) bool
	Check(ctx context.Context, url string) (upstream.State, error)
}

// Result is the verdict for one package.
type Result struct {
	Name                  string `json:"name"`
	Version               string `json:"version,omitempty"`
	Status                Status `json:"repo_status"`
	NewerVersionAvailable bool   `json:"newer_version_available"`
	Unmaintained          bool   `json:"-"`
}

// Checker classifies packages.
type Checker struct {
	repos    Cloner
	versions VersionsFetcher
	upstream UpstreamChecker
	maxAge   uint64
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithVersions enables the newer-version check.
func WithVersions(versions VersionsFetcher) Option {
	return func(c *Checker) {
		c.versions = versions
	}
}

// WithUpstream enables existence and archival checks.
func WithUpstream(u UpstreamChecker) Option {
	return func(c *Checker) {
		c.upstream = u
	}
}

// WithMaxAge sets the maximum repository age in days.
func WithMaxAge(days uint64) Option {
	return func(c *Checker) {
		c.maxAge = days
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker that obtains clones from repos.
func New(repos Cloner, opts ...Option) *Checker {
	c := &Checker{
		repos:  repos,
		maxAge: DefaultMaxAge,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check classifies pkg. Errors are returned only for conditions that affect
// every package, such as a canceled context or an unavailable cache.
func (c *Checker) Check(ctx context.Context, pkg packages.Package) (*Result, error) {
	status, err := c.RepoStatus(ctx, pkg)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Name:         pkg.Name,
		Version:      pkg.Version,
		Status:       status,
		Unmaintained: status.Failure() || exceedsMaxAge(status.Age, c.maxAge),
	}

	if result.Unmaintained && c.versions != nil && pkg.Version != "" {
		newer, err := c.NewerVersionAvailable(ctx, pkg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("failed to determine latest version", "package", pkg.Name, "error", err)
		}
		result.NewerVersionAvailable = newer
	}

	return result, nil
}

// RepoStatus inspects pkg's repository.
func (c *Checker) RepoStatus(ctx context.Context, pkg packages.Package) (Status, error) {
	if pkg.Repository == "" {
		return Status{Kind: KindUnnamed}, nil
	}

	if c.upstream != nil && c.upstream.UsesAPI(pkg.Repository) {
		status, err := c.generalStatus(ctx, pkg.Repository)
		if err != nil || status.Failure() {
			return status, err
		}
	}

	url, dir, err := c.repos.CloneRepository(ctx, pkg)
	if err != nil {
		return c.cloneFailed(ctx, pkg, err)
	}

	member, err := IsMember(dir, pkg.Name)
	if err != nil {
		return Status{}, errors.WithContext(err, "package", pkg.Name)
	}
	if !member {
		return Status{Kind: KindUnassociated, URL: url}, nil
	}

	when, err := LatestCommitTime(dir)
	if err != nil {
		return Status{}, errors.WithContext(err, "package", pkg.Name)
	}

	age := c.now().Sub(when)
	if age < 0 {
		age = 0
	}
	return Status{Kind: KindSuccess, URL: url, Age: age}, nil
}

func (c *Checker) cloneFailed(ctx context.Context, pkg packages.Package, err error) (Status, error) {
	switch {
	case errors.Is(err, cache.ErrUnnamed):
		return Status{Kind: KindUnnamed}, nil
	case ctx.Err() != nil:
		return Status{}, ctx.Err()
	case errors.GetCode(err) == errors.CodeUnavailable, errors.GetCode(err) == errors.CodeInternal:
		return Status{}, err
	}

	c.logger.Warn("failed to clone repository", "package", pkg.Name, "url", pkg.Repository, "error", err)

	if c.upstream != nil {
		status, serr := c.generalStatus(ctx, pkg.Repository)
		if serr != nil {
			return Status{}, serr
		}
		if status.Failure() {
			return status, nil
		}
	}

	return Status{Kind: KindUncloneable, URL: pkg.Repository}, nil
}

// generalStatus converts an upstream lookup into a Status. Inconclusive
// lookups count as success so that they never condemn a package by
// themselves.
func (c *Checker) generalStatus(ctx context.Context, url string) (Status, error) {
	state, err := c.upstream.Check(ctx, url)
	if err != nil {
		return Status{}, err
	}

	switch state {
	case upstream.StateNonexistent:
		return Status{Kind: KindNonexistent, URL: url}, nil
	case upstream.StateArchived:
		return Status{Kind: KindArchived, URL: url}, nil
	default:
		return Status{Kind: KindSuccess, URL: url}, nil
	}
}

// NewerVersionAvailable reports whether the registry has a normal version
// newer than pkg.Version.
func (c *Checker) NewerVersionAvailable(ctx context.Context, pkg packages.Package) (bool, error) {
	if c.versions == nil {
		return false, errors.New(errors.CodeInvalidConfig, "no versions source configured")
	}

	versions, err := c.versions.FetchVersions(ctx, pkg.Name)
	if err != nil {
		return false, err
	}

	latest, err := registry.IsLatest(pkg.Version, versions)
	if err != nil {
		return false, err
	}
	return !latest, nil
}

const secondsPerDay = 24 * 60 * 60

// exceedsMaxAge reports whether age is at least maxAge days, comparing whole
// seconds. A threshold too large to express in seconds is never reached.
func exceedsMaxAge(age time.Duration, maxAge uint64) bool {
	if maxAge > math.MaxUint64/secondsPerDay {
		return false
	}
	if age < 0 {
		age = 0
	}
	return uint64(age/time.Second) >= maxAge*secondsPerDay
}
