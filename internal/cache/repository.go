package cache

import (
	"context"

	"github.com/jmgilman/go/errors"

	"github.com/jmgilman/go/unmaintained/internal/packages"
)

// CloneRepository returns the URL a package's repository was cloned from and
// the directory holding the clone.
//
// If the package's entry is current, the cached clone is returned without
// running git. Otherwise each candidate URL is tried in turn, starting with
// the previously cloned URL when there is one: an existing clone is fetched,
// a missing one is cloned. A fetch that fails because the upstream branch
// disappeared purges the entry and clones the same URL again.
//
// Returns ErrUnnamed if the package declares no repository, and a *CloneError
// (wrapped) if every candidate fails.
//
// Example:
//
//	url, dir, err := c.CloneRepository(ctx, packages.Package{
//	    Name:       "anyhow",
//	    Repository: "https://github.com/dtolnay/anyhow",
//	})
func (c *Cache) CloneRepository(ctx context.Context, pkg packages.Package) (string, string, error) {
	if err := packages.ValidateName(pkg.Name); err != nil {
		return "", "", err
	}

	urls := packages.URLs(pkg)
	if len(urls) == 0 {
		return "", "", ErrUnnamed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Looking up the entry and acting on it form one critical section so a
	// concurrent process cannot refresh the entry in between.
	unlock, err := c.acquireLock(ctx)
	if err != nil {
		return "", "", err
	}
	defer unlock()

	candidates := urls
	if entry, ok := c.entry(pkg); ok {
		dir := c.RepositoryDir(entry.ClonedURL)
		if c.repositoryIsCurrent(entry.ClonedURL) && c.cloneExists(dir) {
			return entry.ClonedURL, dir, nil
		}
		candidates = uniqueStrings(append([]string{entry.ClonedURL}, urls...))
	}

	url, dir, err := c.cloneUncached(ctx, pkg, candidates)
	if err != nil {
		return "", "", err
	}

	c.setEntry(pkg.Name, Entry{NamedURL: pkg.Repository, ClonedURL: url})
	c.setRepositoryTimestamp(url, c.now())

	return url, dir, nil
}

func (c *Cache) cloneUncached(ctx context.Context, pkg packages.Package, candidates []string) (string, string, error) {
	var failures []string
	for _, url := range candidates {
		dir := c.RepositoryDir(url)

		err := c.refresh(ctx, pkg.Name, url, dir)
		if err == nil {
			return url, dir, nil
		}
		if errors.GetCode(err) == errors.CodeInternal {
			return "", "", err
		}

		c.logger.Debug("candidate failed", "package", pkg.Name, "url", url, "error", err)
		failures = append(failures, failureText(err))

		if ctx.Err() != nil {
			break
		}
	}

	cloneErr := &CloneError{
		Package:  pkg.Name,
		URLs:     candidates,
		Failures: uniqueStrings(failures),
	}
	return "", "", errors.Wrapf(cloneErr, errors.CodeExecutionFailed, "failed to clone repository of %s", pkg.Name)
}

// refresh brings the clone of url in dir up to date, cloning it if absent.
func (c *Cache) refresh(ctx context.Context, name, url, dir string) error {
	exists, err := c.exists(dir)
	if err != nil {
		return errors.Wrapf(err, errors.CodeExecutionFailed, "failed to determine whether %s exists", dir)
	}

	if !exists {
		c.logger.Debug("cloning", "url", url, "dir", dir)
		return c.git.Clone(ctx, url, dir)
	}

	c.logger.Debug("fetching", "url", url, "dir", dir)
	err = c.git.Fetch(ctx, dir)
	if err == nil || !isRemoteBranchNotFound(err) {
		return err
	}

	c.logger.Info("upstream branch no longer exists; recloning", "package", name, "url", url)

	if err := c.purgeEntry(name, url); err != nil {
		return err
	}
	exists, err = c.exists(dir)
	if err != nil || exists {
		err := errors.New(errors.CodeInternal, "repository directory still exists after purge")
		return errors.WithContext(err, "dir", dir)
	}

	return c.git.Clone(ctx, url, dir)
}

// cloneExists reports whether dir is present. A current timestamp without its
// clone directory counts as stale.
func (c *Cache) cloneExists(dir string) bool {
	exists, err := c.exists(dir)
	if err != nil {
		c.logger.Debug("failed to stat clone", "dir", dir, "error", err)
		return false
	}
	if !exists {
		c.logger.Debug("clone missing for current entry", "dir", dir)
	}
	return exists
}
