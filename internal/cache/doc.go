// Package cache implements the on-disk cache of cloned repositories and
// registry version lists.
//
// The cache lives under a format-versioned directory:
//
//	<root>/v2/
//	  entries/<package-name>              JSON {named_url, cloned_url}
//	  repositories/<digest(url)>/         shallow, branchless git clone
//	  timestamps/<digest(url)>            seconds since the Unix epoch
//	  versions/<package-name>             JSON array of published versions
//	  versions_timestamps/<package-name>  seconds since the Unix epoch
//
// Bumping the format tag is the migration strategy; older layouts are never
// read.
//
// A package's entry is current if a URL associated with the package was
// cloned or fetched successfully no more than the refresh age ago. Stale
// entries are refreshed by fetching the clone's current branch, or by cloning
// afresh when no clone exists. If the upstream default branch was renamed,
// the entry is purged and the same URL is cloned again.
//
// In persistent mode every clone, refresh and purge runs while holding an
// advisory file lock next to the cache directory, so separate processes that
// share a cache serialize their mutations. The lock is cooperative: it does
// not stop processes that ignore it. Temporary mode uses a private directory
// and takes no lock.
//
// Disk reads that fail are cache misses. Disk writes that fail are logged and
// otherwise ignored, leaving the in-memory state usable for the rest of the
// process.
//
// Basic usage:
//
//	c, err := cache.New(cache.Config{MaxAge: 365})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	url, dir, err := c.CloneRepository(ctx, pkg)
//
// Git operations shell out to the git binary and therefore require the cache
// filesystem to be the host filesystem rooted at "/", which is the default.
package cache
