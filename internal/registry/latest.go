package registry

import (
	"strings"

	"deps.dev/util/semver"
	"github.com/jmgilman/go/errors"
)

// Latest returns the highest version that is neither yanked nor a
// prerelease. Versions that do not parse as Cargo semver are ignored.
func Latest(versions []Version) (Version, error) {
	var (
		best       Version
		bestParsed *semver.Version
	)

	for _, v := range versions {
		if v.Yanked {
			continue
		}
		if isPrerelease(v.Num) {
			continue
		}
		parsed, err := semver.Cargo.Parse(v.Num)
		if err != nil {
			continue
		}
		if bestParsed == nil || parsed.Compare(bestParsed) > 0 {
			best, bestParsed = v, parsed
		}
	}

	if bestParsed == nil {
		return Version{}, errors.New(errors.CodeNotFound, "no normal version found")
	}

	return best, nil
}

// IsLatest reports whether version equals the latest normal version.
func IsLatest(version string, versions []Version) (bool, error) {
	latest, err := Latest(versions)
	if err != nil {
		return false, err
	}

	current, err := semver.Cargo.Parse(version)
	if err != nil {
		return false, errors.Wrapf(err, errors.CodeInvalidInput, "invalid version %q", version)
	}
	latestParsed, err := semver.Cargo.Parse(latest.Num)
	if err != nil {
		return false, errors.Wrapf(err, errors.CodeInternal, "invalid version %q", latest.Num)
	}

	return current.Compare(latestParsed) >= 0, nil
}

// isPrerelease reports whether a version carries a prerelease suffix. Build
// metadata may itself contain hyphens, so it is stripped first.
func isPrerelease(num string) bool {
	core, _, _ := strings.Cut(num, "+")
	return strings.Contains(core, "-")
}
