// Package packages describes the Rust packages whose upstream repositories are
// inspected, along with the candidate repository URLs derived from them.
package packages

import (
	"regexp"
	"strings"

	"github.com/jmgilman/go/errors"
)

// shortPattern matches the https://host/owner/repo prefix of a repository URL.
var shortPattern = regexp.MustCompile(`^https://[^/]*/[^/]*/[^/]*`)

// Package identifies one published version of a package.
type Package struct {
	// Name is the package name as published to the registry.
	Name string

	// Version is the published version. Two packages with the same name but
	// different versions may declare different repositories.
	Version string

	// Repository is the declared repository URL. Empty when the package does
	// not declare one.
	Repository string
}

// String returns name@version, or just the name when the version is unknown.
func (p Package) String() string {
	if p.Version == "" {
		return p.Name
	}
	return p.Name + "@" + p.Version
}

// URLs returns the candidate repository URLs for a package in the order they
// should be tried: the declared URL with any trailing slash removed, followed
// by its shortened https://host/owner/repo form when that differs.
//
// A package without a declared repository has no candidates.
func URLs(p Package) []string {
	if p.Repository == "" {
		return nil
	}

	declared := strings.TrimSuffix(p.Repository, "/")
	urls := []string{declared}

	if short := Shorten(declared); short != "" && short != declared {
		urls = append(urls, short)
	}

	return urls
}

// Shorten truncates an https URL to its https://host/owner/repo prefix.
// It returns an empty string if the URL does not have that shape.
func Shorten(url string) string {
	return shortPattern.FindString(url)
}

// Parse parses a package from NAME=URL or NAME@VERSION=URL form. The URL part
// may be empty, which yields a package without a declared repository.
func Parse(s string) (Package, error) {
	ident, repository, _ := strings.Cut(s, "=")
	name, version, _ := strings.Cut(ident, "@")

	if err := ValidateName(name); err != nil {
		return Package{}, errors.WithContext(err, "package", s)
	}

	return Package{
		Name:       name,
		Version:    version,
		Repository: repository,
	}, nil
}

// ValidateName rejects names that are empty or could escape the directory
// they are stored under: path separators, "." and "..".
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New(errors.CodeInvalidInput, "invalid package name: missing name")
	case strings.ContainsAny(name, `/\`), name == ".", strings.Contains(name, ".."):
		err := errors.Newf(errors.CodeInvalidInput, "invalid package name %q", name)
		return errors.WithContext(err, "name", name)
	}
	return nil
}
