package check

import (
	"io"
	"path"
	"time"

	"github.com/BurntSushi/toml"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/jmgilman/go/errors"
)

const manifestName = "Cargo.toml"

type manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

func headCommit(dir string) (*object.Commit, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeNotFound, "failed to open repository"),
			"path", dir)
	}

	ref, err := repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNotFound, "failed to resolve HEAD")
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeNotFound, "failed to read commit %s", ref.Hash())
	}
	return commit, nil
}

// IsMember reports whether any Cargo.toml in the HEAD tree of the clone at
// dir declares a package named name. Manifests that fail to parse are
// skipped.
func IsMember(dir, name string) (bool, error) {
	commit, err := headCommit(dir)
	if err != nil {
		return false, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeInternal, "failed to read HEAD tree")
	}

	found := false
	err = tree.Files().ForEach(func(f *object.File) error {
		if path.Base(f.Name) != manifestName {
			return nil
		}

		r, err := f.Reader()
		if err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "failed to read %s", f.Name)
		}
		defer func() { _ = r.Close() }()

		data, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "failed to read %s", f.Name)
		}

		var m manifest
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil
		}
		if m.Package.Name == name {
			found = true
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return false, err
	}

	return found, nil
}

// LatestCommitTime returns the committer time of HEAD in the clone at dir.
func LatestCommitTime(dir string) (time.Time, error) {
	commit, err := headCommit(dir)
	if err != nil {
		return time.Time{}, err
	}
	return commit.Committer.When, nil
}
