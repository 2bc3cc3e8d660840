package upstream

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/go/errors"
)

const (
	// EnvTokenPath names a file holding the token.
	EnvTokenPath = "GITHUB_TOKEN_PATH"
	// EnvToken holds the token itself.
	EnvToken = "GITHUB_TOKEN"

	tokenFileMode os.FileMode = 0o600
)

// DefaultTokenPath returns where SaveToken writes the token.
func DefaultTokenPath() string {
	return filepath.Join(xdg.ConfigHome, "cargo-unmaintained", "token.txt")
}

// TokenStore loads and saves a GitHub personal access token.
type TokenStore struct {
	fs     billy.Filesystem
	path   string
	logger *slog.Logger
	getenv func(string) (string, bool)
}

// NewTokenStore creates a TokenStore that keeps its token file at path on fs.
func NewTokenStore(fs billy.Filesystem, path string, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TokenStore{fs: fs, path: path, logger: logger, getenv: os.LookupEnv}
}

// Path returns the token file path.
func (s *TokenStore) Path() string {
	return s.path
}

// Load returns the token, looking in order at the file named by
// GITHUB_TOKEN_PATH, the GITHUB_TOKEN variable, and the token file. It
// returns "" without error when no token is configured.
func (s *TokenStore) Load() (string, error) {
	var raw string
	switch {
	case s.env(EnvTokenPath) != "":
		path := s.env(EnvTokenPath)
		data, err := util.ReadFile(s.fs, path)
		if err != nil {
			return "", errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidConfig, "failed to read token file"),
				"path", path)
		}
		raw = string(data)
	case s.env(EnvToken) != "":
		s.logger.Warn("found a token in " + EnvToken + "; consider setting " + EnvTokenPath +
			" to the path of a file containing the token")
		raw = s.env(EnvToken)
	default:
		data, err := util.ReadFile(s.fs, s.path)
		if os.IsNotExist(err) {
			s.logger.Warn("no GitHub token found; archival statuses will not be checked",
				"path", s.path)
			return "", nil
		}
		if err != nil {
			return "", errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidConfig, "failed to read token file"),
				"path", s.path)
		}
		raw = string(data)
	}

	return strings.TrimRight(raw, " \t\r\n"), nil
}

// Save reads one line from r and writes it to the token file with mode 0600.
func (s *TokenStore) Save(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to read token")
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return errors.New(errors.CodeInvalidInput, "token cannot be empty")
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create config directory"),
			"path", filepath.Dir(s.path))
	}

	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, tokenFileMode)
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to open token file"),
			"path", s.path)
	}
	if _, err := f.Write([]byte(token)); err != nil {
		_ = f.Close()
		return errors.Wrap(err, errors.CodeInternal, "failed to write token file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close token file")
	}

	if chmod, ok := s.fs.(billy.Change); ok {
		if err := chmod.Chmod(s.path, tokenFileMode); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to set token file permissions")
		}
	}

	return nil
}

func (s *TokenStore) env(key string) string {
	v, _ := s.getenv(key)
	return v
}
