// Package upstream answers whether a package's repository still exists and
// whether it has been archived.
//
// Repositories hosted on GitHub are looked up through the GitHub API when a
// personal access token is available. Everything else gets a plain HTTP GET,
// which can tell existence apart from absence but knows nothing of archival.
package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/google/go-github/v67/github"
	"github.com/jmgilman/go/errors"
)

// State is what a lookup learned about a repository.
type State int

const (
	// StateUnknown means the lookup was inconclusive.
	StateUnknown State = iota
	// StateExists means the repository exists and is not archived.
	StateExists
	// StateNonexistent means the repository does not exist.
	StateNonexistent
	// StateArchived means the repository exists but is archived.
	StateArchived
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateExists:
		return "exists"
	case StateNonexistent:
		return "nonexistent"
	case StateArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Failure reports whether the state alone makes a repository unmaintained.
func (s State) Failure() bool {
	return s == StateNonexistent || s == StateArchived
}

var githubURL = regexp.MustCompile(`^https://github\.com/([^/]*)/([^/]*)`)

// Checker looks up repository existence and archival status. Results are
// memoized per URL for the life of the Checker.
type Checker struct {
	http   *http.Client
	github *github.Client
	token  string
	logger *slog.Logger

	mu   sync.Mutex
	memo map[string]State
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient sets the client used for plain existence checks.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.http = client
	}
}

// WithGitHubClient sets the GitHub API client. A client supplied this way is
// used for github.com URLs even without a token.
func WithGitHubClient(client *github.Client) Option {
	return func(c *Checker) {
		c.github = client
	}
}

// WithToken sets the GitHub personal access token.
func WithToken(token string) Option {
	return func(c *Checker) {
		c.token = token
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		http:   http.DefaultClient,
		logger: slog.New(slog.DiscardHandler),
		memo:   make(map[string]State),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.github == nil && c.token != "" {
		c.github = github.NewClient(c.http).WithAuthToken(c.token)
	}
	return c
}

// UsesAPI reports whether url is checked through the GitHub API.
func (c *Checker) UsesAPI(url string) bool {
	return c.github != nil && strings.HasPrefix(url, "https://github.com/")
}

// Check returns the state of the repository at url. Lookup failures are
// logged and reported as StateUnknown; only a canceled context is returned
// as an error.
func (c *Checker) Check(ctx context.Context, url string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.memo[url]; ok {
		return state, nil
	}

	var (
		state State
		err   error
		what  = "existence"
	)
	if c.UsesAPI(url) {
		what = "archival status"
		state, err = c.archivalStatus(ctx, url)
	} else {
		state, err = c.existence(ctx, url)
	}
	if err != nil {
		if ctx.Err() != nil {
			return StateUnknown, ctx.Err()
		}
		c.logger.Warn("failed to determine repository "+what, "url", url, "error", err)
		state = StateUnknown
	}

	c.memo[url] = state
	return state, nil
}

func (c *Checker) existence(ctx context.Context, url string) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StateUnknown, errors.Wrap(err, errors.CodeInvalidInput, "failed to build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return StateUnknown, errors.Wrap(err, errors.CodeNetwork, "existence request failed")
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return StateExists, nil
	case http.StatusNotFound:
		return StateNonexistent, nil
	default:
		return StateUnknown, nil
	}
}

func (c *Checker) archivalStatus(ctx context.Context, url string) (State, error) {
	owner, repo, err := ParseGitHubURL(url)
	if err != nil {
		return StateUnknown, err
	}

	repository, resp, err := c.github.Repositories.Get(ctx, owner, repo)
	if err != nil {
		wrapped := wrapError(err, resp, "failed to get repository")
		if errors.GetCode(wrapped) == errors.CodeNotFound {
			return StateNonexistent, nil
		}
		return StateUnknown, wrapped
	}

	if repository.GetArchived() {
		return StateArchived, nil
	}
	return StateExists, nil
}

// ParseGitHubURL extracts the owner and repository name from a
// https://github.com/ URL. A trailing ".git" is dropped from the name.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	m := githubURL.FindStringSubmatch(url)
	if m == nil || m[1] == "" || m[2] == "" {
		err := errors.Newf(errors.CodeInvalidInput, "failed to match GitHub url: %s", url)
		return "", "", errors.WithContext(err, "url", url)
	}
	return m[1], strings.TrimSuffix(m[2], ".git"), nil
}

// wrapError maps a go-github error to a platform error by HTTP status.
func wrapError(err error, resp *github.Response, message string) error {
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		statusCode = ghErr.Response.StatusCode
	}

	if statusCode == 0 {
		return errors.Wrap(err, errors.CodeNetwork, message)
	}

	var code errors.ErrorCode
	switch {
	case statusCode == http.StatusNotFound:
		code = errors.CodeNotFound
	case statusCode == http.StatusUnauthorized:
		code = errors.CodeUnauthorized
	case statusCode == http.StatusForbidden:
		code = errors.CodeForbidden
	case statusCode == http.StatusTooManyRequests:
		code = errors.CodeRateLimit
	case statusCode >= 500:
		code = errors.CodeNetwork
	default:
		code = errors.CodeInternal
	}
	return errors.Wrap(err, code, message)
}
