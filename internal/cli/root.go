// Package cli implements the cargo-unmaintained command.
package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jmgilman/go/errors"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/unmaintained/internal/cache"
	"github.com/jmgilman/go/unmaintained/internal/check"
	"github.com/jmgilman/go/unmaintained/internal/packages"
	"github.com/jmgilman/go/unmaintained/internal/registry"
	"github.com/jmgilman/go/unmaintained/internal/upstream"
)

// Exit codes.
const (
	ExitCodeOK           = 0
	ExitCodeUnmaintained = 1
	ExitCodeError        = 2
)

// ExitError carries the process exit code for a failed run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// App holds the command's flags and its collaborators.
type App struct {
	rootCmd *cobra.Command
	version string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cacheRoot   string
	tokenPath   string
	registryURL string

	json       bool
	failFast   bool
	maxAge     uint64
	noCache    bool
	noExitCode bool
	noWarnings bool
	purge      bool
	saveToken  bool
	verbose    bool
}

// NewApp creates the root command.
func NewApp(version string) *App {
	app := &App{
		version:   version,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		cacheRoot: cache.DefaultRoot(),
		tokenPath: upstream.DefaultTokenPath(),
	}

	root := &cobra.Command{
		Use:     "cargo-unmaintained [flags] NAME[@VERSION]=URL...",
		Short:   "Find unmaintained packages in Rust projects",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd.Context(), args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.Flags()
	flags.BoolVar(&app.failFast, "fail-fast", false, "exit as soon as an unmaintained package is found")
	flags.BoolVar(&app.json, "json", false, "output JSON")
	flags.Uint64Var(&app.maxAge, "max-age", check.DefaultMaxAge,
		"age in days that a repository's last commit must not exceed for the repository to be considered current")
	flags.BoolVar(&app.noCache, "no-cache", false, "do not cache data on disk for future runs")
	flags.BoolVar(&app.noExitCode, "no-exit-code", false, "do not set exit status when unmaintained packages are found")
	flags.BoolVar(&app.noWarnings, "no-warnings", false, "do not show warnings")
	flags.BoolVar(&app.purge, "purge", false, "remove all cached data from disk and exit")
	flags.BoolVar(&app.saveToken, "save-token", false,
		"read a personal access token from standard input and save it to the config directory")
	flags.BoolVar(&app.verbose, "verbose", false, "show information about what cargo-unmaintained is doing")
	root.MarkFlagsMutuallyExclusive("fail-fast", "no-exit-code")

	app.rootCmd = root
	return app
}

// SetIO replaces the standard streams.
func (a *App) SetIO(stdin io.Reader, stdout, stderr io.Writer) {
	a.stdin = stdin
	a.stdout = stdout
	a.stderr = stderr
}

// Execute runs the command with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.rootCmd.SetArgs(args)
	a.rootCmd.SetIn(a.stdin)
	a.rootCmd.SetOut(a.stdout)
	a.rootCmd.SetErr(a.stderr)
	return a.rootCmd.ExecuteContext(ctx)
}

func (a *App) logger() *slog.Logger {
	level := slog.LevelWarn
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.noWarnings:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
}

func (a *App) run(ctx context.Context, args []string) error {
	logger := a.logger()
	tokens := upstream.NewTokenStore(osfs.New("/"), a.tokenPath, logger)

	if a.saveToken {
		_, _ = fmt.Fprintln(a.stderr, "Please paste a personal access token below. The token needs no scopes.")
		if err := tokens.Save(a.stdin); err != nil {
			return &ExitError{Code: ExitCodeError, Err: err}
		}
		_, _ = fmt.Fprintf(a.stderr, "Personal access token written to %s\n", tokens.Path())
		return nil
	}

	if a.purge {
		removed, err := cache.Purge(ctx, a.cacheRoot, cache.WithLogger(logger))
		if err != nil {
			return &ExitError{Code: ExitCodeError, Err: err}
		}
		if !removed {
			logger.Info("cache does not exist", "path", a.cacheRoot)
		}
		return nil
	}

	if len(args) == 0 {
		return &ExitError{Code: ExitCodeError, Err: errors.New(errors.CodeInvalidInput, "no packages given")}
	}

	pkgs := make([]packages.Package, 0, len(args))
	for _, arg := range args {
		pkg, err := packages.Parse(arg)
		if err != nil {
			return &ExitError{Code: ExitCodeError, Err: err}
		}
		pkgs = append(pkgs, pkg)
	}

	token, err := tokens.Load()
	if err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}

	results, err := a.scan(ctx, logger, token, pkgs)
	if err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}

	if err := a.report(results); err != nil {
		return &ExitError{Code: ExitCodeError, Err: err}
	}

	if len(results) > 0 && !a.noExitCode {
		return &ExitError{Code: ExitCodeUnmaintained}
	}
	return nil
}

func (a *App) scan(ctx context.Context, logger *slog.Logger, token string, pkgs []packages.Package) ([]*check.Result, error) {
	var registryOpts []registry.Option
	registryOpts = append(registryOpts, registry.WithUserAgent("cargo-unmaintained/"+a.version))
	if a.registryURL != "" {
		registryOpts = append(registryOpts, registry.WithBaseURL(a.registryURL))
	}

	c, err := cache.New(
		cache.Config{Temporary: a.noCache, MaxAge: a.maxAge, Root: a.cacheRoot},
		cache.WithLogger(logger),
		cache.WithVersionsSource(registry.NewClient(registryOpts...)),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close cache", "error", err)
		}
	}()

	checker := check.New(c,
		check.WithMaxAge(a.maxAge),
		check.WithVersions(c),
		check.WithUpstream(upstream.New(upstream.WithToken(token), upstream.WithLogger(logger))),
		check.WithLogger(logger),
	)

	_, _ = fmt.Fprintf(a.stderr, "Scanning %d packages\n", len(pkgs))

	var unmaintained []*check.Result
	for _, pkg := range pkgs {
		logger.Debug("checking package", "package", pkg.String(), "repository", pkg.Repository)

		result, err := checker.Check(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !result.Unmaintained {
			continue
		}

		unmaintained = append(unmaintained, result)
		if a.failFast {
			break
		}
	}

	if a.verbose {
		if stats, err := c.Stats(); err == nil {
			logger.Debug("cache statistics",
				"dir", stats.BaseDir,
				"entries", stats.Entries,
				"repositories", stats.Repositories,
				"versions", stats.Versions)
		}
	}

	return unmaintained, nil
}

func (a *App) report(results []*check.Result) error {
	if a.json {
		slices.SortStableFunc(results, func(x, y *check.Result) int {
			return cmp.Compare(x.Name, y.Name)
		})
		if results == nil {
			results = []*check.Result{}
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		_, _ = fmt.Fprintln(a.stderr, "No unmaintained packages found")
		return nil
	}

	slices.SortStableFunc(results, func(x, y *check.Result) int {
		return x.Status.Compare(y.Status)
	})
	for _, r := range results {
		line := r.Name
		if r.Version != "" {
			line += "@" + r.Version
		}
		line += " (" + r.Status.String() + ")"
		if r.NewerVersionAvailable {
			line += " newer version available"
		}
		if _, err := fmt.Fprintln(a.stdout, line); err != nil {
			return err
		}
	}
	return nil
}
