package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/unmaintained/internal/testutil"
)

type harness struct {
	app    *App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T, stdin string) *harness {
	t.Helper()

	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.app = NewApp("test")
	h.app.SetIO(strings.NewReader(stdin), h.stdout, h.stderr)

	dir := t.TempDir()
	h.app.cacheRoot = filepath.Join(dir, "cache")
	h.app.tokenPath = filepath.Join(dir, "config", "token.txt")
	return h
}

func exitCode(err error) int {
	if err == nil {
		return ExitCodeOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCodeError
}

func TestRun_NoPackages(t *testing.T) {
	h := newHarness(t, "")

	err := h.app.Execute(context.Background(), nil)
	assert.Equal(t, ExitCodeError, exitCode(err))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestRun_InvalidPackage(t *testing.T) {
	h := newHarness(t, "")

	err := h.app.Execute(context.Background(), []string{"@1.0.0=https://example.com/a/b"})
	assert.Equal(t, ExitCodeError, exitCode(err))
}

func TestRun_ConflictingFlags(t *testing.T) {
	h := newHarness(t, "")

	err := h.app.Execute(context.Background(), []string{"--fail-fast", "--no-exit-code", "alpha="})
	assert.Equal(t, ExitCodeError, exitCode(err))
}

func TestRun_SaveToken(t *testing.T) {
	h := newHarness(t, "ghp_secret\n")

	require.NoError(t, h.app.Execute(context.Background(), []string{"--save-token"}))

	data, err := os.ReadFile(h.app.tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", string(data))

	info, err := os.Stat(h.app.tokenPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Contains(t, h.stderr.String(), h.app.tokenPath)
}

func TestRun_Purge(t *testing.T) {
	h := newHarness(t, "")

	v2 := filepath.Join(h.app.cacheRoot, "v2", "entries")
	require.NoError(t, os.MkdirAll(v2, 0o755))

	require.NoError(t, h.app.Execute(context.Background(), []string{"--purge"}))

	_, err := os.Stat(filepath.Join(h.app.cacheRoot, "v2"))
	assert.True(t, os.IsNotExist(err))

	// Purging again is not an error.
	require.NoError(t, h.app.Execute(context.Background(), []string{"--purge"}))
}

func TestRun_UnnamedPackageIsUnmaintained(t *testing.T) {
	t.Setenv("GITHUB_TOKEN_PATH", "")
	t.Setenv("GITHUB_TOKEN", "")
	h := newHarness(t, "")

	err := h.app.Execute(context.Background(), []string{"--no-cache", "--json", "alpha="})
	assert.Equal(t, ExitCodeUnmaintained, exitCode(err))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "alpha", out[0]["name"])
	assert.Equal(t, "Unnamed", out[0]["repo_status"])
}

func TestRun_NoExitCode(t *testing.T) {
	t.Setenv("GITHUB_TOKEN_PATH", "")
	t.Setenv("GITHUB_TOKEN", "")
	h := newHarness(t, "")

	err := h.app.Execute(context.Background(), []string{"--no-cache", "--no-exit-code", "alpha="})
	require.NoError(t, err)
	assert.Equal(t, "alpha (no repository)\n", h.stdout.String())
}

func TestRun_MaintainedRepository(t *testing.T) {
	if !testutil.GitAvailable() {
		t.Skip("git not available")
	}
	t.Setenv("GITHUB_TOKEN_PATH", "")
	t.Setenv("GITHUB_TOKEN", "")

	upstream, err := testutil.NewUpstream(
		filepath.Join(t.TempDir(), "alpha"),
		map[string]string{"Cargo.toml": testutil.CargoManifest("alpha")},
		time.Now().Add(-24*time.Hour).Truncate(time.Second),
	)
	require.NoError(t, err)

	h := newHarness(t, "")
	pkg := "alpha@0.1.0=" + upstream.URL()

	require.NoError(t, h.app.Execute(context.Background(), []string{pkg}))
	assert.Contains(t, h.stderr.String(), "No unmaintained packages found")

	// The clone was cached on disk.
	entries, err := os.ReadDir(filepath.Join(h.app.cacheRoot, "v2", "repositories"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Against a maximum age of zero every repository is too old.
	h = newHarness(t, "")
	err = h.app.Execute(context.Background(), []string{"--no-cache", "--max-age", "0", "--no-exit-code", "alpha="+upstream.URL()})
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "alpha (1 days)")
}
