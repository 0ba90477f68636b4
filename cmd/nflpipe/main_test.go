// Package main provides end-to-end tests for the nflpipe CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/nflpipe/internal/cli"
	"github.com/leapstack-labs/nflpipe/internal/cli/config"
	"github.com/leapstack-labs/nflpipe/internal/testutil"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nflpipe v")
}

func TestHelpCommand(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)

	for _, expected := range []string{"ingest", "materialize", "query", "serve", "runs", "init", "completion"} {
		assert.Contains(t, out, expected)
	}
	for _, flag := range []string{"--data-dir", "--output-dir", "--database", "--state", "--verbose", "--output"} {
		assert.Contains(t, out, flag)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, _, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "nflpipe")

	_, _, err = run(t, "completion", "tcsh")
	require.Error(t, err)
}

func TestInvalidOutputFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := run(t, "runs", "--output", "html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output")
}

func TestIngestThenQuery(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())

	raw := filepath.Join(dir, "extract")
	require.NoError(t, os.MkdirAll(raw, 0o750))
	testutil.WriteSampleExtract(t, raw)

	global := []string{
		"--data-dir", raw,
		"--output-dir", filepath.Join(dir, "out"),
		"--database", filepath.Join(dir, "nfl.duckdb"),
		"--state", filepath.Join(dir, "state.db"),
	}

	out, errOut, err := run(t, append([]string{"ingest", "-o", "markdown", "-v"}, global...)...)
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "**Ingested 11 raw tables")
	// Verbose logging goes to stderr, never stdout.
	assert.Contains(t, errOut, "level=DEBUG")
	assert.NotContains(t, out, "level=")

	out, _, err = run(t, append([]string{"query", "SELECT off, count(*) AS n FROM plays GROUP BY off ORDER BY off", "-f", "csv"}, global...)...)
	require.NoError(t, err)
	assert.Equal(t, "off,n\nDAL,2\nDEN,1\nNE,3\n", out)

	out, _, err = run(t, append([]string{"runs", "-o", "text"}, global...)...)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "completed"), out)
}

func TestJSONLogFormat(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	raw := filepath.Join(dir, "data_raw")
	require.NoError(t, os.MkdirAll(raw, 0o750))
	testutil.WriteSampleExtract(t, raw)
	t.Setenv("NFLPIPE_LOG_FORMAT", "json")

	_, errOut, err := run(t, "ingest", "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"msg":"starting pipeline run"`)
}
