package cli

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlectl/internal/clierrors"
	"bundlectl/internal/procrun"
	"bundlectl/internal/toolcache"
	"bundlectl/internal/tools"
)

// runCLI executes the root command and returns stdout, stderr and the error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// testConfig writes a config that keeps every directory under a temp root.
func testConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	root := t.TempDir()
	body := "cache_dir: " + filepath.Join(root, "cache") + "\n" +
		"temp_dir: " + filepath.Join(root, "tmp") + "\n" +
		"log_dir: " + filepath.Join(root, "logs") + "\n" + extra
	path := filepath.Join(root, "bundlectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, root
}

func gzipBundle(t *testing.T) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	body := []byte("#!/bin/sh\necho codeql\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "codeql/", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "codeql/codeql", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(body))}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err = gw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return gz.Bytes()
}

func TestResolveJSON(t *testing.T) {
	path, _ := testConfig(t, "minimum_version: 2.15.0\n")
	out, _, err := runCLI(t, "--config", path, "--json", "resolve",
		"codeql-bundle-v2.16.0",
		"https://example.com/codeql-bundle-20200601/codeql-bundle.tar.gz",
	)
	require.NoError(t, err)

	var got []resolvedLocator
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2.16.0", got[0].Semver)
	assert.Equal(t, "codeql-bundle-v2.16.0", got[0].Tag)
	assert.True(t, got[0].Satisfied)
	assert.Equal(t, "0.0.0-20200601", got[1].Semver)
	assert.False(t, got[1].Satisfied)
}

func TestResolveMalformedLocator(t *testing.T) {
	path, _ := testConfig(t, "")
	out, _, err := runCLI(t, "--config", path, "resolve", "https://example.com/nothing.tar.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Malformed tools url")
	assert.Contains(t, out, "error")
}

func TestInstallThenCacheListAndFind(t *testing.T) {
	payload := gzipBundle(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	path, root := testConfig(t, "")
	locator := srv.URL + "/codeql-bundle-v2.16.0/codeql-bundle-linux64.tar.gz"

	out, _, err := runCLI(t, "--config", path, "--json", "install", locator)
	require.NoError(t, err)
	var statuses []tools.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, tools.SourceDownload, statuses[0].Source)
	assert.FileExists(t, filepath.Join(statuses[0].Path, "codeql", "codeql"))

	out, stderr, err := runCLI(t, "--config", path, "install", "--no-progress", locator)
	require.NoError(t, err)
	assert.Contains(t, out, "cached")
	assert.Contains(t, stderr, "cached")
	assert.Equal(t, int32(1), hits.Load())

	out, _, err = runCLI(t, "--config", path, "--json", "cache", "list")
	require.NoError(t, err)
	var entries []toolcache.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "2.16.0", entries[0].Semver)
	assert.True(t, strings.HasPrefix(entries[0].LocalPath, filepath.Join(root, "cache")))

	out, _, err = runCLI(t, "--config", path, "cache", "find", "v2.16.0")
	require.NoError(t, err)
	assert.Equal(t, statuses[0].Path, strings.TrimSpace(out))

	_, _, err = runCLI(t, "--config", path, "cache", "find", "2.17.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the toolcache")
}

func TestInstallReportsDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	path, _ := testConfig(t, "")
	out, _, err := runCLI(t, "--config", path, "install", "--no-progress", srv.URL+"/codeql-bundle-v2.16.0/b.tar.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP status code: 403")
	assert.Contains(t, out, "error")
}

func TestClassifyKnownCategory(t *testing.T) {
	path, _ := testConfig(t, "")
	stderr := "A fatal error occurred: Refusing to create databases /tmp/db but could not process any of it.\n" +
		"/tmp/db exists and is not an empty directory."
	out, _, err := runCLI(t, "--config", path, "--json", "classify", "--exit-code", "2", stderr)
	require.NoError(t, err)

	var got classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Classified)
	assert.Equal(t, "InitCalledTwice", got.Category)
	assert.True(t, strings.HasPrefix(got.Message, `Is the "init" action called twice in the same job? `))
}

func TestClassifyUnknownReadsStdin(t *testing.T) {
	if !clierrors.SupportedPlatform(runtime.GOOS, runtime.GOARCH) {
		t.Skip("unsupported platforms classify every failure")
	}
	path, _ := testConfig(t, "")
	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "classify"})
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("something odd happened\n"))
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "unclassified: ")
	assert.Contains(t, stdout.String(), "last log line was: something odd happened.")
}

func TestClassifyRestrictedToCategory(t *testing.T) {
	if !clierrors.SupportedPlatform(runtime.GOOS, runtime.GOARCH) {
		t.Skip("unsupported platforms classify every failure")
	}
	path, _ := testConfig(t, "")
	stderr := "A fatal error occurred: Refusing to create databases /tmp/db but could not process any of it.\n" +
		"/tmp/db exists and is not an empty directory."

	out, _, err := runCLI(t, "--config", path, "classify", "--category", "NoSourceCodeSeen", stderr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "unclassified: "))

	out, _, err = runCLI(t, "--config", path, "classify", "--category", "InitCalledTwice", stderr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "InitCalledTwice: "))

	_, _, err = runCLI(t, "--config", path, "classify", "--category", "Nope", stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "Nope"`)
}

func TestClassifyList(t *testing.T) {
	path, _ := testConfig(t, "categories:\n  - name: Custom\n    required_substrings: [boom]\n")
	out, _, err := runCLI(t, "--config", path, "classify", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "InitCalledTwice")
	assert.Contains(t, out, "Custom")
}

func TestExecMatcherAndExitCode(t *testing.T) {
	path, _ := testConfig(t, "matchers:\n  - pattern: disk full\n    message: Free some space.\n")
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_STDERR", "oops\n")
	t.Setenv("HELPER_EXIT", "3")

	helper := []string{"--", os.Args[0], "-test.run=TestHelperProcess"}

	_, _, err := runCLI(t, append([]string{"--config", path, "exec", "--matcher", "3::exit three"}, helper...)...)
	require.Error(t, err)
	assert.Equal(t, "exit three", err.Error())
	assert.Equal(t, 3, exitCodeFor(err))

	_, stderr, err := runCLI(t, append([]string{"--config", path, "exec"}, helper...)...)
	require.Error(t, err)
	var exitErr *procrun.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, stderr, "oops")

	_, _, err = runCLI(t, append([]string{"--config", path, "exec", "--ignore-return-code"}, helper...)...)
	assert.NoError(t, err)

	t.Setenv("HELPER_STDERR", "write failed: disk full\n")
	_, _, err = runCLI(t, append([]string{"--config", path, "exec", "--matcher", "3::exit three"}, helper...)...)
	require.Error(t, err)
	assert.Equal(t, "Free some space.", err.Error())
}

func TestExecClassify(t *testing.T) {
	path, _ := testConfig(t, "")
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_STDERR", "Invalid source root: /nope\n")
	t.Setenv("HELPER_EXIT", "2")

	_, _, err := runCLI(t, "--config", path, "exec", "--classify", "--", os.Args[0], "-test.run=TestHelperProcess")
	require.Error(t, err)
	var cfgErr *clierrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "InvalidSourceRoot", cfgErr.Category)
	assert.Equal(t, 2, exitCodeFor(err))
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bundlectl.yaml")
	out, _, err := runCLI(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, path)

	_, _, err = runCLI(t, "--config", path, "config", "init")
	require.Error(t, err)

	t.Setenv("BUNDLECTL_TOKEN", "sekrit")
	out, _, err = runCLI(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "tool_name: CodeQL")
	assert.Contains(t, out, "***")
	assert.NotContains(t, out, "sekrit")
}

func TestConfigValidate(t *testing.T) {
	path, _ := testConfig(t, "")
	out, _, err := runCLI(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad, _ := testConfig(t, "log_level: chatty\n")
	_, _, err = runCLI(t, "--config", bad, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LogLevel")
}

func TestEditorCommand(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}
	assert.Equal(t, []string{"vi"}, editorCommand(env(nil)))
	assert.Equal(t, []string{"code", "--wait"}, editorCommand(env(map[string]string{"EDITOR": " code --wait "})))
	assert.Equal(t, []string{"nano"}, editorCommand(env(map[string]string{"VISUAL": "nano", "EDITOR": "vim"})))
}

func TestDoctorJSON(t *testing.T) {
	path, _ := testConfig(t, "")
	out, _, err := runCLI(t, "--config", path, "--json", "doctor")
	if clierrors.SupportedPlatform(runtime.GOOS, runtime.GOARCH) {
		require.NoError(t, err)
	}

	var checks []healthCheck
	require.NoError(t, json.Unmarshal([]byte(out), &checks))
	byName := map[string]healthCheck{}
	for _, c := range checks {
		byName[c.Name] = c
	}
	assert.Equal(t, "warning", byName["Config"].Status)
	assert.Equal(t, "ok", byName["Cache"].Status)
	assert.Equal(t, "warning", byName["Bundles"].Status)
}

func TestDoctorFailsOnInvalidConfig(t *testing.T) {
	path, _ := testConfig(t, "log_level: chatty\n")
	out, _, err := runCLI(t, "--config", path, "doctor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check(s) failed")
	assert.Contains(t, out, "HEALTH:")
	assert.Contains(t, out, "Config")
}

func TestCheckPlatform(t *testing.T) {
	assert.Equal(t, "ok", checkPlatform("linux", "amd64").Status)
	assert.Equal(t, "error", checkPlatform("linux", "riscv64").Status)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(errors.New("plain")))
	assert.Equal(t, 7, exitCodeFor(&procrun.ExitError{Outcome: procrun.ProcessOutcome{ExitCode: 7}}))
	code := 32
	assert.Equal(t, 32, exitCodeFor(&clierrors.ConfigurationError{Err: clierrors.NewCLIError("codeql", nil, &code, "")}))
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	_, _ = os.Stderr.WriteString(os.Getenv("HELPER_STDERR"))
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT"))
	os.Exit(code)
}
