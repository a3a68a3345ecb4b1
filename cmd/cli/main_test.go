package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/pytestify/internal/api"
	"github.com/QTest-hq/pytestify/internal/config"
	"github.com/QTest-hq/pytestify/internal/convert"
	"github.com/QTest-hq/pytestify/internal/parser"
)

const unittestFile = `import unittest


class TestMath(unittest.TestCase):
    def test_add(self):
        self.assertEqual(1 + 1, 2)
`

const pytestFile = `class TestMath:
    def test_add(self):
        assert 1 + 1 == 2
`

const skippingFile = `import unittest


class TestLater(unittest.TestCase):
    def test_later(self):
        self.skipTest("not yet")
`

const skippingPytestFile = `import pytest


class TestLater:
    def test_later(self):
        pytest.skip("not yet")
`

// execute runs the root command and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_later.py")
	writeFile(t, file, skippingFile)
	report := filepath.Join(dir, "report.yaml")

	out, err := execute(t, "convert", dir, "--report", report, "--report-format", "yaml")
	require.NoError(t, err)

	// The detail column lists the imports the conversion added.
	assert.Contains(t, out, file)
	assert.Contains(t, out, "pytest")
	assert.Contains(t, out, "1 converted, 0 unchanged, 0 failed")
	assert.Equal(t, skippingPytestFile, readFile(t, file))
	assert.Contains(t, readFile(t, report), "converted: 1")
}

func TestConvertCommand_Suffix(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_math.py")
	writeFile(t, file, unittestFile)

	_, err := execute(t, "convert", file, "--suffix", "_pytest")
	require.NoError(t, err)

	assert.Equal(t, unittestFile, readFile(t, file))
	assert.Equal(t, pytestFile, readFile(t, filepath.Join(dir, "test_math_pytest.py")))
}

func TestConvertCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "test_bad.py"), "def test_x(:\n")

	out, err := execute(t, "convert", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 file(s) failed")
	assert.Contains(t, out, "test_bad.py")
	assert.Contains(t, out, "0 converted, 0 unchanged, 1 failed")
}

func TestRenderReportTable(t *testing.T) {
	report := convert.NewReport()
	report.Add(convert.FileReport{Path: "a/test_x.py", Output: "a/test_x.py", Status: convert.StatusConverted, Imports: []string{"pytest", "re"}})
	report.Add(convert.FileReport{Path: "a/test_y.py", Output: "a/test_y_new.py", Status: convert.StatusConverted, Fallback: true})
	report.Add(convert.FileReport{Path: "a/test_z.py", Status: convert.StatusUnchanged})
	report.Add(convert.FileReport{Path: "a/test_w.py", Status: convert.StatusFailed, Error: "parse error"})

	table := renderReportTable(report)
	assert.Contains(t, table, "pytest, re")
	assert.Contains(t, table, "-> a/test_y_new.py (text fallback)")
	assert.Contains(t, table, "parse error")
	assert.NotContains(t, table, "test_z.py")

	assert.Empty(t, renderReportTable(convert.NewReport()))
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_math.py")
	writeFile(t, file, unittestFile)

	out, err := execute(t, "check", dir)
	assert.ErrorIs(t, err, errWouldChange)
	assert.Contains(t, out, "would convert "+file)
	assert.Equal(t, unittestFile, readFile(t, file))

	writeFile(t, file, pytestFile)
	out, err = execute(t, "check", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 file(s) already pytest style")
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_math.py")
	writeFile(t, file, unittestFile)

	out, err := execute(t, "diff", file)
	require.NoError(t, err)
	assert.Contains(t, out, "-import unittest")
	assert.Contains(t, out, "+        assert 1 + 1 == 2")
	assert.Equal(t, unittestFile, readFile(t, file))
}

func TestFallbackCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_x.py")
	src := "class TestX:\n    def setUp(self):\n        self.x = 1\n"
	writeFile(t, file, src)

	out, err := execute(t, "fallback", file)
	require.NoError(t, err)
	assert.Equal(t, "import pytest\n\nclass TestX:\n    @pytest.fixture(autouse=True)\n    def setup_method(self):\n        self.x = 1\n        yield\n", out)
	assert.Equal(t, src, readFile(t, file))

	_, err = execute(t, "fallback", "-w", file)
	require.NoError(t, err)
	assert.Equal(t, out, readFile(t, file))
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_math.py")
	writeFile(t, file, unittestFile)

	out, err := execute(t, "parse", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Import\n")
	assert.Contains(t, out, "class TestMath [TestCase]\n")
	assert.Contains(t, out, "  def test_add\n")

	bad := filepath.Join(dir, "bad.py")
	writeFile(t, bad, "x = = 1\n")
	_, err = execute(t, "parse", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad+":1:")
}

func TestOutline(t *testing.T) {
	m, err := parser.Parse(context.Background(), `import pytest


@pytest.fixture
def db():
    return {}


async def helper():
    pass


class Plain:
    @staticmethod
    def make():
        pass
`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Import",
		"@pytest.fixture def db",
		"async def helper",
		"class Plain",
		"  @staticmethod def make",
	}, outline(m))
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, config.ProjectFile)

	cfg, err := config.LoadProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultProjectConfig().Include, cfg.Include)

	_, err = execute(t, "init", dir)
	assert.Error(t, err)

	_, err = execute(t, "init", dir, "--force")
	assert.NoError(t, err)
}

func TestRunFlags_Project(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ProjectFile), "output:\n  suffix: _cfg\nparametrize:\n  max_values: 7\n")

	f := runFlags{include: []string{"check_*.py"}, noParametrize: true, trackedOnly: true}
	pc, err := f.project([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, []string{"check_*.py"}, pc.Include)
	assert.Equal(t, "_cfg", pc.Output.Suffix)
	assert.Equal(t, 7, pc.Parametrize.MaxValues)
	assert.False(t, config.Enabled(pc.Transform.Parametrize))
	assert.True(t, pc.Git.TrackedOnly)

	f = runFlags{suffix: "_flag"}
	pc, err = f.project([]string{filepath.Join(dir, "test_x.py")})
	require.NoError(t, err)
	assert.Equal(t, "_flag", pc.Output.Suffix)
}

func TestConfigDirFor(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test_a.py")
	writeFile(t, file, "")

	assert.Equal(t, dir, configDirFor(dir))
	assert.Equal(t, dir, configDirFor(file))
	assert.Equal(t, "missing", configDirFor("missing"))
}

func TestVerifyCommand_RequiresFile(t *testing.T) {
	_, err := execute(t, "verify")
	assert.Error(t, err)
}

func TestServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()})
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_DrainsReadiness(t *testing.T) {
	srv, err := api.NewServer(&config.Config{Port: 8080, Parallel: 1, LogLevel: "info"}, nil)
	require.NoError(t, err)
	httpServer := &http.Server{Addr: "127.0.0.1:0", Handler: srv.Router()}
	httpServer.RegisterOnShutdown(srv.Drain)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, serve(ctx, httpServer))

	assert.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/ready", nil))
		return rr.Code == http.StatusServiceUnavailable
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLogFile(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() {
		log.Logger = saved
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "test_math.py"), unittestFile)
	logPath := filepath.Join(t.TempDir(), "pytestify.log")

	_, err := execute(t, "--log-file", logPath, "convert", dir)
	require.NoError(t, err)
	log.Logger = saved

	assert.Contains(t, readFile(t, logPath), `"message":"conversion finished"`)
}
