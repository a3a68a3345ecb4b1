package validator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidator(t *testing.T) {
	v := NewValidator("/tmp", "")
	assert.Equal(t, "/tmp", v.workDir)
	assert.Equal(t, "python3", v.python)

	v = NewValidator(".", "/usr/bin/python")
	assert.Equal(t, "/usr/bin/python", v.python)
}

const failedOutput = `.F.E
=================================== FAILURES ===================================
____________________________ TestMath.test_sub ____________________________
test_math.py:9: in test_sub
    assert 3 - 1 == 1
E   assert 2 == 1
=========================== short test summary info ============================
FAILED test_math.py::TestMath::test_sub - assert 2 == 1
ERROR test_math.py::test_db - fixture 'db' not found
2 failed, 2 passed in 0.05s
`

func TestParsePytestErrors(t *testing.T) {
	errs := parsePytestErrors(failedOutput)
	require.Len(t, errs, 2)

	assert.Equal(t, TestError{Kind: "failed", TestName: "test_math.py::TestMath::test_sub", Message: "assert 2 == 1"}, errs[0])
	assert.Equal(t, TestError{Kind: "error", TestName: "test_math.py::test_db", Message: "fixture 'db' not found"}, errs[1])
}

func TestParsePytestErrors_CollectionError(t *testing.T) {
	output := "ERROR test_broken.py\n!!!!!!!!!!!!!!!!!!!! Interrupted: 1 error during collection !!!!!!!!!!!!!!!!!!!!\n"
	errs := parsePytestErrors(output)
	require.Len(t, errs, 1)
	assert.Equal(t, "test_broken.py", errs[0].TestName)
	assert.Empty(t, errs[0].Message)
}

func TestParsePytestErrors_Empty(t *testing.T) {
	assert.Empty(t, parsePytestErrors(""))
	assert.Empty(t, parsePytestErrors("4 passed in 0.01s\n"))
}

func TestParseCollected(t *testing.T) {
	tests := []struct {
		output string
		want   int
	}{
		{"collected 3 items\n", 3},
		{"collected 1 item\n", 1},
		{"test_a.py::test_x\n\n1 test collected in 0.01s\n", 1},
		{"test_a.py::test_x\n\n12 tests collected in 0.01s\n", 12},
		{"no tests ran in 0.01s\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCollected(tt.output))
		})
	}
}

func TestFormatResult(t *testing.T) {
	t.Run("passed", func(t *testing.T) {
		out := FormatResult(&TestResult{Passed: true, TestFile: "test_a.py", Collected: 4})
		assert.Equal(t, "test_a.py: OK (4 collected)\n", out)
	})

	t.Run("failed", func(t *testing.T) {
		out := FormatResult(&TestResult{
			TestFile: "test_a.py",
			ExitCode: ExitTestsFailed,
			Errors:   parsePytestErrors(failedOutput),
		})
		assert.Contains(t, out, "FAILED (2 errors)")
		assert.Contains(t, out, "  FAILED test_math.py::TestMath::test_sub: assert 2 == 1\n")
		assert.Contains(t, out, "  ERROR test_math.py::test_db")
	})

	t.Run("no tests", func(t *testing.T) {
		out := FormatResult(&TestResult{TestFile: "test_a.py", ExitCode: ExitNoTestsCollected})
		assert.Equal(t, "test_a.py: no tests collected\n", out)
	})

	t.Run("truncates unparsed output", func(t *testing.T) {
		out := FormatResult(&TestResult{TestFile: "x.py", ExitCode: ExitTestsFailed, Output: strings.Repeat("x", 3000)})
		assert.Contains(t, out, "...[truncated]")
		assert.Less(t, len(out), 2100)
	})
}

// fakePython writes a script that ignores its arguments, prints output and
// exits with code.
func fakePython(t *testing.T, output string, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script interpreter")
	}
	dir := t.TempDir()
	data := filepath.Join(dir, "output.txt")
	require.NoError(t, os.WriteFile(data, []byte(output), 0644))
	script := filepath.Join(dir, "python")
	body := "#!/bin/sh\ncat '" + data + "'\nexit " + strconv.Itoa(code) + "\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script
}

func TestRunPytest(t *testing.T) {
	ctx := context.Background()

	t.Run("passing", func(t *testing.T) {
		v := NewValidator(t.TempDir(), fakePython(t, "collected 2 items\n\n2 passed in 0.01s\n", 0))
		res, err := v.RunPytest(ctx, "test_a.py", false)
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, 2, res.Collected)
		assert.Empty(t, res.Errors)
	})

	t.Run("failing", func(t *testing.T) {
		v := NewValidator(t.TempDir(), fakePython(t, failedOutput, 1))
		res, err := v.RunPytest(ctx, "test_math.py", false)
		require.NoError(t, err)
		assert.False(t, res.Passed)
		assert.Equal(t, ExitTestsFailed, res.ExitCode)
		assert.Len(t, res.Errors, 2)
	})

	t.Run("usage error", func(t *testing.T) {
		v := NewValidator(t.TempDir(), fakePython(t, "ERROR: file or directory not found: nope.py\n", 4))
		_, err := v.RunPytest(ctx, "nope.py", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file or directory not found")
	})

	t.Run("missing interpreter", func(t *testing.T) {
		v := NewValidator(t.TempDir(), filepath.Join(t.TempDir(), "no-python"))
		_, err := v.RunPytest(ctx, "test_a.py", true)
		assert.Error(t, err)
	})
}
