// Package validator runs pytest over converted files.
package validator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Exit codes pytest documents.
const (
	ExitOK               = 0
	ExitTestsFailed      = 1
	ExitInterrupted      = 2
	ExitInternalError    = 3
	ExitUsageError       = 4
	ExitNoTestsCollected = 5
)

// TestResult holds the result of a pytest run
type TestResult struct {
	Passed    bool          `json:"passed"`
	TestFile  string        `json:"test_file"`
	Output    string        `json:"output"`
	Collected int           `json:"collected"`
	Errors    []TestError   `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
	ExitCode  int           `json:"exit_code"`
}

// TestError represents a single failure or collection error
type TestError struct {
	TestName string `json:"test_name"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// Validator runs pytest
type Validator struct {
	workDir string
	python  string
}

// NewValidator creates a validator running "<python> -m pytest" in
// workDir. An empty python uses "python3".
func NewValidator(workDir, python string) *Validator {
	if python == "" {
		python = "python3"
	}
	return &Validator{
		workDir: workDir,
		python:  python,
	}
}

// RunPytest runs pytest on testFile. With collectOnly the tests are
// collected but not executed, which is enough to catch broken output.
func (v *Validator) RunPytest(ctx context.Context, testFile string, collectOnly bool) (*TestResult, error) {
	start := time.Now()

	args := []string{"-m", "pytest", testFile, "-q", "--tb=short", "-p", "no:cacheprovider"}
	if collectOnly {
		args = append(args, "--collect-only")
	}
	cmd := exec.CommandContext(ctx, v.python, args...)
	cmd.Dir = v.workDir

	log.Debug().Str("python", v.python).Str("file", testFile).Bool("collect_only", collectOnly).Msg("running pytest")

	output, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run pytest: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("pytest interrupted: %w", ctx.Err())
	}

	result := &TestResult{
		Passed:    exitCode == ExitOK,
		TestFile:  testFile,
		Output:    string(output),
		Collected: parseCollected(string(output)),
		Duration:  time.Since(start),
		ExitCode:  exitCode,
	}

	if exitCode == ExitUsageError || exitCode == ExitInternalError {
		return result, fmt.Errorf("pytest exited with code %d: %s", exitCode, lastLine(result.Output))
	}

	if !result.Passed {
		result.Errors = parsePytestErrors(result.Output)
	}

	log.Info().
		Str("file", testFile).
		Bool("passed", result.Passed).
		Int("collected", result.Collected).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("pytest run complete")

	return result, nil
}

var (
	summaryLine   = regexp.MustCompile(`^(FAILED|ERROR) (\S+)(?: - (.*))?$`)
	collectedLine = regexp.MustCompile(`(?m)(?:^collected (\d+) items?|^(\d+) tests? collected)`)
)

// parsePytestErrors extracts failures from the short test summary.
func parsePytestErrors(output string) []TestError {
	var errs []TestError
	for _, line := range strings.Split(output, "\n") {
		m := summaryLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		errs = append(errs, TestError{
			Kind:     strings.ToLower(m[1]),
			TestName: m[2],
			Message:  strings.TrimSpace(m[3]),
		})
	}
	return errs
}

func parseCollected(output string) int {
	m := collectedLine.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	n := m[1]
	if n == "" {
		n = m[2]
	}
	count, _ := strconv.Atoi(n)
	return count
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return lines[len(lines)-1]
}

// FormatResult renders a short human readable report.
func FormatResult(result *TestResult) string {
	if result.Passed {
		return fmt.Sprintf("%s: OK (%d collected)\n", result.TestFile, result.Collected)
	}
	if result.ExitCode == ExitNoTestsCollected {
		return fmt.Sprintf("%s: no tests collected\n", result.TestFile)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: FAILED (%d errors)\n", result.TestFile, len(result.Errors))
	for _, err := range result.Errors {
		fmt.Fprintf(&sb, "  %s %s", strings.ToUpper(err.Kind), err.TestName)
		if err.Message != "" {
			fmt.Fprintf(&sb, ": %s", err.Message)
		}
		sb.WriteString("\n")
	}
	if len(result.Errors) == 0 {
		output := result.Output
		if len(output) > 2000 {
			output = output[:2000] + "...[truncated]"
		}
		sb.WriteString(output)
	}
	return sb.String()
}
