package action

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/monoco-dev/fabric/pkg/eventbus"
)

// TestSummary is the parsed pass/fail/skip tally from a test run's
// output.
type TestSummary struct {
	Passed  int
	Failed  int
	Errored int
	Skipped int
	Total   int
}

var testSummaryLineRE = regexp.MustCompile(`(\d+)\s+(passed|failed|error|skipped)`)

func parseTestSummary(output string) TestSummary {
	var s TestSummary

	for _, match := range testSummaryLineRE.FindAllStringSubmatch(output, -1) {
		count, _ := strconv.Atoi(match[1])

		switch match[2] {
		case "passed":
			s.Passed = count
		case "failed":
			s.Failed = count
		case "error":
			s.Errored = count
		case "skipped":
			s.Skipped = count
		}

		s.Total += count
	}

	return s
}

// RunTestAction runs a test command (go test by default) over a
// package path and reports a pass/fail summary.
type RunTestAction struct {
	Command    []string
	Path       string
	Verbose    bool
	Timeout    time.Duration
	WorkingDir string
}

func (a *RunTestAction) Name() string { return "RunTestAction" }

func (a *RunTestAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	return true, nil
}

func (a *RunTestAction) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 300 * time.Second
	}

	return a.Timeout
}

func (a *RunTestAction) path() string {
	if a.Path == "" {
		return "./..."
	}

	return a.Path
}

func (a *RunTestAction) command() []string {
	if len(a.Command) > 0 {
		return a.Command
	}

	return []string{"go", "test"}
}

func (a *RunTestAction) Execute(ctx context.Context, event eventbus.Event) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	base := a.command()
	args := append([]string{}, base[1:]...)
	args = append(args, a.path())

	if a.Verbose {
		args = append(args, "-v")
	}

	cmd := exec.CommandContext(runCtx, base[0], args...)
	cmd.Dir = a.WorkingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() != nil {
		return FailureResult("test run timed out after "+a.timeout().String(), nil), nil
	}

	summary := parseTestSummary(stdout.String())

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return Result{}, runErr
	}

	if exitCode == 0 {
		return SuccessResult(map[string]any{
			"passed": summary.Passed,
			"failed": summary.Failed,
			"total":  summary.Total,
		}, map[string]any{"stdout_preview": preview(stdout.String())}), nil
	}

	return FailureResult(
		"tests failed: "+strconv.Itoa(summary.Failed)+" failures",
		map[string]any{
			"passed":         summary.Passed,
			"failed":         summary.Failed,
			"total":          summary.Total,
			"stderr_preview": preview(stderr.String()),
		},
	), nil
}

func preview(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}

	return s[:max]
}
