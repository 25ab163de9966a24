package action

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/monoco-dev/fabric/pkg/eventbus"
)

// gitResult is the outcome of a single git subprocess invocation.
type gitResult struct {
	exitCode int
	stdout   string
	stderr   string
}

func (r gitResult) success() bool { return r.exitCode == 0 }

func runGit(ctx context.Context, workingDir string, timeout time.Duration, args ...string) (gitResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return gitResult{}, err
	}

	return gitResult{exitCode: exitCode, stdout: stdout.String(), stderr: stderr.String()}, nil
}

// GitCommitAction stages changes and commits them with a message
// template substituted from the triggering event's payload.
type GitCommitAction struct {
	MessageTemplate string
	Files           []string
	AddAll          bool
	WorkingDir      string
	Timeout         time.Duration
}

func (a *GitCommitAction) Name() string { return "GitCommitAction" }

func (a *GitCommitAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	_, err := os.Stat(a.gitDir())
	return err == nil, nil
}

func (a *GitCommitAction) gitDir() string {
	return a.WorkingDir + string(os.PathSeparator) + ".git"
}

func (a *GitCommitAction) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 30 * time.Second
	}

	return a.Timeout
}

func (a *GitCommitAction) Execute(ctx context.Context, event eventbus.Event) (Result, error) {
	if a.AddAll {
		if _, err := runGit(ctx, a.WorkingDir, a.timeout(), "add", "-A"); err != nil {
			return Result{}, err
		}
	} else {
		for _, pattern := range a.Files {
			if _, err := runGit(ctx, a.WorkingDir, a.timeout(), "add", pattern); err != nil {
				return Result{}, err
			}
		}
	}

	status, err := runGit(ctx, a.WorkingDir, a.timeout(), "status", "--porcelain")
	if err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(status.stdout) == "" {
		return SuccessResult(map[string]any{"committed": false, "reason": "no_changes"}, nil), nil
	}

	message := formatTemplate(a.MessageTemplate, event.Payload)

	commit, err := runGit(ctx, a.WorkingDir, a.timeout(), "commit", "-m", message)
	if err != nil {
		return Result{}, err
	}

	if !commit.success() {
		return FailureResult("git commit failed: "+commit.stderr, nil), nil
	}

	hashResult, err := runGit(ctx, a.WorkingDir, a.timeout(), "rev-parse", "HEAD")
	if err != nil {
		return Result{}, err
	}

	return SuccessResult(map[string]any{
		"committed":   true,
		"commit_hash": strings.TrimSpace(hashResult.stdout),
		"message":     message,
	}, nil), nil
}

// GitPushAction pushes the current (or configured) branch to remote.
type GitPushAction struct {
	Remote     string
	Branch     string
	Force      bool
	WorkingDir string
	Timeout    time.Duration
}

func (a *GitPushAction) Name() string { return "GitPushAction" }

func (a *GitPushAction) remote() string {
	if a.Remote == "" {
		return "origin"
	}

	return a.Remote
}

func (a *GitPushAction) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 60 * time.Second
	}

	return a.Timeout
}

func (a *GitPushAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	if _, err := os.Stat(a.WorkingDir + string(os.PathSeparator) + ".git"); err != nil {
		return false, nil
	}

	res, err := runGit(ctx, a.WorkingDir, a.timeout(), "remote", "get-url", a.remote())
	if err != nil {
		return false, nil //nolint:nilerr // treated as "remote missing", not an error
	}

	return res.success(), nil
}

func (a *GitPushAction) Execute(ctx context.Context, event eventbus.Event) (Result, error) {
	branch := a.Branch

	if branch == "" {
		res, err := runGit(ctx, a.WorkingDir, a.timeout(), "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return Result{}, err
		}

		if !res.success() {
			return FailureResult("could not determine current branch", nil), nil
		}

		branch = strings.TrimSpace(res.stdout)
	}

	args := []string{"push", a.remote(), branch}
	if a.Force {
		args = append(args, "--force-with-lease")
	}

	res, err := runGit(ctx, a.WorkingDir, a.timeout(), args...)
	if err != nil {
		return Result{}, err
	}

	if !res.success() {
		return FailureResult("git push failed: "+res.stderr, nil), nil
	}

	return SuccessResult(map[string]any{"pushed": true, "remote": a.remote(), "branch": branch}, nil), nil
}

// formatTemplate substitutes "{key}" placeholders in template from
// payload, leaving unmatched placeholders untouched (mirrors the
// fall-back-to-original behavior on a malformed template).
func formatTemplate(template string, payload map[string]any) string {
	out := template
	for k, v := range payload {
		out = strings.ReplaceAll(out, "{"+k+"}", toTemplateString(v))
	}

	return out
}

func toTemplateString(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
