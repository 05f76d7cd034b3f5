package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Result captures the outcome of a single script execution.
type Result struct {
	Success    bool          `json:"success"`
	TimedOut   bool          `json:"timed_out"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"duration"`
	ScriptPath string        `json:"-"`
}

// OutputDetails summarizes the captured streams for display.
type OutputDetails struct {
	StdoutLines int `json:"stdout_lines"`
	StderrLines int `json:"stderr_lines"`
	TotalChars  int `json:"total_chars"`
}

// Details computes line and character counts over the captured output.
func (r Result) Details() OutputDetails {
	return OutputDetails{
		StdoutLines: countLines(r.Stdout),
		StderrLines: countLines(r.Stderr),
		TotalChars:  len(r.Stdout) + len(r.Stderr),
	}
}

func countLines(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return len(strings.Split(strings.TrimRight(s, "\n"), "\n"))
}

// Runner executes generated scripts with the Node.js binary.
type Runner struct {
	nodePath string
	workdir  string
	timeout  time.Duration
	logger   *slog.Logger
}

// New constructs a Runner. The workdir is the process working directory for
// script runs, so relative artifacts like screenshots land there.
func New(nodePath, workdir string, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{nodePath: nodePath, workdir: workdir, timeout: timeout, logger: logger}
}

// Run writes source to a temporary file, executes it with node and returns
// the captured result. The temporary file is removed afterwards. A timeout
// is reported on the Result rather than as an error; only setup failures
// return a non-nil error.
func (r *Runner) Run(ctx context.Context, source string) (Result, error) {
	if r.nodePath == "" {
		return Result{}, fmt.Errorf("node binary not configured")
	}
	if err := os.MkdirAll(r.workdir, 0o755); err != nil {
		return Result{}, fmt.Errorf("preparing workdir: %w", err)
	}

	tmp, err := os.CreateTemp(r.workdir, "run-*.js")
	if err != nil {
		return Result{}, fmt.Errorf("creating script file: %w", err)
	}
	scriptPath := tmp.Name()
	defer os.Remove(scriptPath)

	if _, err := tmp.WriteString(source); err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("writing script file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("closing script file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.nodePath, filepath.Base(scriptPath))
	cmd.Dir = r.workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Duration:   elapsed,
		ScriptPath: scriptPath,
	}

	switch {
	case runErr == nil:
		res.Success = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
		if r.logger != nil {
			r.logger.Warn("script run timed out", "timeout", r.timeout, "duration", elapsed)
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, fmt.Errorf("running node: %w", runErr)
		}
		if r.logger != nil {
			r.logger.Warn("script run failed", "exit_code", res.ExitCode, "duration", elapsed)
		}
	}
	return res, nil
}
