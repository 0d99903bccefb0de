// Package runner is the subprocess boundary: it invokes external tools
// (git, the build tool, the compose tool) and reports their exit status and
// captured output. Nothing else in Composor touches os/exec.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// =============================================================================
// Runner Interface
// =============================================================================

// Result captures one finished invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs one external command to completion.
//
// A non-zero exit is not an error: the caller decides what it means. The
// returned error is reserved for failures to run at all (binary missing,
// context cancelled before completion without an exit status).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// =============================================================================
// ExecRunner
// =============================================================================

// interruptGrace is how long a cancelled subprocess gets to exit after
// SIGINT before it is killed.
const interruptGrace = 15 * time.Second

// ExecRunner runs commands via os/exec. Cancellation delivers the tool's
// own interrupt signal rather than killing the process outright, so compose
// and git can shut down what they started.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner that logs each invocation.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger.With("component", "runner")}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = interruptGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", "cmd", name, "args", strings.Join(args, " "))

	err := cmd.Run()
	result := Result{
		Stdout: strings.TrimRight(stdout.String(), "\n"),
		Stderr: strings.TrimRight(stderr.String(), "\n"),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			if ctx.Err() != nil {
				return result, fmt.Errorf("%s interrupted: %w", name, ctx.Err())
			}
			return result, nil
		}
		return result, fmt.Errorf("run %s: %w", name, err)
	}

	return result, nil
}

// LookPath reports whether a binary is available on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
