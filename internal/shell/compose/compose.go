// Package compose is the compose tool boundary: it brings one application's
// service set up or down and observes container health through the Docker
// API. The application id doubles as the compose project name, so every
// container stays attributable to its application.
package compose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/runner"
)

// =============================================================================
// Error Type
// =============================================================================

// ComposeError wraps a compose tool failure with its application context.
type ComposeError struct {
	Op      string // "up", "down", "health"
	AppID   string
	Message string
	Err     error
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("compose %s %s: %s", e.Op, e.AppID, e.Message)
}

func (e *ComposeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Command Detection
// =============================================================================

// DetectCommand finds the compose invocation to use: the standalone
// docker-compose binary when present, otherwise the docker compose plugin.
func DetectCommand(ctx context.Context, r runner.Runner) ([]string, error) {
	if runner.LookPath("docker-compose") {
		return []string{"docker-compose"}, nil
	}
	if runner.LookPath("docker") {
		res, err := r.Run(ctx, "docker", "compose", "version")
		if err == nil && res.ExitCode == 0 {
			return []string{"docker", "compose"}, nil
		}
	}
	return nil, fmt.Errorf("neither docker-compose nor the docker compose plugin is installed")
}

// =============================================================================
// Tool
// =============================================================================

// UpOptions tunes an up invocation.
type UpOptions struct {
	// ForceRecreate recreates containers even when their config is unchanged.
	ForceRecreate bool
}

// Tool invokes the external compose tool for one application at a time.
type Tool struct {
	runner runner.Runner
	cmd    []string
	logger *slog.Logger
}

// NewTool creates a compose tool wrapper. cmd is the detected (or
// configured) compose invocation, e.g. ["docker", "compose"].
func NewTool(r runner.Runner, cmd []string, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{
		runner: r,
		cmd:    cmd,
		logger: logger.With("component", "compose"),
	}
}

// Up starts the application's services from its manifest set, detached.
func (t *Tool) Up(ctx context.Context, app domain.Application, envFile string, opts UpOptions) error {
	args := t.baseArgs(app, envFile)
	args = append(args, "up", "-d")
	if opts.ForceRecreate {
		args = append(args, "--force-recreate")
	}
	return t.invoke(ctx, "up", app.ID, args)
}

// Down stops and removes the application's services.
func (t *Tool) Down(ctx context.Context, app domain.Application, envFile string) error {
	args := t.baseArgs(app, envFile)
	args = append(args, "down")
	return t.invoke(ctx, "down", app.ID, args)
}

func (t *Tool) baseArgs(app domain.Application, envFile string) []string {
	args := append([]string{}, t.cmd[1:]...)
	args = append(args, "-p", app.ID)
	for _, f := range app.ComposeFiles {
		args = append(args, "-f", f)
	}
	if envFile != "" {
		args = append(args, "--env-file", envFile)
	}
	return args
}

func (t *Tool) invoke(ctx context.Context, op, appID string, args []string) error {
	t.logger.Info("running compose", "op", op, "app_id", appID)

	res, err := t.runner.Run(ctx, t.cmd[0], args...)
	if err != nil {
		return &ComposeError{Op: op, AppID: appID, Message: err.Error(), Err: domain.ErrDeployStepFailed}
	}
	if res.ExitCode != 0 {
		return &ComposeError{
			Op:      op,
			AppID:   appID,
			Message: fmt.Sprintf("exit %d: %s", res.ExitCode, res.Stderr),
			Err:     domain.ErrDeployStepFailed,
		}
	}
	return nil
}
