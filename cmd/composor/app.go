package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/core/manifest"
	"github.com/industware/composor/internal/core/planner"
	"github.com/industware/composor/internal/engine"
	"github.com/industware/composor/internal/shell/builder"
	"github.com/industware/composor/internal/shell/compose"
	"github.com/industware/composor/internal/shell/dockercli"
	"github.com/industware/composor/internal/shell/envfile"
	"github.com/industware/composor/internal/shell/executor"
	"github.com/industware/composor/internal/shell/runner"
	"github.com/industware/composor/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess        = 0
	ExitConfigError    = 1
	ExitBuildFailed    = 2
	ExitDeployFailed   = 3
	ExitRolledBack     = 4
	ExitRollbackFailed = 5
)

// AppError carries the exit code a failure maps to.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// =============================================================================
// App
// =============================================================================

// App is the fully wired application behind the CLI verbs.
type App struct {
	config       *Config
	registry     *manifest.Registry
	store        store.Store
	orchestrator *engine.Orchestrator
	logger       *slog.Logger
}

// NewApp loads the manifest and wires every component.
func NewApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	registry, err := manifest.LoadFile(cfg.Manifest)
	if err != nil {
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	for _, dir := range []string{filepath.Dir(cfg.Database.DSN), cfg.Paths.Workspace, cfg.Paths.EnvDir, cfg.Paths.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
		}
	}

	st, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	docker, err := dockercli.NewClient(cfg.Docker.Host)
	if err != nil {
		st.Close()
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	run := runner.NewExecRunner(logger)

	composeCmd := cfg.ComposeCommand()
	if composeCmd == nil {
		composeCmd, err = compose.DetectCommand(ctx, run)
		if err != nil {
			st.Close()
			return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
		}
	}

	b := builder.New(st, run, docker, builder.Config{
		BaseDir:       cfg.Paths.Workspace,
		MaxConcurrent: cfg.Build.MaxConcurrent,
	}, logger)

	locks := executor.NewLockManager(cfg.Paths.LockDir, executor.LockConfig{
		Retries: cfg.Deploy.LockRetries,
		Backoff: cfg.Deploy.LockBackoff,
	}, logger)

	exec := executor.New(
		st,
		compose.NewTool(run, composeCmd, logger),
		compose.NewHealthChecker(docker, logger),
		envfile.New(cfg.Paths.EnvDir),
		locks,
		logger,
	)

	orch := engine.New(engine.Config{
		Registry: registry,
		Store:    st,
		Builder:  b,
		Planner:  planner.New(st, st),
		Executor: exec,
		EnvDir:   cfg.Paths.EnvDir,
		Logger:   logger,
	})

	return &App{
		config:       cfg,
		registry:     registry,
		store:        st,
		orchestrator: orch,
		logger:       logger,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}

// =============================================================================
// Verbs
// =============================================================================

// Build builds the named applications, or all of them when ids is empty,
// and prints one line per outcome.
func (a *App) Build(ctx context.Context, ids []string) error {
	outcomes, err := a.orchestrator.BuildCommand(ctx, ids)
	if err != nil && outcomes == nil {
		return &AppError{Op: "build", Err: err, ExitCode: ExitConfigError}
	}

	for _, out := range outcomes {
		if out.Err != nil {
			fmt.Printf("%s\tFAILED\t%v\n", out.App.ID, out.Err)
			continue
		}
		fmt.Printf("%s\tv%d\t%s\n", out.App.ID, out.Artifact.Version, out.Artifact.ImageRef)
	}

	if err != nil {
		return &AppError{Op: "build", Err: err, ExitCode: ExitBuildFailed}
	}
	return nil
}

// Deploy plans and executes a deployment and prints the resulting steps.
func (a *App) Deploy(ctx context.Context, req domain.DeployRequest, opts executor.Options) error {
	report, err := a.orchestrator.DeployCommand(ctx, req, opts)
	if report != nil {
		printReport(report)
	}
	if err == nil {
		return nil
	}
	if report == nil {
		return &AppError{Op: "deploy", Err: err, ExitCode: ExitConfigError}
	}

	switch {
	case report.RollbackFailed:
		return &AppError{Op: "deploy", Err: err, ExitCode: ExitRollbackFailed}
	case report.RolledBack:
		return &AppError{Op: "deploy", Err: err, ExitCode: ExitRolledBack}
	default:
		return &AppError{Op: "deploy", Err: err, ExitCode: ExitDeployFailed}
	}
}

// History prints one application's deployment records, newest first.
func (a *App) History(ctx context.Context, appID string) error {
	status, err := a.orchestrator.History(ctx, appID)
	if err != nil {
		return &AppError{Op: "history", Err: err, ExitCode: ExitConfigError}
	}

	fmt.Printf("%s\tlive: v%d\n", status.AppID, status.LiveVersion)
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tPREVIOUS\tOUTCOME\tFINISHED\tREASON")
	for _, rec := range status.Records {
		fmt.Fprintf(w, "v%d\tv%d\t%s\t%s\t%s\n",
			rec.Version, rec.PreviousVersion, rec.Outcome,
			rec.FinishedAt.Format("2006-01-02 15:04:05"), rec.Reason)
	}
	return w.Flush()
}

// List prints every registered application with its live version and
// latest built artifact.
func (a *App) List(ctx context.Context) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "APP\tLIVE\tLATEST BUILD\tIMAGE\tSERVICES")
	for _, id := range a.registry.IDs() {
		status, err := a.orchestrator.History(ctx, id)
		if err != nil {
			return &AppError{Op: "list", Err: err, ExitCode: ExitConfigError}
		}

		latest := "-"
		image := "-"
		artifact, err := a.store.LatestArtifact(ctx, id)
		switch {
		case err == nil:
			latest = fmt.Sprintf("v%d", artifact.Version)
			image = artifact.ImageRef
		case errors.Is(err, domain.ErrNotFound):
			// never built
		default:
			return &AppError{Op: "list", Err: err, ExitCode: ExitConfigError}
		}

		live := "-"
		if status.LiveVersion > 0 {
			live = fmt.Sprintf("v%d", status.LiveVersion)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			id, live, latest, image, strings.Join(a.registry.Services(id), ","))
	}
	return w.Flush()
}

func printReport(report *executor.Report) {
	if report.DryRun {
		fmt.Println("dry run: no changes applied")
	}
	for _, step := range report.Steps {
		line := fmt.Sprintf("%s\t%s(%s, v%d)", step.Status, step.Kind, step.AppID, step.Version)
		if step.Error != "" {
			line += "\t" + step.Error
		}
		fmt.Println(line)
	}
}
