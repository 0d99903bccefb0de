// Package engine composes the registry, store, builder, planner and
// executor into the high-level verbs the CLI exposes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/core/manifest"
	"github.com/industware/composor/internal/core/planner"
	"github.com/industware/composor/internal/shell/builder"
	"github.com/industware/composor/internal/shell/executor"
	"github.com/industware/composor/internal/shell/store"
)

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator owns the wired components behind the build, deploy and
// history verbs.
type Orchestrator struct {
	registry *manifest.Registry
	store    store.Store
	builder  *builder.Builder
	planner  *planner.Planner
	executor *executor.Executor
	envDir   string
	logger   *slog.Logger
}

// Config holds the components an orchestrator is assembled from.
type Config struct {
	Registry *manifest.Registry
	Store    store.Store
	Builder  *builder.Builder
	Planner  *planner.Planner
	Executor *executor.Executor

	// EnvDir is where invocation reports are written, alongside the
	// generated env files.
	EnvDir string

	Logger *slog.Logger
}

// New assembles an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: cfg.Registry,
		store:    cfg.Store,
		builder:  cfg.Builder,
		planner:  cfg.Planner,
		executor: cfg.Executor,
		envDir:   cfg.EnvDir,
		logger:   logger.With("component", "engine"),
	}
}

// =============================================================================
// Build
// =============================================================================

// BuildCommand builds the named applications, or every registered one when
// ids is empty. Each outcome carries its own error; the returned error is
// non-nil when at least one build failed and wraps domain.ErrBuildFailed.
func (o *Orchestrator) BuildCommand(ctx context.Context, ids []string) ([]builder.Outcome, error) {
	apps, err := o.selectApps(ids)
	if err != nil {
		return nil, err
	}

	outcomes := o.builder.BuildAll(ctx, apps)

	var failed []string
	for _, out := range outcomes {
		if out.Err != nil {
			failed = append(failed, out.App.ID)
		}
	}
	if len(failed) > 0 {
		return outcomes, fmt.Errorf("%w: %d of %d applications: %v",
			domain.ErrBuildFailed, len(failed), len(outcomes), failed)
	}
	return outcomes, nil
}

// =============================================================================
// Deploy
// =============================================================================

// DeployCommand plans and executes a deployment for the requested
// applications. The plan covers exactly the request's applications in
// dependency order. Real runs write an invocation report next to the env
// files; dry runs touch nothing on disk.
func (o *Orchestrator) DeployCommand(ctx context.Context, req domain.DeployRequest, opts executor.Options) (*executor.Report, error) {
	ids := make([]string, 0, len(req))
	for id := range req {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	apps, err := o.selectApps(ids)
	if err != nil {
		return nil, err
	}

	plan, err := o.planner.Plan(ctx, apps, req)
	if err != nil {
		return nil, err
	}
	o.logger.Info("deployment planned",
		"apps", plan.AppOrder(), "steps", len(plan.Steps), "dry_run", opts.DryRun)

	byID := make(map[string]domain.Application, len(apps))
	for _, app := range apps {
		byID[app.ID] = app
	}

	report, execErr := o.executor.Execute(ctx, plan, byID, opts)

	if report != nil && !opts.DryRun {
		if path, werr := o.writeReport(report); werr != nil {
			o.logger.Error("failed to write invocation report", "error", werr)
		} else {
			o.logger.Info("invocation report written", "path", path)
		}
	}
	return report, execErr
}

// writeReport persists one invocation report as YAML, timestamped so
// successive runs never overwrite each other.
func (o *Orchestrator) writeReport(report *executor.Report) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(o.envDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(o.envDir, fmt.Sprintf("report_%s.yaml", time.Now().UTC().Format("20060102T150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// =============================================================================
// History
// =============================================================================

// AppStatus is one application's ledger summary.
type AppStatus struct {
	AppID       string
	LiveVersion int
	Records     []domain.DeploymentRecord
}

// History returns one application's deployment records, newest first,
// together with its derived live version.
func (o *Orchestrator) History(ctx context.Context, appID string) (*AppStatus, error) {
	if _, ok := o.registry.Get(appID); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownApplication, appID)
	}

	records, err := o.store.History(ctx, appID)
	if err != nil {
		return nil, err
	}

	status := &AppStatus{AppID: appID, Records: records}
	for _, rec := range records {
		if v := rec.LiveVersionAfter(); v > 0 {
			status.LiveVersion = v
			break
		}
	}
	return status, nil
}

func (o *Orchestrator) selectApps(ids []string) ([]domain.Application, error) {
	if len(ids) == 0 {
		return o.registry.All(), nil
	}
	return o.registry.Subset(ids)
}
