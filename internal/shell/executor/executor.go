// Package executor runs deployment plans against the external compose tool.
// It is the sole writer of the version ledger: every application's step
// sub-sequence ends in exactly one appended DeploymentRecord.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/compose"
	"github.com/industware/composor/internal/shell/store"
)

// =============================================================================
// Error Type
// =============================================================================

// StepError is a failure pinned to the application and step it occurred at.
type StepError struct {
	AppID string
	Step  domain.Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("app %s: step %s: %v", e.AppID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Options and Report
// =============================================================================

// Options tunes one plan execution.
type Options struct {
	// DryRun short-circuits before any mutating step: no compose calls,
	// no health checks, no locks, no ledger writes.
	DryRun bool

	// AutoRollback executes the plan's inverse on step failure.
	AutoRollback bool

	// StepTimeout bounds each step, not the plan. Zero means no limit.
	StepTimeout time.Duration

	// ForceRecreate is passed through to compose up.
	ForceRecreate bool

	// Reason is recorded on rolled-back ledger entries.
	Reason string
}

// StepStatus is the execution status of one step in the report.
type StepStatus string

const (
	StepPlanned StepStatus = "planned" // dry-run only
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
)

// StepResult is one step's outcome within a report.
type StepResult struct {
	Kind    domain.StepKind `yaml:"kind"`
	AppID   string          `yaml:"app_id"`
	Version int             `yaml:"version"`
	Status  StepStatus      `yaml:"status"`
	Error   string          `yaml:"error,omitempty"`
}

// Report is the outcome of executing one plan.
type Report struct {
	DryRun         bool         `yaml:"dry_run"`
	Steps          []StepResult `yaml:"steps"`
	FailedApp      string       `yaml:"failed_app,omitempty"`
	RolledBack     bool         `yaml:"rolled_back,omitempty"`
	RollbackFailed bool         `yaml:"rollback_failed,omitempty"`
}

func (r *Report) add(step domain.Step, status StepStatus, err error) {
	res := StepResult{Kind: step.Kind, AppID: step.AppID, Version: step.Version, Status: status}
	if err != nil {
		res.Error = err.Error()
	}
	r.Steps = append(r.Steps, res)
}

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ComposeTool brings one application up or down.
type ComposeTool interface {
	Up(ctx context.Context, app domain.Application, envFile string, opts compose.UpOptions) error
	Down(ctx context.Context, app domain.Application, envFile string) error
}

// HealthWaiter blocks until an application's containers are healthy.
type HealthWaiter interface {
	Wait(ctx context.Context, appID string) error
}

// EnvGenerator materializes the env file for one (application, artifact).
type EnvGenerator interface {
	Generate(app domain.Application, artifact domain.Artifact) (string, error)
}

// =============================================================================
// Executor
// =============================================================================

// Executor executes plans step by step, strictly in plan order.
type Executor struct {
	store  store.Store
	tool   ComposeTool
	health HealthWaiter
	envgen EnvGenerator
	locks  *LockManager
	logger *slog.Logger
}

// New creates an executor.
func New(s store.Store, tool ComposeTool, health HealthWaiter, envgen EnvGenerator, locks *LockManager, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:  s,
		tool:   tool,
		health: health,
		envgen: envgen,
		locks:  locks,
		logger: logger.With("component", "executor"),
	}
}

// Execute runs the plan. apps maps every planned application id to its
// declaration. On step failure execution halts; with AutoRollback set the
// attached inverse plan restores the failed application (when its start was
// reached: its old version is already stopped by then) and every previously
// completed application to their prior versions. The returned error is the
// halting failure, or one wrapping domain.ErrRollbackFailed when the inverse
// plan itself failed a step.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan, apps map[string]domain.Application, opts Options) (*Report, error) {
	report := &Report{DryRun: opts.DryRun}

	if opts.DryRun {
		// The report is the plan's step list verbatim; nothing external
		// is touched, so dry-run and real run see identical plans.
		for _, step := range plan.Steps {
			report.add(step, StepPlanned, nil)
		}
		return report, nil
	}

	var completed []string

	for _, appID := range plan.AppOrder() {
		app := apps[appID]
		record, failedStep, startReached, err := e.deployApp(ctx, plan, app, opts, report)
		if err == nil {
			completed = append(completed, appID)
			continue
		}

		report.FailedApp = appID
		stepErr := &StepError{AppID: appID, Step: failedStep, Err: err}
		e.logger.Error("deployment halted", "app_id", appID, "step", failedStep.String(), "error", err)

		if !opts.AutoRollback {
			return report, stepErr
		}

		if rbErr := e.rollback(ctx, plan, apps, record, startReached, completed, opts, report); rbErr != nil {
			report.RollbackFailed = true
			return report, fmt.Errorf("%w: after %v: %v", domain.ErrRollbackFailed, stepErr, rbErr)
		}
		report.RolledBack = startReached || len(completed) > 0
		return report, stepErr
	}

	return report, nil
}

// deployApp runs one application's forward sub-sequence under its lock.
// startReached reports whether execution got as far as the start step, which
// is when the previous version is no longer running. deployApp appends the
// application's ledger record in every failure case except a step failure
// that the rollback path will finalize as rolled_back.
func (e *Executor) deployApp(ctx context.Context, plan *domain.Plan, app domain.Application, opts Options, report *Report) (record *domain.DeploymentRecord, failedStep domain.Step, startReached bool, err error) {
	steps := plan.StepsFor(app.ID)
	target := targetVersion(steps)
	record = domain.NewDeploymentRecord(app.ID, target, plan.Previous[app.ID])

	// Failures before any step ran: nothing to unwind.
	release, err := e.locks.Acquire(ctx, app.ID)
	if err != nil {
		return record, e.failBefore(ctx, record, concernLock, err, report), false, err
	}
	defer release()

	artifact, err := e.store.GetArtifact(ctx, app.ID, target)
	if err != nil {
		return record, e.failBefore(ctx, record, concernArtifact, err, report), false, err
	}

	envFile, err := e.envgen.Generate(app, *artifact)
	if err != nil {
		return record, e.failBefore(ctx, record, concernEnvFile, err, report), false, err
	}

	for _, step := range steps {
		if err := e.runStep(ctx, step, app, envFile, opts); err != nil {
			record.Steps = append(record.Steps, step)
			report.add(step, StepFailed, err)
			startReached = step.Kind == domain.StepStart || step.Kind == domain.StepHealthCheck
			if !(opts.AutoRollback && startReached) {
				e.appendRecord(ctx, record, domain.OutcomeFailed, "")
			}
			return record, step, startReached, err
		}
		record.Steps = append(record.Steps, step)
		report.add(step, StepOK, nil)
	}

	e.appendRecord(ctx, record, domain.OutcomeSuccess, "")
	return record, domain.Step{}, false, nil
}

// Concern names used in report entries for failures that occur before an
// application's first step runs. They are never plan step kinds.
const (
	concernLock     domain.StepKind = "lock"
	concernArtifact domain.StepKind = "artifact"
	concernEnvFile  domain.StepKind = "env-file"
)

// failBefore records a failure that happened before any plan step ran: the
// ledger gets a failed record, and the report gets an entry named after the
// failing concern rather than a step that was never attempted.
func (e *Executor) failBefore(ctx context.Context, record *domain.DeploymentRecord, concern domain.StepKind, err error, report *Report) domain.Step {
	step := domain.Step{Kind: concern, AppID: record.AppID, Version: record.Version}
	e.appendRecord(ctx, record, domain.OutcomeFailed, err.Error())
	report.add(step, StepFailed, err)
	return step
}

// runStep executes one step under the per-step timeout.
func (e *Executor) runStep(ctx context.Context, step domain.Step, app domain.Application, envFile string, opts Options) error {
	stepCtx := ctx
	if opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, opts.StepTimeout)
		defer cancel()
	}

	switch step.Kind {
	case domain.StepStop:
		return e.tool.Down(stepCtx, app, envFile)
	case domain.StepStart:
		return e.tool.Up(stepCtx, app, envFile, compose.UpOptions{ForceRecreate: opts.ForceRecreate})
	case domain.StepHealthCheck:
		return e.health.Wait(stepCtx, app.ID)
	default:
		return fmt.Errorf("%w: unexpected step kind %s", domain.ErrDeployStepFailed, step.Kind)
	}
}

// appendRecord finalizes and appends one ledger record.
func (e *Executor) appendRecord(ctx context.Context, record *domain.DeploymentRecord, outcome domain.Outcome, reason string) {
	record.Outcome = outcome
	if reason != "" {
		record.Reason = reason
	}
	record.FinishedAt = time.Now().UTC()
	if err := e.store.AppendRecord(ctx, record); err != nil {
		e.logger.Error("failed to append ledger record", "app_id", record.AppID, "error", err)
	}
}

// targetVersion extracts the start version from one app's forward steps.
func targetVersion(steps []domain.Step) int {
	for _, s := range steps {
		if s.Kind == domain.StepStart {
			return s.Version
		}
	}
	return 0
}
