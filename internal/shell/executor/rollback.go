package executor

import (
	"context"
	"fmt"

	"github.com/industware/composor/internal/core/domain"
)

const defaultRollbackReason = "automatic rollback after failed deployment"

// rollback executes the plan's inverse: the failed application first (when
// its start step was reached, its previous version is already stopped), then
// every completed application in reverse completion order. Each unwound
// application gets a rolled_back ledger record; a failure inside the inverse
// halts the unwind and surfaces as a rollback failure.
func (e *Executor) rollback(ctx context.Context, plan *domain.Plan, apps map[string]domain.Application, failed *domain.DeploymentRecord, includeFailed bool, completed []string, opts Options, report *Report) error {
	// The unwind must run to completion even when the forward failure
	// was a cancellation.
	ctx = context.WithoutCancel(ctx)

	reason := opts.Reason
	if reason == "" {
		reason = defaultRollbackReason
	}

	// When the failed app never reached its start step its old version is
	// still running; its failed record is already on the ledger and there
	// is nothing of it to unwind.
	if includeFailed {
		if err := e.rollbackApp(ctx, plan, apps[failed.AppID], failed, reason, opts, report); err != nil {
			return err
		}
	}

	for i := len(completed) - 1; i >= 0; i-- {
		appID := completed[i]
		target := targetVersion(plan.StepsFor(appID))
		record := domain.NewDeploymentRecord(appID, target, plan.Previous[appID])
		record.Steps = append(record.Steps, plan.StepsFor(appID)...)
		if err := e.rollbackApp(ctx, plan, apps[appID], record, reason, opts, report); err != nil {
			return err
		}
	}
	return nil
}

// rollbackApp unwinds one application under its lock and appends its record.
func (e *Executor) rollbackApp(ctx context.Context, plan *domain.Plan, app domain.Application, record *domain.DeploymentRecord, reason string, opts Options, report *Report) error {
	release, err := e.locks.Acquire(ctx, app.ID)
	if err != nil {
		e.appendRecord(ctx, record, domain.OutcomeFailed, fmt.Sprintf("rollback blocked: %v", err))
		return err
	}
	defer release()

	for _, step := range plan.InverseFor(app.ID) {
		envFile, err := e.inverseEnvFile(ctx, app, step)
		if err != nil {
			report.add(step, StepFailed, err)
			e.appendRecord(ctx, record, domain.OutcomeFailed, fmt.Sprintf("rollback failed: %v", err))
			return &StepError{AppID: app.ID, Step: step, Err: err}
		}
		if err := e.runStep(ctx, step, app, envFile, opts); err != nil {
			report.add(step, StepFailed, err)
			e.appendRecord(ctx, record, domain.OutcomeFailed, fmt.Sprintf("rollback failed: %v", err))
			return &StepError{AppID: app.ID, Step: step, Err: err}
		}
		record.Steps = append(record.Steps, step)
		report.add(step, StepOK, nil)
	}

	record.Steps = append(record.Steps, domain.Step{
		Kind:    domain.StepRollbackTo,
		AppID:   app.ID,
		Version: record.PreviousVersion,
	})
	e.appendRecord(ctx, record, domain.OutcomeRolledBack, reason)
	e.logger.Info("application rolled back",
		"app_id", app.ID, "from_version", record.Version, "to_version", record.PreviousVersion)
	return nil
}

// inverseEnvFile materializes the env file matching an inverse step's
// version: the stop targets the version that failed or was just started,
// the start targets the previously live one.
func (e *Executor) inverseEnvFile(ctx context.Context, app domain.Application, step domain.Step) (string, error) {
	artifact, err := e.store.GetArtifact(ctx, app.ID, step.Version)
	if err != nil {
		return "", err
	}
	return e.envgen.Generate(app, *artifact)
}
