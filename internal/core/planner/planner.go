// Package planner computes deployment plans: an ordered, dependency-
// respecting step sequence with an eagerly computed inverse, so the executor
// never has to re-plan under failure. Planning is read-only; every
// resolution failure aborts the whole request before anything executes.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/industware/composor/internal/core/domain"
)

// =============================================================================
// Sources
// =============================================================================

// ArtifactSource is the artifact-store view the planner needs.
type ArtifactSource interface {
	// LatestArtifact returns the newest succeeded artifact for the app.
	LatestArtifact(ctx context.Context, appID string) (*domain.Artifact, error)

	// GetArtifact returns the artifact at an exact version.
	GetArtifact(ctx context.Context, appID string, version int) (*domain.Artifact, error)
}

// LedgerSource is the version-ledger view the planner needs.
type LedgerSource interface {
	// History returns the app's deployment records, most recent first.
	History(ctx context.Context, appID string) ([]domain.DeploymentRecord, error)
}

// =============================================================================
// Planner
// =============================================================================

// Planner resolves version selectors and emits plans.
type Planner struct {
	artifacts ArtifactSource
	ledger    LedgerSource
}

// New creates a planner over the given sources.
func New(artifacts ArtifactSource, ledger LedgerSource) *Planner {
	return &Planner{artifacts: artifacts, ledger: ledger}
}

// Plan computes the step sequence for one deploy request. Applications are
// ordered topologically (ties by id ascending); each application contributes
// stop(live) when a live version exists, then start(target), then
// health-check(target). Because steps run strictly in that order, a
// dependency's health check always precedes any dependent's stop.
//
// The inverse plan unwinds in reverse application order: stop(target) then
// start(previous) per application, start omitted when the application had no
// previous version.
func (p *Planner) Plan(ctx context.Context, apps []domain.Application, req domain.DeployRequest) (*domain.Plan, error) {
	ordered, err := TopoSort(apps)
	if err != nil {
		return nil, err
	}

	plan := &domain.Plan{Previous: make(map[string]int, len(ordered))}
	targets := make(map[string]int, len(ordered))

	for _, app := range ordered {
		selector, ok := req[app.ID]
		if !ok {
			selector = domain.Latest()
		}

		live, err := p.liveVersion(ctx, app.ID)
		if err != nil {
			return nil, err
		}

		target, err := p.resolve(ctx, app.ID, selector, live)
		if err != nil {
			return nil, err
		}

		plan.Previous[app.ID] = live
		targets[app.ID] = target
		if live > 0 {
			plan.Steps = append(plan.Steps, domain.Step{Kind: domain.StepStop, AppID: app.ID, Version: live})
		}
		plan.Steps = append(plan.Steps,
			domain.Step{Kind: domain.StepStart, AppID: app.ID, Version: target},
			domain.Step{Kind: domain.StepHealthCheck, AppID: app.ID, Version: target},
		)
	}

	for i := len(ordered) - 1; i >= 0; i-- {
		app := ordered[i]
		plan.Inverse = append(plan.Inverse, domain.Step{Kind: domain.StepStop, AppID: app.ID, Version: targets[app.ID]})
		if prev := plan.Previous[app.ID]; prev > 0 {
			plan.Inverse = append(plan.Inverse, domain.Step{Kind: domain.StepStart, AppID: app.ID, Version: prev})
		}
	}

	return plan, nil
}

// resolve turns a version selector into a concrete deployable version.
func (p *Planner) resolve(ctx context.Context, appID string, selector domain.VersionSelector, live int) (int, error) {
	switch selector.Kind {
	case domain.SelectExplicit:
		artifact, err := p.artifacts.GetArtifact(ctx, appID, selector.Version)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return 0, fmt.Errorf("%w: %s v%d", domain.ErrVersionNotFound, appID, selector.Version)
			}
			return 0, err
		}
		if !artifact.Deployable() {
			return 0, fmt.Errorf("%w: %s v%d build did not succeed", domain.ErrVersionNotFound, appID, selector.Version)
		}
		return artifact.Version, nil

	case domain.SelectLatest:
		artifact, err := p.artifacts.LatestArtifact(ctx, appID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return 0, fmt.Errorf("%w: %s has no built artifact", domain.ErrVersionNotFound, appID)
			}
			return 0, err
		}
		return artifact.Version, nil

	case domain.SelectRollback:
		return p.rollbackTarget(ctx, appID, live)

	default:
		return 0, fmt.Errorf("%w: %s: unknown selector %q", domain.ErrVersionNotFound, appID, selector.Kind)
	}
}

// rollbackTarget finds the version of the most recent successful record that
// is not the version currently live.
func (p *Planner) rollbackTarget(ctx context.Context, appID string, live int) (int, error) {
	history, err := p.ledger.History(ctx, appID)
	if err != nil {
		return 0, err
	}
	for _, rec := range history {
		if rec.Outcome != domain.OutcomeSuccess {
			continue
		}
		if rec.Version == live {
			continue
		}
		if _, err := p.artifacts.GetArtifact(ctx, appID, rec.Version); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return 0, err
		}
		return rec.Version, nil
	}
	return 0, fmt.Errorf("%w: %s has no previous successful version to roll back to", domain.ErrVersionNotFound, appID)
}

// liveVersion derives the currently running version from the ledger: the
// newest record that determines one. Never stored as mutable state.
func (p *Planner) liveVersion(ctx context.Context, appID string) (int, error) {
	history, err := p.ledger.History(ctx, appID)
	if err != nil {
		return 0, err
	}
	for _, rec := range history {
		if v := rec.LiveVersionAfter(); v > 0 {
			return v, nil
		}
	}
	return 0, nil
}
