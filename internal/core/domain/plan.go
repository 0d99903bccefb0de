package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Steps
// =============================================================================

// StepKind is the kind of one planned action.
type StepKind string

const (
	StepBuild       StepKind = "build"
	StepStop        StepKind = "stop"
	StepStart       StepKind = "start"
	StepHealthCheck StepKind = "health-check"
	StepRollbackTo  StepKind = "rollback-to"
)

// Mutating reports whether executing the step touches any external system.
// Dry-run execution short-circuits before the first mutating step; the
// health check is skipped too since its target was never started.
func (k StepKind) Mutating() bool {
	return k == StepStop || k == StepStart || k == StepRollbackTo
}

// Step is one atomic planned action on one application and version.
type Step struct {
	Kind    StepKind `json:"kind" yaml:"kind"`
	AppID   string   `json:"app_id" yaml:"app_id"`
	Version int      `json:"version" yaml:"version"`
}

func (s Step) String() string {
	return fmt.Sprintf("%s(%s,v%d)", s.Kind, s.AppID, s.Version)
}

// =============================================================================
// Plan
// =============================================================================

// Plan is an ephemeral, ordered sequence of steps for one invocation,
// with its inverse attached so the executor never re-plans under failure.
// Plans are computed fresh per request and never persisted.
type Plan struct {
	// Steps run in order; a dependency's start and health-check always
	// precede any dependent's stop.
	Steps []Step

	// Inverse restores every application touched by Steps to its prior
	// version, ordered so dependents unwind before their dependencies.
	Inverse []Step

	// Previous maps each planned application to the version live before
	// this plan, 0 when none was.
	Previous map[string]int
}

// AppOrder returns the planned applications in execution order.
func (p Plan) AppOrder() []string {
	var order []string
	seen := make(map[string]bool)
	for _, s := range p.Steps {
		if !seen[s.AppID] {
			seen[s.AppID] = true
			order = append(order, s.AppID)
		}
	}
	return order
}

// StepsFor returns the forward steps for one application, in order.
func (p Plan) StepsFor(appID string) []Step {
	var steps []Step
	for _, s := range p.Steps {
		if s.AppID == appID {
			steps = append(steps, s)
		}
	}
	return steps
}

// InverseFor returns the inverse steps for one application, in order.
func (p Plan) InverseFor(appID string) []Step {
	var steps []Step
	for _, s := range p.Inverse {
		if s.AppID == appID {
			steps = append(steps, s)
		}
	}
	return steps
}

// String renders the plan one step per line, the form dry-run prints.
func (p Plan) String() string {
	var b strings.Builder
	for _, s := range p.Steps {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// =============================================================================
// Version Selection
// =============================================================================

// SelectorKind tags the version-request variant. The sentinels are resolved
// exclusively inside the planner; no other component interprets them.
type SelectorKind string

const (
	SelectExplicit SelectorKind = "explicit"
	SelectLatest   SelectorKind = "latest"
	SelectRollback SelectorKind = "rollback"
)

// VersionSelector is a tagged version request for one application.
type VersionSelector struct {
	Kind    SelectorKind
	Version int // set only for SelectExplicit
}

func Latest() VersionSelector             { return VersionSelector{Kind: SelectLatest} }
func Explicit(v int) VersionSelector      { return VersionSelector{Kind: SelectExplicit, Version: v} }
func RollbackToLastGood() VersionSelector { return VersionSelector{Kind: SelectRollback} }

// DeployRequest maps each requested application to its version selector.
type DeployRequest map[string]VersionSelector
