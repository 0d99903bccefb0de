package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Record
// =============================================================================

// Outcome is the terminal outcome of one application's deployment attempt.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// DeploymentRecord is one append-only ledger entry: a single application's
// deployment attempt within one invocation. Never mutated after append.
type DeploymentRecord struct {
	ID    string `db:"id"`
	AppID string `db:"app_id"`

	// Version is the artifact version this attempt deployed.
	Version int `db:"version"`

	// PreviousVersion is the version that was live before the attempt,
	// 0 when the application had never been deployed. It is the target of
	// any rollback of this record.
	PreviousVersion int `db:"previous_version"`

	Outcome Outcome `db:"outcome"`

	// Steps is the ordered list of steps executed for this application,
	// rollback steps included.
	Steps []Step `db:"-"`

	// Reason carries the operator-supplied rollback reason, if any.
	Reason string `db:"reason"`

	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// NewDeploymentRecord starts a record for one application's sub-sequence.
func NewDeploymentRecord(appID string, version, previousVersion int) *DeploymentRecord {
	return &DeploymentRecord{
		ID:              uuid.New().String(),
		AppID:           appID,
		Version:         version,
		PreviousVersion: previousVersion,
		StartedAt:       time.Now().UTC(),
	}
}

// LiveVersionAfter derives the version left running by this record, or 0
// when the record does not determine one (a failed start leaves the previous
// state unknown; callers keep scanning older records).
func (r DeploymentRecord) LiveVersionAfter() int {
	switch r.Outcome {
	case OutcomeSuccess:
		return r.Version
	case OutcomeRolledBack:
		return r.PreviousVersion
	default:
		return 0
	}
}
