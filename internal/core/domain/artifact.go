package domain

import "time"

// =============================================================================
// Build Artifact
// =============================================================================

// BuildStatus is the terminal status of a build attempt.
type BuildStatus string

const (
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

// Artifact is an immutable record of one build attempt. Versions are
// per-application incrementing integers: the counter gives the total order
// that rollback resolution depends on. Failed builds are recorded too, for
// audit, and consume a version number.
type Artifact struct {
	AppID string `db:"app_id"`

	// Version is unique per application and strictly increasing.
	Version int `db:"version"`

	// ImageRef is the identifier emitted by the external build tool,
	// e.g. "web:3f1c2ab".
	ImageRef string `db:"image_ref"`

	// SourceRef is the resolved source revision the artifact was built from.
	SourceRef string `db:"source_ref"`

	Status  BuildStatus `db:"status"`
	BuiltAt time.Time   `db:"built_at"`
}

// Deployable reports whether the artifact can be the target of a start step.
func (a Artifact) Deployable() bool {
	return a.Status == BuildSucceeded
}

// BuildResult is what the build executor hands the artifact store: the
// external tool's outputs for one build attempt. The store assigns the
// version on append.
type BuildResult struct {
	ImageRef  string
	SourceRef string
	Status    BuildStatus
}
