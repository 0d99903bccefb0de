package domain

import "errors"

// =============================================================================
// Error Taxonomy
// =============================================================================

var (
	// ErrNotFound is returned when a requested artifact or record does not
	// exist. Recoverable: a first-ever deploy legitimately hits it.
	ErrNotFound = errors.New("not found")

	// ErrBuildFailed is returned when the external build tool exits non-zero.
	ErrBuildFailed = errors.New("build failed")

	// ErrVersionNotFound is returned when version resolution yields no artifact.
	ErrVersionNotFound = errors.New("version not found")

	// ErrEnvGenerationFailed is returned when the env-file generator fails.
	ErrEnvGenerationFailed = errors.New("env file generation failed")

	// ErrDeployStepFailed is returned when a stop/start/health-check step fails.
	ErrDeployStepFailed = errors.New("deploy step failed")

	// ErrRollbackFailed is returned when the inverse plan itself fails a step.
	// This is fatal: no further automatic recovery is attempted.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrCyclicDependency is returned when the application dependency graph
	// contains a cycle. Detected at planning time, before any mutation.
	ErrCyclicDependency = errors.New("cyclic dependency between applications")

	// ErrLockContention is returned when the per-application advisory lock
	// cannot be acquired within the configured retry budget.
	ErrLockContention = errors.New("application is locked by another deployment")

	// ErrUnknownApplication is returned when a request references an
	// application that is not present in the configuration.
	ErrUnknownApplication = errors.New("unknown application")
)
