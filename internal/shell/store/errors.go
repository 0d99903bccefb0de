// Package store persists Composor's two append-only logs: the artifact
// store and the version ledger. Records are inserted, never updated.
package store

import (
	"errors"
	"fmt"

	"github.com/industware/composor/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when no artifact or record matches.
	// It wraps domain.ErrNotFound so callers match either sentinel.
	ErrNotFound = fmt.Errorf("entity %w", domain.ErrNotFound)

	// ErrDuplicateVersion is returned when an artifact version collides.
	ErrDuplicateVersion = errors.New("artifact version already exists")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when schema migration fails.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrInvalidData is returned when serialization of a record fails.
	ErrInvalidData = errors.New("invalid data format")
)

// StoreError wraps errors with additional context.
type StoreError struct {
	Op      string // Operation that failed (e.g., "RecordArtifact")
	Entity  string // Entity type ("artifact", "record")
	AppID   string // Application id if applicable
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.AppID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.AppID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, appID, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		AppID:   appID,
		Message: message,
		Err:     err,
	}
}
