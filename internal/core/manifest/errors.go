// Package manifest loads and validates the apps manifest: the declaration of
// every application Composor manages, plus a structural check of each
// application's compose files.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyManifest = errors.New("apps manifest is empty")
	ErrInvalidYAML   = errors.New("invalid YAML syntax")
	ErrNoApps        = errors.New("apps manifest must declare at least one application")
	ErrDuplicateApp  = errors.New("duplicate application id")
	ErrNoServices    = errors.New("compose file must define at least one service")
)

// ManifestError wraps errors with context about the offending declaration.
type ManifestError struct {
	AppID   string
	File    string
	Message string
	Err     error
}

func (e *ManifestError) Error() string {
	switch {
	case e.AppID != "" && e.File != "":
		return fmt.Sprintf("app %s: %s: %s", e.AppID, e.File, e.Message)
	case e.AppID != "":
		return fmt.Sprintf("app %s: %s", e.AppID, e.Message)
	default:
		return e.Message
	}
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// NewManifestError creates a new ManifestError.
func NewManifestError(appID, file, message string, err error) *ManifestError {
	return &ManifestError{
		AppID:   appID,
		File:    file,
		Message: message,
		Err:     err,
	}
}
