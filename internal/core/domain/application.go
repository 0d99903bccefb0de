// Package domain contains the core types of Composor: applications,
// build artifacts, deployment records, and plans. No I/O lives here.
package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// =============================================================================
// Application
// =============================================================================

var (
	ErrInvalidAppID     = errors.New("invalid application id")
	ErrNoComposeFiles   = errors.New("application must declare at least one compose file")
	ErrMissingRepo      = errors.New("application must declare a git repository")
	ErrSelfDependency   = errors.New("application cannot depend on itself")
	ErrUnknownDependsOn = errors.New("dependency references unknown application")
)

// appIDPattern matches identifiers that are safe to use as compose project
// names, image names, and file name fragments.
var appIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Application is one deployable unit: a named set of compose-style service
// manifests built from a git repository.
type Application struct {
	// ID uniquely identifies the application. Used as the compose project
	// name and as the image repository name.
	ID string `yaml:"name"`

	// Repo is the git URL the application is built from.
	Repo string `yaml:"repo"`

	// Ref is the git branch, tag, or commit to build. Defaults to "main".
	Ref string `yaml:"ref"`

	// Path optionally overrides the checkout base directory for this
	// application. When empty the configured base directory is used.
	Path string `yaml:"path"`

	// ComposeFiles is the ordered set of service-manifest paths passed to
	// the compose tool with repeated -f flags.
	ComposeFiles []string `yaml:"compose_files"`

	// DependsOn lists applications that must be healthy before this one
	// deploys. The graph over all applications must be acyclic.
	DependsOn []string `yaml:"depends_on"`

	// Env is the key/value template handed to the env-file generator.
	Env map[string]string `yaml:"env"`
}

// Validate checks a single application declaration.
func (a Application) Validate() error {
	if !appIDPattern.MatchString(a.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidAppID, a.ID)
	}
	if a.Repo == "" {
		return fmt.Errorf("%w: %s", ErrMissingRepo, a.ID)
	}
	if len(a.ComposeFiles) == 0 {
		return fmt.Errorf("%w: %s", ErrNoComposeFiles, a.ID)
	}
	for _, dep := range a.DependsOn {
		if dep == a.ID {
			return fmt.Errorf("%w: %s", ErrSelfDependency, a.ID)
		}
	}
	return nil
}
