// Package builder drives the external build tool per application and records
// the resulting artifacts. Builds for independent applications may run in
// parallel; each writes only its own application's artifact line.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/gitrepo"
	"github.com/industware/composor/internal/shell/runner"
	"github.com/industware/composor/internal/shell/store"
)

// =============================================================================
// Error Type
// =============================================================================

// BuildError wraps a build failure with the application it belongs to.
type BuildError struct {
	AppID   string
	Message string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %s", e.AppID, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Builder
// =============================================================================

// ImageProber answers whether an image reference already exists locally.
type ImageProber interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// Config configures the builder.
type Config struct {
	// BaseDir is where application checkouts live, one subdirectory per
	// application id.
	BaseDir string

	// MaxConcurrent bounds the build worker pool. Default: 2.
	MaxConcurrent int
}

// Builder is the build executor: source preparation, external build tool
// invocation, artifact recording.
type Builder struct {
	store  store.Store
	runner runner.Runner
	prober ImageProber
	config Config
	logger *slog.Logger
}

// New creates a builder.
func New(s store.Store, r runner.Runner, prober ImageProber, config Config, logger *slog.Logger) *Builder {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:  s,
		runner: r,
		prober: prober,
		config: config,
		logger: logger.With("component", "builder"),
	}
}

// Build prepares the application's source at its declared ref, invokes the
// external build tool, and records the artifact. Failed builds are persisted
// too, status failed, for audit; the failure still surfaces to the caller.
// Every call records a new version, never an overwrite: retrying is the
// caller's decision.
func (b *Builder) Build(ctx context.Context, app domain.Application) (*domain.Artifact, error) {
	logger := b.logger.With("app_id", app.ID, "ref", app.Ref)

	dir := b.checkoutDir(app)
	repo := gitrepo.New(app.Repo, dir, b.runner, b.logger)
	if err := repo.EnsureRef(ctx, app.Ref); err != nil {
		return nil, &BuildError{AppID: app.ID, Message: err.Error(), Err: domain.ErrBuildFailed}
	}

	sha, err := repo.HeadSHA(ctx)
	if err != nil {
		return nil, &BuildError{AppID: app.ID, Message: err.Error(), Err: domain.ErrBuildFailed}
	}

	imageRef := fmt.Sprintf("%s:%s", app.ID, sha)
	result := domain.BuildResult{ImageRef: imageRef, SourceRef: sha}

	exists, err := b.prober.ImageExists(ctx, imageRef)
	if err != nil {
		logger.Warn("image probe failed, building anyway", "error", err)
	}

	if exists {
		logger.Info("image already exists, skipping build", "image", imageRef)
		result.Status = domain.BuildSucceeded
	} else {
		logger.Info("building image", "image", imageRef)
		res, err := b.runner.Run(ctx, "docker", "build", "-t", imageRef, dir)
		switch {
		case err != nil:
			result.Status = domain.BuildFailed
		case res.ExitCode != 0:
			result.Status = domain.BuildFailed
			err = fmt.Errorf("%w: exit %d: %s", domain.ErrBuildFailed, res.ExitCode, res.Stderr)
		default:
			result.Status = domain.BuildSucceeded
		}

		if result.Status == domain.BuildFailed {
			// Persist the failure before surfacing it.
			if _, recErr := b.store.RecordArtifact(ctx, app.ID, result); recErr != nil {
				logger.Error("failed to record failed build", "error", recErr)
			}
			return nil, &BuildError{AppID: app.ID, Message: err.Error(), Err: domain.ErrBuildFailed}
		}
	}

	artifact, err := b.store.RecordArtifact(ctx, app.ID, result)
	if err != nil {
		return nil, &BuildError{AppID: app.ID, Message: err.Error(), Err: err}
	}

	logger.Info("build recorded", "version", artifact.Version, "image", imageRef)
	return artifact, nil
}

// checkoutDir resolves where an application's source lives.
func (b *Builder) checkoutDir(app domain.Application) string {
	base := b.config.BaseDir
	if app.Path != "" {
		base = app.Path
	}
	return filepath.Join(base, app.ID)
}

// =============================================================================
// Batch Builds
// =============================================================================

// Outcome is one application's result within a batch build.
type Outcome struct {
	App      domain.Application
	Artifact *domain.Artifact
	Err      error
}

// BuildAll builds every application using a bounded worker pool. A failing
// sibling never aborts the batch; each outcome carries its own error.
// Results come back in input order.
func (b *Builder) BuildAll(ctx context.Context, apps []domain.Application) []Outcome {
	outcomes := make([]Outcome, len(apps))
	sem := make(chan struct{}, b.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				outcomes[i] = Outcome{App: apps[i], Err: ctx.Err()}
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			artifact, err := b.Build(ctx, apps[i])
			outcomes[i] = Outcome{App: apps[i], Artifact: artifact, Err: err}
		}(i)
	}

	wg.Wait()
	return outcomes
}
