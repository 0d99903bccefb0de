package store

import (
	"context"

	"github.com/industware/composor/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store is the persistence interface over the artifact store and the
// version ledger. Both are append-only: no method mutates an existing row,
// so concurrent readers never observe a partially written entity.
type Store interface {
	// Artifact store. The build executor is the only writer.
	RecordArtifact(ctx context.Context, appID string, result domain.BuildResult) (*domain.Artifact, error)
	LatestArtifact(ctx context.Context, appID string) (*domain.Artifact, error)
	GetArtifact(ctx context.Context, appID string, version int) (*domain.Artifact, error)
	ListArtifacts(ctx context.Context, appID string) ([]domain.Artifact, error)

	// Version ledger. The deployment executor is the only writer.
	AppendRecord(ctx context.Context, record *domain.DeploymentRecord) error
	History(ctx context.Context, appID string) ([]domain.DeploymentRecord, error)
	LastSuccessful(ctx context.Context, appID string) (*domain.DeploymentRecord, error)

	// Lifecycle
	Close() error
}
