package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/industware/composor/internal/core/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite. Writes are serialized on a
// single connection; reads run concurrently and always see the last
// completed append.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// One connection: SQLite serializes writers anyway, and a fresh pool
	// connection would see a different database for in-memory DSNs.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Artifact Store
// =============================================================================

// artifactRow represents an artifact row in the database.
type artifactRow struct {
	AppID     string `db:"app_id"`
	Version   int    `db:"version"`
	ImageRef  string `db:"image_ref"`
	SourceRef string `db:"source_ref"`
	Status    string `db:"status"`
	BuiltAt   string `db:"built_at"`
}

// RecordArtifact appends a new artifact with the next version for the app.
// Version assignment and insert happen inside one transaction, so parallel
// builds of different applications never interleave a version.
func (s *SQLiteStore) RecordArtifact(ctx context.Context, appID string, result domain.BuildResult) (*domain.Artifact, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, NewStoreError("RecordArtifact", "artifact", appID, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE app_id = ?`, appID); err != nil {
		return nil, NewStoreError("RecordArtifact", "artifact", appID, err.Error(), err)
	}

	artifact := &domain.Artifact{
		AppID:     appID,
		Version:   next,
		ImageRef:  result.ImageRef,
		SourceRef: result.SourceRef,
		Status:    result.Status,
		BuiltAt:   time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (app_id, version, image_ref, source_ref, status, built_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		artifact.AppID, artifact.Version, artifact.ImageRef, artifact.SourceRef,
		string(artifact.Status), artifact.BuiltAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, NewStoreError("RecordArtifact", "artifact", appID, "version collision", ErrDuplicateVersion)
		}
		return nil, NewStoreError("RecordArtifact", "artifact", appID, err.Error(), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewStoreError("RecordArtifact", "artifact", appID, "failed to commit", err)
	}

	return artifact, nil
}

// LatestArtifact returns the newest succeeded artifact for the application.
func (s *SQLiteStore) LatestArtifact(ctx context.Context, appID string) (*domain.Artifact, error) {
	query := `SELECT * FROM artifacts WHERE app_id = ? AND status = 'succeeded'
	          ORDER BY version DESC LIMIT 1`

	var row artifactRow
	if err := s.db.GetContext(ctx, &row, query, appID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestArtifact", "artifact", appID, "no succeeded artifact", ErrNotFound)
		}
		return nil, NewStoreError("LatestArtifact", "artifact", appID, err.Error(), err)
	}

	return rowToArtifact(&row), nil
}

// GetArtifact returns the artifact at an exact version.
func (s *SQLiteStore) GetArtifact(ctx context.Context, appID string, version int) (*domain.Artifact, error) {
	query := `SELECT * FROM artifacts WHERE app_id = ? AND version = ?`

	var row artifactRow
	if err := s.db.GetContext(ctx, &row, query, appID, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetArtifact", "artifact", appID,
				fmt.Sprintf("version %d not found", version), ErrNotFound)
		}
		return nil, NewStoreError("GetArtifact", "artifact", appID, err.Error(), err)
	}

	return rowToArtifact(&row), nil
}

// ListArtifacts returns all artifacts for the application, newest first.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, appID string) ([]domain.Artifact, error) {
	query := `SELECT * FROM artifacts WHERE app_id = ? ORDER BY version DESC`

	var rows []artifactRow
	if err := s.db.SelectContext(ctx, &rows, query, appID); err != nil {
		return nil, NewStoreError("ListArtifacts", "artifact", appID, err.Error(), err)
	}

	artifacts := make([]domain.Artifact, 0, len(rows))
	for i := range rows {
		artifacts = append(artifacts, *rowToArtifact(&rows[i]))
	}
	return artifacts, nil
}

// =============================================================================
// Version Ledger
// =============================================================================

// recordRow represents a deployment record row in the database.
type recordRow struct {
	ID              string `db:"id"`
	AppID           string `db:"app_id"`
	Version         int    `db:"version"`
	PreviousVersion int    `db:"previous_version"`
	Outcome         string `db:"outcome"`
	Steps           string `db:"steps"`
	Reason          string `db:"reason"`
	StartedAt       string `db:"started_at"`
	FinishedAt      string `db:"finished_at"`
}

// AppendRecord appends one deployment record to the ledger.
func (s *SQLiteStore) AppendRecord(ctx context.Context, record *domain.DeploymentRecord) error {
	stepsJSON, err := json.Marshal(record.Steps)
	if err != nil {
		return NewStoreError("AppendRecord", "record", record.AppID, "failed to serialize steps", ErrInvalidData)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deployment_records
		 (id, app_id, version, previous_version, outcome, steps, reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.AppID, record.Version, record.PreviousVersion,
		string(record.Outcome), string(stepsJSON), record.Reason,
		record.StartedAt.Format(time.RFC3339Nano), record.FinishedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return NewStoreError("AppendRecord", "record", record.AppID, err.Error(), err)
	}

	return nil
}

// History returns the application's deployment records, most recent first.
// Insertion order breaks timestamp ties, so within-invocation rollback
// records sort after the records they supersede.
func (s *SQLiteStore) History(ctx context.Context, appID string) ([]domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployment_records WHERE app_id = ? ORDER BY rowid DESC`

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, appID); err != nil {
		return nil, NewStoreError("History", "record", appID, err.Error(), err)
	}

	records := make([]domain.DeploymentRecord, 0, len(rows))
	for i := range rows {
		rec, err := rowToRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// LastSuccessful returns the most recent record with outcome success.
func (s *SQLiteStore) LastSuccessful(ctx context.Context, appID string) (*domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployment_records WHERE app_id = ? AND outcome = 'success'
	          ORDER BY rowid DESC LIMIT 1`

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, appID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LastSuccessful", "record", appID, "no successful deployment", ErrNotFound)
		}
		return nil, NewStoreError("LastSuccessful", "record", appID, err.Error(), err)
	}

	return rowToRecord(&row)
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

func rowToArtifact(row *artifactRow) *domain.Artifact {
	builtAt, _ := time.Parse(time.RFC3339Nano, row.BuiltAt)
	return &domain.Artifact{
		AppID:     row.AppID,
		Version:   row.Version,
		ImageRef:  row.ImageRef,
		SourceRef: row.SourceRef,
		Status:    domain.BuildStatus(row.Status),
		BuiltAt:   builtAt,
	}
}

func rowToRecord(row *recordRow) (*domain.DeploymentRecord, error) {
	startedAt, _ := time.Parse(time.RFC3339Nano, row.StartedAt)
	finishedAt, _ := time.Parse(time.RFC3339Nano, row.FinishedAt)

	var steps []domain.Step
	if row.Steps != "" && row.Steps != "null" {
		if err := json.Unmarshal([]byte(row.Steps), &steps); err != nil {
			return nil, NewStoreError("rowToRecord", "record", row.AppID, "failed to parse steps", ErrInvalidData)
		}
	}

	return &domain.DeploymentRecord{
		ID:              row.ID,
		AppID:           row.AppID,
		Version:         row.Version,
		PreviousVersion: row.PreviousVersion,
		Outcome:         domain.Outcome(row.Outcome),
		Steps:           steps,
		Reason:          row.Reason,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
	}, nil
}
