package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/industware/composor/internal/core/domain"
)

// =============================================================================
// Per-Application Advisory Locks
// =============================================================================

// LockConfig tunes lock acquisition.
type LockConfig struct {
	// Retries is how many times acquisition is re-attempted. Default: 5.
	Retries int

	// Backoff is the wait between attempts. Default: 2s.
	Backoff time.Duration
}

// LockManager hands out advisory per-application locks backed by lock files
// in the state directory, so two deployments of the same application exclude
// each other even across processes. The lock is held for the duration of one
// application's step sub-sequence.
type LockManager struct {
	dir    string
	config LockConfig
	logger *slog.Logger
}

// NewLockManager creates a lock manager rooted at dir.
func NewLockManager(dir string, config LockConfig, logger *slog.Logger) *LockManager {
	if config.Retries <= 0 {
		config.Retries = 5
	}
	if config.Backoff <= 0 {
		config.Backoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockManager{dir: dir, config: config, logger: logger.With("component", "locks")}
}

// Acquire takes the lock for one application, retrying with backoff. The
// returned release function must be called exactly once. Exhausting the
// retry budget surfaces domain.ErrLockContention.
func (m *LockManager) Acquire(ctx context.Context, appID string) (func(), error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := filepath.Join(m.dir, appID+".lock")
	attempts := m.config.Retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() {
				if rmErr := os.Remove(path); rmErr != nil {
					m.logger.Warn("failed to release lock", "app_id", appID, "error", rmErr)
				}
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", appID, err)
		}

		if attempt < attempts {
			m.logger.Debug("lock busy, retrying", "app_id", appID, "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %v", domain.ErrLockContention, appID, ctx.Err())
			case <-time.After(m.config.Backoff):
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrLockContention, appID)
}
