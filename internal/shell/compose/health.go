package compose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/dockercli"
)

// =============================================================================
// Health Checking
// =============================================================================

// ContainerLister is the Docker API view the health checker needs.
type ContainerLister interface {
	ProjectContainers(ctx context.Context, project string) ([]dockercli.ContainerState, error)
}

// pollInterval is how often container state is re-read while waiting.
const pollInterval = 2 * time.Second

// HealthChecker observes whether an application's containers came up.
type HealthChecker struct {
	docker ContainerLister
	logger *slog.Logger
}

// NewHealthChecker creates a health checker over the Docker API.
func NewHealthChecker(docker ContainerLister, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		docker: docker,
		logger: logger.With("component", "health"),
	}
}

// Wait polls the application's containers until all are running (and not
// reporting unhealthy) or the context expires. A failed health check is a
// deploy step failure; the executor treats it exactly like a failed start.
func (h *HealthChecker) Wait(ctx context.Context, appID string) error {
	for {
		states, err := h.docker.ProjectContainers(ctx, appID)
		if err == nil {
			if ok, detail := allRunning(states); ok {
				h.logger.Debug("application healthy", "app_id", appID, "containers", len(states))
				return nil
			} else {
				h.logger.Debug("waiting for containers", "app_id", appID, "detail", detail)
			}
		} else {
			h.logger.Debug("container listing failed, retrying", "app_id", appID, "error", err)
		}

		select {
		case <-ctx.Done():
			return &ComposeError{
				Op:      "health",
				AppID:   appID,
				Message: fmt.Sprintf("containers not healthy: %v", ctx.Err()),
				Err:     domain.ErrDeployStepFailed,
			}
		case <-time.After(pollInterval):
		}
	}
}

// allRunning reports whether every container is up, with a detail string for
// the first one that is not.
func allRunning(states []dockercli.ContainerState) (bool, string) {
	if len(states) == 0 {
		return false, "no containers yet"
	}
	for _, s := range states {
		if !s.Running() {
			return false, fmt.Sprintf("%s is %s", s.Service, s.State)
		}
	}
	return true, ""
}
