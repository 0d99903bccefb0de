package compose

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/dockercli"
)

type fakeLister struct {
	states []dockercli.ContainerState
	err    error
}

func (f *fakeLister) ProjectContainers(_ context.Context, _ string) ([]dockercli.ContainerState, error) {
	return f.states, f.err
}

func TestWaitHealthy(t *testing.T) {
	lister := &fakeLister{states: []dockercli.ContainerState{
		{Service: "web", State: "running", Status: "Up 2 seconds"},
		{Service: "db", State: "running", Status: "Up 2 seconds (healthy)"},
	}}

	h := NewHealthChecker(lister, nil)
	err := h.Wait(context.Background(), "web")
	assert.NoError(t, err)
}

func TestWaitTimesOutOnStoppedContainer(t *testing.T) {
	lister := &fakeLister{states: []dockercli.ContainerState{
		{Service: "web", State: "exited", Status: "Exited (1)"},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := NewHealthChecker(lister, nil)
	err := h.Wait(ctx, "web")
	require.ErrorIs(t, err, domain.ErrDeployStepFailed)

	var cerr *ComposeError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "health", cerr.Op)
}

func TestWaitTimesOutOnNoContainers(t *testing.T) {
	lister := &fakeLister{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := NewHealthChecker(lister, nil)
	assert.ErrorIs(t, h.Wait(ctx, "web"), domain.ErrDeployStepFailed)
}

func TestWaitRetriesListingErrors(t *testing.T) {
	lister := &fakeLister{err: errors.New("daemon busy")}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := NewHealthChecker(lister, nil)
	assert.ErrorIs(t, h.Wait(ctx, "web"), domain.ErrDeployStepFailed)
}

func TestWaitUnhealthyContainer(t *testing.T) {
	lister := &fakeLister{states: []dockercli.ContainerState{
		{Service: "web", State: "running", Status: "Up 5 seconds (unhealthy)"},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := NewHealthChecker(lister, nil)
	assert.ErrorIs(t, h.Wait(ctx, "web"), domain.ErrDeployStepFailed)
}

func TestAllRunning(t *testing.T) {
	ok, detail := allRunning(nil)
	assert.False(t, ok)
	assert.Equal(t, "no containers yet", detail)

	ok, _ = allRunning([]dockercli.ContainerState{{Service: "web", State: "running"}})
	assert.True(t, ok)

	ok, detail = allRunning([]dockercli.ContainerState{
		{Service: "web", State: "running"},
		{Service: "db", State: "restarting"},
	})
	assert.False(t, ok)
	assert.Contains(t, detail, "db")
}
