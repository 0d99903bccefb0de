package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/core/manifest"
	"github.com/industware/composor/internal/core/planner"
	"github.com/industware/composor/internal/shell/builder"
	"github.com/industware/composor/internal/shell/compose"
	"github.com/industware/composor/internal/shell/dockercli"
	"github.com/industware/composor/internal/shell/envfile"
	"github.com/industware/composor/internal/shell/executor"
	"github.com/industware/composor/internal/shell/runner"
	"github.com/industware/composor/internal/shell/store"
)

// =============================================================================
// Test Fixture
// =============================================================================

type fakeProber struct{}

func (fakeProber) ImageExists(context.Context, string) (bool, error) { return false, nil }

type fakeLister struct{}

func (fakeLister) ProjectContainers(_ context.Context, project string) ([]dockercli.ContainerState, error) {
	return []dockercli.ContainerState{{Service: "web", State: "running", Status: "Up"}}, nil
}

const manifestYAML = `
apps:
  - name: db
    repo: https://example.com/db.git
    compose_files: [db.yaml]
  - name: api
    repo: https://example.com/api.git
    compose_files: [api.yaml]
    depends_on: [db]
`

type fixture struct {
	orch   *Orchestrator
	store  store.Store
	fake   *runner.Fake
	envDir string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg, err := manifest.Load([]byte(manifestYAML))
	require.NoError(t, err)

	fake := runner.NewFake()
	fake.Script["git -C "] = runner.Result{Stdout: "abc1234"}

	envDir := t.TempDir()

	b := builder.New(s, fake, fakeProber{}, builder.Config{BaseDir: t.TempDir()}, nil)
	locks := executor.NewLockManager(t.TempDir(), executor.LockConfig{Retries: 1, Backoff: time.Millisecond}, nil)
	exec := executor.New(
		s,
		compose.NewTool(fake, []string{"docker", "compose"}, nil),
		compose.NewHealthChecker(fakeLister{}, nil),
		envfile.New(envDir),
		locks,
		nil,
	)

	orch := New(Config{
		Registry: reg,
		Store:    s,
		Builder:  b,
		Planner:  planner.New(s, s),
		Executor: exec,
		EnvDir:   envDir,
	})
	return &fixture{orch: orch, store: s, fake: fake, envDir: envDir}
}

func reportFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "report_*.yaml"))
	require.NoError(t, err)
	return matches
}

// =============================================================================
// Build
// =============================================================================

func TestBuildCommandAll(t *testing.T) {
	f := setup(t)

	outcomes, err := f.orch.BuildCommand(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 2, "empty id list builds everything")

	for _, out := range outcomes {
		require.NoError(t, out.Err)
		assert.Equal(t, 1, out.Artifact.Version)
	}
}

func TestBuildCommandSubset(t *testing.T) {
	f := setup(t)

	outcomes, err := f.orch.BuildCommand(context.Background(), []string{"api"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "api", outcomes[0].App.ID)
}

func TestBuildCommandUnknownApp(t *testing.T) {
	f := setup(t)

	_, err := f.orch.BuildCommand(context.Background(), []string{"ghost"})
	assert.ErrorIs(t, err, domain.ErrUnknownApplication)
}

func TestBuildCommandPartialFailure(t *testing.T) {
	f := setup(t)
	f.fake.Script["docker build -t api:"] = runner.Result{ExitCode: 1, Stderr: "boom"}

	outcomes, err := f.orch.BuildCommand(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrBuildFailed)
	require.Len(t, outcomes, 2, "outcomes still returned for the whole batch")

	byID := map[string]error{}
	for _, out := range outcomes {
		byID[out.App.ID] = out.Err
	}
	assert.NoError(t, byID["db"])
	assert.Error(t, byID["api"])
}

// =============================================================================
// Deploy
// =============================================================================

func TestDeployCommand(t *testing.T) {
	f := setup(t)

	_, err := f.orch.BuildCommand(context.Background(), nil)
	require.NoError(t, err)

	report, err := f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"db": domain.Latest(), "api": domain.Latest()},
		executor.Options{})
	require.NoError(t, err)
	assert.False(t, report.DryRun)

	// Dependency order: db first.
	assert.Equal(t, "db", report.Steps[0].AppID)

	// One success record per app.
	for _, id := range []string{"db", "api"} {
		hist, err := f.store.History(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, hist, 1, id)
		assert.Equal(t, domain.OutcomeSuccess, hist[0].Outcome)
	}

	assert.Len(t, reportFiles(t, f.envDir), 1, "invocation report written")
}

func TestDeployCommandDryRun(t *testing.T) {
	f := setup(t)

	_, err := f.orch.BuildCommand(context.Background(), nil)
	require.NoError(t, err)
	composeCallsAfterBuild := f.fake.CallCount("docker compose")

	report, err := f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"db": domain.Latest()},
		executor.Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)

	for _, step := range report.Steps {
		assert.Equal(t, executor.StepPlanned, step.Status)
	}

	// No compose invocations, no ledger writes, no report file.
	assert.Equal(t, composeCallsAfterBuild, f.fake.CallCount("docker compose"))
	hist, err := f.store.History(context.Background(), "db")
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Empty(t, reportFiles(t, f.envDir))
}

func TestDeployCommandDryRunMatchesRealPlan(t *testing.T) {
	f := setup(t)

	_, err := f.orch.BuildCommand(context.Background(), nil)
	require.NoError(t, err)

	dry, err := f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"db": domain.Latest()}, executor.Options{DryRun: true})
	require.NoError(t, err)

	actual, err := f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"db": domain.Latest()}, executor.Options{})
	require.NoError(t, err)

	require.Len(t, actual.Steps, len(dry.Steps))
	for i := range dry.Steps {
		assert.Equal(t, dry.Steps[i].Kind, actual.Steps[i].Kind)
		assert.Equal(t, dry.Steps[i].AppID, actual.Steps[i].AppID)
		assert.Equal(t, dry.Steps[i].Version, actual.Steps[i].Version)
	}
}

func TestDeployCommandUnknownApp(t *testing.T) {
	f := setup(t)

	_, err := f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"ghost": domain.Latest()}, executor.Options{})
	assert.ErrorIs(t, err, domain.ErrUnknownApplication)
}

func TestDeployCommandNothingBuilt(t *testing.T) {
	f := setup(t)

	_, err := f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"db": domain.Latest()}, executor.Options{})
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

// =============================================================================
// History
// =============================================================================

func TestHistory(t *testing.T) {
	f := setup(t)

	_, err := f.orch.BuildCommand(context.Background(), []string{"db"})
	require.NoError(t, err)
	_, err = f.orch.DeployCommand(context.Background(),
		domain.DeployRequest{"db": domain.Latest()}, executor.Options{})
	require.NoError(t, err)

	status, err := f.orch.History(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, "db", status.AppID)
	assert.Equal(t, 1, status.LiveVersion)
	require.Len(t, status.Records, 1)
}

func TestHistoryNeverDeployed(t *testing.T) {
	f := setup(t)

	status, err := f.orch.History(context.Background(), "db")
	require.NoError(t, err)
	assert.Zero(t, status.LiveVersion)
	assert.Empty(t, status.Records)
}

func TestHistoryUnknownApp(t *testing.T) {
	f := setup(t)

	_, err := f.orch.History(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownApplication)
}
