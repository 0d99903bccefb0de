package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/shell/runner"
	"github.com/industware/composor/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeProber struct {
	existing map[string]bool
	err      error
}

func (f *fakeProber) ImageExists(_ context.Context, ref string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.existing[ref], nil
}

func setup(t *testing.T) (store.Store, *runner.Fake, *fakeProber, *Builder) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fake := runner.NewFake()
	prober := &fakeProber{existing: make(map[string]bool)}
	b := New(s, fake, prober, Config{BaseDir: t.TempDir()}, nil)
	return s, fake, prober, b
}

func testApp(id string) domain.Application {
	return domain.Application{
		ID:           id,
		Repo:         "https://example.com/" + id + ".git",
		Ref:          "main",
		ComposeFiles: []string{id + ".yaml"},
	}
}

// stubGit scripts every in-checkout git command to succeed with the given
// revision on stdout; only HeadSHA reads it.
func stubGit(fake *runner.Fake, sha string) {
	fake.Script["git -C "] = runner.Result{Stdout: sha}
}

// =============================================================================
// Tests
// =============================================================================

func TestBuildRecordsArtifact(t *testing.T) {
	s, fake, _, b := setup(t)
	stubGit(fake, "3f1c2ab")

	artifact, err := b.Build(context.Background(), testApp("web"))
	require.NoError(t, err)
	assert.Equal(t, 1, artifact.Version)
	assert.Equal(t, "web:3f1c2ab", artifact.ImageRef)
	assert.Equal(t, "3f1c2ab", artifact.SourceRef)
	assert.Equal(t, domain.BuildSucceeded, artifact.Status)

	assert.Equal(t, 1, fake.CallCount("docker build -t web:3f1c2ab"))

	stored, err := s.GetArtifact(context.Background(), "web", 1)
	require.NoError(t, err)
	assert.Equal(t, "web:3f1c2ab", stored.ImageRef)
}

func TestBuildSkipsWhenImageExists(t *testing.T) {
	_, fake, prober, b := setup(t)
	stubGit(fake, "3f1c2ab")
	prober.existing["web:3f1c2ab"] = true

	artifact, err := b.Build(context.Background(), testApp("web"))
	require.NoError(t, err)
	assert.Equal(t, domain.BuildSucceeded, artifact.Status)

	// No build invocation, but a fresh version is still recorded.
	assert.Equal(t, 0, fake.CallCount("docker build"))
	assert.Equal(t, 1, artifact.Version)

	again, err := b.Build(context.Background(), testApp("web"))
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version, "every build call records a new version")
}

func TestBuildProbeFailureBuildsAnyway(t *testing.T) {
	_, fake, prober, b := setup(t)
	stubGit(fake, "3f1c2ab")
	prober.err = errors.New("docker daemon unreachable")

	artifact, err := b.Build(context.Background(), testApp("web"))
	require.NoError(t, err)
	assert.Equal(t, domain.BuildSucceeded, artifact.Status)
	assert.Equal(t, 1, fake.CallCount("docker build"))
}

func TestBuildFailurePersisted(t *testing.T) {
	s, fake, _, b := setup(t)
	stubGit(fake, "3f1c2ab")
	fake.Script["docker build"] = runner.Result{ExitCode: 1, Stderr: "missing Dockerfile"}

	_, err := b.Build(context.Background(), testApp("web"))
	require.ErrorIs(t, err, domain.ErrBuildFailed)

	var berr *BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "web", berr.AppID)
	assert.Contains(t, berr.Message, "missing Dockerfile")

	// The failed attempt is on record and consumed a version.
	artifacts, err := s.ListArtifacts(context.Background(), "web")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, domain.BuildFailed, artifacts[0].Status)
	assert.Equal(t, 1, artifacts[0].Version)
}

func TestBuildGitFailure(t *testing.T) {
	_, fake, _, b := setup(t)
	fake.Script["git clone"] = runner.Result{ExitCode: 128, Stderr: "repository not found"}

	_, err := b.Build(context.Background(), testApp("web"))
	require.ErrorIs(t, err, domain.ErrBuildFailed)
	assert.Equal(t, 0, fake.CallCount("docker build"))
}

func TestBuildAll(t *testing.T) {
	s, fake, _, b := setup(t)
	stubGit(fake, "3f1c2ab")
	// One sibling fails; the others must be unaffected.
	fake.Script["docker build -t bad:"] = runner.Result{ExitCode: 2, Stderr: "compile error"}

	apps := []domain.Application{testApp("alpha"), testApp("bad"), testApp("omega")}
	outcomes := b.BuildAll(context.Background(), apps)
	require.Len(t, outcomes, 3)

	// Input order preserved.
	assert.Equal(t, "alpha", outcomes[0].App.ID)
	assert.Equal(t, "bad", outcomes[1].App.ID)
	assert.Equal(t, "omega", outcomes[2].App.ID)

	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrBuildFailed)
	assert.NoError(t, outcomes[2].Err)

	for _, id := range []string{"alpha", "omega"} {
		artifact, err := s.LatestArtifact(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, artifact.Version, id)
	}
}

func TestBuildAllCancelled(t *testing.T) {
	_, fake, _, b := setup(t)
	stubGit(fake, "3f1c2ab")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := b.BuildAll(ctx, []domain.Application{testApp("web")})
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
}

func TestCheckoutDirOverride(t *testing.T) {
	_, _, _, b := setup(t)

	app := testApp("web")
	assert.Equal(t, b.config.BaseDir+"/web", b.checkoutDir(app))

	app.Path = "/srv/checkouts"
	assert.Equal(t, "/srv/checkouts/web", b.checkoutDir(app))
}
