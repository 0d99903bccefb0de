package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/industware/composor/internal/core/domain"
)

const validManifest = `
apps:
  - name: db
    repo: https://example.com/db.git
    compose_files: [db.yaml]
  - name: api
    repo: https://example.com/api.git
    ref: release
    compose_files: [api.yaml]
    depends_on: [db]
    env:
      API_PORT: "8080"
`

func TestLoad(t *testing.T) {
	reg, err := Load([]byte(validManifest))
	require.NoError(t, err)

	db, ok := reg.Get("db")
	require.True(t, ok)
	assert.Equal(t, "main", db.Ref, "ref defaults to main")

	api, ok := reg.Get("api")
	require.True(t, ok)
	assert.Equal(t, "release", api.Ref)
	assert.Equal(t, []string{"db"}, api.DependsOn)
	assert.Equal(t, "8080", api.Env["API_PORT"])

	assert.Equal(t, []string{"api", "db"}, reg.IDs())
	require.Len(t, reg.All(), 2)
	assert.Equal(t, "db", reg.All()[0].ID, "declaration order preserved")
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyManifest)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load([]byte("apps: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadNoApps(t *testing.T) {
	_, err := Load([]byte("apps: []"))
	assert.ErrorIs(t, err, ErrNoApps)
}

func TestLoadDuplicateApp(t *testing.T) {
	data := `
apps:
  - name: web
    repo: https://example.com/a.git
    compose_files: [a.yaml]
  - name: web
    repo: https://example.com/b.git
    compose_files: [b.yaml]
`
	_, err := Load([]byte(data))
	assert.ErrorIs(t, err, ErrDuplicateApp)
}

func TestLoadUnknownDependency(t *testing.T) {
	data := `
apps:
  - name: api
    repo: https://example.com/api.git
    compose_files: [api.yaml]
    depends_on: [ghost]
`
	_, err := Load([]byte(data))
	assert.ErrorIs(t, err, domain.ErrUnknownDependsOn)

	var merr *ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "api", merr.AppID)
}

func TestLoadCyclicDependencies(t *testing.T) {
	data := `
apps:
  - name: a
    repo: https://example.com/a.git
    compose_files: [a.yaml]
    depends_on: [b]
  - name: b
    repo: https://example.com/b.git
    compose_files: [b.yaml]
    depends_on: [a]
`
	_, err := Load([]byte(data))
	require.ErrorIs(t, err, domain.ErrCyclicDependency)
	assert.Contains(t, err.Error(), "[a b]")
}

// A cycle is a configuration defect even when no single deployment would
// name every member, so it fails at load time rather than at planning time.
func TestLoadCyclicDependenciesIndirect(t *testing.T) {
	data := `
apps:
  - name: a
    repo: https://example.com/a.git
    compose_files: [a.yaml]
    depends_on: [b]
  - name: b
    repo: https://example.com/b.git
    compose_files: [b.yaml]
    depends_on: [c]
  - name: c
    repo: https://example.com/c.git
    compose_files: [c.yaml]
    depends_on: [a]
  - name: standalone
    repo: https://example.com/s.git
    compose_files: [s.yaml]
`
	reg, err := Load([]byte(data))
	assert.Nil(t, reg)
	require.ErrorIs(t, err, domain.ErrCyclicDependency)
}

func TestLoadInvalidApp(t *testing.T) {
	data := `
apps:
  - name: Bad Name
    repo: https://example.com/x.git
    compose_files: [x.yaml]
`
	_, err := Load([]byte(data))
	assert.ErrorIs(t, err, domain.ErrInvalidAppID)
}

func TestSubset(t *testing.T) {
	reg, err := Load([]byte(validManifest))
	require.NoError(t, err)

	apps, err := reg.Subset([]string{"api"})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "api", apps[0].ID)

	_, err = reg.Subset([]string{"api", "ghost"})
	assert.ErrorIs(t, err, domain.ErrUnknownApplication)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	composeContent := `
services:
  web:
    image: ${WEB_IMAGE}
  worker:
    image: ${WEB_IMAGE}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web.yaml"), []byte(composeContent), 0o644))

	manifestContent := `
apps:
  - name: web
    repo: https://example.com/web.git
    compose_files: [web.yaml]
`
	path := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestContent), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)

	_, ok := reg.Get("web")
	assert.True(t, ok)
	assert.Equal(t, []string{"web", "worker"}, reg.Services("web"))
}

func TestLoadFileMissingComposeFile(t *testing.T) {
	dir := t.TempDir()
	manifestContent := `
apps:
  - name: web
    repo: https://example.com/web.git
    compose_files: [missing.yaml]
`
	path := filepath.Join(dir, "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestContent), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)

	var merr *ManifestError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "web", merr.AppID)
	assert.Equal(t, "missing.yaml", merr.File)
}

func TestValidateComposeSpec(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		err := ValidateComposeSpec("services:\n  web:\n    image: nginx\n")
		assert.NoError(t, err)
	})

	t.Run("unset variables allowed", func(t *testing.T) {
		err := ValidateComposeSpec("services:\n  web:\n    image: ${WEB_IMAGE}\n")
		assert.NoError(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, ValidateComposeSpec(""), ErrEmptyManifest)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		assert.ErrorIs(t, ValidateComposeSpec("services: ["), ErrInvalidYAML)
	})

	t.Run("no services", func(t *testing.T) {
		assert.ErrorIs(t, ValidateComposeSpec("volumes:\n  data:\n"), ErrNoServices)
	})
}

func TestServiceNames(t *testing.T) {
	names, err := ServiceNames("services:\n  zeta:\n    image: a\n  alpha:\n    image: b\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}
