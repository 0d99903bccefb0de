package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/industware/composor/internal/core/domain"
	"github.com/industware/composor/internal/core/planner"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Registry
// =============================================================================

// Registry holds the validated application set from one apps manifest.
type Registry struct {
	apps     []domain.Application
	byID     map[string]domain.Application
	services map[string][]string
}

// Get returns the application with the given id.
func (r *Registry) Get(id string) (domain.Application, bool) {
	app, ok := r.byID[id]
	return app, ok
}

// All returns every application in declaration order.
func (r *Registry) All() []domain.Application {
	return r.apps
}

// IDs returns all application ids, sorted ascending.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.apps))
	for _, app := range r.apps {
		ids = append(ids, app.ID)
	}
	sort.Strings(ids)
	return ids
}

// Services returns the service names declared across an application's
// compose files, sorted ascending. Populated only by LoadFile.
func (r *Registry) Services(id string) []string {
	return r.services[id]
}

// Subset resolves the given ids against the registry, preserving the
// requested order. Unknown ids fail with domain.ErrUnknownApplication.
func (r *Registry) Subset(ids []string) ([]domain.Application, error) {
	apps := make([]domain.Application, 0, len(ids))
	for _, id := range ids {
		app, ok := r.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownApplication, id)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// =============================================================================
// Loading
// =============================================================================

// appsFile mirrors the top-level apps manifest structure.
type appsFile struct {
	Apps []domain.Application `yaml:"apps"`
}

// Load parses and validates an apps manifest from raw YAML.
func Load(data []byte) (*Registry, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrEmptyManifest
	}

	var file appsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewManifestError("", "", "invalid YAML syntax", ErrInvalidYAML)
	}
	if len(file.Apps) == 0 {
		return nil, ErrNoApps
	}

	reg := &Registry{byID: make(map[string]domain.Application, len(file.Apps))}
	for _, app := range file.Apps {
		if app.Ref == "" {
			app.Ref = "main"
		}
		if err := app.Validate(); err != nil {
			return nil, NewManifestError(app.ID, "", err.Error(), err)
		}
		if _, dup := reg.byID[app.ID]; dup {
			return nil, NewManifestError(app.ID, "", "declared more than once", ErrDuplicateApp)
		}
		reg.byID[app.ID] = app
		reg.apps = append(reg.apps, app)
	}

	// Dependencies must reference declared applications.
	for _, app := range reg.apps {
		for _, dep := range app.DependsOn {
			if _, ok := reg.byID[dep]; !ok {
				return nil, NewManifestError(app.ID, "",
					fmt.Sprintf("depends on undeclared application %q", dep),
					domain.ErrUnknownDependsOn)
			}
		}
	}

	// The declared graph must be acyclic as a whole. Checking here, not per
	// request, means a cycle is rejected even when no single deployment ever
	// names all of its members.
	if _, err := planner.TopoSort(reg.apps); err != nil {
		return nil, NewManifestError("", "", err.Error(), err)
	}

	return reg, nil
}

// LoadFile reads and validates the apps manifest at path, then validates the
// compose files of every application. Relative compose paths are resolved
// against the manifest's directory.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewManifestError("", path, err.Error(), err)
	}

	reg, err := Load(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	reg.services = make(map[string][]string, len(reg.apps))
	for _, app := range reg.apps {
		seen := make(map[string]bool)
		for _, cf := range app.ComposeFiles {
			resolved := cf
			if !filepath.IsAbs(resolved) {
				resolved = filepath.Join(base, resolved)
			}
			content, err := os.ReadFile(resolved)
			if err != nil {
				return nil, NewManifestError(app.ID, cf, err.Error(), err)
			}
			if err := ValidateComposeSpec(string(content)); err != nil {
				return nil, NewManifestError(app.ID, cf, err.Error(), err)
			}

			names, err := ServiceNames(string(content))
			if err != nil {
				return nil, NewManifestError(app.ID, cf, err.Error(), err)
			}
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					reg.services[app.ID] = append(reg.services[app.ID], name)
				}
			}
		}
		sort.Strings(reg.services[app.ID])
	}

	return reg, nil
}
