// Package envfile materializes the environment file the compose tool reads:
// the application's key/value template plus the image reference of the
// artifact being deployed.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/industware/composor/internal/core/domain"
)

// Generator writes env files into one directory.
type Generator struct {
	dir string
}

// New creates a generator rooted at dir.
func New(dir string) *Generator {
	return &Generator{dir: dir}
}

// Generate writes the env file for one (application, artifact) pair and
// returns its path. The file carries the template entries plus
// <APP>_IMAGE and <APP>_VERSION; keys are sorted so identical inputs
// produce identical files. Any failure wraps domain.ErrEnvGenerationFailed.
func (g *Generator) Generate(app domain.Application, artifact domain.Artifact) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrEnvGenerationFailed, app.ID, err)
	}

	vars := make(map[string]string, len(app.Env)+2)
	for k, v := range app.Env {
		vars[k] = v
	}
	prefix := strings.ToUpper(strings.NewReplacer("-", "_").Replace(app.ID))
	vars[prefix+"_IMAGE"] = artifact.ImageRef
	vars[prefix+"_VERSION"] = fmt.Sprintf("%d", artifact.Version)

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, vars[k])
	}

	path := filepath.Join(g.dir, fmt.Sprintf("%s_v%d.env", app.ID, artifact.Version))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrEnvGenerationFailed, app.ID, err)
	}

	return path, nil
}
