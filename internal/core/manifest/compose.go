package manifest

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Compose File Validation
// =============================================================================

// ValidateComposeSpec loads a compose file's content through compose-go to
// catch structural problems before any build or deploy is attempted. Image
// references are expected to come from the generated env file, so
// interpolation of unset variables is not an error here.
func ValidateComposeSpec(yamlContent string) error {
	if strings.TrimSpace(yamlContent) == "" {
		return ErrEmptyManifest
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return NewManifestError("", "", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return NewManifestError("", "", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("composor-validate", false)
		opts.SkipValidation = false
		// Env interpolation happens at deploy time via the env file.
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return NewManifestError("", "", err.Error(), ErrInvalidYAML)
	}

	if len(project.Services) == 0 {
		return ErrNoServices
	}

	return nil
}

// ServiceNames returns the service names declared in a compose file's
// content, sorted ascending.
func ServiceNames(yamlContent string) ([]string, error) {
	var dict struct {
		Services map[string]any `yaml:"services"`
	}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewManifestError("", "", "invalid YAML syntax", ErrInvalidYAML)
	}
	names := make([]string, 0, len(dict.Services))
	for name := range dict.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
