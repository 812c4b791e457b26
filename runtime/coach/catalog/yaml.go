package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stridelabs/stride/runtime/coach/decision"
)

// yamlSpec mirrors ToolSpec for configuration files.
type yamlSpec struct {
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	ReadOnly           bool     `yaml:"read_only"`
	Enabled            *bool    `yaml:"enabled"`
	Horizons           []string `yaml:"horizons"`
	RequiredSlots      []string `yaml:"required_slots"`
	OptionalSlots      []string `yaml:"optional_slots"`
	MaxCallsPerSession int      `yaml:"max_calls_per_session"`
	ArgsSchema         string   `yaml:"args_schema"`
}

type yamlFile struct {
	Tools []yamlSpec `yaml:"tools"`
}

// Load builds a catalog from YAML configuration bytes. Tools default to
// enabled unless the file says otherwise.
func Load(data []byte) (*Catalog, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse configuration: %w", err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("catalog: configuration declares no tools")
	}
	specs := make([]ToolSpec, 0, len(file.Tools))
	for _, y := range file.Tools {
		spec := ToolSpec{
			Name:               y.Name,
			Description:        y.Description,
			ReadOnly:           y.ReadOnly,
			Enabled:            true,
			RequiredSlots:      y.RequiredSlots,
			OptionalSlots:      y.OptionalSlots,
			MaxCallsPerSession: y.MaxCallsPerSession,
		}
		if y.Enabled != nil {
			spec.Enabled = *y.Enabled
		}
		for _, h := range y.Horizons {
			spec.Horizons = append(spec.Horizons, decision.NormalizeHorizon(h))
		}
		if y.ArgsSchema != "" {
			spec.ArgsSchema = []byte(y.ArgsSchema)
		}
		specs = append(specs, spec)
	}
	return New(specs...)
}

// LoadFile builds a catalog from a YAML configuration file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read configuration %s: %w", path, err)
	}
	return Load(data)
}
