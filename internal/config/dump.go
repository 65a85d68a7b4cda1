package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Dump renders the effective configuration as YAML under the `rdt:` root key.
func Dump(cfg *GlobalConfig) ([]byte, error) {
	settings := map[string]any{}
	if err := mapstructure.Decode(cfg, &settings); err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}
	out, err := yaml.Marshal(map[string]any{"rdt": humanize(settings)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// humanize rewrites durations as strings so they read back through Load.
func humanize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = humanize(val)
		}
		return t
	case time.Duration:
		return t.String()
	default:
		return v
	}
}
