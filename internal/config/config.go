// Package config loads the host-level settings cmd/aspen and
// internal/hostmod consult: where to resolve imports from, how big the
// module cache is, and the default logging level. Kept deliberately
// small — aspen-level language semantics never live here, only
// embedder/CLI configuration.
package config

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
	"sigs.k8s.io/yaml"
)

// Config is the host's runtime configuration, loadable from either a
// TOML file (the primary format, matching the ".toml" convention of
// most of the example pack's CLI tools) or a YAML file (accepted as an
// alternate format for hosts embedding aspen inside a larger YAML-driven
// deployment pipeline).
type Config struct {
	// ModulePaths lists directories searched, in order, for an
	// imported module's source file. Every import path, absolute or
	// not, is joined onto each directory in turn.
	ModulePaths []string `toml:"module_paths" json:"modulePaths"`

	// ModuleCacheSize bounds internal/modcache's LRU, in compiled
	// descriptors. Zero means "use modcache's own default".
	ModuleCacheSize int `toml:"module_cache_size" json:"moduleCacheSize"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level" json:"logLevel"`
}

// Default returns the configuration used when no config file is found:
// the current directory as the sole module path, a modest cache, and
// info-level logging.
func Default() *Config {
	return &Config{
		ModulePaths:     []string{"."},
		ModuleCacheSize: 128,
		LogLevel:        "info",
	}
}

// Load reads path, dispatching on its extension. ".yaml"/".yml" is
// parsed as YAML; anything else (".toml", no extension) is parsed as
// TOML. Fields absent from the file keep Default's values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s as yaml: %w", path, err)
		}
		return cfg, nil
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s as toml: %w", path, err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	n := len(path)
	return n >= 5 && path[n-5:] == ".yaml" || n >= 4 && path[n-4:] == ".yml"
}
