package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Path returns the config file location: $COLLECT_CONFIG, or
// ~/.collect/config.yaml.
func Path() string {
	if p := os.Getenv("COLLECT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(baseDir(), "config.yaml")
}

// LoadConfigFile reads the YAML file at path over cfg. A missing file
// leaves cfg unchanged and is not an error.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // File doesn't exist -- not an error
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Load builds the configuration from defaults, the file at path (Path() if
// empty) and the environment, in that order, and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg := Default()
	if err := LoadConfigFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
