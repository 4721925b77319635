package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads configuration in three layers: defaults, then the YAML file at
// configPath (optional when the path is empty), then environment variable
// overrides. The loaded file's BLAKE3 hash is recorded on the result.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s", absPath)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
		}

		cfg.Path = absPath
		cfg.Hash = hashBytes(data)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}

	if cfg.IdleConnTimeout < 0 {
		return fmt.Errorf("idle_conn_timeout must not be negative")
	}

	seen := make(map[string]bool, len(cfg.DisabledCommands))
	for _, name := range cfg.DisabledCommands {
		if name == "" {
			return fmt.Errorf("disabled_commands contains an empty name")
		}
		if seen[name] {
			return fmt.Errorf("disabled_commands lists %q twice", name)
		}
		seen[name] = true
	}

	return nil
}
