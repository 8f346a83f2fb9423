// Package config loads project configuration: named connection targets in
// a modelq.yaml file, overridable from the environment. It is decoupled
// from CLI concerns so other tools can reuse it.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/modelq/pkg/adapter"
)

// TargetConfig holds one named database target.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, sqlite

	// File-based databases (DuckDB, SQLite)
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Validate checks the target against the adapter registry.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.List(),
		}
	}
	return nil
}

// ToAdapterConfig converts the target to an adapter connection config.
func (t *TargetConfig) ToAdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(t.Type),
		Path:     t.Path,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
	}
}

// ApplyDefaults fills in type-specific defaults.
func (t *TargetConfig) ApplyDefaults() {
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}

// ProjectConfig is the root of modelq.yaml.
type ProjectConfig struct {
	DefaultTarget string                  `koanf:"default_target"`
	Targets       map[string]TargetConfig `koanf:"targets"`
}

// Target resolves a target by name, falling back to the default when name
// is empty.
func (c *ProjectConfig) Target(name string) (*TargetConfig, error) {
	if name == "" {
		name = c.DefaultTarget
	}
	if name == "" {
		return nil, fmt.Errorf("no target named and no default_target configured")
	}
	t, ok := c.Targets[name]
	if !ok {
		names := make([]string, 0, len(c.Targets))
		for n := range c.Targets {
			names = append(names, n)
		}
		return nil, fmt.Errorf("unknown target %q; configured targets: %v", name, names)
	}
	t.ApplyDefaults()
	return &t, nil
}
