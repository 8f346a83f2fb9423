package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "modelq.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "modelq.yml"

// envPrefix scopes environment overrides, e.g.
// MODELQ_TARGETS__PROD__PASSWORD overrides targets.prod.password. A double
// underscore separates key segments so segment names may contain single
// underscores.
const envPrefix = "MODELQ_"

// LoadFromDir loads a ProjectConfig from the given directory, looking for
// modelq.yaml or modelq.yml. Environment variables override file values.
// Returns nil, nil if no config file is found.
func LoadFromDir(dir string) (*ProjectConfig, error) {
	configPath := findConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads a ProjectConfig from an explicit path.
func LoadFile(path string) (*ProjectConfig, error) {
	return LoadFileWithFlags(path, nil)
}

// LoadFileWithFlags loads a ProjectConfig, letting an optional flag set
// outrank everything else. Flag names map to config keys with dashes
// becoming underscores; --target maps to default_target.
func LoadFileWithFlags(path string, flags *pflag.FlagSet) (*ProjectConfig, error) {
	k := koanf.New(".")

	// Defaults, then file, then environment, then flags; later providers
	// win.
	if err := k.Load(confmap.Provider(map[string]any{
		"default_target": "dev",
	}, "."), nil); err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			if key == "target" {
				return "default_target", value
			}
			return strings.ReplaceAll(key, "-", "_"), value
		}), nil); err != nil {
			return nil, err
		}
	}

	var cfg ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile finds the config file in the given directory. Returns
// empty string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// FindProjectRoot walks up from the given directory to find a directory
// containing modelq.yaml or modelq.yml. Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
