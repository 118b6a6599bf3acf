// Package config handles reading and writing the flit user configuration
// file (~/.flit/config.toml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// DefaultModuleDir is the directory the local flit install lives under.
const DefaultModuleDir = "flit_modules"

// Config holds flit configuration settings.
type Config struct {
	LogLevel  string `toml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFormat string `toml:"log_format,omitempty" json:"log_format,omitempty"`
	Color     string `toml:"color,omitempty" json:"color,omitempty"`
	ModuleDir string `toml:"module_dir,omitempty" json:"module_dir,omitempty"`
}

// validKeys lists the allowed configuration keys.
var validKeys = map[string]bool{
	"log_level":  true,
	"log_format": true,
	"color":      true,
	"module_dir": true,
}

// ValidKeys returns the sorted list of valid configuration keys.
func ValidKeys() []string {
	return []string{"color", "log_format", "log_level", "module_dir"}
}

// Path returns the config file path: $FLIT_CONFIG if set, otherwise
// ~/.flit/config.toml.
func Path() string {
	if p := os.Getenv("FLIT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".flit", "config.toml")
	}
	return filepath.Join(home, ".flit", "config.toml")
}

// Load reads the config from the default path and applies FLIT_* environment
// overrides.
func Load() (*Config, error) {
	cfg, err := LoadFrom(Path())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the config from a specific path. Returns an empty Config if
// the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides keys from FLIT_<KEY> environment variables, e.g.
// FLIT_MODULE_DIR. Values go through Set, so they are validated the same way.
// Empty variables are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, key := range ValidKeys() {
		v, ok := lookup("FLIT_" + strings.ToUpper(key))
		if !ok || v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("FLIT_%s: %w", strings.ToUpper(key), err)
		}
	}
	return nil
}

// Get returns the string value of a configuration key.
func (c *Config) Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	switch key {
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "color":
		return c.Color, nil
	case "module_dir":
		return c.ModuleDir, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set assigns a value to a configuration key.
func (c *Config) Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	switch key {
	case "log_level":
		switch strings.ToLower(value) {
		case "", "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", value)
		}
		c.LogLevel = strings.ToLower(value)
	case "log_format":
		if value != "" && value != "text" && value != "json" {
			return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", value)
		}
		c.LogFormat = value
	case "color":
		if value != "" && value != "auto" && value != "always" && value != "never" {
			return fmt.Errorf("color must be \"auto\", \"always\" or \"never\", got %q", value)
		}
		c.Color = value
	case "module_dir":
		if strings.ContainsRune(value, os.PathListSeparator) {
			return fmt.Errorf("module_dir must be a single directory name, got %q", value)
		}
		c.ModuleDir = value
	}
	return nil
}

// ModuleDirOrDefault returns ModuleDir, or DefaultModuleDir when unset.
func (c *Config) ModuleDirOrDefault() string {
	if c.ModuleDir == "" {
		return DefaultModuleDir
	}
	return c.ModuleDir
}
