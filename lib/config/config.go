// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "SESSIONTREE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for long-running installations.
	Production Environment = "production"
)

// Config is the master configuration for sessiontree.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Storage configures the tree store.
	Storage StorageConfig `yaml:"storage"`

	// Builder configures tree construction.
	Builder BuilderConfig `yaml:"builder"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for sessiontree data. Available to
	// other paths as ${SESSIONTREE_ROOT}.
	Root string `yaml:"root"`
}

// StorageConfig configures the tree store.
type StorageConfig struct {
	// Path is the database file.
	// Default: ${SESSIONTREE_ROOT}/tree.db
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections. Zero picks a
	// default from the CPU count.
	PoolSize int `yaml:"pool_size"`

	// CacheEntries is the node cache capacity.
	// Default: 1000
	CacheEntries int `yaml:"cache_entries"`

	// Compression is the codec for new node rows: none, lz4, zstd or
	// auto.
	// Default: zstd
	Compression string `yaml:"compression"`

	// CompactOnStartup compacts the database when it is opened.
	CompactOnStartup bool `yaml:"compact_on_startup"`

	// BusyTimeout is how long a writer waits for the write lock, as a
	// Go duration string.
	// Default: 5s
	BusyTimeout string `yaml:"busy_timeout"`
}

// BusyTimeoutDuration parses BusyTimeout. Validate has already
// rejected unparseable values, so the error only reaches callers that
// skip validation.
func (s StorageConfig) BusyTimeoutDuration() (time.Duration, error) {
	if s.BusyTimeout == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(s.BusyTimeout)
	if err != nil {
		return 0, fmt.Errorf("storage.busy_timeout: %w", err)
	}
	return duration, nil
}

// BuilderConfig configures tree construction.
type BuilderConfig struct {
	// IncludeContent stores encoded record payloads in leaves.
	// Default: true
	IncludeContent bool `yaml:"include_content"`

	// ValidateHashes re-checks every node hash as it is built.
	// Default: true
	ValidateHashes bool `yaml:"validate_hashes"`

	// Workers bounds parallel leaf construction. Zero uses the CPU
	// count.
	Workers int `yaml:"workers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, JSON
	// otherwise).
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "sessiontree")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: defaultRoot,
		},
		Storage: StorageConfig{
			Path:         "${SESSIONTREE_ROOT}/tree.db",
			CacheEntries: 1000,
			Compression:  "zstd",
			BusyTimeout:  "5s",
		},
		Builder: BuilderConfig{
			IncludeContent: true,
			ValidateHashes: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the SESSIONTREE_CONFIG environment
// variable. There is no fallback: if the variable is not set, Load
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your sessiontree.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The only
// expansion performed is ${VAR} substitution in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// Resolved returns the defaults with variables expanded, for commands
// run without a config file.
func Resolved() *Config {
	cfg := Default()
	cfg.expandVariables()
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil && overrides.Paths.Root != "" {
		c.Paths.Root = overrides.Paths.Root
	}

	if overrides.Storage != nil {
		if overrides.Storage.Path != "" {
			c.Storage.Path = overrides.Storage.Path
		}
		if overrides.Storage.PoolSize != 0 {
			c.Storage.PoolSize = overrides.Storage.PoolSize
		}
		if overrides.Storage.CacheEntries != 0 {
			c.Storage.CacheEntries = overrides.Storage.CacheEntries
		}
		if overrides.Storage.Compression != "" {
			c.Storage.Compression = overrides.Storage.Compression
		}
		if overrides.Storage.BusyTimeout != "" {
			c.Storage.BusyTimeout = overrides.Storage.BusyTimeout
		}
		// CompactOnStartup is a bool, so we always apply it from overrides.
		c.Storage.CompactOnStartup = overrides.Storage.CompactOnStartup
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SESSIONTREE_ROOT": c.Paths.Root,
		"HOME":             os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["SESSIONTREE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Storage.Path = expandVars(c.Storage.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}
	if c.Storage.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("storage.pool_size must not be negative"))
	}
	if c.Storage.CacheEntries < 0 {
		errs = append(errs, fmt.Errorf("storage.cache_entries must not be negative"))
	}

	compressionValues := []string{"none", "lz4", "zstd", "auto"}
	if !contains(compressionValues, c.Storage.Compression) {
		errs = append(errs, fmt.Errorf("storage.compression must be one of: %v", compressionValues))
	}

	if _, err := c.Storage.BusyTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if c.Builder.Workers < 0 {
		errs = append(errs, fmt.Errorf("builder.workers must not be negative"))
	}

	levelValues := []string{"debug", "info", "warn", "error"}
	if !contains(levelValues, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levelValues))
	}
	formatValues := []string{"auto", "text", "json"}
	if !contains(formatValues, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formatValues))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
