package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "boardctl.yml"

// Defaults applied by Validate.
const (
	DefaultInstance   = "default"
	DefaultDebounce   = 200 * time.Millisecond
	DefaultHealthAddr = "127.0.0.1:8089"
	DefaultSQLitePath = "boardctl.db"
	DefaultRedisURL   = "redis://localhost:6379/0"
)

// Persistence backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

const (
	supportedVersion  = "1.0"
	minDebounceWindow = 10 * time.Millisecond
	maxDebounceWindow = 5 * time.Second
)

// BoardctlConfig represents the top-level boardctl.yml configuration
type BoardctlConfig struct {
	Version     string            `yaml:"version"`
	Instance    string            `yaml:"instance,omitempty"` // Namespace of every persistence key
	Daemon      DaemonConfig      `yaml:"daemon"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Compile     CompileConfig     `yaml:"compile"`
	Upload      UploadConfig      `yaml:"upload"`
	Directories DirectoriesConfig `yaml:"directories,omitempty"`
	Debounce    time.Duration     `yaml:"debounce,omitempty"`
	HealthAddr  string            `yaml:"health_addr,omitempty"`
}

// DaemonConfig locates the toolchain daemon
type DaemonConfig struct {
	Socket  string        `yaml:"socket"`
	Timeout time.Duration `yaml:"timeout,omitempty"` // 0 = no timeout
}

// PersistenceConfig selects the persistence backend
type PersistenceConfig struct {
	Backend    string `yaml:"backend,omitempty"` // "redis" (default) or "sqlite"
	RedisURL   string `yaml:"redis_url,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// CompileConfig holds compile defaults
type CompileConfig struct {
	Verbose          bool            `yaml:"verbose,omitempty"`
	Warnings         daemon.Warnings `yaml:"warnings,omitempty"`
	OptimizeForDebug bool            `yaml:"optimize_for_debug,omitempty"`
	ExportBinaries   *bool           `yaml:"export_binaries,omitempty"`
}

// UploadConfig holds upload defaults
type UploadConfig struct {
	Verify  bool `yaml:"verify,omitempty"`
	Verbose bool `yaml:"verbose,omitempty"`
}

// DirectoriesConfig names the sketchbook and toolchain data directories
// published to state consumers
type DirectoriesConfig struct {
	User string `yaml:"user,omitempty"`
	Data string `yaml:"data,omitempty"`
}

// Options converts the compile section to request options.
func (c CompileConfig) Options() daemon.CompileOptions {
	return daemon.CompileOptions{
		Verbose:          c.Verbose,
		Warnings:         c.Warnings,
		OptimizeForDebug: c.OptimizeForDebug,
		ExportBinaries:   c.ExportBinaries,
	}
}

// Validate performs strict validation on the configuration and applies defaults
func (c *BoardctlConfig) Validate() error {
	if c.Version != supportedVersion {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, supportedVersion)
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if err := ValidateInstance(c.Instance); err != nil {
		return err
	}

	if c.Daemon.Socket == "" {
		return fmt.Errorf("daemon.socket is required")
	}
	if c.Daemon.Timeout < 0 {
		return fmt.Errorf("daemon.timeout must be >= 0, got %s", c.Daemon.Timeout)
	}

	if err := c.Persistence.validate(); err != nil {
		return err
	}

	if c.Compile.Warnings == "" {
		c.Compile.Warnings = daemon.WarningsNone
	}
	if err := c.Compile.Warnings.Validate(); err != nil {
		return fmt.Errorf("compile.warnings: %w", err)
	}

	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Debounce < minDebounceWindow || c.Debounce > maxDebounceWindow {
		return fmt.Errorf("debounce must be between %s and %s, got %s", minDebounceWindow, maxDebounceWindow, c.Debounce)
	}

	if c.HealthAddr == "" {
		c.HealthAddr = DefaultHealthAddr
	}

	return nil
}

func (p *PersistenceConfig) validate() error {
	switch p.Backend {
	case "", BackendRedis:
		p.Backend = BackendRedis
		if p.RedisURL == "" {
			p.RedisURL = DefaultRedisURL
		}
		if _, err := redis.ParseURL(p.RedisURL); err != nil {
			return fmt.Errorf("persistence.redis_url: %w", err)
		}
	case BackendSQLite:
		if p.SQLitePath == "" {
			p.SQLitePath = DefaultSQLitePath
		}
	default:
		return fmt.Errorf("invalid persistence.backend: %s (must be 'redis' or 'sqlite')", p.Backend)
	}
	return nil
}

// Load reads and validates boardctl.yml from the specified path
func Load(path string) (*BoardctlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config BoardctlConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
