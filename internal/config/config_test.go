package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func validConfig() *BoardctlConfig {
	return &BoardctlConfig{
		Version: "1.0",
		Daemon:  DaemonConfig{Socket: "/run/toolchain.sock"},
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
daemon:
  socket: /run/toolchain.sock
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, "/run/toolchain.sock", config.Daemon.Socket)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
daemon:
  socket: /run/toolchain.sock
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultInstance, config.Instance)
	assert.Equal(t, time.Duration(0), config.Daemon.Timeout)
	assert.Equal(t, BackendRedis, config.Persistence.Backend)
	assert.Equal(t, DefaultRedisURL, config.Persistence.RedisURL)
	assert.Equal(t, daemon.WarningsNone, config.Compile.Warnings)
	assert.Equal(t, DefaultDebounce, config.Debounce)
	assert.Equal(t, DefaultHealthAddr, config.HealthAddr)
	assert.Nil(t, config.Compile.ExportBinaries)
}

func TestLoad_CompleteConfig(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
instance: bench-1
daemon:
  socket: /tmp/daemon.sock
  timeout: 90s
persistence:
  backend: sqlite
  sqlite_path: /var/lib/boardctl/state.db
compile:
  verbose: true
  warnings: all
  optimize_for_debug: true
  export_binaries: false
upload:
  verify: true
  verbose: true
directories:
  user: /home/maker/Arduino
  data: /home/maker/.arduino15
debounce: 350ms
health_addr: ":9000"
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "bench-1", config.Instance)
	assert.Equal(t, 90*time.Second, config.Daemon.Timeout)
	assert.Equal(t, BackendSQLite, config.Persistence.Backend)
	assert.Equal(t, "/var/lib/boardctl/state.db", config.Persistence.SQLitePath)
	assert.True(t, config.Upload.Verify)
	assert.True(t, config.Upload.Verbose)
	assert.Equal(t, 350*time.Millisecond, config.Debounce)
	assert.Equal(t, ":9000", config.HealthAddr)
	assert.Equal(t, DirectoriesConfig{User: "/home/maker/Arduino", Data: "/home/maker/.arduino15"}, config.Directories)

	opts := config.Compile.Options()
	assert.True(t, opts.Verbose)
	assert.True(t, opts.OptimizeForDebug)
	assert.Equal(t, daemon.WarningsAll, opts.Warnings)
	require.NotNil(t, opts.ExportBinaries)
	assert.False(t, *opts.ExportBinaries)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/boardctl.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
daemon:
  - this is invalid
    yaml syntax
`)

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
daemon:
  socket: /run/toolchain.sock
debounce: soon
`)

	_, err := Load(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	configPath := writeConfig(t, `version: "1.0"
`)

	_, err := Load(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "daemon.socket is required")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *BoardctlConfig)
		wantErr string
	}{
		{
			name:   "minimal",
			mutate: func(c *BoardctlConfig) {},
		},
		{
			name:    "unsupported version",
			mutate:  func(c *BoardctlConfig) { c.Version = "2.0" },
			wantErr: "unsupported version: 2.0",
		},
		{
			name:    "invalid instance",
			mutate:  func(c *BoardctlConfig) { c.Instance = "Bench_1" },
			wantErr: "invalid instance name",
		},
		{
			name:    "missing socket",
			mutate:  func(c *BoardctlConfig) { c.Daemon.Socket = "" },
			wantErr: "daemon.socket is required",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *BoardctlConfig) { c.Daemon.Timeout = -time.Second },
			wantErr: "daemon.timeout must be >= 0",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *BoardctlConfig) { c.Persistence.Backend = "etcd" },
			wantErr: "invalid persistence.backend: etcd",
		},
		{
			name:    "bad redis url",
			mutate:  func(c *BoardctlConfig) { c.Persistence.RedisURL = "http://localhost" },
			wantErr: "persistence.redis_url",
		},
		{
			name:    "unknown warnings level",
			mutate:  func(c *BoardctlConfig) { c.Compile.Warnings = "loud" },
			wantErr: "compile.warnings",
		},
		{
			name:    "debounce too short",
			mutate:  func(c *BoardctlConfig) { c.Debounce = time.Millisecond },
			wantErr: "debounce must be between",
		},
		{
			name:    "debounce too long",
			mutate:  func(c *BoardctlConfig) { c.Debounce = time.Minute },
			wantErr: "debounce must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_SQLiteDefaultPath(t *testing.T) {
	config := validConfig()
	config.Persistence.Backend = BackendSQLite

	require.NoError(t, config.Validate())
	assert.Equal(t, DefaultSQLitePath, config.Persistence.SQLitePath)
	assert.Empty(t, config.Persistence.RedisURL)
}

func TestValidate_ValidWarnings(t *testing.T) {
	for _, w := range []daemon.Warnings{daemon.WarningsNone, daemon.WarningsDefault, daemon.WarningsMore, daemon.WarningsAll} {
		config := validConfig()
		config.Compile.Warnings = w
		assert.NoError(t, config.Validate(), "warnings %s should be valid", w)
	}
}
