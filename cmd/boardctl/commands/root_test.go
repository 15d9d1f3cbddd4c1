package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/boardctl/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	if args == nil {
		args = []string{}
	}
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	output, err := executeRoot(t)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "boardctl", "Help should show command name")
	for _, sub := range []string{"compile", "upload", "burn-bootloader", "update-index", "board", "state", "watch"} {
		assert.Contains(t, output, sub, "Help should list %s", sub)
	}
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// passed to the root command cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := executeRoot(t, "--unknown-flag", "value")
	require.Error(t, err, "Unknown flag should cause an error")
	assert.Contains(t, err.Error(), "unknown flag")
}

// TestRootCommand_RejectsSubcommandFlags tests that flags meant for
// subcommands (like --fqbn) are rejected when passed to root command
func TestRootCommand_RejectsSubcommandFlags(t *testing.T) {
	_, err := executeRoot(t, "--fqbn", "arduino:avr:uno")
	require.Error(t, err, "Subcommand flag on root should cause an error")
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestBoardSelect_MutuallyExclusiveFlags(t *testing.T) {
	_, err := executeRoot(t, "board", "select", "--fqbn", "arduino:avr:uno", "--clear-board")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear-board")

	// Cobra keeps flag values between executions.
	selectFQBN, selectClearBoard = "", false
}

func TestBoardSelect_RejectsMalformedFQBN(t *testing.T) {
	t.Cleanup(func() { selectFQBN = "" })

	_, err := executeRoot(t, "board", "select", "--fqbn", "foo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fqbn")
}

// setGlobalFlags sets the global flag variables for one test.
func setGlobalFlags(t *testing.T, path, socket, instance, timeout string) {
	t.Helper()
	prev := []string{configPath, socketPath, instanceName, daemonTimeout}
	configPath, socketPath, instanceName, daemonTimeout = path, socket, instance, timeout
	t.Cleanup(func() {
		configPath, socketPath, instanceName, daemonTimeout = prev[0], prev[1], prev[2], prev[3]
	})
}

func TestLoadConfig_MissingFileWithSocket(t *testing.T) {
	setGlobalFlags(t, filepath.Join(t.TempDir(), "boardctl.yml"), "/run/daemon.sock", "", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/run/daemon.sock", cfg.Daemon.Socket)
	assert.Equal(t, config.DefaultInstance, cfg.Instance)
	assert.Equal(t, config.BackendRedis, cfg.Persistence.Backend)
}

func TestLoadConfig_MissingFileWithoutSocket(t *testing.T) {
	setGlobalFlags(t, filepath.Join(t.TempDir(), "boardctl.yml"), "", "", "")

	_, err := loadConfig()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardctl.yml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "1.0"
instance: bench
daemon:
  socket: /run/file.sock
  timeout: 1m
persistence:
  backend: sqlite
`), 0o644))
	setGlobalFlags(t, path, "/run/flag.sock", "desk", "90s")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/run/flag.sock", cfg.Daemon.Socket)
	assert.Equal(t, "desk", cfg.Instance)
	assert.Equal(t, 90*time.Second, cfg.Daemon.Timeout)
	assert.Equal(t, config.DefaultSQLitePath, cfg.Persistence.SQLitePath)
}

func TestLoadConfig_InvalidTimeout(t *testing.T) {
	setGlobalFlags(t, filepath.Join(t.TempDir(), "boardctl.yml"), "/run/daemon.sock", "", "soon")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --timeout")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		_, err := newLogger(level)
		assert.NoError(t, err, level)
	}

	_, err := newLogger("chatty")
	assert.Error(t, err)
}
