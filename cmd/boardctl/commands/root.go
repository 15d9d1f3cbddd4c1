package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// Command output goes to stdout, rendered errors and diagnostics to stderr.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Global flags, each overriding the matching boardctl.yml field when set.
var (
	configPath    string
	socketPath    string
	instanceName  string
	daemonTimeout string
	logLevel      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boardctl",
	Short: "boardctl - board selection and build control for a toolchain daemon",
	Long: `boardctl drives a running toolchain daemon: it remembers which board and
port are selected, keeps each board's menu options and programmer, and runs
compile, upload, bootloader and index operations against the selection.

Selections and board configuration are persisted in Redis or SQLite, so every
invocation (and a long-running "boardctl watch") sees the same state.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "boardctl.yml", "Path to boardctl.yml")
	flags.StringVar(&socketPath, "socket", "", "Toolchain daemon socket (overrides daemon.socket)")
	flags.StringVarP(&instanceName, "name", "n", "", "Instance name (overrides instance)")
	flags.StringVar(&daemonTimeout, "timeout", "", "Operation timeout, e.g. 2m (overrides daemon.timeout)")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}
