package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/boardctl/internal/boardsconfig"
	"github.com/dyluth/boardctl/internal/config"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/orchestrator"
	"github.com/dyluth/boardctl/internal/printer"
	"github.com/spf13/cobra"
)

var (
	opFQBN       string
	opPort       string
	opProtocol   string
	opVerbose    bool
	opVerify     bool
	opWarnings   string
	opProgrammer bool
	opFields     []string
	indexTypes   []string
	indexIfStale bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [sketch]",
	Short: "Compile a sketch for the selected board",
	Long: `Compile a sketch for the selected board, with the board's selected menu
options appended to its FQBN.

The sketch defaults to the current directory.

Examples:
  boardctl compile
  boardctl compile ./Blink --fqbn arduino:avr:uno --warnings all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

var uploadCmd = &cobra.Command{
	Use:   "upload [sketch]",
	Short: "Upload a compiled sketch to the selected board and port",
	Long: `Upload a sketch to the selected board through the selected port, or
through the board's selected programmer with --programmer.

If the upload moves the board to a new port (for example a 1200bps touch
reset), the new port becomes the selected port.

Examples:
  boardctl upload
  boardctl upload ./Blink --port /dev/ttyACM1 --verify
  boardctl upload --programmer --field password=secret`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpload,
}

var burnBootloaderCmd = &cobra.Command{
	Use:   "burn-bootloader",
	Short: "Burn the bootloader of the selected board",
	Long: `Burn the bootloader of the selected board using its selected programmer.

Select a programmer first:
  boardctl board programmer avrisp`,
	Args: cobra.NoArgs,
	RunE: runBurnBootloader,
}

var updateIndexCmd = &cobra.Command{
	Use:   "update-index",
	Short: "Update the platform and library indexes",
	Long: `Update the daemon's platform and library indexes.

Examples:
  boardctl update-index
  boardctl update-index --type platform
  boardctl update-index --if-stale`,
	Args: cobra.NoArgs,
	RunE: runUpdateIndex,
}

func init() {
	for _, cmd := range []*cobra.Command{compileCmd, uploadCmd, burnBootloaderCmd} {
		cmd.Flags().StringVarP(&opFQBN, "fqbn", "b", "", "Board FQBN (defaults to the selected board)")
		cmd.Flags().BoolVarP(&opVerbose, "verbose", "v", false, "Verbose daemon output")
	}
	compileCmd.Flags().StringVar(&opWarnings, "warnings", "", "Compiler warnings: none, default, more or all")

	for _, cmd := range []*cobra.Command{uploadCmd, burnBootloaderCmd} {
		cmd.Flags().StringVarP(&opPort, "port", "p", "", "Port address (defaults to the selected port)")
		cmd.Flags().StringVar(&opProtocol, "protocol", "serial", "Port protocol")
		cmd.Flags().BoolVar(&opVerify, "verify", false, "Verify after writing")
	}
	uploadCmd.Flags().BoolVar(&opProgrammer, "programmer", false, "Upload using the board's selected programmer")
	uploadCmd.Flags().StringArrayVar(&opFields, "field", nil, "Upload user field as key=value (repeatable)")

	updateIndexCmd.Flags().StringArrayVar(&indexTypes, "type", nil, "Index to update: platform or library (repeatable, default both)")
	updateIndexCmd.Flags().BoolVar(&indexIfStale, "if-stale", false, "Skip when the daemon already updated its indexes at startup")

	rootCmd.AddCommand(compileCmd, uploadCmd, burnBootloaderCmd, updateIndexCmd)
}

// signalContext cancels on SIGINT or SIGTERM, which cancels the running
// daemon operation.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printProgress renders progress of operations on a to w until the returned
// func is called.
func printProgress(a *app, w io.Writer) func() {
	return a.orch.OnProgress(func(evt orchestrator.ProgressEvent) {
		printer.Progress(w, evt)
	})
}

func runCompile(cmd *cobra.Command, args []string) error {
	sketch, err := sketchPath(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, func(cfg *config.BoardctlConfig) {
		if cmd.Flags().Changed("verbose") {
			cfg.Compile.Verbose = opVerbose
		}
		if cmd.Flags().Changed("warnings") {
			cfg.Compile.Warnings = daemon.Warnings(opWarnings)
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return compileSketch(ctx, a, stdout, orchestrator.CompileInput{SketchPath: sketch, FQBN: opFQBN})
}

func compileSketch(ctx context.Context, a *app, w io.Writer, in orchestrator.CompileInput) error {
	defer printProgress(a, w)()

	summary, err := a.orch.Compile(ctx, in)
	if err != nil {
		return operationError(stderr, orchestrator.KindCompile, err)
	}

	printer.Success("Compiled %s\n", in.SketchPath)
	for _, section := range summary.ExecutableSectionsSize {
		if section.MaxSize > 0 {
			fmt.Fprintf(w, "  %-6s %d / %d bytes (%d%%)\n", section.Name, section.Size, section.MaxSize, section.Size*100/section.MaxSize)
		} else {
			fmt.Fprintf(w, "  %-6s %d bytes\n", section.Name, section.Size)
		}
	}
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	sketch, err := sketchPath(args)
	if err != nil {
		return err
	}
	port, err := parsePort(opPort, opProtocol)
	if err != nil {
		return printer.Error("invalid port", err.Error(), nil)
	}
	fields, err := parseAssignments(opFields)
	if err != nil {
		return printer.Error("invalid --field", err.Error(), []string{"Use --field key=value"})
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, uploadOverrides(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	return uploadSketch(ctx, a, stdout, orchestrator.UploadInput{
		SketchPath:      sketch,
		FQBN:            opFQBN,
		Port:            port,
		UsingProgrammer: opProgrammer,
		UserFields:      fields,
	})
}

func uploadOverrides(cmd *cobra.Command) func(*config.BoardctlConfig) {
	return func(cfg *config.BoardctlConfig) {
		if cmd.Flags().Changed("verbose") {
			cfg.Upload.Verbose = opVerbose
		}
		if cmd.Flags().Changed("verify") {
			cfg.Upload.Verify = opVerify
		}
	}
}

func uploadSketch(ctx context.Context, a *app, w io.Writer, in orchestrator.UploadInput) error {
	defer printProgress(a, w)()

	result, err := a.orch.Upload(ctx, in)
	if err != nil {
		return operationError(stderr, orchestrator.KindUpload, err)
	}

	printer.Success("Uploaded %s\n", in.SketchPath)
	if result.UpdatedPort != nil {
		if a.controller.UpdateConfig(ctx, boardsconfig.Port(*result.UpdatedPort)) {
			printer.Info("Selected port is now %s\n", result.UpdatedPort)
		}
	}
	return nil
}

func runBurnBootloader(cmd *cobra.Command, args []string) error {
	port, err := parsePort(opPort, opProtocol)
	if err != nil {
		return printer.Error("invalid port", err.Error(), nil)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, uploadOverrides(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	return burnBootloader(ctx, a, stdout, orchestrator.BootloaderInput{FQBN: opFQBN, Port: port})
}

func burnBootloader(ctx context.Context, a *app, w io.Writer, in orchestrator.BootloaderInput) error {
	defer printProgress(a, w)()

	if err := a.orch.BurnBootloader(ctx, in); err != nil {
		return operationError(stderr, orchestrator.KindBurnBootloader, err)
	}
	printer.Success("Bootloader burned\n")
	return nil
}

func runUpdateIndex(cmd *cobra.Command, args []string) error {
	types := make([]daemon.IndexType, 0, len(indexTypes))
	for _, t := range indexTypes {
		switch it := daemon.IndexType(t); it {
		case daemon.IndexPlatform, daemon.IndexLibrary:
			types = append(types, it)
		default:
			return printer.Error("invalid --type", fmt.Sprintf("Unknown index type: %s", t), []string{"Valid types: platform, library"})
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return updateIndex(ctx, a, stdout, indexIfStale, types)
}

func updateIndex(ctx context.Context, a *app, w io.Writer, ifStale bool, types []daemon.IndexType) error {
	if ifStale {
		updated, err := a.orch.IndexUpdatedBeforeFirstConnection(ctx)
		if err != nil {
			return operationError(stderr, orchestrator.KindUpdateIndex, err)
		}
		if updated {
			printer.Info("Indexes already updated by the daemon, skipping\n")
			return nil
		}
	}

	defer printProgress(a, w)()

	summary, err := a.orch.UpdateIndex(ctx, types...)
	if err != nil {
		return operationError(stderr, orchestrator.KindUpdateIndex, err)
	}

	failed := 0
	for _, r := range summary.Results {
		switch {
		case r.Error != "":
			failed++
			fmt.Fprintf(w, "  %-8s %s: %s\n", r.Type, r.URL, r.Error)
		case r.Updated:
			fmt.Fprintf(w, "  %-8s %s: updated\n", r.Type, r.URL)
		default:
			fmt.Fprintf(w, "  %-8s %s: up to date\n", r.Type, r.URL)
		}
	}
	if failed > 0 {
		return printer.Error("index update incomplete", fmt.Sprintf("%d of %d indexes failed to update.", failed, len(summary.Results)), nil)
	}
	printer.Success("Indexes updated\n")
	return nil
}
