package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/boardctl/internal/printer"
	"github.com/spf13/cobra"
)

var stateJSON bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the state published to consumers",
	Long: `Show the state boardctl publishes for external consumers: the selected
fqbn and port, the board details, the last compiled sketch and its summary,
and the user and data directories.

Output Formats:
  default - one field per line
  --json  - a single JSON object`,
	Args: cobra.NoArgs,
	RunE: runState,
}

func init() {
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print the state as one JSON object")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return showState(ctx, a, stdout, stateJSON)
}

func showState(ctx context.Context, a *app, w io.Writer, asJSON bool) error {
	state, err := a.sink.State(ctx)
	if err != nil {
		return printer.Error("failed to read state", err.Error(), nil)
	}
	if !asJSON {
		printer.State(w, state)
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
