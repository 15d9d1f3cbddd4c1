package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/boardctl/internal/boardlist"
	"github.com/dyluth/boardctl/internal/boardsconfig"
	"github.com/dyluth/boardctl/internal/printer"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/spf13/cobra"
)

var (
	selectFQBN       string
	selectName       string
	selectPort       string
	selectProtocol   string
	selectClearBoard bool
	selectClearPort  bool

	configSet  []string
	configFQBN string

	programmerFQBN     string
	programmerPlatform string
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Inspect and change the board selection and configuration",
}

var boardSelectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select the board, the port, or both",
	Long: `Select the board, the port, or both at once. A half that is not given is
kept. Changing both in one call produces a single change.

When the chosen board differs from what the hardware reports on the chosen
port, the choice is remembered for that port.

Examples:
  boardctl board select --fqbn arduino:avr:uno --port /dev/ttyACM0
  boardctl board select --port 192.168.1.20 --protocol network
  boardctl board select --clear-board`,
	Args: cobra.NoArgs,
	RunE: runBoardSelect,
}

var boardConfigCmd = &cobra.Command{
	Use:   "config [fqbn]",
	Short: "Show or change a board's menu options",
	Long: `Show the menu options of a board, or select values with --set. All --set
values are applied together: if any option or value is unknown, nothing changes.

The board defaults to the selected board.

Examples:
  boardctl board config
  boardctl board config arduino:avr:nano --set cpu=atmega328old`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBoardConfig,
}

var boardProgrammerCmd = &cobra.Command{
	Use:   "programmer <id>",
	Short: "Select the programmer of a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardProgrammer,
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List detected ports and the boards on them",
	Args:  cobra.NoArgs,
	RunE:  runBoardList,
}

func init() {
	f := boardSelectCmd.Flags()
	f.StringVarP(&selectFQBN, "fqbn", "b", "", "Board FQBN")
	f.StringVar(&selectName, "board-name", "", "Board display name (defaults to the detected name)")
	f.StringVarP(&selectPort, "port", "p", "", "Port address")
	f.StringVar(&selectProtocol, "protocol", "serial", "Port protocol")
	f.BoolVar(&selectClearBoard, "clear-board", false, "Clear the selected board")
	f.BoolVar(&selectClearPort, "clear-port", false, "Clear the selected port")
	boardSelectCmd.MarkFlagsMutuallyExclusive("fqbn", "clear-board")
	boardSelectCmd.MarkFlagsMutuallyExclusive("port", "clear-port")

	boardConfigCmd.Flags().StringArrayVar(&configSet, "set", nil, "Select option=value (repeatable)")

	boardProgrammerCmd.Flags().StringVarP(&programmerFQBN, "fqbn", "b", "", "Board FQBN (defaults to the selected board)")
	boardProgrammerCmd.Flags().StringVar(&programmerPlatform, "platform", "", "Programmer platform, when several share the id")

	boardCmd.AddCommand(boardSelectCmd, boardConfigCmd, boardProgrammerCmd, boardListCmd)
	rootCmd.AddCommand(boardCmd)
}

func runBoardSelect(cmd *cobra.Command, args []string) error {
	port, err := parsePort(selectPort, selectProtocol)
	if err != nil {
		return printer.Error("invalid port", err.Error(), nil)
	}
	if selectFQBN != "" {
		if _, err := boards.ParseFQBN(selectFQBN); err != nil {
			return printer.Error("invalid fqbn", err.Error(), []string{"Use vendor:architecture:boardId, e.g. arduino:avr:uno"})
		}
	}

	u := boardsconfig.Update{}
	switch {
	case selectClearBoard:
		u.Board = boardlist.ClearBoard()
	case selectFQBN != "":
		u.Board = boardlist.SetBoard(boards.BoardIdentifier{Name: selectName, FQBN: selectFQBN})
	}
	switch {
	case selectClearPort:
		u.Port = boardlist.ClearPort()
	case port != nil:
		u.Port = boardlist.SetPort(*port)
	}
	if u.Board.IsAbsent() && u.Port.IsAbsent() {
		return printer.Error(
			"nothing to select",
			"Give a board, a port, or both.",
			[]string{"boardctl board select --fqbn arduino:avr:uno --port /dev/ttyACM0"},
		)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	selectBoard(ctx, a, stdout, u)
	return nil
}

// selectBoard applies u against fresh port detection and prints the result.
// A board given without a name takes the name detected on the port.
func selectBoard(ctx context.Context, a *app, w io.Writer, u boardsconfig.Update) {
	a.refreshPorts(ctx)
	u = nameFromDetection(a, u)

	if a.controller.UpdateConfig(ctx, u) {
		printer.Success("Selection updated\n")
	} else {
		printer.Info("Selection unchanged\n")
	}
	printer.Selection(w, a.controller.Config())
}

func nameFromDetection(a *app, u boardsconfig.Update) boardsconfig.Update {
	current := a.controller.Config()
	board := u.Board.Resolve(current.SelectedBoard)
	port := u.Port.Resolve(current.SelectedPort)
	if u.Board.IsAbsent() || board == nil || board.Name != "" || port == nil {
		return u
	}
	detected, ok := a.matcher.BoardsOnPort(*port)
	if !ok {
		return u
	}
	for _, d := range detected {
		if d.SameBoard(*board) {
			u.Board = boardlist.SetBoard(boards.BoardIdentifier{Name: d.Name, FQBN: board.FQBN})
			break
		}
	}
	return u
}

func runBoardConfig(cmd *cobra.Command, args []string) error {
	selections, err := parseOptionSelections(configSet)
	if err != nil {
		return printer.Error("invalid --set", err.Error(), []string{"Use --set option=value"})
	}
	if len(args) > 0 {
		configFQBN = args[0]
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	fqbn, err := a.selectedFQBN(configFQBN)
	if err != nil {
		return operationError(stderr, "board config", err)
	}

	if len(selections) > 0 && !a.configs.SelectConfigOptions(ctx, fqbn, selections) {
		printer.Warning("No option changed: the values are already selected, or an option or value is unknown\n")
	}
	printer.BoardConfig(stdout, boards.SanitizeFQBN(fqbn), a.configs.Data(ctx, fqbn))
	return nil
}

func runBoardProgrammer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	return selectProgrammer(ctx, a, programmerFQBN, boards.Programmer{ID: args[0], Platform: programmerPlatform})
}

func selectProgrammer(ctx context.Context, a *app, fqbn string, programmer boards.Programmer) error {
	fqbn, err := a.selectedFQBN(fqbn)
	if err != nil {
		return operationError(stderr, "board programmer", err)
	}

	if !a.configs.SelectProgrammer(ctx, fqbn, programmer) {
		if current, ok := a.configs.SelectedProgrammer(ctx, fqbn); ok && current.ID == programmer.ID {
			printer.Info("Programmer %s already selected\n", programmer.ID)
			return nil
		}
		return printer.Error(
			fmt.Sprintf("unknown programmer %q", programmer.ID),
			fmt.Sprintf("Board %s has no programmer with that id.", fqbn),
			[]string{fmt.Sprintf("List the board's programmers:\n  boardctl board config %s", fqbn)},
		)
	}
	p, _ := a.configs.SelectedProgrammer(ctx, fqbn)
	printer.Success("Programmer %s (%s) selected for %s\n", p.ID, p.Name, fqbn)
	return nil
}

func runBoardList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ports, err := a.client.DetectedPorts(ctx)
	if err != nil {
		return operationError(stderr, "board list", err)
	}
	a.matcher.UpdateDetectedPorts(ports)
	printer.BoardList(stdout, a.controller.BoardList())
	return nil
}
