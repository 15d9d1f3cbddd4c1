package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/boardctl/internal/boardlist"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/orchestrator"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
	bold   = color.New(color.Bold)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Error prints a titled error with explanation and suggestions to stderr and
// returns an error carrying only the title, for Cobra
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value context lines, printed in key order
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	w := os.Stderr
	red.Fprintf(w, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(w, "%s\n", explanation)
	}

	if len(context) > 0 {
		fmt.Fprintf(w, "\n")
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %s\n", key, context[key])
		}
	}

	writeSuggestions(w, suggestions)

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

func writeSuggestions(w io.Writer, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintf(w, "\n")
	if len(suggestions) == 1 {
		fmt.Fprintf(w, "%s\n", suggestions[0])
		return
	}
	fmt.Fprintf(w, "Either:\n")
	for i, suggestion := range suggestions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
	}
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Progress renders one progress event. Raw stderr output is shown in yellow,
// stdout verbatim and progress messages as steps with their percentage.
func Progress(w io.Writer, evt orchestrator.ProgressEvent) {
	switch evt.Stream {
	case daemon.StreamStderr:
		yellow.Fprint(w, evt.Message)
	case daemon.StreamStdout:
		fmt.Fprint(w, evt.Message)
	default:
		if evt.Percent > 0 {
			cyan.Fprintf(w, "→ %s ", evt.Message)
			faint.Fprintf(w, "(%.0f%%)\n", evt.Percent)
			return
		}
		cyan.Fprintf(w, "→ %s\n", evt.Message)
	}
}

// Diagnostics renders a structured tooling failure, one block per location.
func Diagnostics(w io.Writer, err *orchestrator.StructuredError) {
	red.Fprintf(w, "%s\n", err.Message)
	if err.Type != orchestrator.ErrorUnknown {
		faint.Fprintf(w, "  [%s]\n", err.Type)
	}
	for _, loc := range err.Locations {
		fmt.Fprintf(w, "\n  %s:%d:%d: ", loc.Location.URI, loc.Location.Range.Start.Line+1, loc.Location.Range.Start.Character+1)
		bold.Fprintf(w, "%s\n", loc.Message)
		if loc.Details != "" {
			for _, line := range strings.Split(strings.TrimRight(loc.Details, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		if n := len(loc.OccurrencesInOutput); n > 1 {
			faint.Fprintf(w, "    (reported %d times)\n", n)
		}
	}
}

// BoardList renders the board list, marking the selected row with "*" and
// boards taken from the history with "(remembered)".
func BoardList(w io.Writer, list boardlist.BoardList) {
	if len(list.Items) == 0 {
		faint.Fprintln(w, "No ports detected")
		return
	}
	for i, item := range list.Items {
		marker := " "
		if i == list.SelectedIndex {
			marker = "*"
		}

		board := "Unknown"
		if item.Board != nil {
			board = item.Board.String()
		}
		line := fmt.Sprintf("%s %-8s %-24s %s", marker, item.Port.Protocol, item.Port.Address, board)
		if i == list.SelectedIndex {
			green.Fprint(w, line)
		} else {
			fmt.Fprint(w, line)
		}
		if item.Inferred {
			faint.Fprint(w, " (remembered)")
		}
		fmt.Fprintln(w)
	}
}

// Selection renders the current board and port.
func Selection(w io.Writer, config boards.BoardsConfig) {
	board, port := "none", "none"
	if config.SelectedBoard != nil {
		board = config.SelectedBoard.String()
	}
	if config.SelectedPort != nil {
		port = config.SelectedPort.String()
	}
	fmt.Fprintf(w, "Board: %s\nPort:  %s\n", board, port)
}

// BoardConfig renders the config options and programmers of one board.
func BoardConfig(w io.Writer, fqbn string, record boards.BoardConfigRecord) {
	bold.Fprintf(w, "%s\n", fqbn)
	if len(record.ConfigOptions) == 0 && len(record.Programmers) == 0 {
		faint.Fprintln(w, "  no configuration available")
		return
	}
	for _, opt := range record.ConfigOptions {
		label := opt.Label
		if label == "" {
			label = opt.Option
		}
		fmt.Fprintf(w, "  %s (%s)\n", label, opt.Option)
		for _, v := range opt.Values {
			if v.Selected {
				green.Fprintf(w, "    * %s\n", v.Value)
			} else {
				fmt.Fprintf(w, "      %s\n", v.Value)
			}
		}
	}
	if len(record.Programmers) > 0 {
		fmt.Fprintln(w, "  programmers")
		for _, p := range record.Programmers {
			selected := record.SelectedProgrammer != nil && record.SelectedProgrammer.ID == p.ID
			if selected {
				green.Fprintf(w, "    * %s (%s)\n", p.ID, p.Name)
			} else {
				fmt.Fprintf(w, "      %s (%s)\n", p.ID, p.Name)
			}
		}
	}
}

// State renders projected state fields in key order, values as compact JSON.
func State(w io.Writer, state map[string]json.RawMessage) {
	if len(state) == 0 {
		faint.Fprintln(w, "No state projected")
		return
	}
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cyan.Fprintf(w, "%s", k)
		fmt.Fprintf(w, " = %s\n", state[k])
	}
}
