package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/dyluth/boardctl/internal/config"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/orchestrator"
	"github.com/dyluth/boardctl/internal/printer"
)

func configError(err error) error {
	return printer.ErrorWithContext(
		"configuration error",
		err.Error(),
		map[string]string{"Config": configPath},
		[]string{
			fmt.Sprintf("Create %s with at least:\n  version: \"1.0\"\n  daemon:\n    socket: /path/to/daemon.sock", configPath),
			"Pass the daemon socket directly:\n  boardctl --socket /path/to/daemon.sock <command>",
		},
	)
}

func persistenceError(cfg *config.BoardctlConfig, err error) error {
	ctx := map[string]string{"Backend": cfg.Persistence.Backend}
	switch cfg.Persistence.Backend {
	case config.BackendSQLite:
		ctx["Path"] = cfg.Persistence.SQLitePath
	default:
		ctx["Redis"] = cfg.Persistence.RedisURL
	}
	return printer.ErrorWithContext(
		"persistence backend unavailable",
		err.Error(),
		ctx,
		[]string{
			"Start Redis, or switch to the local backend:\n  persistence:\n    backend: sqlite",
		},
	)
}

// operationError renders the failure of a daemon operation to w and returns
// the error for Cobra.
func operationError(w io.Writer, kind orchestrator.Kind, err error) error {
	var structured *orchestrator.StructuredError
	var daemonErr *daemon.Error
	switch {
	case errors.As(err, &structured):
		printer.Diagnostics(w, structured)
		return fmt.Errorf("%s failed", kind)
	case errors.Is(err, orchestrator.ErrCancelled):
		printer.Warning("%s cancelled\n", kind)
		return err
	case errors.Is(err, orchestrator.ErrBusy):
		return printer.Error(
			fmt.Sprintf("%s already running", kind),
			err.Error(),
			[]string{"Wait for the running operation to finish and retry."},
		)
	case errors.Is(err, orchestrator.ErrNoBoardSelected):
		return printer.Error(
			"no board selected",
			fmt.Sprintf("%s needs a board.", kind),
			[]string{
				"Select one:\n  boardctl board select --fqbn <vendor:arch:board>",
				"Pass it directly with --fqbn.",
			},
		)
	case errors.Is(err, orchestrator.ErrInvalidFQBN):
		return printer.Error(
			"invalid fqbn",
			err.Error(),
			[]string{
				"Use vendor:architecture:boardId, e.g. arduino:avr:uno",
				"Reselect the board:\n  boardctl board select --fqbn <vendor:arch:board>",
			},
		)
	case errors.Is(err, orchestrator.ErrNoPortSelected):
		return printer.Error(
			"no port selected",
			fmt.Sprintf("%s needs a port.", kind),
			[]string{
				"Select one:\n  boardctl board select --port /dev/ttyACM0",
				"Pass it directly with --port.",
			},
		)
	case errors.As(err, &daemonErr):
		return printer.ErrorWithContext(
			fmt.Sprintf("%s failed", kind),
			daemonErr.Message,
			map[string]string{"Action": daemonErr.Action},
			nil,
		)
	default:
		return printer.Error(
			fmt.Sprintf("%s failed", kind),
			err.Error(),
			[]string{"Check that the toolchain daemon is running and its socket is reachable."},
		)
	}
}
