package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/boardctl/internal/boardlist"
	"github.com/dyluth/boardctl/internal/config"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/debounce"
	"github.com/dyluth/boardctl/internal/orchestrator"
	"github.com/dyluth/boardctl/internal/printer"
	"github.com/dyluth/boardctl/internal/projector"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/spf13/cobra"
)

const (
	minRetry        = time.Second
	maxRetry        = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

var (
	watchQuiet      bool
	watchHealthAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the daemon and keep the published state current",
	Long: `Run until interrupted, following the daemon's port detection, sketchbook
and platform changes:

  - detected ports refresh the board list
  - installed or removed platforms reload board configuration
  - bursts of sketch changes are batched before they are handled
  - selection changes made by other boardctl commands are picked up
    (Redis backend only)

The published state is projected as changes arrive, and /healthz reports
whether the persistence backend and the daemon are reachable.

Examples:
  boardctl watch
  boardctl watch --quiet --health-addr :8089`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "Do not print board list and sketch changes")
	watchCmd.Flags().StringVar(&watchHealthAddr, "health-addr", "", "Health endpoint address (overrides health_addr)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx, projector.NewGate(), func(cfg *config.BoardctlConfig) {
		if watchHealthAddr != "" {
			cfg.HealthAddr = watchHealthAddr
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return watch(ctx, a, stdout, watchQuiet, nil)
}

// watch runs every follower until ctx ends. ready, when set, receives the
// health address once everything is running.
func watch(ctx context.Context, a *app, w io.Writer, quiet bool, ready func(healthAddr string)) error {
	if !quiet {
		defer a.controller.OnBoardListChange(func(list boardlist.BoardList) {
			printer.BoardList(w, list)
		})()
	}

	health := orchestrator.NewHealthServer(a.cfg.HealthAddr, map[string]orchestrator.HealthCheck{
		"persistence": a.ping,
		"daemon": func(ctx context.Context) error {
			_, err := a.client.IndexStatus(ctx)
			return err
		},
	}, a.logger)
	if err := health.Start(); err != nil {
		return printer.ErrorWithContext(
			"health endpoint unavailable",
			err.Error(),
			map[string]string{"Address": a.cfg.HealthAddr},
			[]string{"Pick another address:\n  boardctl watch --health-addr 127.0.0.1:0"},
		)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := health.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("health server shutdown failed", "error", err)
		}
	}()

	sketches := debounce.New(a.cfg.Debounce, func(b debounce.Batch) {
		a.handleSketches(ctx, w, quiet, b)
	}, a.logger)
	defer sketches.Stop()

	var wg sync.WaitGroup
	a.supervise(ctx, &wg, "ports", func(ctx context.Context) error {
		return a.client.WatchPorts(ctx, a.matcher.UpdateDetectedPorts)
	})
	a.supervise(ctx, &wg, "sketches", func(ctx context.Context) error {
		return a.client.WatchSketches(ctx, func(evt daemon.SketchEvent) {
			sketches.Add(evt.Created, evt.Removed)
		})
	})
	a.supervise(ctx, &wg, "platforms", func(ctx context.Context) error {
		return a.client.WatchPlatforms(ctx, func(change daemon.PlatformChange) {
			a.handlePlatform(ctx, change)
		})
	})
	if a.redis != nil {
		a.supervise(ctx, &wg, "data events", a.followDataEvents)
	}

	if dirs := a.cfg.Directories; dirs.User != "" || dirs.Data != "" {
		a.projector.SetDirectories(dirs.User, dirs.Data)
	}
	a.projector.ProjectSelection()
	if a.gate != nil {
		a.gate.Open()
	}

	a.logger.Info("watching", "instance", a.cfg.Instance, "health_addr", health.Addr())
	if !quiet {
		printer.Success("Watching instance %s (health on %s)\n", a.cfg.Instance, health.Addr())
	}
	if ready != nil {
		ready(health.Addr())
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// supervise runs fn until ctx ends, restarting it with exponential backoff
// whenever it returns.
func (a *app) supervise(ctx context.Context, wg *sync.WaitGroup, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		retry := minRetry
		for {
			err := fn(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				a.logger.Warn("follower stopped, restarting", "follower", name, "error", err, "retry_in", retry)
			} else {
				a.logger.Info("follower ended by daemon, restarting", "follower", name, "retry_in", retry)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			retry = min(retry*2, maxRetry)
		}
	}()
}

func (a *app) handlePlatform(ctx context.Context, change daemon.PlatformChange) {
	switch change.Change {
	case daemon.PlatformInstalled:
		a.configs.HandlePlatformInstalled(ctx, change.Event)
	case daemon.PlatformUninstalled:
		a.configs.HandlePlatformUninstalled(ctx, change.Event)
	default:
		a.logger.Warn("ignoring unknown platform change", "change", change.Change, "platform", change.Event.PlatformID)
	}
}

// handleSketches reports a batch of sketch changes and drops the published
// sketch when its folder was removed.
func (a *app) handleSketches(ctx context.Context, w io.Writer, quiet bool, b debounce.Batch) {
	a.logger.Info("sketchbook changed", "created", len(b.Created), "removed", len(b.Removed))
	if !quiet {
		for _, path := range b.Created {
			fmt.Fprintf(w, "+ %s\n", path)
		}
		for _, path := range b.Removed {
			fmt.Fprintf(w, "- %s\n", path)
		}
	}
	if len(b.Removed) == 0 {
		return
	}

	state, err := a.sink.State(ctx)
	if err != nil {
		a.logger.Error("failed to read state", "error", err)
		return
	}
	var current string
	if raw, ok := state[projector.FieldSketchPath]; ok {
		if err := json.Unmarshal(raw, &current); err != nil {
			a.logger.Warn("ignoring malformed sketch path in state", "error", err)
			return
		}
	}
	if current != "" && slices.Contains(b.Removed, current) {
		a.projector.ClearSketch()
	}
}

// followDataEvents applies writes made by other boardctl processes sharing
// the instance.
func (a *app) followDataEvents(ctx context.Context) error {
	sub, err := a.redis.SubscribeDataEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for key := range sub.Keys() {
		a.handleDataEvent(ctx, key)
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("data event subscription closed")
}

func (a *app) handleDataEvent(ctx context.Context, key string) {
	ns := a.cfg.Instance
	switch {
	case key == boards.BoardsConfigKey(ns):
		previous := a.controller.Config()
		a.controller.Restore(ctx)
		if !a.controller.Config().Equal(previous) {
			a.projector.ProjectSelection()
		}
	case strings.HasPrefix(key, ns+"-configOptions-"):
		board := a.controller.Config().SelectedBoard
		if board == nil || board.FQBN == "" {
			return
		}
		fqbn := boards.SanitizeFQBN(board.FQBN)
		if strings.HasSuffix(key, "-"+fqbn) {
			a.projector.HandleBoardConfigChange(boards.BoardConfigChangeEvent{FQBNs: []string{fqbn}})
		}
	}
}
