// Package boardsconfig owns the current selection, the (board, port) pair
// every compile and upload targets.
//
// All mutations go through Controller.UpdateConfig, which merges the request
// with the current pair, swaps it in atomically and fires exactly one
// BoardsConfigChangeEvent per effective change.
package boardsconfig

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dyluth/boardctl/internal/boardlist"
	"github.com/dyluth/boardctl/internal/event"
	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/pkg/boards"
)

// Update is a requested change of the selection. The zero value of either
// half keeps the current value.
type Update struct {
	Board boardlist.BoardChoice
	Port  boardlist.PortChoice
}

// Config requests a full replacement of the pair; nil halves are cleared.
func Config(c boards.BoardsConfig) Update {
	return Update{
		Board: boardlist.BoardChoiceOf(c.SelectedBoard),
		Port:  boardlist.PortChoiceOf(c.SelectedPort),
	}
}

// Board requests a board change, keeping the current port.
func Board(b boards.BoardIdentifier) Update {
	return Update{Board: boardlist.SetBoard(b), Port: boardlist.KeepPort()}
}

// Port requests a port change, keeping the current board.
func Port(p boards.PortIdentifier) Update {
	return Update{Board: boardlist.KeepBoard(), Port: boardlist.SetPort(p)}
}

func (u Update) normalized() Update {
	if u.Board.IsAbsent() {
		u.Board = boardlist.KeepBoard()
	}
	if u.Port.IsAbsent() {
		u.Port = boardlist.KeepPort()
	}
	return u
}

// Controller owns the BoardsConfig. It reads detected ports and history
// through the matcher and never copies them.
type Controller struct {
	matcher   *boardlist.Matcher
	store     persistence.Service
	namespace string
	logger    *slog.Logger

	// updateMu serializes UpdateConfig from merge through persistence so
	// events and stored values follow swap order. Held before mu.
	updateMu sync.Mutex
	mu       sync.Mutex
	config   boards.BoardsConfig

	changes     event.Emitter[boards.BoardsConfigChangeEvent]
	listChanges event.Emitter[boardlist.BoardList]

	stopWatching func()
}

// NewController creates a controller starting from an empty selection.
// store may be nil, in which case the selection is not persisted.
func NewController(matcher *boardlist.Matcher, store persistence.Service, namespace string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		matcher:   matcher,
		store:     store,
		namespace: namespace,
		logger:    logger.With("component", "boardsconfig"),
	}
	c.stopWatching = matcher.OnDetectedPortsChanged(func(boards.DetectedPorts) {
		c.listChanges.Fire(c.BoardList())
	})
	return c
}

// Close detaches the controller from the matcher.
func (c *Controller) Close() {
	c.stopWatching()
}

// OnChange registers fn for selection changes. fn must not call UpdateConfig.
func (c *Controller) OnChange(fn func(boards.BoardsConfigChangeEvent)) func() {
	return c.changes.On(fn)
}

// OnBoardListChange registers fn for board list recomputations, which happen
// on every detected-ports snapshot and every selection change.
func (c *Controller) OnBoardListChange(fn func(boardlist.BoardList)) func() {
	return c.listChanges.On(fn)
}

// Config returns a copy of the current selection.
func (c *Controller) Config() boards.BoardsConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyConfig(c.config)
}

// BoardList returns the board list computed against the current selection.
func (c *Controller) BoardList() boardlist.BoardList {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matcher.BoardList(c.config)
}

// Restore loads the selection and board list history persisted by a previous
// run. No change event is fired.
func (c *Controller) Restore(ctx context.Context) {
	c.matcher.LoadHistory(ctx)
	if c.store == nil {
		return
	}

	var restored boards.BoardsConfig
	found, err := c.store.Get(ctx, boards.BoardsConfigKey(c.namespace), &restored)
	if err != nil {
		c.logger.Error("failed to load board selection", "error", err)
		return
	}
	if !found {
		return
	}
	if err := restored.Validate(); err != nil {
		c.logger.Warn("ignoring persisted board selection", "error", err)
		return
	}
	if b := restored.SelectedBoard; b != nil && b.FQBN != "" {
		if _, err := boards.ParseFQBN(b.FQBN); err != nil {
			c.logger.Warn("dropping persisted board", "board", b.String(), "error", err)
			restored.SelectedBoard = nil
		}
	}

	c.mu.Lock()
	c.config = restored
	c.mu.Unlock()
	c.logger.Info("restored board selection", "config", restored.String())
}

// UpdateConfig merges u with the current selection. It returns false, without
// firing, when the merged pair equals the current one.
func (c *Controller) UpdateConfig(ctx context.Context, u Update) bool {
	u = u.normalized()

	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	c.mu.Lock()
	previous := c.config
	next := boards.BoardsConfig{
		SelectedBoard: u.Board.Resolve(previous.SelectedBoard),
		SelectedPort:  u.Port.Resolve(previous.SelectedPort),
	}
	if next.Equal(previous) {
		c.mu.Unlock()
		return false
	}
	c.config = copyConfig(next)
	delta := c.matcher.MaybeUpdateHistory(previous, u.Board, u.Port)
	list := c.matcher.BoardList(c.config)
	c.mu.Unlock()

	evt := changeEvent(previous, next)
	c.logger.Debug("board selection changed",
		"previous", previous.String(),
		"current", next.String(),
		"history_changed", delta != nil)

	c.changes.Fire(evt)
	c.listChanges.Fire(list)

	c.persist(ctx, next)
	if delta != nil {
		c.matcher.SaveHistory(ctx)
	}
	return true
}

func (c *Controller) persist(ctx context.Context, config boards.BoardsConfig) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, boards.BoardsConfigKey(c.namespace), config); err != nil {
		c.logger.Error("failed to persist board selection", "error", err)
	}
}

func changeEvent(previous, next boards.BoardsConfig) boards.BoardsConfigChangeEvent {
	var evt boards.BoardsConfigChangeEvent
	if !boards.BoardEqual(previous.SelectedBoard, next.SelectedBoard) {
		evt.BoardChanged = true
		evt.PreviousSelectedBoard = previous.SelectedBoard
		evt.SelectedBoard = next.SelectedBoard
	}
	if !boards.PortEqual(previous.SelectedPort, next.SelectedPort) {
		evt.PortChanged = true
		evt.PreviousSelectedPort = previous.SelectedPort
		evt.SelectedPort = next.SelectedPort
	}
	return copyEvent(evt)
}

func copyConfig(c boards.BoardsConfig) boards.BoardsConfig {
	var out boards.BoardsConfig
	if c.SelectedBoard != nil {
		b := *c.SelectedBoard
		out.SelectedBoard = &b
	}
	if c.SelectedPort != nil {
		p := *c.SelectedPort
		out.SelectedPort = &p
	}
	return out
}

func copyEvent(e boards.BoardsConfigChangeEvent) boards.BoardsConfigChangeEvent {
	prev := copyConfig(boards.BoardsConfig{SelectedBoard: e.PreviousSelectedBoard, SelectedPort: e.PreviousSelectedPort})
	next := copyConfig(boards.BoardsConfig{SelectedBoard: e.SelectedBoard, SelectedPort: e.SelectedPort})
	e.PreviousSelectedBoard, e.PreviousSelectedPort = prev.SelectedBoard, prev.SelectedPort
	e.SelectedBoard, e.SelectedPort = next.SelectedBoard, next.SelectedPort
	return e
}
