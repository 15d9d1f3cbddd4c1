// Package boardlist tracks the ports currently attached to the host, the boards
// recognized on them, and a per-port history of the boards the user chose.
//
// The history lets a board the user picked for a port be proposed again when
// that port reappears, even though the hardware reports something else (or
// nothing at all).
package boardlist

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/dyluth/boardctl/internal/event"
	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/pkg/boards"
)

// History maps a port key to the board the user chose for that port.
type History map[string]boards.BoardIdentifier

// HistoryDelta is a change applied to the History. A nil value means the
// entry for that port was cleared.
type HistoryDelta map[string]*boards.BoardIdentifier

// Matcher owns the detected-port snapshot and the board list history.
// It is safe for concurrent use.
type Matcher struct {
	store     persistence.Service
	namespace string
	logger    *slog.Logger

	mu       sync.Mutex
	detected boards.DetectedPorts
	history  History

	portsChanged event.Emitter[boards.DetectedPorts]
}

// NewMatcher creates a matcher. store may be nil, in which case history is
// kept in memory only.
func NewMatcher(store persistence.Service, namespace string, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		store:     store,
		namespace: namespace,
		logger:    logger.With("component", "boardlist"),
		detected:  boards.DetectedPorts{},
		history:   History{},
	}
}

// LoadHistory restores the history persisted by a previous run.
func (m *Matcher) LoadHistory(ctx context.Context) {
	if m.store == nil {
		return
	}
	var history History
	found, err := m.store.Get(ctx, boards.BoardListHistoryKey(m.namespace), &history)
	if err != nil {
		m.logger.Error("failed to load board list history", "error", err)
		return
	}
	if !found || history == nil {
		return
	}

	m.mu.Lock()
	m.history = history
	m.mu.Unlock()
}

// SaveHistory persists the current history.
func (m *Matcher) SaveHistory(ctx context.Context) {
	if m.store == nil {
		return
	}
	history := m.History()
	if err := m.store.Set(ctx, boards.BoardListHistoryKey(m.namespace), history); err != nil {
		m.logger.Error("failed to persist board list history", "error", err)
	}
}

// OnDetectedPortsChanged registers fn for detected-port snapshots.
func (m *Matcher) OnDetectedPortsChanged(fn func(boards.DetectedPorts)) func() {
	return m.portsChanged.On(fn)
}

// UpdateDetectedPorts replaces the detected-port snapshot. Snapshots are
// always complete, never diffs.
func (m *Matcher) UpdateDetectedPorts(snapshot boards.DetectedPorts) {
	copied := cloneDetected(snapshot)

	m.mu.Lock()
	m.detected = copied
	m.mu.Unlock()

	m.portsChanged.Fire(cloneDetected(copied))
}

// DetectedPorts returns a copy of the current snapshot.
func (m *Matcher) DetectedPorts() boards.DetectedPorts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneDetected(m.detected)
}

// History returns a copy of the board list history.
func (m *Matcher) History() History {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(History, len(m.history))
	for k, v := range m.history {
		out[k] = v
	}
	return out
}

// MaybeUpdateHistory records the board chosen for a port. KeepBoard and
// KeepPort use the board and port of current as the comparison basis.
//
// If the effective board is among the boards detected on the effective port,
// the port's history entry is cleared: the hardware agrees with the user.
// Otherwise the entry is set to the board. Returns the applied delta, or nil
// when either half is absent or cleared, or when nothing changed.
func (m *Matcher) MaybeUpdateHistory(current boards.BoardsConfig, board BoardChoice, port PortChoice) HistoryDelta {
	if board.IsAbsent() || port.IsAbsent() {
		return nil
	}
	selectedBoard := board.Resolve(current.SelectedBoard)
	selectedPort := port.Resolve(current.SelectedPort)
	if selectedBoard == nil || selectedPort == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := selectedPort.Key()
	previous, hadEntry := m.history[key]

	if m.detectedOnPort(key, *selectedBoard) {
		if !hadEntry {
			return nil
		}
		delete(m.history, key)
		return HistoryDelta{key: nil}
	}

	if hadEntry && previous.Equal(*selectedBoard) {
		return nil
	}
	m.history[key] = *selectedBoard
	b := *selectedBoard
	return HistoryDelta{key: &b}
}

// detectedOnPort reports whether board is among the boards reported on the
// port. Caller must hold m.mu.
func (m *Matcher) detectedOnPort(key string, board boards.BoardIdentifier) bool {
	detected, ok := m.detected[key]
	if !ok {
		return false
	}
	for _, b := range detected.Boards {
		if b.Equal(board) {
			return true
		}
	}
	return false
}

// BoardsOnPort returns the boards reported on the port, if it is detected.
func (m *Matcher) BoardsOnPort(port boards.PortIdentifier) ([]boards.BoardIdentifier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	detected, ok := m.detected[port.Key()]
	if !ok {
		return nil, false
	}
	return append([]boards.BoardIdentifier(nil), detected.Boards...), true
}

func cloneDetected(in boards.DetectedPorts) boards.DetectedPorts {
	out := make(boards.DetectedPorts, len(in))
	for k, v := range in {
		port := v.Port
		if v.Port.Properties != nil {
			port.Properties = make(map[string]string, len(v.Port.Properties))
			for pk, pv := range v.Port.Properties {
				port.Properties[pk] = pv
			}
		}
		out[k] = boards.DetectedPort{
			Port:   port,
			Boards: append([]boards.BoardIdentifier(nil), v.Boards...),
		}
	}
	return out
}

// sortedKeys orders ports by protocol (serial first, then network, then the
// rest alphabetically) and then by address.
func sortedKeys(detected boards.DetectedPorts) []string {
	keys := make([]string, 0, len(detected))
	for k := range detected {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := detected[keys[i]].Port, detected[keys[j]].Port
		ra, rb := protocolRank(a.Protocol), protocolRank(b.Protocol)
		if ra != rb {
			return ra < rb
		}
		if a.Protocol != b.Protocol {
			return a.Protocol < b.Protocol
		}
		return a.Address < b.Address
	})
	return keys
}

func protocolRank(protocol string) int {
	switch protocol {
	case "serial":
		return 0
	case "network":
		return 1
	default:
		return 2
	}
}
