package boardlist

import "github.com/dyluth/boardctl/pkg/boards"

type choiceKind int

const (
	choiceAbsent choiceKind = iota
	choiceKeep
	choiceClear
	choiceSet
)

// BoardChoice describes what a selection update does with the board half of
// the pair: nothing (the zero value), keep the current board, clear it, or
// set a new one.
type BoardChoice struct {
	kind  choiceKind
	board boards.BoardIdentifier
}

// KeepBoard keeps the currently selected board.
func KeepBoard() BoardChoice { return BoardChoice{kind: choiceKeep} }

// ClearBoard unselects the board.
func ClearBoard() BoardChoice { return BoardChoice{kind: choiceClear} }

// SetBoard selects b.
func SetBoard(b boards.BoardIdentifier) BoardChoice { return BoardChoice{kind: choiceSet, board: b} }

// BoardChoiceOf converts an optional board into a choice: nil clears.
func BoardChoiceOf(b *boards.BoardIdentifier) BoardChoice {
	if b == nil {
		return ClearBoard()
	}
	return SetBoard(*b)
}

// Resolve applies the choice to the current board.
func (c BoardChoice) Resolve(current *boards.BoardIdentifier) *boards.BoardIdentifier {
	switch c.kind {
	case choiceSet:
		b := c.board
		return &b
	case choiceClear:
		return nil
	default:
		return current
	}
}

// IsAbsent reports whether the choice is the zero value.
func (c BoardChoice) IsAbsent() bool { return c.kind == choiceAbsent }

// PortChoice is the port counterpart of BoardChoice.
type PortChoice struct {
	kind choiceKind
	port boards.PortIdentifier
}

// KeepPort keeps the currently selected port.
func KeepPort() PortChoice { return PortChoice{kind: choiceKeep} }

// ClearPort unselects the port.
func ClearPort() PortChoice { return PortChoice{kind: choiceClear} }

// SetPort selects p.
func SetPort(p boards.PortIdentifier) PortChoice { return PortChoice{kind: choiceSet, port: p} }

// PortChoiceOf converts an optional port into a choice: nil clears.
func PortChoiceOf(p *boards.PortIdentifier) PortChoice {
	if p == nil {
		return ClearPort()
	}
	return SetPort(*p)
}

// Resolve applies the choice to the current port.
func (c PortChoice) Resolve(current *boards.PortIdentifier) *boards.PortIdentifier {
	switch c.kind {
	case choiceSet:
		p := c.port
		return &p
	case choiceClear:
		return nil
	default:
		return current
	}
}

// IsAbsent reports whether the choice is the zero value.
func (c PortChoice) IsAbsent() bool { return c.kind == choiceAbsent }
