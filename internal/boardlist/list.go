package boardlist

import "github.com/dyluth/boardctl/pkg/boards"

// Item is one row of the board list: a detected port and the board it shows.
type Item struct {
	Port  boards.Port             `json:"port"`
	Board *boards.BoardIdentifier `json:"board,omitempty"`

	// DefaultBoard is the board the hardware reports, when the item's board
	// was overridden from the history.
	DefaultBoard *boards.BoardIdentifier `json:"defaultBoard,omitempty"`

	// Inferred is true when Board comes from the history rather than the hardware.
	Inferred bool `json:"inferred"`
}

// BoardList is an ordered view of the detected ports with the index of the
// current selection, or -1 when the selection is not attached.
type BoardList struct {
	Items         []Item `json:"items"`
	SelectedIndex int    `json:"selectedIndex"`
}

// Selected returns the selected item, if any.
func (l BoardList) Selected() (Item, bool) {
	if l.SelectedIndex < 0 || l.SelectedIndex >= len(l.Items) {
		return Item{}, false
	}
	return l.Items[l.SelectedIndex], true
}

// BoardList computes the board list for the current snapshot and history.
// A port with a history entry shows the remembered board; otherwise it shows
// one item per recognized board, or a single item without board.
func (m *Matcher) BoardList(current boards.BoardsConfig) BoardList {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []Item
	for _, key := range sortedKeys(m.detected) {
		detected := m.detected[key]

		if remembered, ok := m.history[key]; ok {
			b := remembered
			item := Item{Port: detected.Port, Board: &b, Inferred: true}
			if len(detected.Boards) > 0 {
				d := detected.Boards[0]
				item.DefaultBoard = &d
			}
			items = append(items, item)
			continue
		}

		if len(detected.Boards) == 0 {
			items = append(items, Item{Port: detected.Port})
			continue
		}
		for _, board := range detected.Boards {
			b := board
			items = append(items, Item{Port: detected.Port, Board: &b})
		}
	}

	return BoardList{Items: items, SelectedIndex: selectedIndex(items, current)}
}

func selectedIndex(items []Item, current boards.BoardsConfig) int {
	if current.SelectedPort == nil {
		return -1
	}
	for i, item := range items {
		if item.Port.Identifier() != *current.SelectedPort {
			continue
		}
		if boards.BoardEqual(item.Board, current.SelectedBoard) {
			return i
		}
	}
	return -1
}
