package boards

import (
	"fmt"
	"strings"
)

// BoardIdentifier names a board, optionally with its fully-qualified board name.
// A board reported by a port discovery may lack an fqbn when its platform is
// not installed yet.
type BoardIdentifier struct {
	Name string `json:"name"`           // Human readable board name
	FQBN string `json:"fqbn,omitempty"` // vendor:arch:boardId[:key=value,...]
}

// Equal reports whether two identifiers denote the same board including its
// configuration suffix. Identifiers without fqbn fall back to name equality.
func (b BoardIdentifier) Equal(other BoardIdentifier) bool {
	if b.FQBN == "" && other.FQBN == "" {
		return b.Name == other.Name
	}
	return b.FQBN == other.FQBN
}

// SameBoard reports whether two identifiers denote the same board regardless
// of the configuration options chosen for it.
func (b BoardIdentifier) SameBoard(other BoardIdentifier) bool {
	if b.FQBN == "" && other.FQBN == "" {
		return b.Name == other.Name
	}
	if b.FQBN == "" || other.FQBN == "" {
		return false
	}
	return SanitizeFQBN(b.FQBN) == SanitizeFQBN(other.FQBN)
}

func (b BoardIdentifier) String() string {
	if b.FQBN == "" {
		return b.Name
	}
	return fmt.Sprintf("%s (%s)", b.Name, b.FQBN)
}

// BoardEqual compares two optional board identifiers. Two nil identifiers are equal.
func BoardEqual(a, b *BoardIdentifier) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// PortIdentifier identifies a port by protocol and address.
type PortIdentifier struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

// Key returns the stable map key for the port: protocol|address.
func (p PortIdentifier) Key() string {
	return p.Protocol + "|" + p.Address
}

// Validate checks that both halves of the identifier are present.
func (p PortIdentifier) Validate() error {
	if p.Protocol == "" {
		return fmt.Errorf("port protocol cannot be empty")
	}
	if p.Address == "" {
		return fmt.Errorf("port address cannot be empty")
	}
	return nil
}

func (p PortIdentifier) String() string {
	return fmt.Sprintf("%s (%s)", p.Address, p.Protocol)
}

// PortEqual compares two optional port identifiers. Two nil identifiers are equal.
func PortEqual(a, b *PortIdentifier) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Port is the full description of a port as reported by discovery.
type Port struct {
	Address       string            `json:"address"`
	Label         string            `json:"label,omitempty"`
	Protocol      string            `json:"protocol"`
	ProtocolLabel string            `json:"protocolLabel,omitempty"`
	HardwareID    string            `json:"hardwareId,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// Identifier returns the identifying half of the port description.
func (p Port) Identifier() PortIdentifier {
	return PortIdentifier{Protocol: p.Protocol, Address: p.Address}
}

// DetectedPort is a port currently visible to the host together with the boards
// recognized on it. An empty Boards slice denotes an unrecognized port.
type DetectedPort struct {
	Port   Port              `json:"port"`
	Boards []BoardIdentifier `json:"boards"`
}

// DetectedPorts is a full snapshot of detected ports keyed by PortIdentifier.Key.
type DetectedPorts map[string]DetectedPort

// ConfigValue is one selectable value of a ConfigOption.
type ConfigValue struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// ConfigOption is a board configuration menu, e.g. "cpu" or "speed".
// Exactly one value is selected once the option is loaded.
type ConfigOption struct {
	Option string        `json:"option"`
	Label  string        `json:"label"`
	Values []ConfigValue `json:"values"`
}

// SelectedValue returns the selected value of the option, if any.
func (o ConfigOption) SelectedValue() (ConfigValue, bool) {
	for _, v := range o.Values {
		if v.Selected {
			return v, true
		}
	}
	return ConfigValue{}, false
}

// Programmer is an external tool used to flash firmware.
type Programmer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// BoardConfigRecord is the persisted configuration of one board at one
// platform version. A nil Programmers slice marks a record written before
// programmers were tracked.
type BoardConfigRecord struct {
	ConfigOptions       []ConfigOption `json:"configOptions"`
	Programmers         []Programmer   `json:"programmers"`
	DefaultProgrammerID string         `json:"defaultProgrammerId,omitempty"`
	SelectedProgrammer  *Programmer    `json:"selectedProgrammer,omitempty"`
}

// EmptyRecord returns the sentinel record used when nothing is known about a
// board, typically because its platform is not installed.
func EmptyRecord() BoardConfigRecord {
	return BoardConfigRecord{
		ConfigOptions: []ConfigOption{},
		Programmers:   []Programmer{},
	}
}

// IsEmpty reports whether the record is the sentinel.
func (r BoardConfigRecord) IsEmpty() bool {
	return len(r.ConfigOptions) == 0 && len(r.Programmers) == 0 &&
		r.DefaultProgrammerID == "" && r.SelectedProgrammer == nil
}

// Complete reports whether a cached record can be served without a refetch:
// it must have config options, and it must have been written after
// programmers were tracked.
func (r BoardConfigRecord) Complete() bool {
	return len(r.ConfigOptions) > 0 && r.Programmers != nil
}

// Programmer looks up a programmer by id.
func (r BoardConfigRecord) Programmer(id string) (Programmer, bool) {
	for _, p := range r.Programmers {
		if p.ID == id {
			return p, true
		}
	}
	return Programmer{}, false
}

// Clone returns a deep copy of the record. Records reachable from a cache are
// never mutated in place; callers clone, mutate and swap.
func (r BoardConfigRecord) Clone() BoardConfigRecord {
	out := BoardConfigRecord{DefaultProgrammerID: r.DefaultProgrammerID}
	if r.ConfigOptions != nil {
		out.ConfigOptions = make([]ConfigOption, len(r.ConfigOptions))
		for i, opt := range r.ConfigOptions {
			values := make([]ConfigValue, len(opt.Values))
			copy(values, opt.Values)
			out.ConfigOptions[i] = ConfigOption{Option: opt.Option, Label: opt.Label, Values: values}
		}
	}
	if r.Programmers != nil {
		out.Programmers = make([]Programmer, len(r.Programmers))
		copy(out.Programmers, r.Programmers)
	}
	if r.SelectedProgrammer != nil {
		p := *r.SelectedProgrammer
		out.SelectedProgrammer = &p
	}
	return out
}

// BoardsConfig is the current selection: the targeted board and port.
type BoardsConfig struct {
	SelectedBoard *BoardIdentifier `json:"selectedBoard,omitempty"`
	SelectedPort  *PortIdentifier  `json:"selectedPort,omitempty"`
}

// Equal reports whether both halves of the selection are equal.
func (c BoardsConfig) Equal(other BoardsConfig) bool {
	return BoardEqual(c.SelectedBoard, other.SelectedBoard) && PortEqual(c.SelectedPort, other.SelectedPort)
}

// Validate checks the selected port, when present.
func (c BoardsConfig) Validate() error {
	if c.SelectedPort != nil {
		if err := c.SelectedPort.Validate(); err != nil {
			return fmt.Errorf("invalid selected port: %w", err)
		}
	}
	return nil
}

func (c BoardsConfig) String() string {
	var parts []string
	if c.SelectedBoard != nil {
		parts = append(parts, "board="+c.SelectedBoard.String())
	}
	if c.SelectedPort != nil {
		parts = append(parts, "port="+c.SelectedPort.String())
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, " ")
}

// BoardsConfigChangeEvent describes one coalesced change of the selection.
// Board fields are set only when BoardChanged, port fields only when PortChanged.
type BoardsConfigChangeEvent struct {
	BoardChanged          bool             `json:"boardChanged"`
	PreviousSelectedBoard *BoardIdentifier `json:"previousSelectedBoard,omitempty"`
	SelectedBoard         *BoardIdentifier `json:"selectedBoard,omitempty"`

	PortChanged          bool            `json:"portChanged"`
	PreviousSelectedPort *PortIdentifier `json:"previousSelectedPort,omitempty"`
	SelectedPort         *PortIdentifier `json:"selectedPort,omitempty"`
}

// BoardConfigChangeEvent is fired when the persisted configuration of one or
// more boards changed.
type BoardConfigChangeEvent struct {
	FQBNs []string `json:"fqbns"`
}
