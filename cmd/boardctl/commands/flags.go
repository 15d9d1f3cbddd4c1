package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dyluth/boardctl/internal/boardconfig"
	"github.com/dyluth/boardctl/pkg/boards"
)

// parsePort builds a port identifier from --port and --protocol. An empty
// address yields nil.
func parsePort(address, protocol string) (*boards.PortIdentifier, error) {
	if address == "" {
		return nil, nil
	}
	if protocol == "" {
		protocol = "serial"
	}
	port := boards.PortIdentifier{Protocol: protocol, Address: address}
	if err := port.Validate(); err != nil {
		return nil, err
	}
	return &port, nil
}

// parseAssignments parses repeated key=value flags. Keys must be unique.
func parseAssignments(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", entry)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate assignment for %q", key)
		}
		out[key] = value
	}
	return out, nil
}

// parseOptionSelections parses repeated option=value flags in order.
func parseOptionSelections(entries []string) ([]boardconfig.OptionSelection, error) {
	if _, err := parseAssignments(entries); err != nil {
		return nil, err
	}
	selections := make([]boardconfig.OptionSelection, 0, len(entries))
	for _, entry := range entries {
		option, value, _ := strings.Cut(entry, "=")
		selections = append(selections, boardconfig.OptionSelection{
			Option:        strings.TrimSpace(option),
			SelectedValue: value,
		})
	}
	return selections, nil
}

// sketchPath resolves the sketch argument, defaulting to the working directory.
func sketchPath(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve sketch path %q: %w", path, err)
	}
	return abs, nil
}
