// Package boards provides the shared data model for board selection and
// board configuration in boardctl.
//
// # Overview
//
// Every component of boardctl (the configuration store, the port matcher, the
// selection controller, the command orchestrator and the state projector)
// exchanges the types defined here. They are plain values with JSON tags so
// they can be persisted through any key-value backend and projected to
// external consumers without translation.
//
// # Identity
//
// A board is identified by its fully-qualified board name (fqbn), a
// colon-delimited triple vendor:architecture:boardId that may carry
// configuration suffixes:
//
//	arduino:samd:mkr1000
//	arduino:samd:mkr1000:debug=on,speed=fast
//
// Two BoardIdentifiers are equal when their fqbns match exactly, or, when
// both lack an fqbn, when their names match. SameBoard is the weaker relation
// that ignores configuration suffixes.
//
// A port is identified by (protocol, address). Key returns the stable map key
// "protocol|address" used by detected-port snapshots and selection history.
//
// # Persistence Keys
//
// Configuration records are persisted per board and platform version:
//
//	{namespace}-configOptions-{platformVersion}-{fqbn}
//
// The current selection and the board list history live at:
//
//	{namespace}-boards-config
//	{namespace}-board-list-history
//
// # Usage Example
//
//	board := boards.BoardIdentifier{Name: "Arduino MKR1000", FQBN: "arduino:samd:mkr1000"}
//	port := boards.PortIdentifier{Protocol: "serial", Address: "/dev/ttyACM0"}
//
//	cfg := boards.BoardsConfig{SelectedBoard: &board, SelectedPort: &port}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
//	key := boards.ConfigOptionsKey("default", "1.8.13", board.FQBN)
//	// key = "default-configOptions-1.8.13-arduino:samd:mkr1000"
package boards
