package boards

import "fmt"

// Persistence key and channel helpers
//
// Keys stored through the persistence service are namespaced so several
// boardctl instances can share one backend without interference.
//
// Key pattern: {namespace}-{entity}[-{qualifier}...]
// Channel pattern: boardctl:{namespace}:{event_type}_events

// ConfigOptionsKey returns the persistence key of a board configuration record.
// Pattern: {namespace}-configOptions-{platformVersion}-{fqbn}
func ConfigOptionsKey(namespace, platformVersion, fqbn string) string {
	return fmt.Sprintf("%s-configOptions-%s-%s", namespace, platformVersion, fqbn)
}

// BoardsConfigKey returns the persistence key of the current selection.
// Pattern: {namespace}-boards-config
func BoardsConfigKey(namespace string) string {
	return fmt.Sprintf("%s-boards-config", namespace)
}

// BoardListHistoryKey returns the persistence key of the per-port selection history.
// Pattern: {namespace}-board-list-history
func BoardListHistoryKey(namespace string) string {
	return fmt.Sprintf("%s-board-list-history", namespace)
}

// StateKey returns the Redis hash holding the projected external state.
// Pattern: boardctl:{namespace}:state
func StateKey(namespace string) string {
	return fmt.Sprintf("boardctl:%s:state", namespace)
}

// StateEventsChannel returns the Pub/Sub channel announcing projected state updates.
// Pattern: boardctl:{namespace}:state_events
func StateEventsChannel(namespace string) string {
	return fmt.Sprintf("boardctl:%s:state_events", namespace)
}

// DataEventsChannel returns the Pub/Sub channel announcing persisted key writes.
// Pattern: boardctl:{namespace}:data_events
func DataEventsChannel(namespace string) string {
	return fmt.Sprintf("boardctl:%s:data_events", namespace)
}
