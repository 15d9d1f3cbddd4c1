package boards

// BoardDetails is the daemon's description of one board.
type BoardDetails struct {
	FQBN                string           `json:"fqbn"`
	Name                string           `json:"name,omitempty"`
	ConfigOptions       []ConfigOption   `json:"configOptions"`
	Programmers         []Programmer     `json:"programmers"`
	DefaultProgrammerID string           `json:"defaultProgrammerId,omitempty"`
	RequiredTools       []ToolDependency `json:"requiredTools,omitempty"`
	BuildProperties     []string         `json:"buildProperties,omitempty"` // Flat "key=value" entries
}

// ToolDependency is a tool a board's platform requires to build or upload.
type ToolDependency struct {
	Packager string `json:"packager"`
	Name     string `json:"name"`
	Version  string `json:"version"`
}

// PlatformEvent announces that a platform was installed or uninstalled.
// Boards lists every board the platform declares.
type PlatformEvent struct {
	PlatformID string            `json:"platformId"` // vendor:architecture
	Version    string            `json:"version"`
	Boards     []BoardIdentifier `json:"boards"`
}
