package daemon

import "github.com/dyluth/boardctl/pkg/boards"

// SectionSize is the size of one executable section of a build.
type SectionSize struct {
	Name    string `cbor:"name" json:"name"`
	Size    int64  `cbor:"size" json:"size"`
	MaxSize int64  `cbor:"max_size" json:"maxSize"`
}

// CompileSummary is the result of a successful compile.
type CompileSummary struct {
	BuildPath              string        `cbor:"build_path" json:"buildPath"`
	BuildProperties        []string      `cbor:"build_properties,omitempty" json:"buildProperties,omitempty"`
	UsedLibraries          []string      `cbor:"used_libraries,omitempty" json:"usedLibraries,omitempty"`
	ExecutableSectionsSize []SectionSize `cbor:"executable_sections_size,omitempty" json:"executableSectionsSize,omitempty"`
	BoardPlatform          string        `cbor:"board_platform,omitempty" json:"boardPlatform,omitempty"`
	BuildPlatform          string        `cbor:"build_platform,omitempty" json:"buildPlatform,omitempty"`
}

// UploadResult is the result of a successful upload. UpdatedPort is set when
// the board re-enumerated on a different port during the upload.
type UploadResult struct {
	UpdatedPort *boards.PortIdentifier `cbor:"updated_port,omitempty" json:"updatedPort,omitempty"`
}

// IndexResult is the outcome of updating one index.
type IndexResult struct {
	Type    IndexType `cbor:"type" json:"type"`
	URL     string    `cbor:"url" json:"url"`
	Updated bool      `cbor:"updated" json:"updated"`
	Error   string    `cbor:"error,omitempty" json:"error,omitempty"`
}

// UpdateIndexSummary is the result of an index update.
type UpdateIndexSummary struct {
	Results []IndexResult `cbor:"results" json:"results"`
}

// IndexStatus answers whether the indexes were already updated before the
// first client connected.
type IndexStatus struct {
	UpdatedBeforeFirstConnection bool `cbor:"updated_before_first_connection"`
}
