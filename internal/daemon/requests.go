package daemon

import (
	"fmt"

	"github.com/dyluth/boardctl/pkg/boards"
)

// Warnings is the compiler warnings level.
type Warnings string

const (
	WarningsNone    Warnings = "none"
	WarningsDefault Warnings = "default"
	WarningsMore    Warnings = "more"
	WarningsAll     Warnings = "all"
)

// Validate checks that w is a known level.
func (w Warnings) Validate() error {
	switch w {
	case WarningsNone, WarningsDefault, WarningsMore, WarningsAll:
		return nil
	default:
		return fmt.Errorf("invalid warnings level %q: must be one of none, default, more, all", w)
	}
}

// CompileOptions are the user preferences applied to a compile.
type CompileOptions struct {
	Verbose          bool
	Warnings         Warnings
	OptimizeForDebug bool
	// ExportBinaries is left to the daemon's default when nil.
	ExportBinaries *bool
	// SourceOverride maps sketch-relative paths to unsaved editor contents.
	SourceOverride map[string]string
}

// CompileRequest is an immutable compile invocation.
type CompileRequest struct {
	SketchPath       string            `cbor:"sketch_path"`
	FQBN             string            `cbor:"fqbn"`
	Verbose          bool              `cbor:"verbose"`
	Warnings         Warnings          `cbor:"warnings"`
	OptimizeForDebug bool              `cbor:"optimize_for_debug"`
	ExportBinaries   *bool             `cbor:"export_binaries,omitempty"`
	SourceOverride   map[string]string `cbor:"source_override,omitempty"`
}

// NewCompileRequest builds a compile request. It panics when sketchPath or
// fqbn is empty, or when the warnings level is unknown: those are caller bugs.
func NewCompileRequest(sketchPath, fqbn string, opts CompileOptions) CompileRequest {
	mustSketch(sketchPath)
	mustFQBN(fqbn)
	if opts.Warnings == "" {
		opts.Warnings = WarningsNone
	}
	if err := opts.Warnings.Validate(); err != nil {
		panic(err)
	}

	req := CompileRequest{
		SketchPath:       sketchPath,
		FQBN:             fqbn,
		Verbose:          opts.Verbose,
		Warnings:         opts.Warnings,
		OptimizeForDebug: opts.OptimizeForDebug,
	}
	if opts.ExportBinaries != nil {
		v := *opts.ExportBinaries
		req.ExportBinaries = &v
	}
	if len(opts.SourceOverride) > 0 {
		req.SourceOverride = make(map[string]string, len(opts.SourceOverride))
		for k, v := range opts.SourceOverride {
			req.SourceOverride[k] = v
		}
	}
	return req
}

// UploadOptions are the user preferences applied to an upload.
type UploadOptions struct {
	Port       *boards.PortIdentifier
	Programmer string
	Verify     bool
	Verbose    bool
	UserFields map[string]string
}

// UploadRequest is an immutable upload invocation.
type UploadRequest struct {
	SketchPath string                 `cbor:"sketch_path"`
	FQBN       string                 `cbor:"fqbn"`
	Port       *boards.PortIdentifier `cbor:"port,omitempty"`
	Programmer string                 `cbor:"programmer,omitempty"`
	Verify     bool                   `cbor:"verify"`
	Verbose    bool                   `cbor:"verbose"`
	UserFields map[string]string      `cbor:"user_fields,omitempty"`
}

// NewUploadRequest builds an upload request. It panics when sketchPath or
// fqbn is empty.
func NewUploadRequest(sketchPath, fqbn string, opts UploadOptions) UploadRequest {
	mustSketch(sketchPath)
	mustFQBN(fqbn)

	req := UploadRequest{
		SketchPath: sketchPath,
		FQBN:       fqbn,
		Programmer: opts.Programmer,
		Verify:     opts.Verify,
		Verbose:    opts.Verbose,
	}
	if opts.Port != nil {
		p := *opts.Port
		req.Port = &p
	}
	if len(opts.UserFields) > 0 {
		req.UserFields = make(map[string]string, len(opts.UserFields))
		for k, v := range opts.UserFields {
			req.UserFields[k] = v
		}
	}
	return req
}

// BootloaderRequest is an immutable burn-bootloader invocation.
type BootloaderRequest struct {
	FQBN       string                 `cbor:"fqbn"`
	Port       *boards.PortIdentifier `cbor:"port,omitempty"`
	Programmer string                 `cbor:"programmer,omitempty"`
	Verify     bool                   `cbor:"verify"`
	Verbose    bool                   `cbor:"verbose"`
}

// NewBootloaderRequest builds a burn-bootloader request. It panics when fqbn
// is empty.
func NewBootloaderRequest(fqbn string, opts UploadOptions) BootloaderRequest {
	mustFQBN(fqbn)

	req := BootloaderRequest{
		FQBN:       fqbn,
		Programmer: opts.Programmer,
		Verify:     opts.Verify,
		Verbose:    opts.Verbose,
	}
	if opts.Port != nil {
		p := *opts.Port
		req.Port = &p
	}
	return req
}

// IndexType selects which index an update refreshes.
type IndexType string

const (
	IndexPlatform IndexType = "platform"
	IndexLibrary  IndexType = "library"
)

// UpdateIndexRequest refreshes the package indexes.
type UpdateIndexRequest struct {
	Types []IndexType `cbor:"types"`
}

// NewUpdateIndexRequest builds an index update. With no types, both indexes
// are updated.
func NewUpdateIndexRequest(types ...IndexType) UpdateIndexRequest {
	if len(types) == 0 {
		types = []IndexType{IndexPlatform, IndexLibrary}
	}
	for _, t := range types {
		if t != IndexPlatform && t != IndexLibrary {
			panic(fmt.Sprintf("daemon: unknown index type %q", t))
		}
	}
	return UpdateIndexRequest{Types: append([]IndexType(nil), types...)}
}

func mustSketch(sketchPath string) {
	if sketchPath == "" {
		panic("daemon: request requires a sketch path")
	}
}

func mustFQBN(fqbn string) {
	if fqbn == "" {
		panic("daemon: request requires an fqbn")
	}
	if _, err := boards.ParseFQBN(fqbn); err != nil {
		panic(fmt.Sprintf("daemon: %v", err))
	}
}
