package daemon

import (
	"fmt"

	"github.com/dyluth/boardctl/internal/codec"
	"github.com/dyluth/boardctl/pkg/boards"
)

// FrameKind identifies a frame on a response stream.
type FrameKind string

const (
	FrameProgress FrameKind = "progress"
	FrameOutput   FrameKind = "output"
	FramePorts    FrameKind = "ports"
	FrameSketches FrameKind = "sketches"
	FramePlatform FrameKind = "platform"
	FrameResult   FrameKind = "result"
	FrameError    FrameKind = "error"
)

// Terminal reports whether the frame ends the stream.
func (k FrameKind) Terminal() bool {
	return k == FrameResult || k == FrameError
}

// Output streams.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Frame is one CBOR value of a response stream. Every stream ends with
// exactly one result or error frame.
type Frame struct {
	Kind FrameKind `cbor:"kind"`

	// progress
	Message string  `cbor:"message,omitempty"`
	Percent float64 `cbor:"percent,omitempty"`

	// output
	Stream string `cbor:"stream,omitempty"`
	Text   string `cbor:"text,omitempty"`

	// ports
	Ports boards.DetectedPorts `cbor:"ports,omitempty"`

	// sketches
	Sketches *SketchEvent `cbor:"sketches,omitempty"`

	// platform
	Platform *PlatformChange `cbor:"platform,omitempty"`

	// result
	Data codec.RawMessage `cbor:"data,omitempty"`

	// error
	Error *ErrorPayload `cbor:"error,omitempty"`
}

// Decode decodes the payload of a result frame into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := codec.Unmarshal(f.Data, v); err != nil {
		diag, _ := codec.Diagnose(f.Data)
		return fmt.Errorf("decoding result %s: %w", diag, err)
	}
	return nil
}

// SketchEvent reports sketch folders that appeared in or disappeared from
// the sketchbook.
type SketchEvent struct {
	Created []string `cbor:"created,omitempty" json:"created,omitempty"`
	Removed []string `cbor:"removed,omitempty" json:"removed,omitempty"`
}

// Platform changes.
const (
	PlatformInstalled   = "installed"
	PlatformUninstalled = "uninstalled"
)

// PlatformChange reports a platform that was installed or uninstalled.
type PlatformChange struct {
	Change string               `cbor:"change"`
	Event  boards.PlatformEvent `cbor:"event"`
}

// Position is a zero-based line and character offset.
type Position struct {
	Line      int `cbor:"line" json:"line"`
	Character int `cbor:"character" json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `cbor:"start" json:"start"`
	End   Position `cbor:"end" json:"end"`
}

// Diagnostic is one compiler or tool message reported with a terminal error.
// OutputRange, when set, locates the message in the raw output of the stream.
type Diagnostic struct {
	Message     string `cbor:"message"`
	URI         string `cbor:"uri,omitempty"`
	Range       Range  `cbor:"range"`
	Details     string `cbor:"details,omitempty"`
	OutputRange *Range `cbor:"output_range,omitempty"`
}

// Error codes carried by ErrorPayload.Code.
const (
	CodeCancelled = "cancelled"
	CodeNotFound  = "not_found"
)

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Message     string       `cbor:"message"`
	Code        string       `cbor:"code,omitempty"`
	Diagnostics []Diagnostic `cbor:"diagnostics,omitempty"`
}

// Error is returned when the daemon terminates a call with an error frame.
type Error struct {
	Action      string
	Message     string
	Code        string
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon error on %q: %s", e.Action, e.Message)
}

// Cancelled reports whether the daemon aborted the call because it was
// cancelled.
func (e *Error) Cancelled() bool {
	return e.Code == CodeCancelled
}

// Err converts the payload into the error returned to callers.
func (p *ErrorPayload) Err(action string) *Error {
	if p == nil {
		return &Error{Action: action, Message: "error frame without payload"}
	}
	return &Error{
		Action:      action,
		Message:     p.Message,
		Code:        p.Code,
		Diagnostics: p.Diagnostics,
	}
}
