package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/boardctl/internal/daemon"
)

var (
	// ErrBusy is returned when an operation is already in flight for the
	// same target.
	ErrBusy = errors.New("operation already in progress for target")

	// ErrCancelled is returned when an operation was cancelled by its caller
	// or timed out. It is never a *StructuredError.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNoBoardSelected is returned when no fqbn was given and no board is
	// selected.
	ErrNoBoardSelected = errors.New("no board selected")

	// ErrNoPortSelected is returned when an upload needs a port and none is
	// given or selected.
	ErrNoPortSelected = errors.New("no port selected")

	// ErrInvalidFQBN is returned when the given or selected fqbn is not
	// vendor:architecture:boardId[:options].
	ErrInvalidFQBN = errors.New("invalid fqbn")
)

// ErrorType is the advisory classification of a tooling failure.
type ErrorType string

const (
	ErrorLinker               ErrorType = "linker"
	ErrorMultipleDefinition   ErrorType = "multiple-definition"
	ErrorSyntax               ErrorType = "syntax"
	ErrorMissingFile          ErrorType = "missing-file"
	ErrorUndeclaredIdentifier ErrorType = "undeclared-identifier"
	ErrorRedefinition         ErrorType = "redefinition"
	ErrorUnknown              ErrorType = "unknown"
)

// classifiers are checked in order; the first match wins.
var classifiers = []struct {
	typ      ErrorType
	patterns []string
}{
	{ErrorLinker, []string{"undefined reference"}},
	{ErrorMultipleDefinition, []string{"multiple definition", "already defined"}},
	{ErrorSyntax, []string{"expected", "missing", "parse error"}},
	{ErrorMissingFile, []string{"no such file", "cannot find"}},
	{ErrorUndeclaredIdentifier, []string{"not declared", "was not declared"}},
	{ErrorRedefinition, []string{"redefinition"}},
}

// ClassifyErrorType categorizes a tooling error message by substring match.
// The result is advisory and never affects control flow.
func ClassifyErrorType(message string) ErrorType {
	lower := strings.ToLower(message)
	for _, c := range classifiers {
		for _, p := range c.patterns {
			if strings.Contains(lower, p) {
				return c.typ
			}
		}
	}
	return ErrorUnknown
}

// Location is a span in a source file.
type Location struct {
	URI   string       `json:"uri"`
	Range daemon.Range `json:"range"`
}

// ErrorLocation is one logical diagnostic. OccurrencesInOutput lists every
// place the diagnostic appears in the raw output of the operation.
type ErrorLocation struct {
	Message             string         `json:"message"`
	Location            Location       `json:"location"`
	Details             string         `json:"details,omitempty"`
	OccurrencesInOutput []daemon.Range `json:"occurrencesInOutput"`
}

// StructuredError is the terminal failure of a compile, upload, bootloader
// or index operation.
type StructuredError struct {
	Message   string          `json:"message"`
	Type      ErrorType       `json:"type"`
	Locations []ErrorLocation `json:"locations,omitempty"`
}

func (e *StructuredError) Error() string {
	if len(e.Locations) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d locations)", e.Message, len(e.Locations))
}

// newStructuredError builds the error for a terminal daemon failure. Diagnostics
// with the same message and location are merged into one ErrorLocation.
func newStructuredError(message string, diagnostics []daemon.Diagnostic, output *outputBuffer) *StructuredError {
	type key struct {
		message string
		uri     string
		rng     daemon.Range
	}

	e := &StructuredError{Message: message}
	index := map[key]int{}
	for _, d := range diagnostics {
		occurrences := output.occurrences(d)

		k := key{message: d.Message, uri: d.URI, rng: d.Range}
		if i, ok := index[k]; ok {
			e.Locations[i].OccurrencesInOutput = mergeRanges(e.Locations[i].OccurrencesInOutput, occurrences)
			if e.Locations[i].Details == "" {
				e.Locations[i].Details = d.Details
			}
			continue
		}

		index[k] = len(e.Locations)
		e.Locations = append(e.Locations, ErrorLocation{
			Message:             d.Message,
			Location:            Location{URI: d.URI, Range: d.Range},
			Details:             d.Details,
			OccurrencesInOutput: mergeRanges(nil, occurrences),
		})
	}

	e.Type = ClassifyErrorType(message)
	if e.Type == ErrorUnknown && len(e.Locations) > 0 {
		e.Type = ClassifyErrorType(e.Locations[0].Message)
	}
	return e
}

func mergeRanges(into, from []daemon.Range) []daemon.Range {
	if into == nil {
		into = []daemon.Range{}
	}
	for _, r := range from {
		seen := false
		for _, existing := range into {
			if existing == r {
				seen = true
				break
			}
		}
		if !seen {
			into = append(into, r)
		}
	}
	return into
}
