package orchestrator

import (
	"strings"
	"unicode/utf8"

	"github.com/dyluth/boardctl/internal/daemon"
)

// outputBuffer accumulates the raw output of one operation so diagnostics
// can be located in it.
type outputBuffer struct {
	b strings.Builder
}

func (o *outputBuffer) write(text string) {
	o.b.WriteString(text)
}

func (o *outputBuffer) String() string {
	return o.b.String()
}

// occurrences returns where d appears in the output. A range reported by the
// daemon is used as-is; otherwise every verbatim occurrence of the message
// is located.
func (o *outputBuffer) occurrences(d daemon.Diagnostic) []daemon.Range {
	if d.OutputRange != nil {
		return []daemon.Range{*d.OutputRange}
	}
	if o == nil || d.Message == "" {
		return nil
	}

	text := o.b.String()
	var ranges []daemon.Range
	for offset := 0; ; {
		i := strings.Index(text[offset:], d.Message)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(d.Message)
		ranges = append(ranges, daemon.Range{
			Start: positionAt(text, start),
			End:   positionAt(text, end),
		})
		offset = end
	}
	return ranges
}

// positionAt converts a byte offset to a line and a rune column.
func positionAt(text string, offset int) daemon.Position {
	prefix := text[:offset]
	line := strings.Count(prefix, "\n")
	lineStart := strings.LastIndexByte(prefix, '\n') + 1
	return daemon.Position{
		Line:      line,
		Character: utf8.RuneCountInString(prefix[lineStart:]),
	}
}
