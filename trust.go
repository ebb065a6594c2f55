package trust

import "fmt"

// Span captures a byte-offset run (start…end) within a single source file,
// the unit every syntax node and diagnostic range is expressed in.
type Span [2]uint64 // (start…end)

// From returns the start offset of a span.
func (s Span) From() uint64 { return s[0] }

// To returns the offset just past the end of a span.
func (s Span) To() uint64 { return s[1] }

// Len returns the length in bytes of the span.
func (s Span) Len() uint64 { return s[1] - s[0] }

func (s Span) String() string {
	return fmt.Sprintf("%d…%d", s[0], s[1])
}

// SourceLocation names a position within a project: a file plus a span
// within it, with line/column for human-facing diagnostics.
type SourceLocation struct {
	File   string
	Span   Span
	Line   int
	Column int
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Severity ranks a diagnostic or log entry.
type Severity uint8

const (
	SeverityHint Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (sv Severity) String() string {
	switch sv {
	case SeverityHint:
		return "hint"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}
