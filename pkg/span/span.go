// Package span defines byte-range source positions shared by every stage
// of the aspen pipeline, from the lexer through runtime error reporting.
package span

import "fmt"

// Source is a named piece of UTF-8 source text. Every Span is only
// meaningful relative to the Source it was produced from.
type Source struct {
	Name string // module path or "<repl>"
	Text string
}

// NewSource wraps a module path and its source text.
func NewSource(name, text string) *Source {
	return &Source{Name: name, Text: text}
}

// Len returns the number of bytes in the source text.
func (s *Source) Len() int { return len(s.Text) }

// Slice returns the substring covered by sp, validated against the
// source's length. Callers must not index a Span into the wrong Source.
func (s *Source) Slice(sp Span) string {
	if sp.Start < 0 || sp.End > len(s.Text) || sp.Start > sp.End {
		panic(fmt.Sprintf("span: %v out of bounds for source of length %d", sp, len(s.Text)))
	}
	return s.Text[sp.Start:sp.End]
}

// LineCol converts a byte offset into a 1-based line and column, by
// scanning the source text. Used only for error rendering, never on a
// hot path.
func (s *Source) LineCol(offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(s.Text); i++ {
		if s.Text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return
}

// Span is a half-open byte range [Start, End) into a Source.
type Span struct {
	Start int
	End   int
}

// New constructs a Span, panicking if it is not a valid half-open range.
func New(start, end int) Span {
	if start < 0 || end < start {
		panic(fmt.Sprintf("span: invalid range [%d, %d)", start, end))
	}
	return Span{Start: start, End: end}
}

// Join returns the smallest span covering both a and b.
func Join(a, b Span) Span {
	start := a.Start
	if b.Start < start {
		start = b.Start
	}
	end := a.End
	if b.End > end {
		end = b.End
	}
	return Span{Start: start, End: end}
}

// Len reports the byte length of the span.
func (sp Span) Len() int { return sp.End - sp.Start }

// String renders the span as "[start:end)" for diagnostics and tests.
func (sp Span) String() string {
	return fmt.Sprintf("[%d:%d)", sp.Start, sp.End)
}
