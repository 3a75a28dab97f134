// Package diag collects the diagnostics produced by the SN/X compile
// pipeline: lexing, parsing, lowering, and static analysis.
package diag

import (
	"fmt"
	"strings"
)

// Severity classifies how serious a diagnostic is.
type Severity int

const (
	// Error prevents simulation.
	Error Severity = iota
	// Warning is advisory; the program still runs.
	Warning
	// Info is purely informational.
	Info
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "info"
	}
}

// Diagnostic codes. M001, I001 and B001 are fixed by the ISA contract;
// the remainder are internal codes for syntax, label, and analysis findings.
const (
	CodeBadChar        = "P001" // unrecognized character
	CodeUnexpected     = "P002" // unexpected token
	CodeBadOperand     = "P003" // wrong operand count or kind
	CodeUnknownMnem    = "P004" // unknown mnemonic
	CodeBadRegister    = "P005" // register index out of range
	CodeDupLabel       = "L001" // duplicate label
	CodeUndefLabel     = "L002" // undefined label
	CodeAbsOOB         = "M001" // absolute LD/ST address out of bounds
	CodeImmTruncated   = "I001" // immediate truncated to 8 bits
	CodeBranchOverflow = "B001" // branch target overflows its field
	CodeUnreachable    = "A001" // unreachable instruction
	CodeInfiniteLoop   = "A002" // loop with no exit
	CodeUninitRead     = "A003" // read of possibly uninitialized register
	CodeInvalidReturn  = "A004" // return through a non-link register
)

// Span locates a diagnostic in the source text. Lines and columns are
// 1-based; a zero Span means "no position".
type Span struct {
	Line int
	Col  int
}

// NewSpan builds a span from a 1-based line and column.
func NewSpan(line, col int) Span {
	return Span{Line: line, Col: col}
}

// IsZero reports whether the span carries no position.
func (s Span) IsZero() bool {
	return s.Line == 0 && s.Col == 0
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Col)
}

// Diagnostic is a single message from the pipeline.
type Diagnostic struct {
	Severity Severity
	Code     string
	Span     Span
	Message  string
}

func (d Diagnostic) String() string {
	if d.Span.IsZero() {
		return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", d.Span, d.Severity, d.Code, d.Message)
}

// List accumulates diagnostics in emission order: source order for
// lex/parse/lower messages, then analysis pass order.
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
}

// Errorf appends an error diagnostic with a formatted message.
func (l *List) Errorf(code string, span Span, format string, args ...any) {
	l.Add(Diagnostic{Severity: Error, Code: code, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning diagnostic with a formatted message.
func (l *List) Warnf(code string, span Span, format string, args ...any) {
	l.Add(Diagnostic{Severity: Warning, Code: code, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Infof appends an informational diagnostic with a formatted message.
func (l *List) Infof(code string, span Span, format string, args ...any) {
	l.Add(Diagnostic{Severity: Info, Code: code, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Items returns the diagnostics in emission order.
func (l *List) Items() []Diagnostic {
	return l.items
}

// Len returns the number of diagnostics.
func (l *List) Len() int {
	return len(l.items)
}

// HasErrors reports whether any diagnostic is an error.
func (l *List) HasErrors() bool {
	for _, d := range l.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any diagnostic is a warning.
func (l *List) HasWarnings() bool {
	for _, d := range l.items {
		if d.Severity == Warning {
			return true
		}
	}
	return false
}

// Format renders all diagnostics as line-anchored text, one per line.
func (l *List) Format() string {
	var b strings.Builder
	for _, d := range l.items {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}
