// Package vm - error handling with stack traces (spec §7).
package vm

import (
	"fmt"
	"strings"

	"github.com/aspen-lang/aspen/pkg/span"
)

// Cause classifies why a RuntimeError was raised, per SPEC_FULL §2's
// extension of spec §7's bare "Runtime" taxonomy entry into a
// recognizable per-frame reason a host embedder can switch on instead
// of parsing Message.
type Cause int

const (
	CauseTypeMismatch Cause = iota
	CauseUndefinedName
	CauseMissingField
	CauseArity
	CauseDivideByZero
	CauseBadCallTarget
	CauseImportFailed
	CauseIndexOutOfRange
	CauseFrozenInstance
	CauseUnknownKeyword
	CauseBorrowConflict
)

func (c Cause) String() string {
	switch c {
	case CauseTypeMismatch:
		return "TypeMismatch"
	case CauseUndefinedName:
		return "UndefinedName"
	case CauseMissingField:
		return "MissingField"
	case CauseArity:
		return "Arity"
	case CauseDivideByZero:
		return "DivideByZero"
	case CauseBadCallTarget:
		return "BadCallTarget"
	case CauseImportFailed:
		return "ImportFailed"
	case CauseIndexOutOfRange:
		return "IndexOutOfRange"
	case CauseFrozenInstance:
		return "FrozenInstance"
	case CauseUnknownKeyword:
		return "UnknownKeyword"
	case CauseBorrowConflict:
		return "BorrowConflict"
	default:
		return "Unknown"
	}
}

// StackFrame is one entry of a RuntimeError's trace, captured innermost
// first as the dispatch loop unwinds (spec §4.7's "before returning the
// error, the VM unwinds the frame stack, pushing a stack-trace fragment
// {function_name, span, module_name} per frame").
type StackFrame struct {
	FunctionName string
	ModuleName   string
	Span         span.Span
	IP           int
}

// RuntimeError is the value every failing opcode handler produces
// (spec §4.7/§7): a Cause, the span of the instruction that failed, and
// a trace accumulated as the error propagates out through each Frame's
// caller.
type RuntimeError struct {
	Cause   Cause
	Message string
	Span    span.Span
	Trace   []StackFrame
}

func newRuntimeError(cause Cause, span span.Span, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Cause: cause, Message: fmt.Sprintf(format, args...), Span: span}
}

// Error renders "error in <module>: <message>" followed by one "In
// <function> at <span>" line per frame, innermost to outermost, per
// spec §7's user-visible format (the rendered source snippet that
// format also calls for is a diagnostic-rendering concern, explicitly
// out of CORE scope per spec §1, and left to the embedding CLI).
func (e *RuntimeError) Error() string {
	var b strings.Builder
	module := "<unknown>"
	if len(e.Trace) > 0 {
		module = e.Trace[0].ModuleName
	}
	fmt.Fprintf(&b, "error in %s: %s", module, e.Message)
	for _, f := range e.Trace {
		fmt.Fprintf(&b, "\nIn %s at %s", f.FunctionName, f.Span)
	}
	return b.String()
}
