package vm

import (
	"strings"
	"testing"

	"github.com/aspen-lang/aspen/pkg/emitter"
	"github.com/aspen-lang/aspen/pkg/parser"
)

func mustRunErr(t *testing.T, src string) *RuntimeError {
	t.Helper()
	mod, perrs := parser.New(src).Parse()
	if len(perrs) != 0 {
		t.Fatalf("parse errors: %v", perrs)
	}
	desc, eerrs := emitter.New().EmitModule(mod, "<test>")
	if len(eerrs) != 0 {
		t.Fatalf("emit errors: %v", eerrs)
	}
	iso := New()
	_, err := iso.Run("test-module", "<test>", desc)
	if err == nil {
		t.Fatal("expected a runtime error, got nil")
	}
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	return rerr
}

// TestStackTraceOnError tests that a division by zero at module scope
// raises a RuntimeError carrying a one-frame trace.
func TestStackTraceOnError(t *testing.T) {
	source := "x := 10\ny := 0\nx / y\n"

	rerr := mustRunErr(t, source)
	if rerr.Cause != CauseDivideByZero {
		t.Fatalf("expected CauseDivideByZero, got %v", rerr.Cause)
	}

	errMsg := rerr.Error()
	if !strings.Contains(errMsg, "division by zero") {
		t.Errorf("expected error message to contain 'division by zero', got: %v", errMsg)
	}
	if len(rerr.Trace) == 0 {
		t.Fatalf("expected a non-empty stack trace")
	}
	if !strings.Contains(errMsg, "In ") {
		t.Errorf("expected a rendered \"In <function> at <span>\" trace line, got: %v", errMsg)
	}
}

// TestStackTraceWithNestedCalls tests that a runtime error raised deep
// inside nested function calls carries one frame per call on the way
// out, innermost first.
func TestStackTraceWithNestedCalls(t *testing.T) {
	source := "fn divide(a, b):\n  return a / b\n\nfn wrapper(a, b):\n  return divide(a, b)\n\nwrapper(10, 0)\n"

	rerr := mustRunErr(t, source)
	if rerr.Cause != CauseDivideByZero {
		t.Fatalf("expected CauseDivideByZero, got %v", rerr.Cause)
	}
	if len(rerr.Trace) < 3 {
		t.Fatalf("expected at least 3 stack frames (divide, wrapper, module), got %d: %#v", len(rerr.Trace), rerr.Trace)
	}
	if rerr.Trace[0].FunctionName != "divide" {
		t.Errorf("expected innermost frame to be \"divide\", got %q", rerr.Trace[0].FunctionName)
	}
}

// TestStackTraceModuleName confirms the error's module name is taken
// from the innermost frame, matching the module the failing code ran
// in rather than some caller's module.
func TestStackTraceModuleName(t *testing.T) {
	rerr := mustRunErr(t, "x := 1 / 0\n")
	if !strings.Contains(rerr.Error(), "error in <test>:") {
		t.Errorf("expected error to name the module, got: %v", rerr.Error())
	}
}
