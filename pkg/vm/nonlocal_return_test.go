package vm

import (
	"testing"

	"github.com/aspen-lang/aspen/pkg/emitter"
	"github.com/aspen-lang/aspen/pkg/parser"
)

// TestReturnInsideIfBlock tests that a return statement nested inside
// an if-block exits the enclosing function immediately, without
// falling through to code that follows the if statement — aspen's
// if/while/for bodies are plain control structures, not separate
// function scopes, so "return" inside one always targets the nearest
// enclosing fn.
func TestReturnInsideIfBlock(t *testing.T) {
	source := "fn testMethod():\n" +
		"  if true:\n" +
		"    return 42\n" +
		"  return 99\n" +
		"\n" +
		"testMethod()\n"

	result := mustRun(t, source)
	n, ok := result.AsInt()
	if !ok {
		t.Fatalf("expected an int result, got %#v", result)
	}
	if n != 42 {
		t.Errorf("expected 42 (the early return), got %d", n)
	}
}

// TestReturnInsideNestedIfBlocks tests that return exits the enclosing
// function through multiple levels of if-block nesting.
func TestReturnInsideNestedIfBlocks(t *testing.T) {
	source := "fn testMethod():\n" +
		"  if true:\n" +
		"    if true:\n" +
		"      return 123\n" +
		"  return 456\n" +
		"\n" +
		"testMethod()\n"

	result := mustRun(t, source)
	n, ok := result.AsInt()
	if !ok {
		t.Fatalf("expected an int result, got %#v", result)
	}
	if n != 123 {
		t.Errorf("expected 123, got %d", n)
	}
}

// TestReturnInsideWhileLoop tests that return exits the enclosing
// function from inside a while loop's body, rather than merely
// breaking the loop.
func TestReturnInsideWhileLoop(t *testing.T) {
	source := "fn firstOver(threshold):\n" +
		"  i := 0\n" +
		"  while i < 100:\n" +
		"    if i > threshold:\n" +
		"      return i\n" +
		"    i += 1\n" +
		"  return -1\n" +
		"\n" +
		"firstOver(5)\n"

	result := mustRun(t, source)
	n, ok := result.AsInt()
	if !ok {
		t.Fatalf("expected an int result, got %#v", result)
	}
	if n != 6 {
		t.Errorf("expected 6, got %d", n)
	}
}

// TestReturnInsideMethodIfBlock tests the same early-return-through-a-
// control-structure behavior inside a class method.
func TestReturnInsideMethodIfBlock(t *testing.T) {
	source := "class TestClass:\n" +
		"  fn testMethod():\n" +
		"    if true:\n" +
		"      return 42\n" +
		"    return 99\n" +
		"\n" +
		"obj := TestClass()\n" +
		"obj.testMethod()\n"

	result := mustRun(t, source)
	n, ok := result.AsInt()
	if !ok {
		t.Fatalf("expected an int result, got %#v", result)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

// TestClosureReturnIsLocalToClosure tests that, unlike an if/while
// control structure, a nested fn is a genuine separate frame: a return
// inside it only exits that inner function, leaving the outer
// function's own control flow to continue independently.
func TestClosureReturnIsLocalToClosure(t *testing.T) {
	source := "fn outer():\n" +
		"  fn inner():\n" +
		"    return 1\n" +
		"  inner()\n" +
		"  return 2\n" +
		"\n" +
		"outer()\n"

	result := mustRun(t, source)
	n, ok := result.AsInt()
	if !ok {
		t.Fatalf("expected an int result, got %#v", result)
	}
	if n != 2 {
		t.Errorf("expected 2 (outer's own return, unaffected by inner's), got %d", n)
	}
}
