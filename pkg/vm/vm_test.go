package vm

import (
	"testing"

	"github.com/aspen-lang/aspen/pkg/emitter"
	"github.com/aspen-lang/aspen/pkg/parser"
	"github.com/aspen-lang/aspen/pkg/value"
)

func mustRun(t *testing.T, src string) value.Value {
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
	result, err := iso.Run("test-module", "<test>", desc)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	return result
}

func TestVMIntegerLiteral(t *testing.T) {
	result := mustRun(t, "x := 42\nx\n")
	n, ok := result.AsInt()
	if !ok || n != 42 {
		t.Errorf("expected 42, got %#v", result)
	}
}

func TestVMStringLiteral(t *testing.T) {
	result := mustRun(t, "x := \"Hello\"\nx\n")
	s, ok := value.StringValue(result)
	if !ok || s != "Hello" {
		t.Errorf("expected \"Hello\", got %#v", result)
	}
}

func TestVMArithmetic(t *testing.T) {
	result := mustRun(t, "x := 1 + 2 * 3\nx\n")
	n, ok := result.AsInt()
	if !ok || n != 7 {
		t.Errorf("expected 7, got %#v", result)
	}
}

func TestVMIfElse(t *testing.T) {
	result := mustRun(t, "x := 0\nif true:\n  x = 1\nelse:\n  x = 2\nx\n")
	n, ok := result.AsInt()
	if !ok || n != 1 {
		t.Errorf("expected 1, got %#v", result)
	}
}

func TestVMWhileLoop(t *testing.T) {
	result := mustRun(t, "i := 0\nwhile i < 5:\n  i += 1\ni\n")
	n, ok := result.AsInt()
	if !ok || n != 5 {
		t.Errorf("expected 5, got %#v", result)
	}
}

func TestVMFunctionCall(t *testing.T) {
	result := mustRun(t, "fn add(a, b):\n  return a + b\n\nadd(3, 4)\n")
	n, ok := result.AsInt()
	if !ok || n != 7 {
		t.Errorf("expected 7, got %#v", result)
	}
}

func TestVMClosureCapturesEnclosingLocal(t *testing.T) {
	src := "fn outer():\n  x := 10\n  fn inner():\n    return x\n  return inner\n\nouter()()\n"
	result := mustRun(t, src)
	n, ok := result.AsInt()
	if !ok || n != 10 {
		t.Errorf("expected 10, got %#v", result)
	}
}

func TestVMClassInstantiationAndMethod(t *testing.T) {
	src := "class Point:\n  x = 0\n  y = 0\n  fn init(x, y):\n    self.x = x\n    self.y = y\n  fn sum():\n    return self.x + self.y\n\np := Point(3, 4)\np.sum()\n"
	result := mustRun(t, src)
	n, ok := result.AsInt()
	if !ok || n != 7 {
		t.Errorf("expected 7, got %#v", result)
	}
}
