package emitter_test

import (
	"strings"
	"testing"

	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/emitter"
	"github.com/aspen-lang/aspen/pkg/parser"
	"github.com/aspen-lang/aspen/pkg/value"
)

func mustEmit(t *testing.T, src string) string {
	t.Helper()
	mod, perrs := parser.New(src).Parse()
	if len(perrs) != 0 {
		t.Fatalf("parse errors: %v", perrs)
	}
	desc, eerrs := emitter.New().EmitModule(mod, "<test>")
	if len(eerrs) != 0 {
		t.Fatalf("emit errors: %v", eerrs)
	}
	return bytecode.Disassemble(desc.Name, desc.Code, desc.Consts)
}

func TestEmitArithmeticExpression(t *testing.T) {
	out := mustEmit(t, "x := 1 + 2 * 3\n")
	if !strings.Contains(out, "ADD") || !strings.Contains(out, "MUL") {
		t.Fatalf("expected ADD and MUL in disassembly, got:\n%s", out)
	}
}

func TestEmitIfElse(t *testing.T) {
	out := mustEmit(t, "if true:\n    print 1\nelse:\n    print 2\n")
	if !strings.Contains(out, "JUMP_IF_FALSE") {
		t.Fatalf("expected a conditional jump, got:\n%s", out)
	}
}

func TestEmitWhileLoopWithBreak(t *testing.T) {
	out := mustEmit(t, "i := 0\nwhile i < 10:\n    if i == 5:\n        break\n    i += 1\n")
	if !strings.Contains(out, "JUMP_BACK") {
		t.Fatalf("expected a backward jump closing the loop, got:\n%s", out)
	}
}

func TestEmitForRange(t *testing.T) {
	out := mustEmit(t, "for i in 0..10:\n    print i\n")
	if !strings.Contains(out, "CMP_LT") {
		t.Fatalf("expected an exclusive-range comparison, got:\n%s", out)
	}
}

func TestEmitFunctionCall(t *testing.T) {
	out := mustEmit(t, "fn add(a, b):\n    return a + b\n\nr := add(1, 2)\n")
	if !strings.Contains(out, "CREATE_FUNCTION") || !strings.Contains(out, "CALL") {
		t.Fatalf("expected a function definition and a call, got:\n%s", out)
	}
}

func TestEmitClosureCapturesEnclosingLocal(t *testing.T) {
	mod, perrs := parser.New("fn outer():\n    x := 1\n    fn inner():\n        return x\n    return inner\n").Parse()
	if len(perrs) != 0 {
		t.Fatalf("parse errors: %v", perrs)
	}
	desc, eerrs := emitter.New().EmitModule(mod, "<test>")
	if len(eerrs) != 0 {
		t.Fatalf("emit errors: %v", eerrs)
	}
	// The capture is emitted in outer's own code, which the module root
	// holds as a function-descriptor constant.
	out := ""
	for _, c := range desc.Consts {
		if fd, ok := value.FunctionDescriptorOf(c); ok {
			out += bytecode.Disassemble(fd.Name, fd.Code, fd.Consts)
		}
	}
	if !strings.Contains(out, "CAPTURE_REG") {
		t.Fatalf("expected inner() to capture outer's local x, got:\n%s", out)
	}
}

func TestEmitClassWithFields(t *testing.T) {
	out := mustEmit(t, "class Point:\n    x = 0\n    y = 0\n\n    fn length():\n        return self.x\n")
	if !strings.Contains(out, "CREATE_CLASS_EMPTY") {
		t.Fatalf("expected a parentless class creation, got:\n%s", out)
	}
}

func TestEmitListAndDictLiterals(t *testing.T) {
	out := mustEmit(t, "xs := [1, 2, 3]\nd := {\"a\": 1}\n")
	if !strings.Contains(out, "PUSH_TO_LIST") || !strings.Contains(out, "INSERT_TO_DICT_NAMED") {
		t.Fatalf("expected list/dict construction opcodes, got:\n%s", out)
	}
}

func TestEmitLogicalShortCircuit(t *testing.T) {
	out := mustEmit(t, "x := true && false\ny := none ?? 1\n")
	if strings.Count(out, "JUMP_IF_FALSE") < 2 {
		t.Fatalf("expected short-circuit jumps for && and ??, got:\n%s", out)
	}
}
