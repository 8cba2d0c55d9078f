package bytecode

import (
	"bytes"
	"testing"

	"github.com/aspen-lang/aspen/pkg/value"
)

func TestEmitNonJumpRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpLoadReg, 3)
	b.Emit(OpAdd, 1)
	b.EmitNoOperand(OpRet)
	chunk := Finish(b)

	r := NewReader(chunk.Code)
	inst, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Op != OpLoadReg || inst.Operands[0] != 3 {
		t.Fatalf("got %+v", inst)
	}
	inst, err = r.Next()
	if err != nil || inst.Op != OpAdd || inst.Operands[0] != 1 {
		t.Fatalf("got %+v, err %v", inst, err)
	}
	inst, err = r.Next()
	if err != nil || inst.Op != OpRet {
		t.Fatalf("got %+v, err %v", inst, err)
	}
	if !r.Done() {
		t.Fatalf("expected reader to be exhausted")
	}
}

func TestEmitWidensOperandsThatOverflowOneByte(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpLoadReg, 1000) // needs Width2 -> a Wide16 prefix byte
	chunk := Finish(b)

	if len(chunk.Code) != 4 {
		t.Fatalf("expected prefix(1) + opcode(1) + operand(2) = 4 bytes, got %d", len(chunk.Code))
	}
	if Opcode(chunk.Code[0]) != OpWide16 {
		t.Fatalf("expected a Wide16 prefix, got opcode byte 0x%02x", chunk.Code[0])
	}
	r := NewReader(chunk.Code)
	inst, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Operands[0] != 1000 {
		t.Fatalf("got operand %d, want 1000", inst.Operands[0])
	}
}

func TestPushSmallIntUsesFixedWidthLiteral(t *testing.T) {
	b := NewBuilder()
	b.EmitPushSmallInt(-42)
	chunk := Finish(b)

	r := NewReader(chunk.Code)
	inst, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inst.HasFixed || inst.FixedInt != -42 {
		t.Fatalf("got %+v", inst)
	}
}

func TestForwardJumpResolvesToCorrectDelta(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.EmitJumpIfFalse(end)
	b.EmitNoOperand(OpPushTrue)
	b.BindLabel(end)
	b.EmitNoOperand(OpRet)
	chunk := Finish(b)

	r := NewReader(chunk.Code)
	inst, err := r.Next()
	if err != nil || inst.Op != OpJumpIfFalse {
		t.Fatalf("got %+v, err %v", inst, err)
	}
	// The jump should land exactly on the Ret instruction: one byte
	// for PushTrue's opcode stands between the jump and its target.
	wantDelta := uint32(1)
	if inst.Operands[0] != wantDelta {
		t.Fatalf("delta = %d, want %d", inst.Operands[0], wantDelta)
	}
}

func TestBackwardJumpToLoopHeader(t *testing.T) {
	b := NewBuilder()
	header := b.NewLabel()
	b.BindLabel(header)
	b.EmitNoOperand(OpPushNone)
	b.EmitJumpBack(header)
	chunk := Finish(b)

	r := NewReader(chunk.Code)
	first, err := r.Next()
	if err != nil || first.Op != OpPushNone {
		t.Fatalf("got %+v, err %v", first, err)
	}
	second, err := r.Next()
	if err != nil || second.Op != OpJumpBack {
		t.Fatalf("got %+v, err %v", second, err)
	}
	// The delta is measured from the byte following the JumpBack
	// instruction itself back to the header: 1 byte for PushNone plus
	// the JumpBack instruction's own 2 bytes (opcode + 1-byte operand).
	if second.Operands[0] != 3 {
		t.Fatalf("backward delta = %d, want 3", second.Operands[0])
	}
}

func TestConstPoolDedupesScalarsAndStringsNotObjects(t *testing.T) {
	b := NewBuilder()
	i1 := b.AddConst(value.Int(7))
	i2 := b.AddConst(value.Int(7))
	if i1 != i2 {
		t.Fatalf("expected Int(7) to dedup, got indices %d and %d", i1, i2)
	}
	s1 := b.AddConst(value.NewString("hi"))
	s2 := b.AddConst(value.NewString("hi"))
	if s1 != s2 {
		t.Fatalf("expected equal strings to dedup, got indices %d and %d", s1, s2)
	}
	l1 := b.AddConst(value.NewList())
	l2 := b.AddConst(value.NewList())
	if l1 == l2 {
		t.Fatalf("expected two distinct List objects to get distinct constant slots")
	}
}

func TestChunkBinaryRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpLoadConst, uint32(b.AddConst(value.NewString("hello"))))
	b.EmitNoOperand(OpPrint)
	b.EmitNoOperand(OpRet)
	chunk := Finish(b)

	desc := &value.FunctionDescriptorData{
		Name:    "main",
		MinArgs: 0, MaxArgs: 0,
		FrameSize: 1,
		Code:      chunk.Code,
		Consts:    chunk.Consts,
	}

	var buf bytes.Buffer
	if err := EncodeChunk(desc, &buf); err != nil {
		t.Fatalf("EncodeChunk: %v", err)
	}

	got, err := DecodeChunk(&buf)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	gotDesc, ok := value.FunctionDescriptorOf(got)
	if !ok {
		t.Fatalf("expected a FunctionDescriptor value back")
	}
	if gotDesc.Name != "main" || gotDesc.FrameSize != 1 {
		t.Fatalf("got %+v", gotDesc)
	}
	if !bytes.Equal(gotDesc.Code, chunk.Code) {
		t.Fatalf("code mismatch after round trip")
	}
	s, ok := value.StringValue(gotDesc.Consts[0])
	if !ok || s != "hello" {
		t.Fatalf("expected constant 0 to be the string %q, got %v", "hello", gotDesc.Consts[0])
	}
	got.Release()
}

func TestDisassembleProducesOneLinePerInstruction(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpLoadReg, 0)
	b.EmitNoOperand(OpRet)
	chunk := Finish(b)

	out := Disassemble("main", chunk.Code, chunk.Consts)
	if !bytes.Contains([]byte(out), []byte("LOAD_REG")) || !bytes.Contains([]byte(out), []byte("RET")) {
		t.Fatalf("unexpected disassembly:\n%s", out)
	}
}
