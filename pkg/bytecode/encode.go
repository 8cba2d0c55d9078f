package bytecode

import "fmt"

// Width is the size, in bytes, of a variable-width operand within one
// instruction. Width1 is what the dispatch loop resets to after every
// non-prefix instruction (§4.4); the zero value of Width is not a
// valid width.
type Width int

const (
	Width1 Width = 1
	Width2 Width = 2
	Width4 Width = 4
)

// widthFor returns the narrowest Width that can hold v unsigned.
func widthFor(v uint32) Width {
	switch {
	case v <= 0xFF:
		return Width1
	case v <= 0xFFFF:
		return Width2
	default:
		return Width4
	}
}

// prefixFor returns the width-prefix opcode to emit before an
// instruction whose variable-width operands need w, or false if w is
// the default 1-byte width and no prefix is needed.
func prefixFor(w Width) (Opcode, bool) {
	switch w {
	case Width2:
		return OpWide16, true
	case Width4:
		return OpWide32, true
	default:
		return 0, false
	}
}

// appendOperand writes v to buf using w bytes, little-endian,
// truncating silently if v does not fit — callers must have already
// picked a wide enough Width via widthFor.
func appendOperand(buf []byte, w Width, v uint32) []byte {
	switch w {
	case Width1:
		return append(buf, byte(v))
	case Width2:
		return append(buf, byte(v), byte(v>>8))
	default:
		return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
}

// appendFixedInt32 writes a fixed-width signed 32-bit operand,
// independent of the instruction's variable-width prefix (§4.4).
func appendFixedInt32(buf []byte, v int32) []byte {
	u := uint32(v)
	return append(buf, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

// Reader decodes a byte-encoded instruction stream, tracking the
// current operand width the way the VM's dispatch loop does: a width
// prefix sets the width for exactly the one instruction that follows.
type Reader struct {
	code  []byte
	pc    int
	width Width
}

// NewReader wraps code for decoding starting at offset 0.
func NewReader(code []byte) *Reader {
	return &Reader{code: code, width: Width1}
}

// PC returns the current byte offset.
func (r *Reader) PC() int { return r.pc }

// SetPC seeks to an arbitrary offset, resetting the operand width to
// 1 byte — used when a jump handler changes control flow.
func (r *Reader) SetPC(pc int) {
	r.pc = pc
	r.width = Width1
}

// Done reports whether the reader has consumed the whole stream.
func (r *Reader) Done() bool { return r.pc >= len(r.code) }

// Instruction is one decoded instruction: its opcode, the offset it
// started at, and up to three decoded variable-width operands (unused
// slots are zero) plus an optional fixed int32 literal.
type Instruction struct {
	Op        Opcode
	Offset    int // byte offset of the opcode byte (after any width prefix)
	Operands  [3]uint32
	FixedInt  int32
	HasFixed  bool
	Width     Width
	Size      int // total bytes consumed, including any width prefix
}

// Next decodes the instruction at the reader's current position and
// advances past it. It skips width-prefix bytes transparently, exactly
// as the VM's dispatch loop does, so callers (disassembler, VM) never
// see OpWide16/OpWide32 as a standalone Instruction.
func (r *Reader) Next() (Instruction, error) {
	start := r.pc
	width := Width1
	for r.pc < len(r.code) {
		op := Opcode(r.code[r.pc])
		if op == OpWide16 {
			width = Width2
			r.pc++
			continue
		}
		if op == OpWide32 {
			width = Width4
			r.pc++
			continue
		}
		break
	}
	if r.pc >= len(r.code) {
		return Instruction{}, fmt.Errorf("bytecode: unexpected end of stream at offset %d", start)
	}
	opByte := r.code[r.pc]
	op := Opcode(opByte)
	opOffset := r.pc
	r.pc++

	if op == OpSuspend || op == OpNop {
		return Instruction{Op: op, Offset: opOffset, Width: width, Size: r.pc - start}, nil
	}

	shape, ok := operandShapes[op]
	if !ok {
		return Instruction{}, fmt.Errorf("bytecode: unknown opcode 0x%02x at offset %d", opByte, opOffset)
	}

	inst := Instruction{Op: op, Offset: opOffset, Width: width}
	for i := 0; i < shape.varOperands; i++ {
		v, err := r.readVar(width)
		if err != nil {
			return Instruction{}, err
		}
		inst.Operands[i] = v
	}
	if shape.hasFixedInt32 {
		v, err := r.readFixedInt32()
		if err != nil {
			return Instruction{}, err
		}
		inst.FixedInt = v
		inst.HasFixed = true
	}
	inst.Size = r.pc - start
	return inst, nil
}

func (r *Reader) readVar(w Width) (uint32, error) {
	n := int(w)
	if r.pc+n > len(r.code) {
		return 0, fmt.Errorf("bytecode: truncated operand at offset %d", r.pc)
	}
	var v uint32
	for i := 0; i < n; i++ {
		v |= uint32(r.code[r.pc+i]) << (8 * i)
	}
	r.pc += n
	return v, nil
}

func (r *Reader) readFixedInt32() (int32, error) {
	if r.pc+4 > len(r.code) {
		return 0, fmt.Errorf("bytecode: truncated fixed operand at offset %d", r.pc)
	}
	u := uint32(r.code[r.pc]) | uint32(r.code[r.pc+1])<<8 | uint32(r.code[r.pc+2])<<16 | uint32(r.code[r.pc+3])<<24
	r.pc += 4
	return int32(u), nil
}
