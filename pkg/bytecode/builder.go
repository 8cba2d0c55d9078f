package bytecode

import (
	"fmt"

	"github.com/aspen-lang/aspen/pkg/value"
)

// Label names a not-yet-resolved jump target. Obtained from
// NewLabel and attached to a forward jump at emission time; the
// target byte offset is only known once BindLabel is called.
type Label int

type itemKind int

const (
	itemRaw itemKind = iota
	itemJump
	itemLabel
)

// item is one unit of a function body under construction: either a
// fully-encoded instruction (itemRaw), a jump whose width is still
// being relaxed (itemJump), or a label marker with zero size (itemLabel)
// recording where a Label was bound.
type item struct {
	kind   itemKind
	raw    []byte
	jumpOp Opcode
	target Label
	width  Width
}

// Builder accumulates one function's bytecode and constant pool. The
// zero value is not usable; use NewBuilder.
type Builder struct {
	items  []item
	labels []bool // labels[l] = true once bound

	consts       []value.Value
	scalarConstIdx map[value.Value]int
	stringConstIdx map[string]int
}

// NewBuilder returns an empty Builder ready to accept Emit calls.
func NewBuilder() *Builder {
	return &Builder{
		scalarConstIdx: map[value.Value]int{},
		stringConstIdx: map[string]int{},
	}
}

// NewLabel allocates a fresh, as-yet-unbound Label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, false)
	return Label(len(b.labels) - 1)
}

// BindLabel fixes l's target to the current end of the instruction
// stream. Must be called exactly once per label before Finalize.
func (b *Builder) BindLabel(l Label) {
	if int(l) >= len(b.labels) {
		panic(fmt.Sprintf("bytecode: BindLabel on unknown label %d", l))
	}
	if b.labels[l] {
		panic(fmt.Sprintf("bytecode: label %d bound twice", l))
	}
	b.labels[l] = true
	b.items = append(b.items, item{kind: itemLabel, target: l})
}

// AddConst interns v into the constant pool, deduplicating scalars
// (Int/Bool/None/Float — Float already canonicalizes NaN, so equal
// bit patterns are genuinely equal values) and strings by content.
// Every other Object kind (function/class descriptors, lists used as
// literal templates) is appended without dedup: each compiled entity
// is its own distinct constant.
func (b *Builder) AddConst(v value.Value) int {
	if s, ok := value.StringValue(v); ok {
		if idx, found := b.stringConstIdx[s]; found {
			v.Release()
			return idx
		}
		idx := len(b.consts)
		b.consts = append(b.consts, v)
		b.stringConstIdx[s] = idx
		return idx
	}
	if v.Kind() != value.KindObject {
		if idx, found := b.scalarConstIdx[v]; found {
			return idx
		}
		idx := len(b.consts)
		b.consts = append(b.consts, v)
		b.scalarConstIdx[v] = idx
		return idx
	}
	idx := len(b.consts)
	b.consts = append(b.consts, v)
	return idx
}

// Emit appends a non-jump instruction, choosing the narrowest
// variable-width encoding that fits every operand. Operand count must
// match op's operandShapes entry.
func (b *Builder) Emit(op Opcode, operands ...uint32) {
	shape, ok := operandShapes[op]
	if !ok || op.IsJump() {
		panic(fmt.Sprintf("bytecode: Emit called with invalid opcode %s", op))
	}
	if len(operands) != shape.varOperands {
		panic(fmt.Sprintf("bytecode: %s expects %d operands, got %d", op, shape.varOperands, len(operands)))
	}
	width := Width1
	for _, v := range operands {
		if w := widthFor(v); w > width {
			width = w
		}
	}
	var buf []byte
	if prefix, ok := prefixFor(width); ok {
		buf = append(buf, byte(prefix))
	}
	buf = append(buf, byte(op))
	for _, v := range operands {
		buf = appendOperand(buf, width, v)
	}
	b.items = append(b.items, item{kind: itemRaw, raw: buf})
}

// EmitNoOperand appends a zero-operand instruction (PushNone, LoadSelf,
// UnaryNot, Ret, and the like).
func (b *Builder) EmitNoOperand(op Opcode) {
	b.Emit(op)
}

// EmitPushSmallInt appends PushSmallInt with its fixed 4-byte i32
// literal, which is not subject to width-prefix narrowing (§4.4).
func (b *Builder) EmitPushSmallInt(v int32) {
	buf := []byte{byte(OpPushSmallInt)}
	buf = appendFixedInt32(buf, v)
	b.items = append(b.items, item{kind: itemRaw, raw: buf})
}

// EmitSuspend appends the generator-suspension terminator.
func (b *Builder) EmitSuspend() {
	b.items = append(b.items, item{kind: itemRaw, raw: []byte{byte(OpSuspend)}})
}

// EmitJump appends a forward jump to l, width TBD until Finalize.
func (b *Builder) EmitJump(l Label) { b.emitJumpItem(OpJump, l) }

// EmitJumpIfFalse appends a conditional forward jump, testing the
// accumulator's truthiness.
func (b *Builder) EmitJumpIfFalse(l Label) { b.emitJumpItem(OpJumpIfFalse, l) }

// EmitJumpBack appends a backward jump to l, which must already be
// bound (loop/while/for back-edges — the target offset is known).
func (b *Builder) EmitJumpBack(l Label) {
	if !b.labels[l] {
		panic("bytecode: EmitJumpBack to an unbound label")
	}
	b.emitJumpItem(OpJumpBack, l)
}

func (b *Builder) emitJumpItem(op Opcode, l Label) {
	if int(l) >= len(b.labels) {
		panic(fmt.Sprintf("bytecode: jump to unknown label %d", l))
	}
	b.items = append(b.items, item{kind: itemJump, jumpOp: op, target: l, width: Width1})
}

// jumpConstVariant maps a narrow jump opcode to its constant-pool
// variant. Nothing in the Builder calls it: relax stops at the 4-byte
// inline form, which already holds any uint32 delta, so Finalize never
// emits a -Const jump.
func jumpConstVariant(op Opcode) Opcode {
	switch op {
	case OpJump:
		return OpJumpConst
	case OpJumpBack:
		return OpJumpBackConst
	case OpJumpIfFalse:
		return OpJumpIfFalseConst
	default:
		panic("bytecode: not a jump opcode")
	}
}

func jumpItemSize(it item) int {
	sz := 1 + int(it.width) // opcode byte + operand bytes
	if it.width != Width1 {
		sz++ // width-prefix byte
	}
	return sz
}

// layout computes each item's starting byte offset and every bound
// label's offset, under the items' current (possibly still-relaxing)
// widths.
func (b *Builder) layout() (itemOffsets []int, labelOffsets map[Label]int) {
	itemOffsets = make([]int, len(b.items))
	labelOffsets = make(map[Label]int, len(b.labels))
	off := 0
	for i, it := range b.items {
		itemOffsets[i] = off
		switch it.kind {
		case itemLabel:
			labelOffsets[it.target] = off
		case itemJump:
			off += jumpItemSize(it)
		case itemRaw:
			off += len(it.raw)
		}
	}
	return
}

// relax runs the fixed-point branch-width selection described in
// §4.3: forward jumps start pessimistically narrow (Width1) and grow
// only as far as their actual distance requires, with the layout
// recomputed after every growth since a width change shifts every
// later offset. Each jump's width is monotonically non-decreasing, so
// this terminates in at most three passes per jump.
func (b *Builder) relax() {
	for {
		itemOffsets, labelOffsets := b.layout()
		changed := false
		for i, it := range b.items {
			if it.kind != itemJump {
				continue
			}
			target, ok := labelOffsets[it.target]
			if !ok {
				panic(fmt.Sprintf("bytecode: unbound label %d at Finalize", it.target))
			}
			size := jumpItemSize(it)
			var delta int
			if it.jumpOp == OpJumpBack {
				delta = (itemOffsets[i] + size) - target
			} else {
				delta = target - (itemOffsets[i] + size)
			}
			if delta < 0 {
				panic(fmt.Sprintf("bytecode: negative jump delta for %s (target %d, site %d)", it.jumpOp, target, itemOffsets[i]))
			}
			need := widthFor(uint32(delta))
			if need > it.width {
				b.items[i].width = need
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// Finalize resolves every jump to its final width and offset and
// returns the flat bytecode plus the constant pool. The Builder must
// not be reused afterward.
func (b *Builder) Finalize() ([]byte, []value.Value) {
	b.relax()
	offsets, labelOffsets := b.layout()

	var code []byte
	for i, it := range b.items {
		switch it.kind {
		case itemLabel:
			// zero-size marker, nothing to emit
		case itemRaw:
			code = append(code, it.raw...)
		case itemJump:
			target := labelOffsets[it.target]
			size := jumpItemSize(it)
			var delta int
			if it.jumpOp == OpJumpBack {
				delta = (offsets[i] + size) - target
			} else {
				delta = target - (offsets[i] + size)
			}
			if prefix, ok := prefixFor(it.width); ok {
				code = append(code, byte(prefix))
			}
			code = append(code, byte(it.jumpOp))
			code = appendOperand(code, it.width, uint32(delta))
		}
	}
	return code, b.consts
}

// Size reports the current number of emitted items. The emitter
// records it as the item index of each source span during replay and
// turns those indices into byte offsets through ItemOffsets after
// Finalize; an item index is not a byte offset.
func (b *Builder) Size() int { return len(b.items) }

// ItemOffsets reports every item's final byte offset, indexed by the
// same item index Size() returned when that item was emitted. Only
// meaningful after Finalize, once relax has settled every jump's
// width — callers that recorded per-item metadata (e.g. source spans)
// during emission translate it to byte offsets through this slice.
func (b *Builder) ItemOffsets() []int {
	offsets, _ := b.layout()
	return offsets
}
