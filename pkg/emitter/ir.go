package emitter

import (
	"golang.org/x/exp/slices"

	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/span"
	"github.com/aspen-lang/aspen/pkg/value"
)

// irKind distinguishes the handful of shapes a lowered instruction can
// take, mirroring the bytecode.Builder methods replay eventually calls.
type irKind int

const (
	irNoOperand irKind = iota
	irPlain            // Emit with 0-3 operands, some of which name a register (see regRefs)
	irPushSmallInt
	irSuspend
	irJump
	irJumpIfFalse
	irJumpBack
	irLabel
)

// irRegRef says that operand slot opIdx of a irPlain node names a
// virtual register, to be rewritten to a physical one at replay time.
type irRegRef struct {
	opIdx int
	vreg  int
}

// irNode is one entry of a funcCtx's instruction list. Every funcCtx
// accumulates these during AST lowering; allocateRegisters then resolves
// virtual registers to physical ones, and replay emits the final
// bytecode.
type irNode struct {
	kind     irKind
	op       bytecode.Opcode
	operands [3]uint32
	regRefs  []irRegRef
	fixedInt int32
	label    int
	span     span.Span
}

func (f *funcCtx) push(n irNode) {
	n.span = f.curSpan
	f.ir = append(f.ir, n)
}

func (f *funcCtx) emitNoOperand(op bytecode.Opcode) {
	f.push(irNode{kind: irNoOperand, op: op})
}

func (f *funcCtx) emitImm(op bytecode.Opcode, v uint32) {
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{v}})
}

func (f *funcCtx) emitImm2(op bytecode.Opcode, v0, v1 uint32) {
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{v0, v1}})
}

func (f *funcCtx) emitImm3(op bytecode.Opcode, v0, v1, v2 uint32) {
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{v0, v1, v2}})
}

// emitReg emits an instruction whose sole operand is a register.
func (f *funcCtx) emitReg(op bytecode.Opcode, vreg int) {
	f.touch(vreg)
	f.push(irNode{kind: irPlain, op: op, regRefs: []irRegRef{{0, vreg}}})
}

// emitRegReg emits a two-register instruction (e.g. InsertToDict's
// dictReg, keyReg or LoadIndex's objReg, keyReg).
func (f *funcCtx) emitRegReg(op bytecode.Opcode, v0, v1 int) {
	f.touch(v0)
	f.touch(v1)
	f.push(irNode{kind: irPlain, op: op, regRefs: []irRegRef{{0, v0}, {1, v1}}})
}

// emitRegImm emits (register, immediate), e.g. LoadField(objReg,
// nameConst) or Call(startReg, n).
func (f *funcCtx) emitRegImm(op bytecode.Opcode, vreg int, imm uint32) {
	f.touch(vreg)
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{0, imm}, regRefs: []irRegRef{{0, vreg}}})
}

// emitRegImm2 emits (register, immediate, immediate), e.g.
// CallKw(startReg, nPos, nKw).
func (f *funcCtx) emitRegImm2(op bytecode.Opcode, vreg int, imm0, imm1 uint32) {
	f.touch(vreg)
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{0, imm0, imm1}, regRefs: []irRegRef{{0, vreg}}})
}

// emitImmReg emits (immediate, register), e.g. CreateFunction(descConst)
// has no register but CreateClass(descConst, parentReg) and
// Import(path, destReg) do. CreateClass's register is the parent class
// only; field defaults and methods come from the class descriptor, not
// from a register range.
func (f *funcCtx) emitImmReg(op bytecode.Opcode, imm uint32, vreg int) {
	f.touch(vreg)
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{imm}, regRefs: []irRegRef{{1, vreg}}})
}

// emitImmImmReg emits (immediate, immediate, register), e.g.
// ImportNamed(path, name, destReg).
func (f *funcCtx) emitImmImmReg(op bytecode.Opcode, imm0, imm1 uint32, vreg int) {
	f.touch(vreg)
	f.push(irNode{kind: irPlain, op: op, operands: [3]uint32{imm0, imm1}, regRefs: []irRegRef{{2, vreg}}})
}

func (f *funcCtx) emitPushSmallInt(v int32) {
	f.push(irNode{kind: irPushSmallInt, fixedInt: v})
}

func (f *funcCtx) emitSuspend() {
	f.push(irNode{kind: irSuspend})
}

func (f *funcCtx) newLabel() int {
	f.labelCount++
	return f.labelCount - 1
}

func (f *funcCtx) bindLabel(l int) { f.push(irNode{kind: irLabel, label: l}) }
func (f *funcCtx) emitJump(l int)  { f.push(irNode{kind: irJump, label: l}) }
func (f *funcCtx) emitJumpIfFalse(l int) {
	f.push(irNode{kind: irJumpIfFalse, label: l})
}
func (f *funcCtx) emitJumpBack(l int) { f.push(irNode{kind: irJumpBack, label: l}) }

// allocateRegisters runs the linear-scan pass described in spec §4.5:
// intervals sorted by start, a free list of expired physical registers
// reused first-fit, a fresh physical register allocated only when the
// free list is empty. Self and parameters are pre-colored (identity)
// and excluded from the free list entirely, since the VM's call
// protocol assumes they sit at fixed frame offsets. Returns the
// vreg->physical map and the frame size (one past the highest physical
// register used).
func (f *funcCtx) allocateRegisters() (map[int]int, int) {
	ivs := make([]*interval, 0, len(f.intervals))
	for _, iv := range f.intervals {
		if iv.end < iv.start {
			iv.end = iv.start
		}
		ivs = append(ivs, iv)
	}
	slices.SortFunc(ivs, func(a, b *interval) bool { return a.start < b.start })

	phys := make(map[int]int, len(ivs)+f.fixedCount)
	for i := 0; i < f.fixedCount; i++ {
		phys[i] = i
	}

	type active struct {
		end, phys int
	}
	var actives []active
	var free []int
	next := f.fixedCount
	if next == 0 {
		next = 1 // register 0 is always reserved for self, even module roots without one
	}
	for _, iv := range ivs {
		still := actives[:0]
		for _, a := range actives {
			if a.end < iv.start {
				free = append(free, a.phys)
			} else {
				still = append(still, a)
			}
		}
		actives = still

		var p int
		if len(free) > 0 {
			slices.Sort(free)
			p, free = free[0], free[1:]
		} else {
			p, next = next, next+1
		}
		phys[iv.vreg] = p
		actives = append(actives, active{end: iv.end, phys: p})
	}

	frameSize := next
	for _, a := range actives {
		if a.phys+1 > frameSize {
			frameSize = a.phys + 1
		}
	}
	return phys, frameSize
}

// replay walks f.ir once, substituting each register reference's final
// physical number via phys, and drives a fresh bytecode.Builder to
// produce the finished Chunk. Labels are created lazily so forward and
// backward references to the same irNode label id share one
// bytecode.Label. The Builder's own constant pool goes unused — the
// returned Chunk's Consts is overwritten with f.consts (populated during
// lowering; see funcctx.go's addConst) since LoadConst operands were
// fixed against that pool before this Builder ever existed.
func (f *funcCtx) replay(phys map[int]int) (bytecode.Chunk, []value.SpanEntry) {
	b := bytecode.NewBuilder()
	labels := make(map[int]bytecode.Label, f.labelCount)
	labelFor := func(id int) bytecode.Label {
		if l, ok := labels[id]; ok {
			return l
		}
		l := b.NewLabel()
		labels[id] = l
		return l
	}

	// Spans are recorded against the item index current at emission
	// time (Size() is a count, not a byte offset — widths are not
	// settled until Finalize's relax pass runs). itemIdx below is
	// translated to a real byte offset via b.ItemOffsets() once
	// Finalize has run, so Frame.spanAt can compare against
	// bytecode.Instruction.Offset like any other byte position.
	type pendingSpan struct {
		itemIdx int
		sp      span.Span
	}
	var pending []pendingSpan
	recordSpan := func(sp span.Span) {
		pending = append(pending, pendingSpan{itemIdx: b.Size(), sp: sp})
	}

	for _, n := range f.ir {
		switch n.kind {
		case irNoOperand:
			recordSpan(n.span)
			b.EmitNoOperand(n.op)
		case irPlain:
			recordSpan(n.span)
			ops := n.operands
			for _, r := range n.regRefs {
				ops[r.opIdx] = uint32(phys[r.vreg])
			}
			count := bytecode.OperandCount(n.op)
			b.Emit(n.op, ops[:count]...)
		case irPushSmallInt:
			recordSpan(n.span)
			b.EmitPushSmallInt(n.fixedInt)
		case irSuspend:
			recordSpan(n.span)
			b.EmitSuspend()
		case irJump:
			recordSpan(n.span)
			b.EmitJump(labelFor(n.label))
		case irJumpIfFalse:
			recordSpan(n.span)
			b.EmitJumpIfFalse(labelFor(n.label))
		case irJumpBack:
			recordSpan(n.span)
			b.EmitJumpBack(labelFor(n.label))
		case irLabel:
			b.BindLabel(labelFor(n.label))
		}
	}

	chunk := bytecode.Finish(b)
	chunk.Consts = f.consts

	itemOffsets := b.ItemOffsets()
	spans := make([]value.SpanEntry, len(pending))
	for i, ps := range pending {
		spans[i] = value.SpanEntry{Off: itemOffsets[ps.itemIdx], StartByte: ps.sp.Start, EndByte: ps.sp.End}
	}
	return chunk, spans
}
