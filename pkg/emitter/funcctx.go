package emitter

import (
	"github.com/aspen-lang/aspen/pkg/span"
	"github.com/aspen-lang/aspen/pkg/value"
)

// interval is a virtual register's live range, measured in ir node
// positions: [start, end]. allocateRegisters (ir.go) sorts these by
// start and hands out physical registers first-fit, per spec §4.5.
type interval struct {
	vreg, start, end int
}

// loopCtx tracks the two labels a break/continue inside the current
// loop need: continueLabel is where `continue` jumps to (the
// condition re-check for while, the top of the body for loop, or the
// increment step for for-range/for-in), endLabel is where `break`
// jumps forward to.
type loopCtx struct {
	continueLabel  int
	continueIsBack bool // true when continueLabel is already bound (while/loop); false when it is bound later in source order (for-range/for-in's increment step)
	endLabel       int
}

// funcCtx is the per-function lowering state: one is created for the
// module root and one more for every FuncDecl (including methods and
// nested closures). Register operands are virtual until
// allocateRegisters runs at the end of lowering (see ir.go).
type funcCtx struct {
	e            *Emitter
	parent       *funcCtx
	name         string
	hasSelf      bool
	isGenerator  bool
	isModuleRoot bool

	scopes []map[string]int // block scopes; scopes[0] holds the params

	fixedCount int // 1 (self) + len(params); ids below this are pre-colored 1:1 to a physical register
	nextVReg   int
	intervals  map[int]*interval

	upvalues   []value.UpvalueSpec
	upvalueIdx map[string]int // name -> already-resolved upvalue index, so a name is captured at most once

	loops []*loopCtx

	ir         []irNode
	labelCount int
	curSpan    span.Span // stamped onto every irNode emitted while set; see setSpan

	consts         []value.Value
	scalarConstIdx map[value.Value]int
	stringConstIdx map[string]int
}

// setSpan records the source span covering the statement/expression
// about to be lowered, so every ir node it emits carries it through to
// the final SpanEntry table (value.FunctionDescriptorData.Spans) without
// threading a span argument through every emit* helper.
func (f *funcCtx) setSpan(sp span.Span) { f.curSpan = sp }

func newFuncCtx(e *Emitter, parent *funcCtx, name string, hasSelf, isGenerator bool) *funcCtx {
	return &funcCtx{
		e: e, parent: parent, name: name, hasSelf: hasSelf, isGenerator: isGenerator,
		scopes:         []map[string]int{{}},
		intervals:      map[int]*interval{},
		upvalueIdx:     map[string]int{},
		scalarConstIdx: map[value.Value]int{},
		stringConstIdx: map[string]int{},
	}
}

// setupParams reserves physical register 0 for self and 1..len(names)
// for positional parameters in order, per the VM call protocol (spec
// §4.7 step 3: "initialize slot 0 to the receiver ... copy positional
// args into slots starting after the reserved slot"). These ids are
// pre-colored and never participate in linear-scan allocation.
func (f *funcCtx) setupParams(names []string) {
	f.fixedCount = 1 + len(names)
	f.nextVReg = f.fixedCount
	for i, n := range names {
		f.scopes[0][n] = 1 + i
	}
}

func (f *funcCtx) pushScope() { f.scopes = append(f.scopes, map[string]int{}) }
func (f *funcCtx) popScope()  { f.scopes = f.scopes[:len(f.scopes)-1] }

func (f *funcCtx) declareLocal(name string) int {
	id := f.allocTemp()
	f.scopes[len(f.scopes)-1][name] = id
	return id
}

func (f *funcCtx) resolveLocal(name string) (int, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if id, ok := f.scopes[i][name]; ok {
			return id, true
		}
	}
	return 0, false
}

// resolveUpvalue walks the enclosing-function chain per spec §4.5: a
// name found among the parent's own locals becomes a Register upvalue;
// a name the parent itself had to capture becomes a chained Upvalue
// upvalue. Each distinct name is only ever added once to f.upvalues.
func (f *funcCtx) resolveUpvalue(name string) (int, bool) {
	if f.parent == nil {
		return 0, false
	}
	if idx, ok := f.upvalueIdx[name]; ok {
		return idx, true
	}
	if vreg, ok := f.parent.resolveLocal(name); ok {
		f.parent.touch(vreg)
		idx := f.addUpvalue(value.UpvalueSpec{FromParentUpvalue: false, Index: vreg})
		f.upvalueIdx[name] = idx
		return idx, true
	}
	if idx2, ok := f.parent.resolveUpvalue(name); ok {
		idx := f.addUpvalue(value.UpvalueSpec{FromParentUpvalue: true, Index: idx2})
		f.upvalueIdx[name] = idx
		return idx, true
	}
	return 0, false
}

func (f *funcCtx) addUpvalue(spec value.UpvalueSpec) int {
	f.upvalues = append(f.upvalues, spec)
	return len(f.upvalues) - 1
}

// allocTemp returns a fresh virtual register, starting its live
// interval at the current ir position. Fixed ids (self/params) skip
// interval tracking entirely — they are pre-colored identity mappings.
func (f *funcCtx) allocTemp() int {
	id := f.nextVReg
	f.nextVReg++
	if id >= f.fixedCount {
		f.intervals[id] = &interval{vreg: id, start: len(f.ir)}
	}
	return id
}

// touch extends vreg's live interval to the current ir position. Every
// emit helper that reads or writes a register operand calls this.
func (f *funcCtx) touch(vreg int) {
	if iv, ok := f.intervals[vreg]; ok {
		if n := len(f.ir); n > iv.end {
			iv.end = n
		}
	}
}

func (f *funcCtx) pushLoop(continueLabel int, continueIsBack bool, endLabel int) {
	f.loops = append(f.loops, &loopCtx{continueLabel: continueLabel, continueIsBack: continueIsBack, endLabel: endLabel})
}

func (f *funcCtx) popLoop() { f.loops = f.loops[:len(f.loops)-1] }

func (f *funcCtx) currentLoop() *loopCtx {
	if len(f.loops) == 0 {
		return nil
	}
	return f.loops[len(f.loops)-1]
}

// addConst interns v into this function's constant pool. The dedup
// policy mirrors bytecode.Builder.AddConst (see DESIGN.md): scalars and
// strings dedup, every other heap object (nested descriptors, list
// literal templates) gets its own slot. This pool is kept at the
// funcCtx level, separately from any bytecode.Builder, because
// LoadConst operands are assigned during lowering — before replay (see
// ir.go) ever creates a real Builder.
func (f *funcCtx) addConst(v value.Value) int {
	if s, ok := value.StringValue(v); ok {
		if idx, found := f.stringConstIdx[s]; found {
			v.Release()
			return idx
		}
		idx := len(f.consts)
		f.consts = append(f.consts, v)
		f.stringConstIdx[s] = idx
		return idx
	}
	if v.Kind() != value.KindObject {
		if idx, found := f.scalarConstIdx[v]; found {
			return idx
		}
		idx := len(f.consts)
		f.consts = append(f.consts, v)
		f.scalarConstIdx[v] = idx
		return idx
	}
	idx := len(f.consts)
	f.consts = append(f.consts, v)
	return idx
}
