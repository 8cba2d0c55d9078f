// Package vm implements the bytecode virtual machine for aspen.
//
// The VM is a register-based interpreter: each call frame owns a
// contiguous window of a single shared register stack plus one
// distinguished scratch slot, the accumulator. It's the final stage in
// the execution pipeline:
//
//   Source Code -> Lexer -> Parser -> AST -> Emitter -> Bytecode -> VM -> Execution
//
// Virtual Machine Architecture:
//
//   1. Register stack: one flat []value.Value shared by every live
//      frame; a frame's registers are stack[stackBase:stackBase+frameSize]
//   2. Accumulator: a single "current value" scratch slot. Most
//      instructions read one operand from a register and the other
//      (implicitly) from the accumulator, leaving their result there.
//   3. Frame stack: one *Frame per in-flight call, innermost last
//   4. Module variables / globals: separate Tables, not registers
//   5. Constants: each function descriptor carries its own pool
//
// Execution Model:
//
// Dispatch reads one bytecode.Instruction at a time via bytecode.Reader
// and switches on its Op. A Call opcode recursively re-enters the
// dispatch loop for the callee's own frame (mirroring, at the frame
// level, the teacher's one-child-VM-per-message-send shape) and returns
// once that frame Rets or Suspends.
//
// Reference counting. Every Value carried in a register, the
// accumulator, a Table entry or a Obj field is exactly one owned
// strong reference (spec §3.2). A Load-family op mints a fresh
// reference (Clone) into the accumulator, releasing whatever was there
// before; a Store-family op moves the accumulator's current reference
// into its destination and resets the accumulator to None so the next
// Load's release-old-acc step does not double-free it.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/span"
	"github.com/aspen-lang/aspen/pkg/value"
)

// Importer resolves a module path to its already-executed module Value
// (spec §6.3's Module Loader Interface). Loading from disk/network is a
// host concern outside CORE's scope; the Isolate only needs to ask.
type Importer interface {
	Import(path string) (value.Value, error)
}

// Frame is one call's live execution state. homeClass is non-nil only
// while running a class method, recording which class's Methods table
// the running Function was found in — the VM needs this to resolve
// `super` correctly regardless of which instance invoked the method
// (spec §4.7's class/method/super design). genObj is non-nil only for
// a frame resumed from (or about to suspend into) a Generator.
type Frame struct {
	fn         *value.FunctionData
	desc       *value.FunctionDescriptorData
	moduleID   string
	moduleName string
	name       string
	stackBase  int
	reader     *bytecode.Reader
	homeClass  *value.ClassData
	optChain   bool
	genObj     *value.Obj
}

func (f *Frame) spanAt(off int) span.Span {
	var best value.SpanEntry
	for _, e := range f.desc.Spans {
		if e.Off <= off {
			best = e
		} else {
			break
		}
	}
	return span.New(best.StartByte, best.EndByte)
}

// genState is the opaque snapshot a suspended Generator carries in
// value.GeneratorData.State (spec §9's "heap-allocated copy of its
// registers ... spliced back onto the VM's register stack at a new
// stack_base"). pc == 0 and regs holding only the bound arguments means
// "not yet started" (spec §4.7: calling a generator function produces
// the Generator without running any body code).
type genState struct {
	regs       []value.Value
	pc         int
	fn         *value.FunctionData
	desc       *value.FunctionDescriptorData
	moduleID   string
	moduleName string
	homeClass  *value.ClassData
}

// controlSignal reports why runLoop returned control to its caller.
type controlSignal int

const (
	sigReturn controlSignal = iota
	sigSuspend
)

// Isolate is a single VM instance (spec §5/§9 GLOSSARY: "the unit of
// isolation between embeddings"). Not safe for concurrent use from
// multiple goroutines — the spec's scheduling model is single-threaded
// cooperative, with isolation achieved by running separate Isolates on
// separate host threads instead of sharing one.
type Isolate struct {
	stack  []value.Value
	acc    value.Value
	frames []*Frame

	globals    value.Value            // Table
	moduleVars map[string]value.Value // moduleID -> Table

	methodOwner   map[*value.Obj]*value.ClassData
	fieldDefaults map[*value.Obj][]value.Value // class Obj -> resolved default per own FieldSpec

	pendingDescVal value.Value
	pendingUpvals  []value.Value

	importer Importer
	out      io.Writer

	loadedModules map[string]value.Value
	loading       map[string]bool
	moduleNames   map[string]string // moduleID -> human-readable name, for frame/trace display

	debugger *Debugger // nil unless AttachDebugger was called
}

// New creates an Isolate with empty globals and stdout as its print
// sink.
func New() *Isolate {
	return &Isolate{
		stack:         make([]value.Value, 0, 256),
		acc:           value.None,
		globals:       value.NewTable(),
		moduleVars:    map[string]value.Value{},
		methodOwner:   map[*value.Obj]*value.ClassData{},
		fieldDefaults: map[*value.Obj][]value.Value{},
		out:           os.Stdout,
		loadedModules: map[string]value.Value{},
		loading:       map[string]bool{},
		moduleNames:   map[string]string{},
	}
}

// SetImporter installs the host-supplied module loader (spec §6.3).
func (vm *Isolate) SetImporter(imp Importer) { vm.importer = imp }

// SetOutput redirects Print/PrintList's sink (tests capture this
// instead of stdout).
func (vm *Isolate) SetOutput(w io.Writer) { vm.out = w }

func (vm *Isolate) moduleVarsFor(moduleID string) value.Value {
	t, ok := vm.moduleVars[moduleID]
	if !ok {
		t = value.NewTable()
		vm.moduleVars[moduleID] = t
	}
	return t
}

// ModuleVars returns a freshly-owned reference to moduleID's module_vars
// table, creating it empty if the module has never run a single
// OpStoreModuleVar. Exported for an Importer implementation (e.g.
// internal/hostmod) that needs to read a script module's exports after
// driving it to completion via Run on this same Isolate.
func (vm *Isolate) ModuleVars(moduleID string) value.Value {
	return vm.moduleVarsFor(moduleID).Clone()
}

// setAcc releases whatever the accumulator currently holds (a no-op for
// non-Object kinds) and installs a freshly-owned v.
func (vm *Isolate) setAcc(v value.Value) {
	vm.acc.Release()
	vm.acc = v
}

// takeAcc moves the accumulator's current reference out, leaving None
// behind so a later setAcc cannot double-release it.
func (vm *Isolate) takeAcc() value.Value {
	v := vm.acc
	vm.acc = value.None
	return v
}

func (vm *Isolate) regRaw(frame *Frame, i uint32) value.Value {
	return vm.stack[frame.stackBase+int(i)]
}

func (vm *Isolate) regLoad(frame *Frame, i uint32) value.Value {
	return vm.stack[frame.stackBase+int(i)].Clone()
}

// regStore moves v (the accumulator's current content, already owned)
// into register i, releasing whatever was there.
func (vm *Isolate) regStore(frame *Frame, i uint32, v value.Value) {
	slot := frame.stackBase + int(i)
	vm.stack[slot].Release()
	vm.stack[slot] = v
}

func (vm *Isolate) constAt(frame *Frame, idx uint32) value.Value {
	return frame.desc.Consts[idx]
}

// Run executes moduleName's compiled root descriptor to completion
// (spec §4.7's dispatch loop, entered once per module). desc is invoked
// with zero arguments, per spec §3's "the module root is just another
// Function".
func (vm *Isolate) Run(moduleID, moduleName string, desc *value.FunctionDescriptorData) (value.Value, error) {
	vm.moduleNames[moduleID] = moduleName
	descVal := value.NewFunctionDescriptor(desc)
	fnVal := value.NewFunction(descVal, nil, moduleID)
	descVal.Release()
	defer fnVal.Release()

	frame := vm.newFrame(fnVal, moduleID, moduleName, desc.Name, nil)
	vm.pushFrame(frame, nil)
	_, rerr := vm.runLoop(frame)
	if rerr != nil {
		return value.None, rerr
	}
	return vm.takeAcc(), nil
}

func (vm *Isolate) newFrame(fnVal value.Value, moduleID, moduleName, name string, homeClass *value.ClassData) *Frame {
	fd, _ := value.FunctionOf(fnVal)
	return &Frame{
		fn:         fd,
		desc:       functionDescriptor(fd),
		moduleID:   moduleID,
		moduleName: moduleName,
		name:       name,
		homeClass:  homeClass,
	}
}

func functionDescriptor(fd *value.FunctionData) *value.FunctionDescriptorData {
	descVal := value.Object(fd.Descriptor)
	d, _ := value.FunctionDescriptorOf(descVal)
	descVal.Release()
	return d
}

// pushFrame extends the shared register stack by frame.desc.FrameSize
// slots (all None), moves *selfVal (if non-nil) into register 0, and
// appends frame to vm.frames. Arguments are not bound here; the caller
// stores them at registers 1..n after pushFrame returns.
func (vm *Isolate) pushFrame(frame *Frame, selfVal *value.Value) {
	frame.stackBase = len(vm.stack)
	for i := 0; i < frame.desc.FrameSize; i++ {
		vm.stack = append(vm.stack, value.None)
	}
	if selfVal != nil {
		vm.stack[frame.stackBase+0] = *selfVal
	}
	frame.reader = bytecode.NewReader(frame.desc.Code)
	vm.frames = append(vm.frames, frame)
}

func (vm *Isolate) currentFrame() *Frame { return vm.frames[len(vm.frames)-1] }

func (vm *Isolate) raise(frame *Frame, off int, cause Cause, format string, args ...interface{}) *RuntimeError {
	return newRuntimeError(cause, frame.spanAt(off), format, args...)
}

// unwind appends frame's trace entry to err and returns it, called as
// each level of Go-stack recursion (one per VM call frame) returns an
// error to its caller.
func (vm *Isolate) unwind(err *RuntimeError, frame *Frame, off int) *RuntimeError {
	err.Trace = append(err.Trace, StackFrame{
		FunctionName: frame.name,
		ModuleName:   frame.moduleName,
		Span:         frame.spanAt(off),
		IP:           off,
	})
	return err
}

// runLoop single-steps frame (already pushed onto vm.frames) until it
// Rets or Suspends, at which point it has already been popped off
// vm.frames and its register window reclaimed.
func (vm *Isolate) runLoop(frame *Frame) (controlSignal, *RuntimeError) {
	for {
		off := frame.reader.PC()
		inst, derr := frame.reader.Next()
		if derr != nil {
			return sigReturn, vm.unwind(newRuntimeError(CauseBadCallTarget, frame.spanAt(off), "malformed bytecode: %v", derr), frame, off)
		}

		if vm.debugger != nil && vm.debugger.enabled && vm.debugger.shouldPause(off) {
			if !vm.debugger.pause(frame, inst, off) {
				return sigReturn, vm.unwind(newRuntimeError(CauseBadCallTarget, frame.spanAt(off), "execution aborted from debugger"), frame, off)
			}
		}

		sig, done, rerr := vm.step(frame, inst, off)
		if rerr != nil {
			return sigReturn, vm.unwind(rerr, frame, off)
		}
		if done {
			return sig, nil
		}
	}
}

// step executes one decoded instruction. done is true once the
// instruction has popped frame off vm.frames (Ret/Suspend), at which
// point sig says which happened and runLoop must stop.
func (vm *Isolate) step(frame *Frame, inst bytecode.Instruction, off int) (sig controlSignal, done bool, rerr *RuntimeError) {
	op0, op1, op2 := inst.Operands[0], inst.Operands[1], inst.Operands[2]

	switch inst.Op {
	case bytecode.OpNop:
		// nothing

	case bytecode.OpLoadConst:
		vm.setAcc(vm.constAt(frame, op0).Clone())
	case bytecode.OpLoadReg:
		vm.setAcc(vm.regLoad(frame, op0))
	case bytecode.OpStoreReg:
		vm.regStore(frame, op0, vm.takeAcc())

	case bytecode.OpLoadUpvalue:
		vm.setAcc(frame.fn.Upvalues[op0].Clone())
	case bytecode.OpStoreUpvalue:
		v := vm.takeAcc()
		frame.fn.Upvalues[op0].Release()
		frame.fn.Upvalues[op0] = v

	case bytecode.OpLoadModuleVar:
		name, _ := value.StringValue(vm.constAt(frame, op0))
		mv := vm.moduleVarsFor(frame.moduleID)
		key := value.KeyData{Kind: value.KeyStr, S: name}
		v, ok := value.TableGet(mv, key)
		if !ok {
			return sig, false, vm.raise(frame, off, CauseUndefinedName, "undefined module variable %q", name)
		}
		vm.setAcc(v.Clone())
	case bytecode.OpStoreModuleVar:
		name, _ := value.StringValue(vm.constAt(frame, op0))
		mv := vm.moduleVarsFor(frame.moduleID)
		value.TableSet(mv, value.KeyData{Kind: value.KeyStr, S: name}, vm.takeAcc())

	case bytecode.OpLoadGlobal:
		name, _ := value.StringValue(vm.constAt(frame, op0))
		v, ok := value.TableGet(vm.globals, value.KeyData{Kind: value.KeyStr, S: name})
		if !ok {
			return sig, false, vm.raise(frame, off, CauseUndefinedName, "undefined name %q", name)
		}
		vm.setAcc(v.Clone())
	case bytecode.OpStoreGlobal:
		name, _ := value.StringValue(vm.constAt(frame, op0))
		value.TableSet(vm.globals, value.KeyData{Kind: value.KeyStr, S: name}, vm.takeAcc())

	case bytecode.OpLoadField:
		return vm.opLoadField(frame, op0, op1, off, false)
	case bytecode.OpLoadFieldOpt:
		return vm.opLoadField(frame, op0, op1, off, true)
	case bytecode.OpStoreField:
		return vm.opStoreField(frame, op0, op1, off)

	case bytecode.OpLoadIndex:
		return vm.opLoadIndex(frame, op0, op1, off, false)
	case bytecode.OpLoadIndexOpt:
		return vm.opLoadIndex(frame, op0, op1, off, true)
	case bytecode.OpStoreIndex:
		return vm.opStoreIndex(frame, op0, op1, off)

	case bytecode.OpEndOptChain:
		frame.optChain = false

	case bytecode.OpLoadSelf:
		vm.setAcc(vm.regLoad(frame, 0))
	case bytecode.OpLoadSuper:
		if frame.homeClass == nil || frame.homeClass.Parent == nil {
			return sig, false, vm.raise(frame, off, CauseBadCallTarget, "super used outside a derived class method")
		}
		selfVal := vm.regRaw(frame, 0)
		parentVal := value.Object(frame.homeClass.Parent)
		proxy := value.NewSuperProxy(selfVal, parentVal)
		parentVal.Release()
		vm.setAcc(proxy)

	case bytecode.OpPushNone:
		vm.setAcc(value.None)
	case bytecode.OpPushTrue:
		vm.setAcc(value.True)
	case bytecode.OpPushFalse:
		vm.setAcc(value.False)
	case bytecode.OpPushSmallInt:
		vm.setAcc(value.Int(inst.FixedInt))
	case bytecode.OpCreateEmptyList:
		vm.setAcc(value.NewList())
	case bytecode.OpPushToList:
		list := vm.regRaw(frame, op0)
		value.ListAppend(list, vm.takeAcc())
	case bytecode.OpCreateEmptyDict:
		vm.setAcc(value.NewTable())
	case bytecode.OpInsertToDict:
		dict := vm.regRaw(frame, op0)
		key := vm.regRaw(frame, op1)
		k, ok := value.KeyFromValue(key)
		if !ok {
			return sig, false, vm.raise(frame, off, CauseTypeMismatch, "dict keys must be an int or a string")
		}
		value.TableSet(dict, k, vm.takeAcc())
	case bytecode.OpInsertToDictNamed:
		dict := vm.regRaw(frame, op0)
		name, _ := value.StringValue(vm.constAt(frame, op1))
		value.TableSet(dict, value.KeyData{Kind: value.KeyStr, S: name}, vm.takeAcc())

	case bytecode.OpCreateFunction:
		vm.opCreateFunction(frame, op0)
	case bytecode.OpCaptureReg:
		vm.opCapture(frame, vm.regLoad(frame, op0))
	case bytecode.OpCaptureSlot:
		vm.opCapture(frame, frame.fn.Upvalues[op0].Clone())

	case bytecode.OpCreateClassEmpty:
		vm.opCreateClass(frame, op0, value.None)
	case bytecode.OpCreateClass:
		vm.opCreateClass(frame, op0, vm.regRaw(frame, op1))

	// Jump deltas are relative to the reader's position right after this
	// instruction (frame.reader.PC(), already advanced by Next() before
	// step was called) — NOT inst.Offset+inst.Size, which omits any
	// width-prefix byte inst.Offset already skipped past. This mirrors
	// builder.go's own relax/Finalize delta math exactly (post-item byte
	// offset, forward: target-post; backward: post-target).
	case bytecode.OpJump:
		frame.reader.SetPC(frame.reader.PC() + int(op0))
	case bytecode.OpJumpBack:
		frame.reader.SetPC(frame.reader.PC() - int(op0))
	case bytecode.OpJumpIfFalse:
		if !vm.acc.Truthy() {
			frame.reader.SetPC(frame.reader.PC() + int(op0))
		}
	case bytecode.OpJumpConst:
		delta, _ := vm.constAt(frame, op0).AsInt()
		frame.reader.SetPC(frame.reader.PC() + int(delta))
	case bytecode.OpJumpBackConst:
		delta, _ := vm.constAt(frame, op0).AsInt()
		frame.reader.SetPC(frame.reader.PC() - int(delta))
	case bytecode.OpJumpIfFalseConst:
		if !vm.acc.Truthy() {
			delta, _ := vm.constAt(frame, op0).AsInt()
			frame.reader.SetPC(frame.reader.PC() + int(delta))
		}

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpRem, bytecode.OpPow:
		return vm.opArith(frame, inst.Op, op0, off)
	case bytecode.OpUnaryPlus:
		if !isNumeric(vm.acc) {
			return sig, false, vm.raise(frame, off, CauseTypeMismatch, "unary + requires a number")
		}
	case bytecode.OpUnaryMinus:
		return vm.opUnaryMinus(frame, off)
	case bytecode.OpUnaryNot:
		vm.setAcc(value.Bool(!vm.acc.Truthy()))

	case bytecode.OpCmpEq:
		lhs := vm.regRaw(frame, op0)
		vm.setAcc(value.Bool(value.Equal(lhs, vm.acc)))
	case bytecode.OpCmpNeq:
		lhs := vm.regRaw(frame, op0)
		vm.setAcc(value.Bool(!value.Equal(lhs, vm.acc)))
	case bytecode.OpCmpGt, bytecode.OpCmpGe, bytecode.OpCmpLt, bytecode.OpCmpLe:
		return vm.opCompare(frame, inst.Op, op0, off)

	case bytecode.OpIsNone:
		vm.setAcc(value.Bool(vm.acc.IsNone()))
	case bytecode.OpLen:
		return vm.opLen(frame, off)

	case bytecode.OpPrint:
		fmt.Fprintln(vm.out, displayString(vm.acc))
	case bytecode.OpPrintList:
		list := vm.regRaw(frame, op0)
		elems, _ := value.ListElems(list)
		for i, e := range elems {
			if i > 0 {
				fmt.Fprint(vm.out, " ")
			}
			fmt.Fprint(vm.out, displayString(e))
		}
		fmt.Fprintln(vm.out)

	case bytecode.OpCall0:
		return vm.opCall(frame, 0, 0, 0, off)
	case bytecode.OpCall:
		return vm.opCall(frame, op0, op1, 0, off)
	case bytecode.OpCallKw:
		return vm.opCall(frame, op0, op1, op2, off)

	case bytecode.OpImport:
		return vm.opImport(frame, op0, op1, off)
	case bytecode.OpImportNamed:
		return vm.opImportNamed(frame, op0, op1, op2, off)

	case bytecode.OpRet:
		return vm.popFrame(frame, sigReturn), true, nil

	case bytecode.OpSuspend:
		return vm.suspendFrame(frame), true, nil

	default:
		return sig, false, vm.raise(frame, off, CauseBadCallTarget, "unimplemented opcode %s", inst.Op)
	}
	return sig, false, nil
}

// popFrame tears a returning frame down: every live register releases
// its owned value, the shared stack shrinks back to the frame's base,
// and the frame itself is popped. The accumulator (the return value)
// survives untouched.
func (vm *Isolate) popFrame(frame *Frame, sig controlSignal) controlSignal {
	for i := 0; i < frame.desc.FrameSize; i++ {
		vm.stack[frame.stackBase+i].Release()
	}
	vm.stack = vm.stack[:frame.stackBase]
	vm.frames = vm.frames[:len(vm.frames)-1]
	return sig
}

// suspendFrame snapshots frame's live registers into its Generator's
// state (spec §9: "a generator's suspended frame owns a heap-allocated
// copy of its registers") instead of releasing them, and pops the
// frame exactly like a return.
func (vm *Isolate) suspendFrame(frame *Frame) controlSignal {
	regs := make([]value.Value, frame.desc.FrameSize)
	copy(regs, vm.stack[frame.stackBase:frame.stackBase+frame.desc.FrameSize])
	vm.stack = vm.stack[:frame.stackBase]
	vm.frames = vm.frames[:len(vm.frames)-1]

	if frame.genObj != nil {
		gd := frame.genObj.Payload.(*value.GeneratorData)
		gd.State = &genState{
			regs: regs, pc: frame.reader.PC(),
			fn: frame.fn, desc: frame.desc,
			moduleID: frame.moduleID, moduleName: frame.moduleName,
			homeClass: frame.homeClass,
		}
	}
	return sigSuspend
}

func isNumeric(v value.Value) bool {
	if _, ok := v.AsInt(); ok {
		return true
	}
	_, ok := v.AsFloat()
	return ok
}

func displayString(v value.Value) string {
	if s, ok := value.StringValue(v); ok {
		return s
	}
	return v.Inspect()
}
