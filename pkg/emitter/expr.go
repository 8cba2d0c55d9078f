package emitter

import (
	"github.com/aspen-lang/aspen/pkg/ast"
	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/value"
)

// lowerExpr lowers x so its result ends up in the accumulator. Every
// instruction family reads at most one operand from a register, the
// other (if any) from the accumulator; lowerExprToReg is how a caller
// that needs two live values at once parks the first one in a
// register while the second is lowered.
func (e *Emitter) lowerExpr(f *funcCtx, x ast.Expr) {
	f.setSpan(x.Span())
	switch n := x.(type) {
	case *ast.IntLit:
		f.emitPushSmallInt(n.Value)
	case *ast.FloatLit:
		idx := f.addConst(value.Float(n.Value))
		f.emitImm(bytecode.OpLoadConst, uint32(idx))
	case *ast.StringLit:
		idx := f.addConst(value.NewString(n.Value))
		f.emitImm(bytecode.OpLoadConst, uint32(idx))
	case *ast.BoolLit:
		if n.Value {
			f.emitNoOperand(bytecode.OpPushTrue)
		} else {
			f.emitNoOperand(bytecode.OpPushFalse)
		}
	case *ast.NoneLit:
		f.emitNoOperand(bytecode.OpPushNone)
	case *ast.Ident:
		e.lowerLoadName(f, n.Name)
	case *ast.SelfExpr:
		f.emitNoOperand(bytecode.OpLoadSelf)
	case *ast.SuperExpr:
		f.emitNoOperand(bytecode.OpLoadSuper)
	case *ast.ListLit:
		e.lowerListLit(f, n)
	case *ast.DictLit:
		e.lowerDictLit(f, n)
	case *ast.UnaryExpr:
		e.lowerExpr(f, n.X)
		switch n.Op {
		case "+":
			f.emitNoOperand(bytecode.OpUnaryPlus)
		case "-":
			f.emitNoOperand(bytecode.OpUnaryMinus)
		case "!", "not":
			f.emitNoOperand(bytecode.OpUnaryNot)
		default:
			e.error(n.Span(), "unknown unary operator %q", n.Op)
		}
	case *ast.BinaryExpr:
		reg := e.lowerExprToReg(f, n.Left)
		e.lowerExpr(f, n.Right)
		op, ok := binaryOpcode(n.Op)
		if !ok {
			e.error(n.Span(), "unknown binary operator %q", n.Op)
			return
		}
		f.emitReg(op, reg)
	case *ast.LogicalExpr:
		e.lowerLogical(f, n)
	case *ast.FieldExpr:
		e.lowerFieldLoad(f, n)
	case *ast.IndexExpr:
		e.lowerIndexLoad(f, n)
	case *ast.OptionalExpr:
		e.lowerOptionalChain(f, n.X)
		f.emitNoOperand(bytecode.OpEndOptChain)
	case *ast.CallExpr:
		e.lowerCall(f, n)
	default:
		e.error(x.Span(), "emitter: unsupported expression %T", x)
	}
}

// lowerExprToReg lowers x and copies the accumulator into a fresh
// virtual register, for use as the "left" operand of a later
// two-operand instruction.
func (e *Emitter) lowerExprToReg(f *funcCtx, x ast.Expr) int {
	e.lowerExpr(f, x)
	reg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, reg)
	return reg
}

func (e *Emitter) lowerLoadName(f *funcCtx, name string) {
	ref := e.resolveName(f, name)
	switch ref.kind {
	case nameLocal:
		f.emitReg(bytecode.OpLoadReg, ref.vreg)
	case nameUpvalue:
		f.emitImm(bytecode.OpLoadUpvalue, uint32(ref.idx))
	case nameModuleVar:
		idx := f.addConst(value.NewString(name))
		f.emitImm(bytecode.OpLoadModuleVar, uint32(idx))
	default:
		idx := f.addConst(value.NewString(name))
		f.emitImm(bytecode.OpLoadGlobal, uint32(idx))
	}
}

func (e *Emitter) lowerFieldLoad(f *funcCtx, n *ast.FieldExpr) {
	objReg := e.lowerExprToReg(f, n.X)
	nameIdx := f.addConst(value.NewString(n.Name))
	f.emitRegImm(bytecode.OpLoadField, objReg, uint32(nameIdx))
}

func (e *Emitter) lowerIndexLoad(f *funcCtx, n *ast.IndexExpr) {
	objReg := e.lowerExprToReg(f, n.X)
	keyReg := e.lowerExprToReg(f, n.Key)
	f.emitRegReg(bytecode.OpLoadIndex, objReg, keyReg)
}

// lowerOptionalChain lowers the receiver spine of an `?expr` chain
// (spec's grammar only ever attaches OptionalExpr to the OUTERMOST
// expression, not to an individual `.`/`[]` step — see parser.go's
// parseUnary/parsePostfix split). Every Field/Index access along the
// spine uses the *Opt opcode, which sets the current frame's sticky
// opt-chain flag instead of erroring when its receiver is none; once
// set, later *Opt ops in the same chain short-circuit to none without
// touching their operands. A bare Call in the middle of the spine
// falls back to a normal call (calling through a none callee produced
// by an earlier short-circuited step is a VM-level error) — a
// deliberate scope limit, since there is no CallOpt opcode.
func (e *Emitter) lowerOptionalChain(f *funcCtx, x ast.Expr) {
	switch n := x.(type) {
	case *ast.FieldExpr:
		e.lowerOptionalChain(f, n.X)
		objReg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, objReg)
		nameIdx := f.addConst(value.NewString(n.Name))
		f.emitRegImm(bytecode.OpLoadFieldOpt, objReg, uint32(nameIdx))
	case *ast.IndexExpr:
		e.lowerOptionalChain(f, n.X)
		objReg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, objReg)
		keyReg := e.lowerExprToReg(f, n.Key)
		f.emitRegReg(bytecode.OpLoadIndexOpt, objReg, keyReg)
	case *ast.CallExpr:
		e.lowerOptionalChain(f, n.Callee)
		calleeReg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, calleeReg)
		e.emitCallArgsAndCall(f, calleeReg, n.Args)
	default:
		e.lowerExpr(f, x)
	}
}

func (e *Emitter) lowerListLit(f *funcCtx, n *ast.ListLit) {
	f.emitNoOperand(bytecode.OpCreateEmptyList)
	listReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, listReg)
	for _, el := range n.Elems {
		e.lowerExpr(f, el)
		f.emitReg(bytecode.OpPushToList, listReg)
	}
	f.emitReg(bytecode.OpLoadReg, listReg)
}

func (e *Emitter) lowerDictLit(f *funcCtx, n *ast.DictLit) {
	f.emitNoOperand(bytecode.OpCreateEmptyDict)
	dictReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, dictReg)
	for _, ent := range n.Entries {
		if lit, ok := ent.Key.(*ast.StringLit); ok {
			nameIdx := f.addConst(value.NewString(lit.Value))
			e.lowerExpr(f, ent.Value)
			f.emitRegImm(bytecode.OpInsertToDictNamed, dictReg, uint32(nameIdx))
			continue
		}
		keyReg := e.lowerExprToReg(f, ent.Key)
		e.lowerExpr(f, ent.Value)
		f.emitRegReg(bytecode.OpInsertToDict, dictReg, keyReg)
	}
	f.emitReg(bytecode.OpLoadReg, dictReg)
}

// lowerLogical implements short-circuit &&, || and the none-coalescing
// ?? operator (spec §4.5). The pattern always leaves the surviving
// operand's actual value in the accumulator, never a plain boolean,
// matching the source language's "last value wins" semantics.
func (e *Emitter) lowerLogical(f *funcCtx, n *ast.LogicalExpr) {
	switch n.Op {
	case "&&":
		e.lowerExpr(f, n.Left)
		end := f.newLabel()
		f.emitJumpIfFalse(end)
		e.lowerExpr(f, n.Right)
		f.bindLabel(end)
	case "||":
		e.lowerExpr(f, n.Left)
		elseL := f.newLabel()
		end := f.newLabel()
		f.emitJumpIfFalse(elseL)
		f.emitJump(end)
		f.bindLabel(elseL)
		e.lowerExpr(f, n.Right)
		f.bindLabel(end)
	case "??":
		e.lowerExpr(f, n.Left)
		tmp := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, tmp)
		f.emitNoOperand(bytecode.OpIsNone)
		notNone := f.newLabel()
		end := f.newLabel()
		f.emitJumpIfFalse(notNone)
		e.lowerExpr(f, n.Right)
		f.emitJump(end)
		f.bindLabel(notNone)
		f.emitReg(bytecode.OpLoadReg, tmp)
		f.bindLabel(end)
	default:
		e.error(n.Span(), "unknown logical operator %q", n.Op)
	}
}

func binaryOpcode(op string) (bytecode.Opcode, bool) {
	switch op {
	case "+":
		return bytecode.OpAdd, true
	case "-":
		return bytecode.OpSub, true
	case "*":
		return bytecode.OpMul, true
	case "/":
		return bytecode.OpDiv, true
	case "%":
		return bytecode.OpRem, true
	case "**":
		return bytecode.OpPow, true
	case "==":
		return bytecode.OpCmpEq, true
	case "!=":
		return bytecode.OpCmpNeq, true
	case ">":
		return bytecode.OpCmpGt, true
	case ">=":
		return bytecode.OpCmpGe, true
	case "<":
		return bytecode.OpCmpLt, true
	case "<=":
		return bytecode.OpCmpLe, true
	default:
		return 0, false
	}
}

// compoundOpcode maps a compound-assignment operator's base form (the
// parser already strips the trailing "=": "+=" becomes "+", see
// parser.baseOp) to the arithmetic opcode it desugars to.
func compoundOpcode(op string) (bytecode.Opcode, bool) {
	return binaryOpcode(op)
}

// lowerCall lowers a function/method call: the callee first, then
// emitCallArgsAndCall lowers the arguments and fires Call/CallKw.
func (e *Emitter) lowerCall(f *funcCtx, n *ast.CallExpr) {
	e.lowerExpr(f, n.Callee)
	calleeReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, calleeReg)
	e.emitCallArgsAndCall(f, calleeReg, n.Args)
}

// emitCallArgsAndCall evaluates args into a contiguous run of fresh
// registers the VM call protocol copies into the callee's frame (spec
// §4.7 step 1): positional arguments first (one register each, in
// order — parseArgs guarantees they precede any keyword argument),
// then each keyword argument as a (nameReg, valueReg) pair, the name
// loaded via LoadConst so CallKw's three operands (startReg, nPos,
// nKw) are enough for the VM to find every name without a side
// channel. Reloads the callee into the accumulator and fires the
// right Call variant.
func (e *Emitter) emitCallArgsAndCall(f *funcCtx, calleeReg int, args []ast.Arg) {
	var startReg int
	nPos, nKw := 0, 0
	for i, a := range args {
		if a.Name != "" {
			break
		}
		e.lowerExpr(f, a.X)
		reg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, reg)
		if i == 0 {
			startReg = reg
		}
		nPos++
	}
	for _, a := range args[nPos:] {
		nameIdx := f.addConst(value.NewString(a.Name))
		f.emitImm(bytecode.OpLoadConst, uint32(nameIdx))
		nameReg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, nameReg)
		if nPos == 0 && nKw == 0 {
			startReg = nameReg
		}

		e.lowerExpr(f, a.X)
		valReg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, valReg)
		nKw++
	}

	f.emitReg(bytecode.OpLoadReg, calleeReg)
	if nPos == 0 && nKw == 0 {
		f.emitNoOperand(bytecode.OpCall0)
		return
	}
	if nKw > 0 {
		f.emitRegImm2(bytecode.OpCallKw, startReg, uint32(nPos), uint32(nKw))
		return
	}
	f.emitRegImm(bytecode.OpCall, startReg, uint32(nPos))
}
