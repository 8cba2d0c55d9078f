package emitter

import (
	"github.com/aspen-lang/aspen/pkg/ast"
	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/value"
)

func (e *Emitter) lowerStmt(f *funcCtx, s ast.Stmt) {
	f.setSpan(s.Span())
	switch n := s.(type) {
	case *ast.ExprStmt:
		e.lowerExpr(f, n.X)
	case *ast.DeclStmt:
		e.lowerDecl(f, n.Name, n.X)
	case *ast.AssignStmt:
		e.lowerAssign(f, n)
	case *ast.PrintStmt:
		e.lowerExpr(f, n.X)
		f.emitNoOperand(bytecode.OpPrint)
	case *ast.PassStmt:
		// no-op
	case *ast.BreakStmt:
		if lp := f.currentLoop(); lp != nil {
			f.emitJump(lp.endLabel)
		} else {
			e.error(n.Span(), "break outside of a loop")
		}
	case *ast.ContinueStmt:
		if lp := f.currentLoop(); lp != nil {
			if lp.continueIsBack {
				f.emitJumpBack(lp.continueLabel)
			} else {
				f.emitJump(lp.continueLabel)
			}
		} else {
			e.error(n.Span(), "continue outside of a loop")
		}
	case *ast.ReturnStmt:
		if n.X != nil {
			e.lowerExpr(f, n.X)
		} else {
			f.emitNoOperand(bytecode.OpPushNone)
		}
		f.emitNoOperand(bytecode.OpRet)
	case *ast.YieldStmt:
		if n.X != nil {
			e.lowerExpr(f, n.X)
		} else {
			f.emitNoOperand(bytecode.OpPushNone)
		}
		f.emitSuspend()
	case *ast.IfStmt:
		e.lowerIf(f, n)
	case *ast.WhileStmt:
		e.lowerWhile(f, n)
	case *ast.LoopStmt:
		e.lowerLoop(f, n)
	case *ast.ForRangeStmt:
		e.lowerForRange(f, n)
	case *ast.ForInStmt:
		e.lowerForIn(f, n)
	case *ast.FuncDecl:
		e.lowerFuncDeclStmt(f, n)
	case *ast.ClassDecl:
		e.lowerClassDeclStmt(f, n)
	default:
		e.error(s.Span(), "emitter: unsupported statement %T", s)
	}
}

func (e *Emitter) lowerBlock(f *funcCtx, body []ast.Stmt) {
	f.pushScope()
	for _, s := range body {
		e.lowerStmt(f, s)
	}
	f.popScope()
}

// lowerDecl binds name to the value of x. At module scope this is a
// module variable (no register at all — see resolveName/nameModuleVar);
// inside a function it is a fresh local.
func (e *Emitter) lowerDecl(f *funcCtx, name string, x ast.Expr) {
	e.lowerExpr(f, x)
	e.bindName(f, name)
}

// bindName stores the accumulator's current value into name's binding,
// declaring a new local the first time a function-scoped name is seen.
func (e *Emitter) bindName(f *funcCtx, name string) {
	if f.isModuleRoot {
		idx := f.addConst(value.NewString(name))
		f.emitImm(bytecode.OpStoreModuleVar, uint32(idx))
		return
	}
	reg := f.declareLocal(name)
	f.emitReg(bytecode.OpStoreReg, reg)
}

func (e *Emitter) lowerAssign(f *funcCtx, n *ast.AssignStmt) {
	switch target := n.Target.(type) {
	case *ast.Ident:
		ref := e.resolveName(f, target.Name)
		if n.Op != "" {
			e.lowerLoadName(f, target.Name)
			tmp := f.allocTemp()
			f.emitReg(bytecode.OpStoreReg, tmp)
			e.lowerExpr(f, n.X)
			op, ok := compoundOpcode(n.Op)
			if !ok {
				e.error(n.Span(), "unknown assignment operator %q", n.Op)
				return
			}
			f.emitReg(op, tmp)
		} else {
			e.lowerExpr(f, n.X)
		}
		e.storeName(f, ref, target.Name)

	case *ast.FieldExpr:
		objReg := e.lowerExprToReg(f, target.X)
		nameIdx := f.addConst(value.NewString(target.Name))
		if n.Op != "" {
			f.emitRegImm(bytecode.OpLoadField, objReg, uint32(nameIdx))
			tmp := f.allocTemp()
			f.emitReg(bytecode.OpStoreReg, tmp)
			e.lowerExpr(f, n.X)
			op, ok := compoundOpcode(n.Op)
			if !ok {
				e.error(n.Span(), "unknown assignment operator %q", n.Op)
				return
			}
			f.emitReg(op, tmp)
		} else {
			e.lowerExpr(f, n.X)
		}
		f.emitRegImm(bytecode.OpStoreField, objReg, uint32(nameIdx))

	case *ast.IndexExpr:
		objReg := e.lowerExprToReg(f, target.X)
		keyReg := e.lowerExprToReg(f, target.Key)
		if n.Op != "" {
			f.emitRegReg(bytecode.OpLoadIndex, objReg, keyReg)
			tmp := f.allocTemp()
			f.emitReg(bytecode.OpStoreReg, tmp)
			e.lowerExpr(f, n.X)
			op, ok := compoundOpcode(n.Op)
			if !ok {
				e.error(n.Span(), "unknown assignment operator %q", n.Op)
				return
			}
			f.emitReg(op, tmp)
		} else {
			e.lowerExpr(f, n.X)
		}
		f.emitRegReg(bytecode.OpStoreIndex, objReg, keyReg)

	default:
		e.error(n.Span(), "emitter: invalid assignment target %T", n.Target)
	}
}

func (e *Emitter) storeName(f *funcCtx, ref nameRef, name string) {
	switch ref.kind {
	case nameLocal:
		f.emitReg(bytecode.OpStoreReg, ref.vreg)
	case nameUpvalue:
		f.emitImm(bytecode.OpStoreUpvalue, uint32(ref.idx))
	case nameModuleVar:
		idx := f.addConst(value.NewString(name))
		f.emitImm(bytecode.OpStoreModuleVar, uint32(idx))
	default:
		idx := f.addConst(value.NewString(name))
		f.emitImm(bytecode.OpStoreGlobal, uint32(idx))
	}
}

func (e *Emitter) lowerIf(f *funcCtx, n *ast.IfStmt) {
	end := f.newLabel()

	e.lowerExpr(f, n.Cond)
	nextLabel := f.newLabel()
	f.emitJumpIfFalse(nextLabel)
	e.lowerBlock(f, n.Then)
	f.emitJump(end)
	f.bindLabel(nextLabel)

	for _, elif := range n.Elifs {
		e.lowerExpr(f, elif.Cond)
		l := f.newLabel()
		f.emitJumpIfFalse(l)
		e.lowerBlock(f, elif.Body)
		f.emitJump(end)
		f.bindLabel(l)
	}

	if n.Else != nil {
		e.lowerBlock(f, n.Else)
	}
	f.bindLabel(end)
}

func (e *Emitter) lowerWhile(f *funcCtx, n *ast.WhileStmt) {
	cond := f.newLabel()
	end := f.newLabel()
	f.bindLabel(cond)
	e.lowerExpr(f, n.Cond)
	f.emitJumpIfFalse(end)
	f.pushLoop(cond, true, end)
	e.lowerBlock(f, n.Body)
	f.popLoop()
	f.emitJumpBack(cond)
	f.bindLabel(end)
}

func (e *Emitter) lowerLoop(f *funcCtx, n *ast.LoopStmt) {
	top := f.newLabel()
	end := f.newLabel()
	f.bindLabel(top)
	f.pushLoop(top, true, end)
	e.lowerBlock(f, n.Body)
	f.popLoop()
	f.emitJumpBack(top)
	f.bindLabel(end)
}

// lowerForRange desugars `for v in start..end` (or the inclusive
// `start...end`, Excl=false) into a counter-driven loop: the counter lives in its own
// local register so comparisons and the increment can read it directly
// as a register operand rather than round-tripping through LoadReg.
func (e *Emitter) lowerForRange(f *funcCtx, n *ast.ForRangeStmt) {
	f.pushScope()
	e.lowerExpr(f, n.Start)
	counterReg := f.declareLocal(n.Var)
	f.emitReg(bytecode.OpStoreReg, counterReg)

	e.lowerExpr(f, n.End)
	endReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, endReg)

	cond := f.newLabel()
	incr := f.newLabel()
	end := f.newLabel()
	f.bindLabel(cond)
	f.emitReg(bytecode.OpLoadReg, endReg)
	cmpOp := bytecode.OpCmpLt
	if !n.Excl {
		cmpOp = bytecode.OpCmpLe
	}
	f.emitReg(cmpOp, counterReg)
	f.emitJumpIfFalse(end)

	f.pushLoop(incr, false, end)
	e.lowerBlock(f, n.Body)
	f.popLoop()

	f.bindLabel(incr)
	f.emitPushSmallInt(1)
	f.emitReg(bytecode.OpAdd, counterReg)
	f.emitReg(bytecode.OpStoreReg, counterReg)
	f.emitJumpBack(cond)
	f.bindLabel(end)
	f.popScope()
}

// lowerForIn desugars `for v in iterable` using the index protocol:
// LEN gives the element count up front and LOAD_INDEX fetches each
// element by the counter 0..len-1. For a list that visits the elements
// in order; for a dict the counter is looked up as an int key, so the
// entries are not walked in insertion order.
func (e *Emitter) lowerForIn(f *funcCtx, n *ast.ForInStmt) {
	f.pushScope()
	e.lowerExpr(f, n.Iter)
	iterReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, iterReg)

	f.emitReg(bytecode.OpLoadReg, iterReg)
	f.emitNoOperand(bytecode.OpLen)
	lenReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, lenReg)

	f.emitPushSmallInt(0)
	idxReg := f.declareLocal("$idx")
	f.emitReg(bytecode.OpStoreReg, idxReg)

	cond := f.newLabel()
	incr := f.newLabel()
	end := f.newLabel()
	f.bindLabel(cond)
	f.emitReg(bytecode.OpLoadReg, lenReg)
	f.emitReg(bytecode.OpCmpLt, idxReg)
	f.emitJumpIfFalse(end)

	f.emitReg(bytecode.OpLoadReg, idxReg)
	keyReg := f.allocTemp()
	f.emitReg(bytecode.OpStoreReg, keyReg)
	f.emitRegReg(bytecode.OpLoadIndex, iterReg, keyReg)
	elemReg := f.declareLocal(n.Var)
	f.emitReg(bytecode.OpStoreReg, elemReg)

	f.pushLoop(incr, false, end)
	e.lowerBlock(f, n.Body)
	f.popLoop()

	f.bindLabel(incr)
	f.emitPushSmallInt(1)
	f.emitReg(bytecode.OpAdd, idxReg)
	f.emitReg(bytecode.OpStoreReg, idxReg)
	f.emitJumpBack(cond)
	f.bindLabel(end)
	f.popScope()
}
