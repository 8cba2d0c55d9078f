// Package emitter lowers an *ast.Module into bytecode: one
// FunctionDescriptor per source function plus one "root" descriptor for
// the module's top-level statements (spec §4.5).
//
// Lowering happens in two passes per function body. The first walk
// produces an intermediate instruction list (ir.go's irNode) in which
// register operands are still virtual — an unbounded counter, not a
// physical frame slot — while every expression is lowered exactly once,
// left-to-right, in the order it would execute. The second pass
// resolves virtual registers to physical ones via linear-scan register
// allocation (allocateRegisters in ir.go) and replays the ir list into
// a real bytecode.Builder, which handles jump-width relaxation. The
// constant pool is not the Builder's: each funcCtx deduplicates its own
// constants (funcCtx.addConst), and replay replaces the finished
// Chunk's Consts with that pool.
//
// Like the parser, the emitter accumulates errors rather than aborting
// on the first one, so a caller can report more than one problem from a
// single EmitModule call.
package emitter

import (
	"fmt"
	"strings"

	"github.com/aspen-lang/aspen/pkg/ast"
	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/span"
	"github.com/aspen-lang/aspen/pkg/value"
)

// Error is one problem found while lowering, e.g. a default-parameter
// expression that is not a compile-time constant.
type Error struct {
	Msg  string
	Span span.Span
}

func (e Error) Error() string { return fmt.Sprintf("%s at %s", e.Msg, e.Span) }

// Emitter holds the state shared across an entire module's lowering:
// accumulated errors and the set of names resolved as module variables.
type Emitter struct {
	errors     []Error
	moduleVars map[string]bool
}

// New returns an Emitter ready for one EmitModule call.
func New() *Emitter {
	return &Emitter{moduleVars: map[string]bool{}}
}

func (e *Emitter) error(sp span.Span, format string, args ...interface{}) {
	e.errors = append(e.errors, Error{Msg: fmt.Sprintf(format, args...), Span: sp})
}

// EmitModule compiles mod into a root FunctionDescriptorData (HasSelf =
// false, zero parameters) whose body is mod's import handling followed
// by its top-level statements, returning any errors accumulated along
// the way. The caller (pkg/vm) runs the returned descriptor as it would
// any zero-arg Function to execute the module.
func (e *Emitter) EmitModule(mod *ast.Module, moduleName string) (*value.FunctionDescriptorData, []Error) {
	e.seedModuleVars(mod)

	root := newFuncCtx(e, nil, moduleName, false, false)
	root.isModuleRoot = true

	for _, imp := range mod.Imports {
		e.lowerImport(root, imp)
	}
	for _, stmt := range mod.Body {
		e.lowerStmt(root, stmt)
	}

	desc := e.finishFunc(root, nil)
	return desc, e.errors
}

// finishFunc closes out f's lowering: runs register allocation, replays
// the ir into real bytecode, and assembles the FunctionDescriptorData
// the VM runs. params is already-lowered (defaults const-folded by
// the caller via constFold) and in positional order; MinArgs/MaxArgs
// are derived from it by the spec §3.4 convention that optional
// parameters (DefaultIdx >= 0) only ever trail required ones.
func (e *Emitter) finishFunc(f *funcCtx, params []value.Param) *value.FunctionDescriptorData {
	// A trailing "return none" guarantees every function body falls
	// through to a well-defined result even when no explicit return
	// was reached (mirrors the teacher compiler's unconditional final
	// OpReturn — see pkg/compiler/compiler.go).
	f.emitNoOperand(bytecode.OpPushNone)
	f.emitNoOperand(bytecode.OpRet)

	phys, frameSize := f.allocateRegisters()
	chunk, spans := f.replay(phys)

	minArgs := len(params)
	for i, p := range params {
		if p.DefaultIdx >= 0 {
			minArgs = i
			break
		}
	}

	return &value.FunctionDescriptorData{
		Name:        f.name,
		IsGenerator: f.isGenerator,
		Params:      params,
		MinArgs:     minArgs,
		MaxArgs:     len(params),
		HasSelf:     f.hasSelf,
		Upvalues:    f.upvalues,
		FrameSize:   frameSize,
		Code:        chunk.Code,
		Consts:      chunk.Consts,
		Spans:       spans,
	}
}

// seedModuleVars registers every name a top-level statement binds
// (declarations, function declarations, class declarations) before any
// lowering happens, so a function defined earlier in the module can
// still resolve a call to one defined later (spec §4.5's module_vars
// pre-pass).
func (e *Emitter) seedModuleVars(mod *ast.Module) {
	for _, stmt := range mod.Body {
		switch s := stmt.(type) {
		case *ast.DeclStmt:
			e.moduleVars[s.Name] = true
		case *ast.FuncDecl:
			e.moduleVars[s.Name] = true
		case *ast.ClassDecl:
			e.moduleVars[s.Name] = true
		}
	}
}

// lowerImport handles both `import a.b.c` (binds the final path
// segment to the whole module) and `from a.b.c import x, y as z` (binds
// each named export individually), per spec §4.5's import lowering.
// The path's segments are joined with "/" into the string the
// Importer receives, so `import std.json` asks for "std/json".
func (e *Emitter) lowerImport(f *funcCtx, imp *ast.Import) {
	pathIdx := f.addConst(value.NewString(strings.Join(imp.Path, "/")))

	if len(imp.Names) == 0 {
		destReg := f.allocTemp()
		f.emitImmReg(bytecode.OpImport, uint32(pathIdx), destReg)
		f.emitReg(bytecode.OpLoadReg, destReg)
		e.bindName(f, imp.Path[len(imp.Path)-1])
		return
	}

	for _, nm := range imp.Names {
		nameIdx := f.addConst(value.NewString(nm.Name))
		destReg := f.allocTemp()
		f.emitImmImmReg(bytecode.OpImportNamed, uint32(pathIdx), uint32(nameIdx), destReg)
		bind := nm.Name
		if nm.Alias != "" {
			bind = nm.Alias
		}
		f.emitReg(bytecode.OpLoadReg, destReg)
		e.bindName(f, bind)
	}
}

// nameKind classifies how a name reference resolves, per the order
// fixed by spec §4.5: local, then enclosing-function upvalue, then
// module variable, then global.
type nameKind int

const (
	nameLocal nameKind = iota
	nameUpvalue
	nameModuleVar
	nameGlobal
)

type nameRef struct {
	kind nameKind
	vreg int // nameLocal
	idx  int // nameUpvalue: upvalue index
}

func (e *Emitter) resolveName(f *funcCtx, name string) nameRef {
	if vreg, ok := f.resolveLocal(name); ok {
		return nameRef{kind: nameLocal, vreg: vreg}
	}
	if idx, ok := f.resolveUpvalue(name); ok {
		return nameRef{kind: nameUpvalue, idx: idx}
	}
	if e.moduleVars[name] {
		return nameRef{kind: nameModuleVar}
	}
	return nameRef{kind: nameGlobal}
}

// constFold evaluates e if it is one of the literal forms the bytecode
// format can store directly in a constant slot (Params.DefaultIdx and
// FieldSpec.DefaultIdx only carry a constant-pool index, never code),
// reporting an emitter error for anything richer.
func (e *Emitter) constFold(x ast.Expr) (value.Value, bool) {
	switch n := x.(type) {
	case *ast.IntLit:
		return value.Int(n.Value), true
	case *ast.FloatLit:
		return value.Float(n.Value), true
	case *ast.StringLit:
		return value.NewString(n.Value), true
	case *ast.BoolLit:
		return value.Bool(n.Value), true
	case *ast.NoneLit:
		return value.None, true
	case *ast.UnaryExpr:
		if n.Op == "-" {
			if v, ok := e.constFold(n.X); ok {
				if i, ok := v.AsInt(); ok {
					return value.Int(-i), true
				}
				if fl, ok := v.AsFloat(); ok {
					return value.Float(-fl), true
				}
			}
		}
	}
	e.error(x.Span(), "default value must be a compile-time constant")
	return value.None, false
}
