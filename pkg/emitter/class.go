package emitter

import (
	"github.com/aspen-lang/aspen/pkg/ast"
	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/value"
)

// lowerParams const-folds every parameter's default (constFold rejects
// anything richer than a literal, since value.Param.DefaultIdx only
// carries a constant-pool slot, never code) and returns both the names
// (for funcCtx.setupParams) and the value.Param slice the finished
// descriptor needs.
func (e *Emitter) lowerParams(f *funcCtx, params []ast.Param) ([]string, []value.Param) {
	names := make([]string, len(params))
	specs := make([]value.Param, len(params))
	for i, p := range params {
		names[i] = p.Name
		idx := -1
		if p.Default != nil {
			if v, ok := e.constFold(p.Default); ok {
				idx = f.addConst(v)
			}
		}
		specs[i] = value.Param{Name: p.Name, DefaultIdx: idx}
	}
	return names, specs
}

// lowerFuncBody builds a child funcCtx for fd, lowers its body, and
// returns the finished descriptor. parent is nil for a method (methods
// only ever see self/fields/module vars/globals — see DESIGN.md's note
// on why class descriptors skip the upvalue-capture wiring that plain
// nested functions use).
func (e *Emitter) lowerFuncBody(parent *funcCtx, fd *ast.FuncDecl) *value.FunctionDescriptorData {
	child := newFuncCtx(e, parent, fd.Name, fd.HasSelf, fd.IsGenerator)
	names, specs := e.lowerParams(child, fd.Params)
	child.setupParams(names)
	for _, s := range fd.Body {
		e.lowerStmt(child, s)
	}
	return e.finishFunc(child, specs)
}

// lowerFuncDeclStmt lowers a nested (or top-level) `func` declaration:
// build its descriptor, CreateFunction it, wire up captures for any
// names it closed over from f, and bind the result by name.
func (e *Emitter) lowerFuncDeclStmt(f *funcCtx, fd *ast.FuncDecl) {
	desc := e.lowerFuncBody(f, fd)

	constIdx := f.addConst(value.NewFunctionDescriptor(desc))
	f.emitImm(bytecode.OpCreateFunction, uint32(constIdx))
	for _, uv := range desc.Upvalues {
		if uv.FromParentUpvalue {
			f.emitImm(bytecode.OpCaptureSlot, uint32(uv.Index))
		} else {
			f.emitReg(bytecode.OpCaptureReg, uv.Index)
		}
	}
	e.bindName(f, fd.Name)
}

// lowerClassDeclStmt builds a ClassDescriptor (fields + fully-built
// method function values, spec §3.3) and emits CreateClassEmpty or
// CreateClass depending on whether the declaration names a parent.
func (e *Emitter) lowerClassDeclStmt(f *funcCtx, cd *ast.ClassDecl) {
	fields := make([]value.FieldSpec, len(cd.Fields))
	// Field defaults are const-folded against the class descriptor's
	// OWN constant pool semantics: they ride in f's pool since the
	// descriptor itself is just another constant of f's function.
	for i, fld := range cd.Fields {
		idx := -1
		if fld.Default != nil {
			if v, ok := e.constFold(fld.Default); ok {
				idx = f.addConst(v)
			}
		}
		fields[i] = value.FieldSpec{Name: fld.Name, DefaultIdx: idx}
	}

	methods := make(map[string]value.Value, len(cd.Methods))
	initName := ""
	for _, m := range cd.Methods {
		desc := e.lowerFuncBody(nil, m)
		methods[m.Name] = value.NewFunctionDescriptor(desc)
		if m.Name == "init" {
			initName = "init"
		}
	}

	classDesc := &value.ClassDescriptorData{
		Name:      cd.Name,
		IsDerived: cd.Parent != "",
		Fields:    fields,
		Methods:   methods,
		InitName:  initName,
	}
	constIdx := f.addConst(value.NewClassDescriptor(classDesc))

	if cd.Parent == "" {
		f.emitImm(bytecode.OpCreateClassEmpty, uint32(constIdx))
	} else {
		e.lowerLoadName(f, cd.Parent)
		parentReg := f.allocTemp()
		f.emitReg(bytecode.OpStoreReg, parentReg)
		f.emitImmReg(bytecode.OpCreateClass, uint32(constIdx), parentReg)
	}
	e.bindName(f, cd.Name)
}
