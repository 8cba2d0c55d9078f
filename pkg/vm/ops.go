package vm

import (
	"fmt"
	"math"

	"github.com/aspen-lang/aspen/pkg/bytecode"
	"github.com/aspen-lang/aspen/pkg/value"
)

func strKey(name string) value.KeyData { return value.KeyData{Kind: value.KeyStr, S: name} }

func kindName(v value.Value) string {
	if o, ok := v.AsObject(); ok {
		return o.Kind.String()
	}
	return v.Kind().String()
}

func asFloatLike(v value.Value) (float64, bool) {
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	return 0, false
}

func intArith(op bytecode.Opcode, a, b int32) (value.Value, error) {
	switch op {
	case bytecode.OpAdd:
		return value.Int(a + b), nil
	case bytecode.OpSub:
		return value.Int(a - b), nil
	case bytecode.OpMul:
		return value.Int(a * b), nil
	case bytecode.OpDiv:
		if b == 0 {
			return value.None, fmt.Errorf("division by zero")
		}
		return value.Int(a / b), nil
	case bytecode.OpRem:
		if b == 0 {
			return value.None, fmt.Errorf("division by zero")
		}
		return value.Int(a % b), nil
	case bytecode.OpPow:
		return value.Int(int32(math.Pow(float64(a), float64(b)))), nil
	default:
		return value.None, fmt.Errorf("not an arithmetic opcode: %s", op)
	}
}

func floatArith(op bytecode.Opcode, a, b float64) value.Value {
	switch op {
	case bytecode.OpAdd:
		return value.Float(a + b)
	case bytecode.OpSub:
		return value.Float(a - b)
	case bytecode.OpMul:
		return value.Float(a * b)
	case bytecode.OpDiv:
		return value.Float(a / b)
	case bytecode.OpRem:
		return value.Float(math.Mod(a, b))
	case bytecode.OpPow:
		return value.Float(math.Pow(a, b))
	default:
		return value.None
	}
}

// opArith implements Add/Sub/Mul/Div/Rem/Pow. Per the register/
// accumulator convention confirmed from expr.go's BinaryExpr lowering,
// the result is REG <op> ACC — the register operand is the left-hand
// side, the accumulator is the right.
func (vm *Isolate) opArith(frame *Frame, op bytecode.Opcode, regOperand uint32, off int) (controlSignal, bool, *RuntimeError) {
	lhs := vm.regRaw(frame, regOperand)
	rhs := vm.acc

	if op == bytecode.OpAdd {
		if ls, ok := value.StringValue(lhs); ok {
			if rs, ok2 := value.StringValue(rhs); ok2 {
				vm.setAcc(value.NewString(ls + rs))
				return 0, false, nil
			}
		}
	}

	if li, lIsInt := lhs.AsInt(); lIsInt {
		if ri, rIsInt := rhs.AsInt(); rIsInt {
			result, err := intArith(op, li, ri)
			if err != nil {
				return 0, false, vm.raise(frame, off, CauseDivideByZero, "%v", err)
			}
			vm.setAcc(result)
			return 0, false, nil
		}
	}

	lf, lOk := asFloatLike(lhs)
	rf, rOk := asFloatLike(rhs)
	if !lOk || !rOk {
		return 0, false, vm.raise(frame, off, CauseTypeMismatch, "%s requires two numbers (or two strings for +), got %s and %s", op, kindName(lhs), kindName(rhs))
	}
	vm.setAcc(floatArith(op, lf, rf))
	return 0, false, nil
}

func (vm *Isolate) opUnaryMinus(frame *Frame, off int) (controlSignal, bool, *RuntimeError) {
	if i, ok := vm.acc.AsInt(); ok {
		vm.setAcc(value.Int(-i))
		return 0, false, nil
	}
	if f, ok := vm.acc.AsFloat(); ok {
		vm.setAcc(value.Float(-f))
		return 0, false, nil
	}
	return 0, false, vm.raise(frame, off, CauseTypeMismatch, "unary - requires a number, got %s", kindName(vm.acc))
}

func (vm *Isolate) opCompare(frame *Frame, op bytecode.Opcode, regOperand uint32, off int) (controlSignal, bool, *RuntimeError) {
	lhs := vm.regRaw(frame, regOperand)
	rhs := vm.acc
	lf, lOk := asFloatLike(lhs)
	rf, rOk := asFloatLike(rhs)
	if !lOk || !rOk {
		return 0, false, vm.raise(frame, off, CauseTypeMismatch, "comparison requires two numbers, got %s and %s", kindName(lhs), kindName(rhs))
	}
	var result bool
	switch op {
	case bytecode.OpCmpGt:
		result = lf > rf
	case bytecode.OpCmpGe:
		result = lf >= rf
	case bytecode.OpCmpLt:
		result = lf < rf
	case bytecode.OpCmpLe:
		result = lf <= rf
	}
	vm.setAcc(value.Bool(result))
	return 0, false, nil
}

func (vm *Isolate) opLen(frame *Frame, off int) (controlSignal, bool, *RuntimeError) {
	if elems, ok := value.ListElems(vm.acc); ok {
		vm.setAcc(value.Int(int32(len(elems))))
		return 0, false, nil
	}
	if s, ok := value.StringValue(vm.acc); ok {
		vm.setAcc(value.Int(int32(len(s))))
		return 0, false, nil
	}
	if o, ok := vm.acc.AsObject(); ok && o.Kind == value.ObjTable {
		vm.setAcc(value.Int(int32(value.TableLen(vm.acc))))
		return 0, false, nil
	}
	return 0, false, vm.raise(frame, off, CauseTypeMismatch, "len() requires a list, dict, or string, got %s", kindName(vm.acc))
}

// resolveFieldOrMethod implements spec §4.7's field/method lookup,
// branching on the receiver's object kind. Returns a freshly owned
// Value.
func (vm *Isolate) resolveFieldOrMethod(frame *Frame, obj value.Value, name string, off int) (value.Value, *RuntimeError) {
	if sp, ok := value.SuperProxyOf(obj); ok {
		searchClass := sp.SearchFrom.Payload.(*value.ClassData)
		fn, _, found := lookupMethod(searchClass, name)
		if !found {
			return value.None, vm.raise(frame, off, CauseMissingField, "no method named %q on super", name)
		}
		return value.NewBoundMethod(sp.Receiver, fn), nil
	}
	if inst, ok := value.ClassInstanceOf(obj); ok {
		if v, found := value.DataGet(inst.Fields, strKey(name)); found {
			return v.Clone(), nil
		}
		classData := inst.Class.Payload.(*value.ClassData)
		fn, _, found := lookupMethod(classData, name)
		if !found {
			return value.None, vm.raise(frame, off, CauseMissingField, "no such field or method %q", name)
		}
		return value.NewBoundMethod(obj, fn), nil
	}
	if _, ok := value.GeneratorOf(obj); ok {
		if name != "next" {
			return value.None, vm.raise(frame, off, CauseMissingField, "generators only have a %q method, not %q", "next", name)
		}
		genVal := obj.Clone()
		return value.NewNativeFunction("next", func(args []value.Value) (value.Value, error) {
			return vm.resumeGenerator(genVal)
		}), nil
	}
	if md, ok := value.ModuleOf(obj); ok {
		varsVal := value.Object(md.Vars)
		v, found := value.TableGet(varsVal, strKey(name))
		varsVal.Release()
		if !found {
			return value.None, vm.raise(frame, off, CauseMissingField, "module %q has no export %q", md.Name, name)
		}
		return v.Clone(), nil
	}
	return value.None, vm.raise(frame, off, CauseTypeMismatch, "%s has no field or method access", kindName(obj))
}

func lookupMethod(class *value.ClassData, name string) (value.Value, *value.ClassData, bool) {
	if v, ok := class.Methods[name]; ok {
		return v, class, true
	}
	return value.None, nil, false
}

func (vm *Isolate) opLoadField(frame *Frame, objReg, nameIdx uint32, off int, optional bool) (controlSignal, bool, *RuntimeError) {
	if optional && frame.optChain {
		return 0, false, nil
	}
	obj := vm.regRaw(frame, objReg)
	if optional && obj.IsNone() {
		frame.optChain = true
		vm.setAcc(value.None)
		return 0, false, nil
	}
	name, _ := value.StringValue(vm.constAt(frame, nameIdx))
	v, rerr := vm.resolveFieldOrMethod(frame, obj, name, off)
	if rerr != nil {
		return 0, false, rerr
	}
	vm.setAcc(v)
	return 0, false, nil
}

func (vm *Isolate) opStoreField(frame *Frame, objReg, nameIdx uint32, off int) (controlSignal, bool, *RuntimeError) {
	obj := vm.regRaw(frame, objReg)
	inst, ok := value.ClassInstanceOf(obj)
	if !ok {
		return 0, false, vm.raise(frame, off, CauseTypeMismatch, "cannot set a field on a %s", kindName(obj))
	}
	name, _ := value.StringValue(vm.constAt(frame, nameIdx))
	key := strKey(name)
	if inst.Frozen {
		if _, exists := value.DataGet(inst.Fields, key); !exists {
			return 0, false, vm.raise(frame, off, CauseFrozenInstance, "cannot add field %q to a frozen instance", name)
		}
	}
	value.DataSet(inst.Fields, key, vm.takeAcc())
	return 0, false, nil
}

func (vm *Isolate) opLoadIndex(frame *Frame, objReg, keyReg uint32, off int, optional bool) (controlSignal, bool, *RuntimeError) {
	if optional && frame.optChain {
		return 0, false, nil
	}
	obj := vm.regRaw(frame, objReg)
	if optional && obj.IsNone() {
		frame.optChain = true
		vm.setAcc(value.None)
		return 0, false, nil
	}
	keyVal := vm.regRaw(frame, keyReg)
	if elems, ok := value.ListElems(obj); ok {
		i, ok2 := keyVal.AsInt()
		if !ok2 {
			return 0, false, vm.raise(frame, off, CauseTypeMismatch, "list index must be an int, got %s", kindName(keyVal))
		}
		if i < 0 || int(i) >= len(elems) {
			return 0, false, vm.raise(frame, off, CauseIndexOutOfRange, "list index %d out of range (len %d)", i, len(elems))
		}
		vm.setAcc(elems[i].Clone())
		return 0, false, nil
	}
	key, ok := value.KeyFromValue(keyVal)
	if !ok {
		return 0, false, vm.raise(frame, off, CauseTypeMismatch, "dict key must be an int or a string, got %s", kindName(keyVal))
	}
	v, found := value.TableGet(obj, key)
	if !found {
		return 0, false, vm.raise(frame, off, CauseIndexOutOfRange, "no entry for key %s", key.String())
	}
	vm.setAcc(v.Clone())
	return 0, false, nil
}

func (vm *Isolate) opStoreIndex(frame *Frame, objReg, keyReg uint32, off int) (controlSignal, bool, *RuntimeError) {
	obj := vm.regRaw(frame, objReg)
	keyVal := vm.regRaw(frame, keyReg)
	if elems, ok := value.ListElems(obj); ok {
		i, ok2 := keyVal.AsInt()
		if !ok2 {
			return 0, false, vm.raise(frame, off, CauseTypeMismatch, "list index must be an int, got %s", kindName(keyVal))
		}
		if i < 0 || int(i) >= len(elems) {
			return 0, false, vm.raise(frame, off, CauseIndexOutOfRange, "list index %d out of range (len %d)", i, len(elems))
		}
		elems[i].Release()
		elems[i] = vm.takeAcc()
		return 0, false, nil
	}
	key, ok := value.KeyFromValue(keyVal)
	if !ok {
		return 0, false, vm.raise(frame, off, CauseTypeMismatch, "dict key must be an int or a string, got %s", kindName(keyVal))
	}
	value.TableSet(obj, key, vm.takeAcc())
	return 0, false, nil
}

func (vm *Isolate) opCreateFunction(frame *Frame, descIdx uint32) {
	descVal := vm.constAt(frame, descIdx)
	desc, _ := value.FunctionDescriptorOf(descVal)
	if len(desc.Upvalues) == 0 {
		vm.setAcc(value.NewFunction(descVal, nil, frame.moduleID))
		return
	}
	vm.pendingDescVal = descVal
	vm.pendingUpvals = make([]value.Value, 0, len(desc.Upvalues))
}

func (vm *Isolate) opCapture(frame *Frame, v value.Value) {
	vm.pendingUpvals = append(vm.pendingUpvals, v)
	desc, _ := value.FunctionDescriptorOf(vm.pendingDescVal)
	if len(vm.pendingUpvals) == len(desc.Upvalues) {
		vm.setAcc(value.NewFunction(vm.pendingDescVal, vm.pendingUpvals, frame.moduleID))
		vm.pendingDescVal = value.None
		vm.pendingUpvals = nil
	}
}

// opCreateClass builds a Class value whose Methods table is fully
// resolved (own methods overlaying a clone of the parent's own
// resolved table), per value.ClassData's doc comment. Field defaults
// are resolved right now, against this frame's own constant pool,
// and cached by the new class object's identity — see DESIGN.md's
// entry on why this cannot be deferred to construction time.
func (vm *Isolate) opCreateClass(frame *Frame, descIdx uint32, parentVal value.Value) {
	descVal := vm.constAt(frame, descIdx)
	cd, _ := value.ClassDescriptorOf(descVal)

	methods := map[string]value.Value{}
	if !parentVal.IsNone() {
		parentObj, _ := parentVal.AsObject()
		parentData := parentObj.Payload.(*value.ClassData)
		for name, fn := range parentData.Methods {
			methods[name] = fn.Clone()
		}
	}

	classVal := value.NewClass(descVal, parentVal, methods)
	classObj, _ := classVal.AsObject()
	classData := classObj.Payload.(*value.ClassData)

	for name, fdVal := range cd.Methods {
		fnVal := value.NewFunction(fdVal, nil, frame.moduleID)
		if old, overridden := methods[name]; overridden {
			old.Release()
		}
		methods[name] = fnVal
		fnObj, _ := fnVal.AsObject()
		vm.methodOwner[fnObj] = classData
	}

	defaults := make([]value.Value, len(cd.Fields))
	for i, fs := range cd.Fields {
		if fs.DefaultIdx < 0 {
			defaults[i] = value.None
			continue
		}
		defaults[i] = vm.constAt(frame, uint32(fs.DefaultIdx)).Clone()
	}
	vm.fieldDefaults[classObj] = defaults

	vm.setAcc(classVal)
}

func (vm *Isolate) releaseArgs(args, kwVals []value.Value) {
	for _, v := range args {
		v.Release()
	}
	for _, v := range kwVals {
		v.Release()
	}
}

func (vm *Isolate) releaseBound(bound []value.Value, filled []bool) {
	for i, f := range filled {
		if f {
			bound[i].Release()
		}
	}
}

// callValue dispatches a call by the callee's object kind (spec §4.7
// step 1). args/kwVals are already-owned values; every return path
// either moves them into the callee's frame or releases them.
func (vm *Isolate) callValue(frame *Frame, off int, callee value.Value, args []value.Value, kwNames []string, kwVals []value.Value) (value.Value, *RuntimeError) {
	obj, ok := callee.AsObject()
	if !ok {
		vm.releaseArgs(args, kwVals)
		return value.None, vm.raise(frame, off, CauseBadCallTarget, "value is not callable (%s)", kindName(callee))
	}
	switch obj.Kind {
	case value.ObjFunction:
		return vm.invokeFunction(frame, off, callee, nil, args, kwNames, kwVals)
	case value.ObjBoundMethod:
		bm, _ := value.BoundMethodOf(callee)
		return vm.invokeFunction(frame, off, bm.Function, &bm.Receiver, args, kwNames, kwVals)
	case value.ObjNativeFunction:
		nf, _ := value.NativeFunctionOf(callee)
		if len(kwNames) > 0 {
			vm.releaseArgs(args, kwVals)
			return value.None, vm.raise(frame, off, CauseUnknownKeyword, "native function %s does not accept keyword arguments", nf.Name)
		}
		res, err := nf.Call(args)
		if err != nil {
			return value.None, vm.wrapNativeErr(frame, off, err)
		}
		return res, nil
	case value.ObjNativeClass:
		nc, _ := value.NativeClassOf(callee)
		if len(kwNames) > 0 {
			vm.releaseArgs(args, kwVals)
			return value.None, vm.raise(frame, off, CauseUnknownKeyword, "%s's constructor does not accept keyword arguments", nc.Name)
		}
		res, err := nc.Construct(args)
		if err != nil {
			return value.None, vm.wrapNativeErr(frame, off, err)
		}
		return res, nil
	case value.ObjClass:
		return vm.instantiateClass(frame, off, callee, args, kwNames, kwVals)
	default:
		vm.releaseArgs(args, kwVals)
		return value.None, vm.raise(frame, off, CauseBadCallTarget, "value is not callable (%s)", kindName(callee))
	}
}

func (vm *Isolate) wrapNativeErr(frame *Frame, off int, err error) *RuntimeError {
	if rerr, ok := err.(*RuntimeError); ok {
		return rerr
	}
	return vm.raise(frame, off, CauseTypeMismatch, "%v", err)
}

// invokeFunction binds args/kwVals to desc.Params (spec §4.7's
// argument-binding algorithm: positional fill, then keyword-by-name,
// then defaults for anything still missing) and either runs the body
// to completion (ordinary function) or, for a generator descriptor,
// builds an unstarted Generator without running any body code at all
// (spec §4.7: "calling a generator ... instead allocates a Generator
// heap object holding the frame snapshot in a suspended state").
func (vm *Isolate) invokeFunction(frame *Frame, off int, fnVal value.Value, selfOverride *value.Value, args []value.Value, kwNames []string, kwVals []value.Value) (value.Value, *RuntimeError) {
	fd, _ := value.FunctionOf(fnVal)
	desc := functionDescriptor(fd)

	if len(args) > len(desc.Params) {
		vm.releaseArgs(args, kwVals)
		return value.None, vm.raise(frame, off, CauseArity, "%s takes at most %d argument(s), got %d", desc.Name, len(desc.Params), len(args))
	}

	bound := make([]value.Value, len(desc.Params))
	filled := make([]bool, len(desc.Params))
	for i, a := range args {
		bound[i] = a
		filled[i] = true
	}
	for i, name := range kwNames {
		idx := -1
		for pi, p := range desc.Params {
			if p.Name == name {
				idx = pi
				break
			}
		}
		if idx < 0 {
			vm.releaseBound(bound, filled)
			vm.releaseArgs(nil, kwVals[i:])
			return value.None, vm.raise(frame, off, CauseUnknownKeyword, "%s has no parameter named %q", desc.Name, name)
		}
		if filled[idx] {
			vm.releaseBound(bound, filled)
			vm.releaseArgs(nil, kwVals[i:])
			return value.None, vm.raise(frame, off, CauseArity, "%s got multiple values for argument %q", desc.Name, name)
		}
		bound[idx] = kwVals[i]
		filled[idx] = true
	}
	for i, p := range desc.Params {
		if filled[i] {
			continue
		}
		if p.DefaultIdx < 0 {
			vm.releaseBound(bound, filled)
			return value.None, vm.raise(frame, off, CauseArity, "%s missing required argument %q", desc.Name, p.Name)
		}
		bound[i] = desc.Consts[p.DefaultIdx].Clone()
		filled[i] = true
	}

	homeClass := vm.methodOwner[mustObj(fnVal)]
	moduleName := vm.moduleNames[fd.ModuleID]
	if moduleName == "" {
		moduleName = fd.ModuleID
	}

	var self value.Value = value.None
	if selfOverride != nil {
		self = selfOverride.Clone()
	}

	if desc.IsGenerator {
		regs := make([]value.Value, desc.FrameSize)
		for i := range regs {
			regs[i] = value.None
		}
		regs[0] = self
		for i, v := range bound {
			regs[i+1] = v
		}
		st := &genState{
			regs: regs, pc: 0, fn: fd, desc: desc,
			moduleID: fd.ModuleID, moduleName: moduleName, homeClass: homeClass,
		}
		return value.NewGenerator(st), nil
	}

	newFrame := &Frame{fn: fd, desc: desc, moduleID: fd.ModuleID, moduleName: moduleName, name: desc.Name, homeClass: homeClass}
	vm.pushFrame(newFrame, &self)
	for i, v := range bound {
		vm.stack[newFrame.stackBase+1+i] = v
	}
	_, rerr := vm.runLoop(newFrame)
	if rerr != nil {
		return value.None, rerr
	}
	return vm.takeAcc(), nil
}

func mustObj(v value.Value) *value.Obj {
	o, _ := v.AsObject()
	return o
}

// instantiateClass implements constructing an instance of a Class
// value (spec §4.7's Call step 1, Class branch): allocate the
// instance, fill every declared field from its eagerly-resolved
// default, run init (if declared) with self bound to the new
// instance, then freeze it so later field writes may only overwrite
// existing fields, never add new ones.
func (vm *Isolate) instantiateClass(frame *Frame, off int, classVal value.Value, args []value.Value, kwNames []string, kwVals []value.Value) (value.Value, *RuntimeError) {
	classObj, _ := classVal.AsObject()
	classData := classObj.Payload.(*value.ClassData)
	descVal := value.Object(classData.Descriptor)
	cd, _ := value.ClassDescriptorOf(descVal)
	descVal.Release()

	instVal := value.NewClassInstance(classVal)
	inst, _ := value.ClassInstanceOf(instVal)

	defaults := vm.fieldDefaults[classObj]
	for i, fs := range cd.Fields {
		v := value.None
		if i < len(defaults) {
			v = defaults[i].Clone()
		}
		value.DataSet(inst.Fields, strKey(fs.Name), v)
	}

	if cd.InitName != "" {
		initFn, ok := classData.Methods[cd.InitName]
		if !ok {
			vm.releaseArgs(args, kwVals)
			instVal.Release()
			return value.None, vm.raise(frame, off, CauseMissingField, "class %s has no method named %q", cd.Name, cd.InitName)
		}
		self := instVal
		initResult, rerr := vm.invokeFunction(frame, off, initFn, &self, args, kwNames, kwVals)
		if rerr != nil {
			instVal.Release()
			return value.None, rerr
		}
		initResult.Release()
	} else {
		vm.releaseArgs(args, kwVals)
	}

	inst.Frozen = true
	return instVal, nil
}

func (vm *Isolate) opCall(frame *Frame, startReg, nPos, nKw uint32, off int) (controlSignal, bool, *RuntimeError) {
	callee := vm.takeAcc()

	args := make([]value.Value, nPos)
	for i := uint32(0); i < nPos; i++ {
		args[i] = vm.regLoad(frame, startReg+i)
	}
	base := startReg + nPos
	kwNames := make([]string, nKw)
	kwVals := make([]value.Value, nKw)
	for i := uint32(0); i < nKw; i++ {
		name, _ := value.StringValue(vm.regRaw(frame, base+2*i))
		kwNames[i] = name
		kwVals[i] = vm.regLoad(frame, base+2*i+1)
	}

	result, rerr := vm.callValue(frame, off, callee, args, kwNames, kwVals)
	callee.Release()
	if rerr != nil {
		return 0, false, rerr
	}
	vm.setAcc(result)
	return 0, false, nil
}

func (vm *Isolate) resolveImport(path string) (value.Value, error) {
	if v, ok := vm.loadedModules[path]; ok {
		return v.Clone(), nil
	}
	if vm.loading[path] {
		return value.None, fmt.Errorf("circular import: %s", path)
	}
	if vm.importer == nil {
		return value.None, fmt.Errorf("no importer configured for module %q", path)
	}
	vm.loading[path] = true
	v, err := vm.importer.Import(path)
	delete(vm.loading, path)
	if err != nil {
		return value.None, err
	}
	if md, ok := value.ModuleOf(v); ok {
		vm.moduleNames[md.ID] = md.Name
	}
	vm.loadedModules[path] = v
	return v.Clone(), nil
}

func (vm *Isolate) opImport(frame *Frame, pathIdx, destReg uint32, off int) (controlSignal, bool, *RuntimeError) {
	path, _ := value.StringValue(vm.constAt(frame, pathIdx))
	mod, err := vm.resolveImport(path)
	if err != nil {
		return 0, false, vm.raise(frame, off, CauseImportFailed, "%v", err)
	}
	vm.regStore(frame, destReg, mod)
	return 0, false, nil
}

func (vm *Isolate) opImportNamed(frame *Frame, pathIdx, nameIdx, destReg uint32, off int) (controlSignal, bool, *RuntimeError) {
	path, _ := value.StringValue(vm.constAt(frame, pathIdx))
	name, _ := value.StringValue(vm.constAt(frame, nameIdx))
	mod, err := vm.resolveImport(path)
	if err != nil {
		return 0, false, vm.raise(frame, off, CauseImportFailed, "%v", err)
	}
	md, _ := value.ModuleOf(mod)
	varsVal := value.Object(md.Vars)
	v, found := value.TableGet(varsVal, strKey(name))
	varsVal.Release()
	mod.Release()
	if !found {
		return 0, false, vm.raise(frame, off, CauseUndefinedName, "module %q has no export %q", path, name)
	}
	vm.regStore(frame, destReg, v.Clone())
	return 0, false, nil
}

// resumeGenerator runs genVal's suspended frame until its next Yield
// (sigSuspend) or its body returns (sigReturn, marking it Done). genVal
// is consumed (Released) by this call.
func (vm *Isolate) resumeGenerator(genVal value.Value) (value.Value, error) {
	defer genVal.Release()
	genObj, ok := genVal.AsObject()
	if !ok {
		return value.None, fmt.Errorf("next called on a non-generator value")
	}
	gd := genObj.Payload.(*value.GeneratorData)
	if gd.Done {
		return value.None, nil
	}
	st := gd.State.(*genState)

	frame := &Frame{
		fn: st.fn, desc: st.desc,
		moduleID: st.moduleID, moduleName: st.moduleName,
		name: st.desc.Name, homeClass: st.homeClass,
		genObj: genObj,
	}
	frame.stackBase = len(vm.stack)
	vm.stack = append(vm.stack, st.regs...)
	st.regs = nil
	frame.reader = bytecode.NewReader(frame.desc.Code)
	frame.reader.SetPC(st.pc)
	vm.frames = append(vm.frames, frame)

	sig, rerr := vm.runLoop(frame)
	if rerr != nil {
		return value.None, rerr
	}
	if sig == sigReturn {
		gd.Done = true
	}
	return vm.takeAcc(), nil
}
