package value

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dchest/siphash"
)

// liveObjects is a GC-visible strong-reference table for every
// currently-allocated Obj. A Value NaN-boxes a *Obj's address into a
// plain uint64 payload (this package's tag-bit encoding) so that once
// an object's only remaining reference is that bit pattern — sitting
// in an Isolate's register stack, a Table bucket, a List element, or
// any other uint64-typed slot — Go's tracing garbage collector has no
// pointer-typed reference left to scan, and is free to collect the
// referent out from under the hand-rolled refcount in Obj, which still
// thinks it's alive. liveObjects holds the real *Obj (a pointer-typed
// map key, which the GC does scan) for exactly as long as refcount
// says the object is live, so the two bookkeeping mechanisms agree:
// the refcount governs when an object conceptually dies, this registry
// is what keeps it physically alive on the Go heap until that happens.
var liveObjects sync.Map // map[*Obj]struct{}

func registerObj(o *Obj) { liveObjects.Store(o, struct{}{}) }

func unregisterObj(o *Obj) { liveObjects.Delete(o) }

// ObjKind discriminates the concrete payload carried by an Obj header
// (spec §3.3: "a common header with ... a discriminator identifying
// the concrete type").
type ObjKind int

const (
	ObjString ObjKind = iota
	ObjList
	ObjTable
	ObjKey
	ObjFunctionDescriptor
	ObjFunction
	ObjClassDescriptor
	ObjClass
	ObjClassInstance
	ObjBoundMethod
	ObjModule
	ObjNativeFunction
	ObjNativeClass
	ObjGenerator
	ObjSuperProxy
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "String"
	case ObjList:
		return "List"
	case ObjTable:
		return "Table"
	case ObjKey:
		return "Key"
	case ObjFunctionDescriptor:
		return "FunctionDescriptor"
	case ObjFunction:
		return "Function"
	case ObjClassDescriptor:
		return "ClassDescriptor"
	case ObjClass:
		return "Class"
	case ObjClassInstance:
		return "ClassInstance"
	case ObjBoundMethod:
		return "BoundMethod"
	case ObjModule:
		return "Module"
	case ObjNativeFunction:
		return "NativeFunction"
	case ObjNativeClass:
		return "NativeClass"
	case ObjGenerator:
		return "Generator"
	case ObjSuperProxy:
		return "SuperProxy"
	default:
		return "Unknown"
	}
}

// Obj is the common heap object header every concrete type shares
// (spec §3.3). Payload holds one of the *Data types below, selected by
// Kind. Obj is never constructed directly by callers outside this
// package; use the NewXxx constructors, which return an owned Value.
type Obj struct {
	refcount int32
	Kind     ObjKind
	Payload  interface{}
}

// RefCount reports the current strong count, chiefly for tests
// exercising spec §8's reference-count-conservation property.
func (o *Obj) RefCount() int32 { return o.refcount }

func newObj(kind ObjKind, payload interface{}) *Obj {
	o := &Obj{Kind: kind, Payload: payload}
	registerObj(o)
	return o
}

// releaseObj decrements o's strong count and frees it once the count
// reaches zero. Unlike Value.Release, it operates on a bare *Obj
// pointer — used internally where a field holds an owned *Obj rather
// than a boxed Value (FunctionData.Descriptor, ClassData.Parent, and
// so on).
func releaseObj(o *Obj) {
	if o == nil {
		return
	}
	o.refcount--
	if o.refcount <= 0 {
		o.free()
	}
}

// free releases the strong references this object itself owns,
// recursively tearing down its payload. Cycles (spec §9: a closure
// capturing the class whose method closed over it) are not collected;
// per the design note's option (c), they are tolerated as leaks until
// the owning Isolate is dropped.
func (o *Obj) free() {
	defer unregisterObj(o)
	switch o.Kind {
	case ObjList:
		d := o.Payload.(*ListData)
		for _, v := range d.Elems {
			v.Release()
		}
	case ObjTable:
		d := o.Payload.(*TableData)
		for _, v := range d.values {
			v.Release()
		}
	case ObjFunction:
		d := o.Payload.(*FunctionData)
		for _, v := range d.Upvalues {
			v.Release()
		}
		releaseObj(d.Descriptor)
	case ObjClass:
		d := o.Payload.(*ClassData)
		releaseObj(d.Parent)
		releaseObj(d.Descriptor)
	case ObjClassInstance:
		d := o.Payload.(*ClassInstanceData)
		for _, v := range d.Fields.values {
			v.Release()
		}
		releaseObj(d.Class)
	case ObjBoundMethod:
		d := o.Payload.(*BoundMethodData)
		d.Receiver.Release()
		d.Function.Release()
	case ObjModule:
		d := o.Payload.(*ModuleData)
		releaseObj(d.Vars)
		releaseObj(d.Root)
	case ObjSuperProxy:
		d := o.Payload.(*SuperProxyData)
		d.Receiver.Release()
		releaseObj(d.SearchFrom)
	}
}

// Inspect renders a debug representation of o's payload, used by
// Value.Inspect. The REPL's ":inspect" command does not call it; that
// command dumps the whole Isolate with go-spew.
func (o *Obj) Inspect() string {
	switch o.Kind {
	case ObjString:
		return fmt.Sprintf("%q", o.Payload.(*StringData).S)
	case ObjList:
		elems := o.Payload.(*ListData).Elems
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.Inspect()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjTable:
		d := o.Payload.(*TableData)
		parts := make([]string, 0, len(d.order))
		for _, k := range d.order {
			parts = append(parts, fmt.Sprintf("%s: %s", k, d.values[k].Inspect()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ObjFunctionDescriptor:
		return fmt.Sprintf("<function descriptor %s>", o.Payload.(*FunctionDescriptorData).Name)
	case ObjFunction:
		return fmt.Sprintf("<function %s>", o.Payload.(*FunctionData).Descriptor.Payload.(*FunctionDescriptorData).Name)
	case ObjClassDescriptor:
		return fmt.Sprintf("<class descriptor %s>", o.Payload.(*ClassDescriptorData).Name)
	case ObjClass:
		return fmt.Sprintf("<class %s>", o.Payload.(*ClassData).Descriptor.Payload.(*ClassDescriptorData).Name)
	case ObjClassInstance:
		d := o.Payload.(*ClassInstanceData)
		return fmt.Sprintf("<instance of %s>", d.Class.Payload.(*ClassData).Descriptor.Payload.(*ClassDescriptorData).Name)
	case ObjBoundMethod:
		return "<bound method>"
	case ObjModule:
		return fmt.Sprintf("<module %s>", o.Payload.(*ModuleData).Name)
	case ObjNativeFunction:
		return fmt.Sprintf("<native function %s>", o.Payload.(*NativeFunctionData).Name)
	case ObjNativeClass:
		return fmt.Sprintf("<native class %s>", o.Payload.(*NativeClassData).Name)
	case ObjGenerator:
		return "<generator>"
	case ObjSuperProxy:
		return "<super>"
	default:
		return "<object>"
	}
}

// objEqual implements Value equality for two Object-kind operands:
// strings and Keys compare structurally, every other object kind
// compares by identity (spec §3.2's "all other values compare by bit
// pattern").
func objEqual(a, b *Obj) bool {
	if a == b {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ObjString:
		return a.Payload.(*StringData).S == b.Payload.(*StringData).S
	case ObjKey:
		return *a.Payload.(*KeyData) == *b.Payload.(*KeyData)
	default:
		return false
	}
}

// ---- String ----

// StringData backs ObjString. S is owned (a copy of the Go string)
// whenever the literal comes from the constant pool builder; borrowed
// static strings are represented identically at this layer, since Go
// strings are themselves immutable and reference-counted by the Go
// runtime's own GC, not by Obj.
type StringData struct{ S string }

// NewString allocates a heap String object holding s.
func NewString(s string) Value {
	return Object(newObj(ObjString, &StringData{S: s}))
}

// StringValue extracts the Go string underneath an ObjString Value.
func StringValue(v Value) (string, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjString {
		return "", false
	}
	return o.Payload.(*StringData).S, true
}

// ---- List ----

// ListData backs ObjList: a growable ordered sequence of Value.
type ListData struct{ Elems []Value }

// NewList allocates an empty List.
func NewList() Value {
	return Object(newObj(ObjList, &ListData{}))
}

// ListAppend pushes v onto list's backing slice in place, transferring
// ownership of v's strong reference to the list.
func ListAppend(list Value, v Value) {
	o, ok := list.AsObject()
	if !ok || o.Kind != ObjList {
		panic("value: ListAppend on a non-List value")
	}
	d := o.Payload.(*ListData)
	d.Elems = append(d.Elems, v)
}

// ListElems returns the backing slice of list for read access.
func ListElems(list Value) ([]Value, bool) {
	o, ok := list.AsObject()
	if !ok || o.Kind != ObjList {
		return nil, false
	}
	return o.Payload.(*ListData).Elems, true
}

// ---- Key ----

// KeyKind distinguishes the two concrete forms a dict Key may take
// (spec §3.3: "Key: one of Int(i32), Str(Handle<String>), or a
// transient borrowed reference"). This package only models the two
// owned forms; transient borrowed lookups are expressed by computing
// a KeyData on the stack without allocating an Obj (see TableGet).
type KeyKind int

const (
	KeyInt KeyKind = iota
	KeyStr
)

// KeyData is a dict key's content, used both as an allocated ObjKey
// payload and as a transient stack value for lookups.
type KeyData struct {
	Kind KeyKind
	I    int32
	S    string
}

func (k KeyData) String() string {
	if k.Kind == KeyInt {
		return fmt.Sprintf("%d", k.I)
	}
	return k.S
}

// hash computes the key's siphash-2-4 digest over a fixed process
// keypair. DataSet records it in Table's shards side index; lookups
// do not use it.
func (k KeyData) hash() uint64 {
	switch k.Kind {
	case KeyInt:
		return siphash.Hash(tableHashK0, tableHashK1, []byte{
			byte(k.I), byte(k.I >> 8), byte(k.I >> 16), byte(k.I >> 24),
		})
	default:
		return siphash.Hash(tableHashK0, tableHashK1, []byte(k.S))
	}
}

// tableHashK0/K1 are the fixed siphash key halves for Table's internal
// index; Table does not need cross-process-stable hashes, only
// intra-process collision resistance, so a fixed compile-time key is
// sufficient and keeps hashing deterministic for tests.
const (
	tableHashK0 uint64 = 0x646173685F6B3000
	tableHashK1 uint64 = 0x646173685F6B3100
)

// KeyFromValue derives a dict key from a Value: ints and strings are
// valid keys, anything else is rejected (the caller raises a runtime
// error).
func KeyFromValue(v Value) (KeyData, bool) {
	if i, ok := v.AsInt(); ok {
		return KeyData{Kind: KeyInt, I: i}, true
	}
	if s, ok := StringValue(v); ok {
		return KeyData{Kind: KeyStr, S: s}, true
	}
	return KeyData{}, false
}

// ---- Table (Dict) ----

// TableData backs ObjTable: an insertion-ordered mapping from string
// (or int) keys to Value (spec §3.3). Lookups go through Go maps keyed
// by the key's String() form; the siphash-keyed shards index is only
// written, never read by a lookup.
type TableData struct {
	order  []string      // insertion order, by key.String()
	keys   map[string]KeyData
	values map[string]Value
	shards map[uint64][]string // hash -> keys sharing that bucket, for collision diagnostics
}

// NewTable allocates an empty Dict.
func NewTable() Value {
	return Object(newObj(ObjTable, &TableData{
		keys:   map[string]KeyData{},
		values: map[string]Value{},
		shards: map[uint64][]string{},
	}))
}

func tableData(v Value) (*TableData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjTable {
		return nil, false
	}
	return o.Payload.(*TableData), true
}

// DataSet inserts or overwrites key -> val directly on a *TableData,
// transferring ownership of val's strong reference to the table. The
// previous value under key, if any, is released. Exported so pkg/vm
// can manipulate a ClassInstanceData's Fields table, which is not
// itself wrapped in its own Obj header.
func DataSet(d *TableData, key KeyData, val Value) {
	k := key.String()
	if old, existed := d.values[k]; existed {
		old.Release()
	} else {
		d.order = append(d.order, k)
		h := key.hash()
		d.shards[h] = append(d.shards[h], k)
	}
	d.keys[k] = key
	d.values[k] = val
}

// DataGet looks up key in d, returning its Value and true, or (None,
// false) if absent.
func DataGet(d *TableData, key KeyData) (Value, bool) {
	v, found := d.values[key.String()]
	return v, found
}

// DataDelete removes key from d, releasing its value. Reports whether
// the key was present.
func DataDelete(d *TableData, key KeyData) bool {
	k := key.String()
	v, found := d.values[k]
	if !found {
		return false
	}
	v.Release()
	delete(d.values, k)
	delete(d.keys, k)
	for i, ok2 := range d.order {
		if ok2 == k {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// DataLen reports the number of entries in d.
func DataLen(d *TableData) int { return len(d.order) }

// DataKeysInOrder returns d's keys in insertion order.
func DataKeysInOrder(d *TableData) []KeyData {
	out := make([]KeyData, len(d.order))
	for i, k := range d.order {
		out[i] = d.keys[k]
	}
	return out
}

// TableSet inserts or overwrites key -> val on a boxed Table Value.
func TableSet(table Value, key KeyData, val Value) {
	d, ok := tableData(table)
	if !ok {
		panic("value: TableSet on a non-Table value")
	}
	DataSet(d, key, val)
}

// TableGet looks up key in table, returning its Value and true, or
// (None, false) if absent.
func TableGet(table Value, key KeyData) (Value, bool) {
	d, ok := tableData(table)
	if !ok {
		return None, false
	}
	return DataGet(d, key)
}

// TableDelete removes key from table, releasing its value. Reports
// whether the key was present.
func TableDelete(table Value, key KeyData) bool {
	d, ok := tableData(table)
	if !ok {
		return false
	}
	return DataDelete(d, key)
}

// TableLen reports the number of entries in table.
func TableLen(table Value) int {
	d, ok := tableData(table)
	if !ok {
		return 0
	}
	return DataLen(d)
}

// TableKeysInOrder returns table's keys in insertion order.
func TableKeysInOrder(table Value) []KeyData {
	d, ok := tableData(table)
	if !ok {
		return nil
	}
	return DataKeysInOrder(d)
}

// InstanceFields exposes a ClassInstance's field table for direct
// Data-level access (pkg/vm uses this for obj.name field reads/writes
// and for the freeze check after init returns).
func InstanceFields(v Value) (*TableData, bool) {
	inst, ok := ClassInstanceOf(v)
	if !ok {
		return nil, false
	}
	return inst.Fields, true
}

// ---- Function descriptor / instance ----

// Param mirrors the emitter's view of one declared parameter: its
// name and whether (and what) default expression it has, already
// evaluated away by the time a descriptor is built — a descriptor
// only needs to know arity, so DefaultIdx carries a pre-lowered constant
// index, or -1 if required.
type Param struct {
	Name       string
	DefaultIdx int // index into the descriptor's Consts, or -1 if required
}

// UpvalueSpec names where a nested function's upvalue slot is
// captured from: either a register of the immediately enclosing
// scope, or an upvalue of the immediately enclosing function.
type UpvalueSpec struct {
	FromParentUpvalue bool // true: Upvalue(u); false: Register(r)
	Index              int
}

// FunctionDescriptorData backs ObjFunctionDescriptor (spec §3.3): the
// immutable, shared compiled form of a function.
type FunctionDescriptorData struct {
	Name        string
	IsGenerator bool
	Params      []Param
	MinArgs     int
	MaxArgs     int
	HasSelf     bool
	Upvalues    []UpvalueSpec
	FrameSize   int
	Code        []byte
	Consts      []Value
	Spans       []SpanEntry // per-instruction source spans, parallel to Code offsets
}

// SpanEntry records the source span covering the instruction
// beginning at byte offset Off, for runtime error reporting (spec
// §7's "span of the current instruction (from a per-instruction span
// table built during emission)"). StartByte/EndByte mirror
// span.Span's fields directly so this package need not import
// pkg/span (which would create an import cycle with pkg/bytecode).
type SpanEntry struct {
	Off        int
	StartByte  int
	EndByte    int
}

// NewFunctionDescriptor allocates a descriptor Obj. Descriptors are
// always constant-pool entries; the emitter builds one per source
// function.
func NewFunctionDescriptor(d *FunctionDescriptorData) Value {
	return Object(newObj(ObjFunctionDescriptor, d))
}

// FunctionDescriptorOf extracts the descriptor data from a Value
// produced by NewFunctionDescriptor.
func FunctionDescriptorOf(v Value) (*FunctionDescriptorData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjFunctionDescriptor {
		return nil, false
	}
	return o.Payload.(*FunctionDescriptorData), true
}

// FunctionData backs ObjFunction (spec §3.3): a per-instantiation
// closure over a shared descriptor.
type FunctionData struct {
	Descriptor *Obj
	Upvalues   []Value
	ModuleID   string
}

// NewFunction allocates a Function closing over descriptor with the
// given captured upvalues.
func NewFunction(descriptor Value, upvalues []Value, moduleID string) Value {
	o, ok := descriptor.AsObject()
	if !ok || o.Kind != ObjFunctionDescriptor {
		panic("value: NewFunction requires a FunctionDescriptor value")
	}
	o.refcount++
	return Object(newObj(ObjFunction, &FunctionData{Descriptor: o, Upvalues: upvalues, ModuleID: moduleID}))
}

// FunctionOf extracts the closure data from a Function Value.
func FunctionOf(v Value) (*FunctionData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjFunction {
		return nil, false
	}
	return o.Payload.(*FunctionData), true
}

// ---- Class descriptor / instance ----

// FieldSpec is one ordered field declaration of a class, with its
// default value's constant-pool index.
type FieldSpec struct {
	Name       string
	DefaultIdx int
}

// ClassDescriptorData backs ObjClassDescriptor (spec §3.3).
type ClassDescriptorData struct {
	Name      string
	IsDerived bool
	Fields    []FieldSpec
	Methods   map[string]Value // name -> FunctionDescriptor
	InitName  string           // "init" if present, else ""
}

// NewClassDescriptor allocates a class descriptor Obj.
func NewClassDescriptor(d *ClassDescriptorData) Value {
	return Object(newObj(ObjClassDescriptor, d))
}

// ClassDescriptorOf extracts the descriptor data from a Value
// produced by NewClassDescriptor.
func ClassDescriptorOf(v Value) (*ClassDescriptorData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjClassDescriptor {
		return nil, false
	}
	return o.Payload.(*ClassDescriptorData), true
}

// ClassData backs ObjClass (spec §3.3): an instantiated class value
// with its resolved method table (own methods plus inherited ones not
// overridden).
type ClassData struct {
	Descriptor *Obj
	Parent     *Obj // nil for a Base class
	Methods    map[string]Value
}

// NewClass allocates a Class Value.
func NewClass(descriptor Value, parent Value, methods map[string]Value) Value {
	do, ok := descriptor.AsObject()
	if !ok || do.Kind != ObjClassDescriptor {
		panic("value: NewClass requires a ClassDescriptor value")
	}
	do.refcount++
	var po *Obj
	if !parent.IsNone() {
		po, ok = parent.AsObject()
		if !ok || po.Kind != ObjClass {
			panic("value: NewClass parent must be a Class value")
		}
		po.refcount++
	}
	return Object(newObj(ObjClass, &ClassData{Descriptor: do, Parent: po, Methods: methods}))
}

// ClassOf extracts the class data from a Class Value.
func ClassOf(v Value) (*ClassData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjClass {
		return nil, false
	}
	return o.Payload.(*ClassData), true
}

// ClassInstanceData backs ObjClassInstance (spec §3.3): an instance's
// class pointer plus its field table. Frozen is set once init
// completes; further field-add/remove (not overwrite) is rejected.
type ClassInstanceData struct {
	Class  *Obj
	Fields *TableData
	Frozen bool
}

// NewClassInstance allocates an (as yet unfrozen) instance of class.
func NewClassInstance(class Value) Value {
	co, ok := class.AsObject()
	if !ok || co.Kind != ObjClass {
		panic("value: NewClassInstance requires a Class value")
	}
	co.refcount++
	return Object(newObj(ObjClassInstance, &ClassInstanceData{
		Class: co,
		Fields: &TableData{
			keys:   map[string]KeyData{},
			values: map[string]Value{},
			shards: map[uint64][]string{},
		},
	}))
}

// ClassInstanceOf extracts the instance data from a Value produced by
// NewClassInstance.
func ClassInstanceOf(v Value) (*ClassInstanceData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjClassInstance {
		return nil, false
	}
	return o.Payload.(*ClassInstanceData), true
}

// ---- Bound method ----

// BoundMethodData backs ObjBoundMethod (spec §3.3): a receiver plus
// the unbound function to invoke it against.
type BoundMethodData struct {
	Receiver Value
	Function Value
}

// NewBoundMethod allocates a (receiver, function) pair.
func NewBoundMethod(receiver, function Value) Value {
	return Object(newObj(ObjBoundMethod, &BoundMethodData{
		Receiver: receiver.Clone(),
		Function: function.Clone(),
	}))
}

// BoundMethodOf extracts the pair from a BoundMethod Value.
func BoundMethodOf(v Value) (*BoundMethodData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjBoundMethod {
		return nil, false
	}
	return o.Payload.(*BoundMethodData), true
}

// ---- Module ----

// ModuleKind distinguishes a script module (has a root function to
// run) from a native (host-populated) one.
type ModuleKind int

const (
	ModuleScript ModuleKind = iota
	ModuleNative
)

// ModuleData backs ObjModule (spec §3.3).
type ModuleData struct {
	Name string
	ID   string
	Vars *Obj // Table of exported module_vars
	Kind ModuleKind
	Root *Obj // Function, present only for ModuleScript
}

// NewModule allocates a Module Value. vars must be a Table Value.
func NewModule(name, id string, vars Value, kind ModuleKind, root Value) Value {
	vo, ok := vars.AsObject()
	if !ok || vo.Kind != ObjTable {
		panic("value: NewModule requires a Table value for vars")
	}
	vo.refcount++
	var ro *Obj
	if !root.IsNone() {
		ro, ok = root.AsObject()
		if !ok || ro.Kind != ObjFunction {
			panic("value: NewModule root must be a Function value")
		}
		ro.refcount++
	}
	return Object(newObj(ObjModule, &ModuleData{Name: name, ID: id, Vars: vo, Kind: kind, Root: ro}))
}

// ModuleOf extracts the module data from a Value produced by NewModule.
func ModuleOf(v Value) (*ModuleData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjModule {
		return nil, false
	}
	return o.Payload.(*ModuleData), true
}

// ---- Native callables ----

// NativeFunctionData backs ObjNativeFunction (spec §3.3 / §6.4): a
// host-provided callable. Call receives the positional arguments as
// passed and returns a result or an error message; a call that passes
// keyword arguments is rejected by the VM before Call runs.
type NativeFunctionData struct {
	Name string
	Call func(args []Value) (Value, error)
}

// NewNativeFunction wraps a Go function as a callable aspen value.
func NewNativeFunction(name string, fn func(args []Value) (Value, error)) Value {
	return Object(newObj(ObjNativeFunction, &NativeFunctionData{Name: name, Call: fn}))
}

// NativeFunctionOf extracts the callable from a NativeFunction Value.
func NativeFunctionOf(v Value) (*NativeFunctionData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjNativeFunction {
		return nil, false
	}
	return o.Payload.(*NativeFunctionData), true
}

// NativeClassData backs ObjNativeClass (spec §3.3): a host-provided
// type, constructed the same way a script class is.
type NativeClassData struct {
	Name       string
	TypeID     string
	Construct  func(args []Value) (Value, error)
	HostMethod func(instance Value, name string, args []Value) (Value, bool, error)
}

// NewNativeClass wraps a host type as a callable aspen constructor.
func NewNativeClass(d *NativeClassData) Value {
	return Object(newObj(ObjNativeClass, d))
}

// NativeClassOf extracts the host type descriptor from a NativeClass
// Value.
func NativeClassOf(v Value) (*NativeClassData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjNativeClass {
		return nil, false
	}
	return o.Payload.(*NativeClassData), true
}

// ---- Generator ----

// GeneratorData backs ObjGenerator. State is an opaque snapshot owned
// and interpreted by pkg/vm (a value package cannot import vm without
// an import cycle); Done is set once the underlying function body has
// returned.
type GeneratorData struct {
	State interface{}
	Done  bool
}

// NewGenerator allocates a Generator wrapping an opaque frame snapshot.
func NewGenerator(state interface{}) Value {
	return Object(newObj(ObjGenerator, &GeneratorData{State: state}))
}

// GeneratorOf extracts the generator data from a Value produced by
// NewGenerator.
func GeneratorOf(v Value) (*GeneratorData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjGenerator {
		return nil, false
	}
	return o.Payload.(*GeneratorData), true
}

// ---- Super proxy ----

// SuperProxyData backs ObjSuperProxy: the transient value OpLoadSuper
// leaves in the accumulator. It is never stored in a variable or
// passed as an argument — the emitter only ever immediately follows
// LoadSuper with a field access (spec §4.7's "super.name inside a
// method") — but it is a real heap Value like any other so pkg/vm's
// LoadField/LoadFieldOpt handler can distinguish "resolve name as a
// method starting from this class" from an ordinary field/method load
// on a ClassInstance without a second opcode family.
type SuperProxyData struct {
	Receiver   Value // self, forwarded unchanged to the resolved method
	SearchFrom *Obj  // the ClassData to start the method search from (the defining class's parent)
}

// NewSuperProxy wraps receiver/searchFrom (a Class value) as a
// SuperProxy.
func NewSuperProxy(receiver Value, searchFrom Value) Value {
	so, ok := searchFrom.AsObject()
	if !ok || so.Kind != ObjClass {
		panic("value: NewSuperProxy requires a Class value for searchFrom")
	}
	so.refcount++
	return Object(newObj(ObjSuperProxy, &SuperProxyData{
		Receiver:   receiver.Clone(),
		SearchFrom: so,
	}))
}

// SuperProxyOf extracts the pair from a SuperProxy Value.
func SuperProxyOf(v Value) (*SuperProxyData, bool) {
	o, ok := v.AsObject()
	if !ok || o.Kind != ObjSuperProxy {
		return nil, false
	}
	return o.Payload.(*SuperProxyData), true
}

// IsCallable reports whether v is one of the callable kinds the
// dispatch loop's Call/Call0/CallKw handlers accept (spec §4.7 step
// 1): Function, BoundMethod, NativeFunction, or NativeClass (used as
// a constructor), or a Class (also constructible).
func IsCallable(v Value) bool {
	o, ok := v.AsObject()
	if !ok {
		return false
	}
	switch o.Kind {
	case ObjFunction, ObjBoundMethod, ObjNativeFunction, ObjNativeClass, ObjClass:
		return true
	default:
		return false
	}
}
