// Package bytecode provides serialization and deserialization for .aspc
// compiled-chunk files, plus a human-readable disassembler.
//
// File Format Specification:
//
// The .aspc file format is a binary format for storing a compiled
// FunctionDescriptor (and, recursively, every nested descriptor it
// references as a constant). It lets a host pre-compile .as source to
// bytecode once and load it repeatedly without re-running the
// lexer/parser/emitter pipeline. The format is:
//   - Compact: variable-width instruction bytes are stored verbatim,
//     not re-expanded.
//   - Versioned: a format version guards incompatible future changes.
//   - Complete: stores everything a FunctionDescriptor needs to run.
//
// Binary Format Layout:
//
//	[Header]
//	  Magic Number (4 bytes): 0x41535043 ("ASPC"), written
//	                          little-endian, so the bytes read "CPSA"
//	  Version (4 bytes): format version (currently 1)
//
//	[FunctionDescriptor] (recursive; also the shape of each nested
//	                       FunctionDescriptor constant)
//	  Name, IsGenerator, MinArgs, MaxArgs, HasSelf
//	  Param count, then (name, default-idx) per param
//	  Upvalue count, then (fromParentUpvalue, index) per upvalue
//	  FrameSize
//	  Code length, then raw code bytes
//	  Const count, then one tagged Value per constant (see below)
//
// Constant Types:
//
//	0x01 = Int       (int32, 4 bytes)
//	0x02 = Float     (float64, 8 bytes)
//	0x03 = Bool      (1 byte)
//	0x04 = None      (0 bytes)
//	0x05 = String    (4-byte length + UTF-8 bytes)
//	0x06 = FunctionDescriptor (nested, recursively encoded)
//	0x07 = ClassDescriptor    (nested structure, see writeClassDescriptor)
//
// Design Rationale:
//
// A binary format avoids re-parsing source on every host startup and
// gives embedders a way to ship pre-compiled modules. The recursive
// encoding of nested FunctionDescriptor/ClassDescriptor constants
// mirrors how the constant pool itself nests closures and classes.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/aspen-lang/aspen/pkg/value"
)

// File format constants.
const (
	// MagicNumber is the file signature for .aspc files: "ASPC".
	MagicNumber uint32 = 0x41535043

	// FormatVersion is the current chunk format version.
	FormatVersion uint32 = 1
)

// Constant type identifiers for serialization.
const (
	constTypeInt      byte = 0x01
	constTypeFloat    byte = 0x02
	constTypeBool     byte = 0x03
	constTypeNone     byte = 0x04
	constTypeString   byte = 0x05
	constTypeFuncDesc byte = 0x06
	constTypeClassDesc byte = 0x07
)

// EncodeChunk serializes a compiled module's root FunctionDescriptor
// (and everything it transitively references) to w.
//
// Example usage:
//
//	desc, _ := emitter.New().EmitModule(mod, "program")
//	f, _ := os.Create("program.aspc")
//	defer f.Close()
//	bytecode.EncodeChunk(desc, f)
func EncodeChunk(desc *value.FunctionDescriptorData, w io.Writer) error {
	if err := writeU32(w, MagicNumber); err != nil {
		return fmt.Errorf("bytecode: write magic: %w", err)
	}
	if err := writeU32(w, FormatVersion); err != nil {
		return fmt.Errorf("bytecode: write version: %w", err)
	}
	return writeFunctionDescriptor(w, desc)
}

// DecodeChunk reads back a FunctionDescriptor previously written by
// EncodeChunk, allocating a fresh heap Value for it and every
// descriptor nested in its constant pool.
func DecodeChunk(r io.Reader) (value.Value, error) {
	magic, err := readU32(r)
	if err != nil {
		return value.None, fmt.Errorf("bytecode: read magic: %w", err)
	}
	if magic != MagicNumber {
		return value.None, fmt.Errorf("bytecode: not an .aspc file (got magic 0x%08X)", magic)
	}
	version, err := readU32(r)
	if err != nil {
		return value.None, fmt.Errorf("bytecode: read version: %w", err)
	}
	if version != FormatVersion {
		return value.None, fmt.Errorf("bytecode: unsupported chunk version %d (expected %d)", version, FormatVersion)
	}
	d, err := readFunctionDescriptor(r)
	if err != nil {
		return value.None, err
	}
	return value.NewFunctionDescriptor(d), nil
}

func writeFunctionDescriptor(w io.Writer, d *value.FunctionDescriptorData) error {
	if err := writeString(w, d.Name); err != nil {
		return err
	}
	if err := writeBool(w, d.IsGenerator); err != nil {
		return err
	}
	if err := writeU32(w, uint32(d.MinArgs)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(d.MaxArgs)); err != nil {
		return err
	}
	if err := writeBool(w, d.HasSelf); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Params))); err != nil {
		return err
	}
	for _, p := range d.Params {
		if err := writeString(w, p.Name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(int32(p.DefaultIdx))); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(d.Upvalues))); err != nil {
		return err
	}
	for _, u := range d.Upvalues {
		if err := writeBool(w, u.FromParentUpvalue); err != nil {
			return err
		}
		if err := writeU32(w, uint32(u.Index)); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(d.FrameSize)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Code))); err != nil {
		return err
	}
	if _, err := w.Write(d.Code); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Consts))); err != nil {
		return err
	}
	for i, c := range d.Consts {
		if err := writeConst(w, c); err != nil {
			return fmt.Errorf("bytecode: write constant %d: %w", i, err)
		}
	}
	return nil
}

func readFunctionDescriptor(r io.Reader) (*value.FunctionDescriptorData, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	isGen, err := readBool(r)
	if err != nil {
		return nil, err
	}
	minArgs, err := readU32(r)
	if err != nil {
		return nil, err
	}
	maxArgs, err := readU32(r)
	if err != nil {
		return nil, err
	}
	hasSelf, err := readBool(r)
	if err != nil {
		return nil, err
	}
	paramCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	params := make([]value.Param, paramCount)
	for i := range params {
		n, err := readString(r)
		if err != nil {
			return nil, err
		}
		di, err := readU32(r)
		if err != nil {
			return nil, err
		}
		params[i] = value.Param{Name: n, DefaultIdx: int(int32(di))}
	}
	upvalCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	upvalues := make([]value.UpvalueSpec, upvalCount)
	for i := range upvalues {
		fp, err := readBool(r)
		if err != nil {
			return nil, err
		}
		idx, err := readU32(r)
		if err != nil {
			return nil, err
		}
		upvalues[i] = value.UpvalueSpec{FromParentUpvalue: fp, Index: int(idx)}
	}
	frameSize, err := readU32(r)
	if err != nil {
		return nil, err
	}
	codeLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, err
	}
	constCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	consts := make([]value.Value, constCount)
	for i := range consts {
		c, err := readConst(r)
		if err != nil {
			return nil, fmt.Errorf("bytecode: read constant %d: %w", i, err)
		}
		consts[i] = c
	}
	return &value.FunctionDescriptorData{
		Name: name, IsGenerator: isGen, Params: params,
		MinArgs: int(minArgs), MaxArgs: int(maxArgs), HasSelf: hasSelf,
		Upvalues: upvalues, FrameSize: int(frameSize), Code: code, Consts: consts,
	}, nil
}

func writeConst(w io.Writer, v value.Value) error {
	switch v.Kind() {
	case value.KindInt:
		i, _ := v.AsInt()
		if err := writeByteFallback(w, constTypeInt); err != nil {
			return err
		}
		return writeU32(w, uint32(i))
	case value.KindFloat:
		f, _ := v.AsFloat()
		if err := writeByteFallback(w, constTypeFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, f)
	case value.KindBool:
		b, _ := v.AsBool()
		if err := writeByteFallback(w, constTypeBool); err != nil {
			return err
		}
		return writeBool(w, b)
	case value.KindNone:
		return writeByteFallback(w, constTypeNone)
	case value.KindObject:
		if s, ok := value.StringValue(v); ok {
			if err := writeByteFallback(w, constTypeString); err != nil {
				return err
			}
			return writeString(w, s)
		}
		if fd, ok := value.FunctionDescriptorOf(v); ok {
			if err := writeByteFallback(w, constTypeFuncDesc); err != nil {
				return err
			}
			return writeFunctionDescriptor(w, fd)
		}
		if cd, ok := value.ClassDescriptorOf(v); ok {
			if err := writeByteFallback(w, constTypeClassDesc); err != nil {
				return err
			}
			return writeClassDescriptor(w, cd)
		}
		return fmt.Errorf("bytecode: constant pool entries must be scalars, strings, or descriptors")
	default:
		return fmt.Errorf("bytecode: unrepresentable constant kind %v", v.Kind())
	}
}

func readConst(r io.Reader) (value.Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return value.None, err
	}
	switch tag[0] {
	case constTypeInt:
		u, err := readU32(r)
		if err != nil {
			return value.None, err
		}
		return value.Int(int32(u)), nil
	case constTypeFloat:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return value.None, err
		}
		return value.Float(f), nil
	case constTypeBool:
		b, err := readBool(r)
		if err != nil {
			return value.None, err
		}
		return value.Bool(b), nil
	case constTypeNone:
		return value.None, nil
	case constTypeString:
		s, err := readString(r)
		if err != nil {
			return value.None, err
		}
		return value.NewString(s), nil
	case constTypeFuncDesc:
		fd, err := readFunctionDescriptor(r)
		if err != nil {
			return value.None, err
		}
		return value.NewFunctionDescriptor(fd), nil
	case constTypeClassDesc:
		cd, err := readClassDescriptor(r)
		if err != nil {
			return value.None, err
		}
		return value.NewClassDescriptor(cd), nil
	default:
		return value.None, fmt.Errorf("bytecode: unknown constant tag 0x%02x", tag[0])
	}
}

// writeClassDescriptor writes a ClassDescriptorData. Its Methods map is
// serialized as a sorted-by-insertion-irrelevant (name, FunctionDescriptor)
// list; order does not matter for a map keyed purely by method name.
func writeClassDescriptor(w io.Writer, cd *value.ClassDescriptorData) error {
	if err := writeString(w, cd.Name); err != nil {
		return err
	}
	if err := writeBool(w, cd.IsDerived); err != nil {
		return err
	}
	if err := writeString(w, cd.InitName); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(cd.Fields))); err != nil {
		return err
	}
	for _, f := range cd.Fields {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(int32(f.DefaultIdx))); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(cd.Methods))); err != nil {
		return err
	}
	for name, fn := range cd.Methods {
		if err := writeString(w, name); err != nil {
			return err
		}
		fd, ok := value.FunctionDescriptorOf(fn)
		if !ok {
			return fmt.Errorf("bytecode: class method %q is not a FunctionDescriptor constant", name)
		}
		if err := writeFunctionDescriptor(w, fd); err != nil {
			return err
		}
	}
	return nil
}

func readClassDescriptor(r io.Reader) (*value.ClassDescriptorData, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	isDerived, err := readBool(r)
	if err != nil {
		return nil, err
	}
	initName, err := readString(r)
	if err != nil {
		return nil, err
	}
	fieldCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	fields := make([]value.FieldSpec, fieldCount)
	for i := range fields {
		n, err := readString(r)
		if err != nil {
			return nil, err
		}
		di, err := readU32(r)
		if err != nil {
			return nil, err
		}
		fields[i] = value.FieldSpec{Name: n, DefaultIdx: int(int32(di))}
	}
	methodCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	methods := make(map[string]value.Value, methodCount)
	for i := uint32(0); i < methodCount; i++ {
		n, err := readString(r)
		if err != nil {
			return nil, err
		}
		fd, err := readFunctionDescriptor(r)
		if err != nil {
			return nil, err
		}
		methods[n] = value.NewFunctionDescriptor(fd)
	}
	return &value.ClassDescriptorData{
		Name: name, IsDerived: isDerived, Fields: fields, Methods: methods, InitName: initName,
	}, nil
}

// --- low-level primitive helpers ---

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	return writeByteFallback(w, v)
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func writeByteFallback(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// --- text disassembly ---

// Disassemble renders code as one line per instruction: byte offset,
// mnemonic, and decoded operands. Constant-pool operands additionally
// show the constant's Inspect() form so a reader doesn't have to
// cross-reference consts by hand. Used by the `aspen disasm`
// subcommand, which prints this text as is and renders only the
// constant pool as a table (github.com/olekukonko/tablewriter in
// cmd/aspen).
func Disassemble(name string, code []byte, consts []value.Value) string {
	var out []byte
	out = append(out, fmt.Sprintf("== %s ==\n", name)...)
	r := NewReader(code)
	for !r.Done() {
		inst, err := r.Next()
		if err != nil {
			out = append(out, fmt.Sprintf("%04d  <error: %v>\n", inst.Offset, err)...)
			return string(out)
		}
		line := fmt.Sprintf("%04d  %-20s", inst.Offset, inst.Op.String())
		line += formatOperands(inst, consts)
		out = append(out, line+"\n"...)
	}
	return string(out)
}

func formatOperands(inst Instruction, consts []value.Value) string {
	shape := operandShapes[inst.Op]
	s := ""
	for i := 0; i < shape.varOperands; i++ {
		s += fmt.Sprintf(" %d", inst.Operands[i])
		if isConstOperand(inst.Op, i) {
			if idx := int(inst.Operands[i]); idx >= 0 && idx < len(consts) {
				s += fmt.Sprintf(" (%s)", consts[idx].Inspect())
			}
		}
	}
	if inst.HasFixed {
		s += fmt.Sprintf(" %d", inst.FixedInt)
	}
	return s
}

// isConstOperand reports whether operand index i of op names a
// constant-pool slot, so the disassembler can resolve and print it.
func isConstOperand(op Opcode, i int) bool {
	switch op {
	case OpLoadConst, OpCreateFunction, OpCreateClassEmpty, OpCreateClass,
		OpLoadGlobal, OpStoreGlobal, OpLoadModuleVar, OpStoreModuleVar,
		OpJumpConst, OpJumpBackConst, OpJumpIfFalseConst:
		return i == 0
	case OpLoadField, OpStoreField, OpLoadFieldOpt:
		return i == 1 // operand 0 is the object register
	case OpInsertToDictNamed:
		return i == 1 // operand 0 is the dict register
	case OpImport:
		return i == 0 // operand 1 is a destination register, not a const
	case OpImportNamed:
		return i == 0 || i == 1 // operand 2 is a destination register, not a const
	default:
		return false
	}
}
