// Package value implements aspen's 64-bit tagged Value and the
// reference-counted heap object system it points into.
//
// Value Representation:
//
// A Value occupies exactly 64 bits and inhabits one of five types:
// Float, Int, Bool, None, Object. The encoding is quiet-NaN boxing
// over IEEE-754 float64:
//
//   - If the bit pattern is not a quiet NaN, the value IS a float64.
//   - Otherwise the top 16 bits select a type tag and the low 48 bits
//     carry the payload:
//       Int:    low 32 bits, two's complement i32.
//       Bool:   low bit, 0 or 1.
//       None:   payload ignored.
//       Object: low 48 bits, a pointer to a heap Object header.
//
// Example Layout:
//
//	Float:  sign(1) exponent(11) mantissa(52)      -- ordinary f64 bits
//	Int:    0x7FF9_0000_IIII_IIII                  -- tag 0x7FF9, i32 payload
//	Bool:   0x7FF9_0001_0000_000B                  -- tag 0x7FF9_0001, bit B
//	None:   0x7FF9_0002_0000_0000                  -- tag 0x7FF9_0002
//	Object: 0x7FFA_PPPP_PPPP_PPPP                  -- tag 0x7FFA, 48-bit ptr
//
// Portability note: this layout assumes a 48-bit (or smaller) pointer
// address space, true of every mainstream amd64/arm64 userspace target.
// A platform where pointers spill into the tag's high bits would need
// a portable (tag byte, 64-bit payload) fallback representation
// instead; this package does not implement that fallback (see
// DESIGN.md for the tradeoff).
package value

import (
	"fmt"
	"math"
	"unsafe"
)

// Tag space layout. This package reserves two top-16-bit prefixes in
// the quiet-NaN payload space for its own use: 0x7FF9 (Int/Bool/None,
// distinguished by the next 16 bits) and 0x7FFA (Object, whose
// pointer payload occupies the full low 48 bits). canonicalNaN is the
// single bit pattern every genuine NaN float collapses to — it uses a
// *different* top 16 bits (0x7FF8) than either tag prefix, so Kind()
// never confuses a NaN float with a tagged value.
const (
	canonicalNaN = 0x7FF8_0000_0000_0000

	tagInt    = 0x7FF9_0000_0000_0000
	tagBool   = 0x7FF9_0001_0000_0000
	tagNone   = 0x7FF9_0002_0000_0000
	tagObject = 0x7FFA_0000_0000_0000

	tagSpaceMask  = 0xFFFF_0000_0000_0000 // top 16 bits
	payloadMask48 = 0x0000_FFFF_FFFF_FFFF
	payloadMask32 = 0x0000_0000_FFFF_FFFF
)

// Value is aspen's universal runtime value: a NaN-boxed 64-bit word.
// It is safe to copy by value; Object-kind Values must go through Clone
// and Release to keep the referent's strong count accurate (spec
// §3.2's reference-counting invariant).
type Value uint64

// None is the singleton absence-of-a-value.
var None = Value(tagNone)

// True and False are the two Bool values.
var (
	True  = Value(tagBool | 1)
	False = Value(tagBool)
)

// Float constructs a Value from a float64. Every NaN bit pattern,
// regardless of its specific payload, canonicalizes to the same
// representative Value — this is what makes "all NaN floats hash to
// the same bucket" true (spec §3.2) and is also what prevents a NaN
// ever being stored with a bit pattern that collides with this
// package's own tag space (spec §3.2's NaN-box injectivity invariant).
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Value(canonicalNaN)
	}
	return Value(math.Float64bits(f))
}

// Int constructs a Value holding a 32-bit integer.
func Int(i int32) Value {
	return Value(tagInt | uint64(uint32(i)))
}

// Bool constructs a Value holding a boolean.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// isTagged reports whether v's top 16 bits fall in one of this
// package's two reserved tag prefixes (Int/Bool/None, or Object). Any
// other bit pattern, including the canonical NaN representative, is a
// Float.
func isTagged(v Value) bool {
	top16 := uint64(v) & tagSpaceMask
	return top16 == uint64(tagInt)&tagSpaceMask || top16 == uint64(tagObject)&tagSpaceMask
}

// Kind identifies which of the five Value types v holds.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindNone
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindNone:
		return "none"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Kind reports which variant v is.
func (v Value) Kind() Kind {
	if !isTagged(v) {
		return KindFloat
	}
	switch uint64(v) & 0x7FFF_FFFF_0000_0000 {
	case tagInt:
		return KindInt
	case tagBool:
		return KindBool
	case tagNone:
		return KindNone
	default:
		return KindObject
	}
}

// IsNone reports whether v is the none value.
func (v Value) IsNone() bool { return v.Kind() == KindNone }

// AsFloat returns v's float64 payload and true, or (0, false) if v is
// not a Float.
func (v Value) AsFloat() (float64, bool) {
	if v.Kind() != KindFloat {
		return 0, false
	}
	return math.Float64frombits(uint64(v)), true
}

// AsInt returns v's int32 payload and true, or (0, false) if v is not
// an Int. Satisfies the NaN-box injectivity property of spec §8.3:
// Int(n).AsInt() == (n, true) for every int32 n.
func (v Value) AsInt() (int32, bool) {
	if v.Kind() != KindInt {
		return 0, false
	}
	return int32(uint32(uint64(v) & payloadMask32)), true
}

// AsBool returns v's bool payload and true, or (false, false) if v is
// not a Bool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	return uint64(v)&1 != 0, true
}

// Object wraps a heap object pointer into a Value. The caller
// transfers one strong reference to the returned Value; it must be
// Released exactly once (directly or via the owning structure's
// teardown) to balance that reference.
func Object(o *Obj) Value {
	p := uint64(uintptr(unsafe.Pointer(o)))
	if p&^payloadMask48 != 0 {
		panic("value: object pointer does not fit in 48 bits")
	}
	o.refcount++
	return Value(tagObject | p)
}

// AsObject returns v's heap object pointer and true, or (nil, false)
// if v does not hold an Object.
func (v Value) AsObject() (*Obj, bool) {
	if v.Kind() != KindObject {
		return nil, false
	}
	p := uintptr(uint64(v) & payloadMask48)
	return (*Obj)(unsafe.Pointer(p)), true
}

// Clone increments the referent's strong count (if v is an Object)
// and returns v unchanged, mirroring Rust Rc::clone semantics (spec
// §3.2's "increment ... on clone").
func (v Value) Clone() Value {
	if o, ok := v.AsObject(); ok {
		o.refcount++
	}
	return v
}

// Release decrements the referent's strong count (if v is an Object),
// freeing it once the count reaches zero.
func (v Value) Release() {
	o, ok := v.AsObject()
	if !ok {
		return
	}
	o.refcount--
	if o.refcount <= 0 {
		o.free()
	}
}

// Truthy implements aspen's truthiness rule: none and false are
// falsy; every other value (including 0, 0.0, and the empty string)
// is truthy. Used by JumpIfFalse and the ! operator, not by ??, which
// dispatches only on none (spec §9).
func (v Value) Truthy() bool {
	switch v.Kind() {
	case KindNone:
		return false
	case KindBool:
		b, _ := v.AsBool()
		return b
	default:
		return true
	}
}

// Equal implements aspen's == operator: floats compare via IEEE
// semantics (so NaN != NaN, even the canonicalized one produced by
// Float), every other kind compares by bit pattern except Object:
// String/Key compare by content, every other object by identity; see
// objEqual.
func Equal(a, b Value) bool {
	if a.Kind() == KindFloat && b.Kind() == KindFloat {
		fa, _ := a.AsFloat()
		fb, _ := b.AsFloat()
		return fa == fb
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if ao, ok := a.AsObject(); ok {
		bo, _ := b.AsObject()
		return objEqual(ao, bo)
	}
	return uint64(a) == uint64(b)
}

// Inspect renders v for debugging/REPL display in its language-level
// surface form.
func (v Value) Inspect() string {
	switch v.Kind() {
	case KindNone:
		return "none"
	case KindBool:
		b, _ := v.AsBool()
		if b {
			return "true"
		}
		return "false"
	case KindInt:
		i, _ := v.AsInt()
		return fmt.Sprintf("%d", i)
	case KindFloat:
		f, _ := v.AsFloat()
		return fmt.Sprintf("%g", f)
	case KindObject:
		o, _ := v.AsObject()
		return o.Inspect()
	default:
		return "<invalid>"
	}
}
