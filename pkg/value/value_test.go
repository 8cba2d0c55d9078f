package value

import (
	"math"
	"testing"
)

func TestNaNBoxInjectivityInt(t *testing.T) {
	for _, n := range []int32{0, 1, -1, math.MinInt32, math.MaxInt32, 42} {
		v := Int(n)
		got, ok := v.AsInt()
		if !ok || got != n {
			t.Fatalf("Int(%d).AsInt() = (%d, %v), want (%d, true)", n, got, ok, n)
		}
	}
}

func TestNaNBoxInjectivityBool(t *testing.T) {
	if b, ok := True.AsBool(); !ok || !b {
		t.Fatalf("True.AsBool() = (%v, %v)", b, ok)
	}
	if b, ok := False.AsBool(); !ok || b {
		t.Fatalf("False.AsBool() = (%v, %v)", b, ok)
	}
}

func TestNaNBoxInjectivityNone(t *testing.T) {
	if !None.IsNone() {
		t.Fatalf("None.IsNone() = false")
	}
}

func TestNaNBoxInjectivityFloat(t *testing.T) {
	for _, f := range []float64{0, 1.5, -1.5, 3.14159, 1e300} {
		v := Float(f)
		got, ok := v.AsFloat()
		if !ok || got != f {
			t.Fatalf("Float(%v).AsFloat() = (%v, %v)", f, got, ok)
		}
	}
}

func TestFloatOfTagBitsIsNotMisreadAsFloat(t *testing.T) {
	// Constructing an Int and reading it back as a Kind must never
	// report KindFloat, even though its bits set the exponent field —
	// this is the NaN-box injectivity invariant in the other direction.
	v := Int(7)
	if v.Kind() != KindInt {
		t.Fatalf("Int(7).Kind() = %v, want KindInt", v.Kind())
	}
}

func TestFloatNaNCanonicalizes(t *testing.T) {
	a := Float(math.NaN())
	b := Float(math.Float64frombits(0x7FF8000000000001))
	if uint64(a) != uint64(b) {
		t.Fatalf("expected all NaN floats to canonicalize to the same bit pattern")
	}
}

func TestKindDiscrimination(t *testing.T) {
	cases := []struct {
		v    Value
		kind Kind
	}{
		{Float(1.5), KindFloat},
		{Int(1), KindInt},
		{True, KindBool},
		{None, KindNone},
		{NewString("hi"), KindObject},
	}
	for _, c := range cases {
		if c.v.Kind() != c.kind {
			t.Fatalf("Kind() = %v, want %v", c.v.Kind(), c.kind)
		}
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v Value
		t bool
	}{
		{None, false},
		{False, false},
		{True, true},
		{Int(0), true},
		{Float(0), true},
		{NewString(""), true},
	}
	for _, c := range cases {
		if c.v.Truthy() != c.t {
			t.Fatalf("Truthy(%v) = %v, want %v", c.v.Inspect(), c.v.Truthy(), c.t)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	v := NewString("hello")
	got, ok := StringValue(v)
	if !ok || got != "hello" {
		t.Fatalf("StringValue = (%q, %v)", got, ok)
	}
	v.Release()
}

func TestListAppendAndElems(t *testing.T) {
	l := NewList()
	ListAppend(l, Int(1))
	ListAppend(l, Int(2))
	elems, ok := ListElems(l)
	if !ok || len(elems) != 2 {
		t.Fatalf("ListElems = %v, %v", elems, ok)
	}
	a, _ := elems[0].AsInt()
	b, _ := elems[1].AsInt()
	if a != 1 || b != 2 {
		t.Fatalf("unexpected list contents: %d %d", a, b)
	}
	l.Release()
}

func TestTableInsertionOrderAndLookup(t *testing.T) {
	tbl := NewTable()
	TableSet(tbl, KeyData{Kind: KeyStr, S: "b"}, Int(2))
	TableSet(tbl, KeyData{Kind: KeyStr, S: "a"}, Int(1))
	keys := TableKeysInOrder(tbl)
	if len(keys) != 2 || keys[0].S != "b" || keys[1].S != "a" {
		t.Fatalf("expected insertion order [b a], got %v", keys)
	}
	v, found := TableGet(tbl, KeyData{Kind: KeyStr, S: "a"})
	if !found {
		t.Fatalf("expected to find key 'a'")
	}
	n, _ := v.AsInt()
	if n != 1 {
		t.Fatalf("got %d, want 1", n)
	}
	if TableLen(tbl) != 2 {
		t.Fatalf("TableLen = %d, want 2", TableLen(tbl))
	}
	tbl.Release()
}

func TestTableIntKeys(t *testing.T) {
	tbl := NewTable()
	TableSet(tbl, KeyData{Kind: KeyInt, I: 7}, NewString("seven"))
	v, found := TableGet(tbl, KeyData{Kind: KeyInt, I: 7})
	if !found {
		t.Fatalf("expected to find int key 7")
	}
	s, _ := StringValue(v)
	if s != "seven" {
		t.Fatalf("got %q, want %q", s, "seven")
	}
	tbl.Release()
}

func TestEqualFloatsVsObjects(t *testing.T) {
	if !Equal(Float(1.5), Float(1.5)) {
		t.Fatal("expected 1.5 == 1.5")
	}
	if Equal(Float(math.NaN()), Float(math.NaN())) {
		t.Fatal("expected NaN != NaN under IEEE semantics")
	}
	a := NewString("x")
	b := NewString("x")
	if !Equal(a, b) {
		t.Fatal("expected equal strings to compare equal by content")
	}
	a.Release()
	b.Release()
}

func TestReferenceCountConservation(t *testing.T) {
	v := NewString("shared")
	o, _ := v.AsObject()
	if o.RefCount() != 1 {
		t.Fatalf("initial refcount = %d, want 1", o.RefCount())
	}
	c1 := v.Clone()
	c2 := c1.Clone()
	if o.RefCount() != 3 {
		t.Fatalf("refcount after 2 clones = %d, want 3", o.RefCount())
	}
	c1.Release()
	if o.RefCount() != 2 {
		t.Fatalf("refcount after 1 release = %d, want 2", o.RefCount())
	}
	c2.Release()
	v.Release()
}

func TestClassInstanceFreezeAfterInit(t *testing.T) {
	cd := NewClassDescriptor(&ClassDescriptorData{Name: "Point", Methods: map[string]Value{}})
	class := NewClass(cd, None, map[string]Value{})
	inst := NewClassInstance(class)
	data, ok := ClassInstanceOf(inst)
	if !ok {
		t.Fatalf("expected ClassInstanceOf to succeed")
	}
	DataSet(data.Fields, KeyData{Kind: KeyStr, S: "x"}, Int(10))
	data.Frozen = true
	got, found := DataGet(data.Fields, KeyData{Kind: KeyStr, S: "x"})
	if !found {
		t.Fatalf("expected field x to be present")
	}
	n, _ := got.AsInt()
	if n != 10 {
		t.Fatalf("got %d, want 10", n)
	}
	inst.Release()
	class.Release()
	cd.Release()
}
