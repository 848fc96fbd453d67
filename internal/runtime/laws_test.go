package runtime

import (
	"testing"

	"sdynjit/internal/values"
)

// Spec §8 "Laws" — tested directly against the typed helpers rather than
// through the uintptr-boundary ABI wrappers, since the law itself is about
// the value semantics, not the calling convention.

func TestToStringIdempotent(t *testing.T) {
	cases := []values.Value{
		values.Undefined,
		values.True,
		values.NewInt(42),
		values.NewString("hi"),
		values.NewObject(),
	}
	for _, v := range cases {
		once := toStringValue(v)
		twice := toStringValue(once)
		if once.V != twice.V {
			t.Errorf("to_string not idempotent for %#v: %q vs %q", v, once.V, twice.V)
		}
	}
}

func TestToNumberOfString(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"12", 12},
		{"  12x", 0}, // leading whitespace is NOT skipped (Open Question resolution).
		{"-5", -5},
	}
	for _, c := range cases {
		got := toNumber(values.NewString(c.in))
		if got != c.want {
			t.Errorf("to_number(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEqualSymmetricAndReflexive(t *testing.T) {
	pairs := [][2]values.Value{
		{values.NewInt(3), values.NewInt(3)},
		{values.NewInt(3), values.NewString("3")},
		{values.True, values.NewInt(1)},
		{values.NewString("a"), values.NewInt(0)},
		{values.Undefined, values.NewInt(0)},
	}
	for _, p := range pairs {
		ab := equalValues(p[0], p[1])
		ba := equalValues(p[1], p[0])
		if ab != ba {
			t.Errorf("equal(%#v,%#v)=%v but equal(b,a)=%v", p[0], p[1], ab, ba)
		}
	}

	for _, v := range []values.Value{values.NewInt(7), values.NewString("x"), values.NewObject(), values.Undefined} {
		if !equalValues(v, v) {
			t.Errorf("equal(%#v, itself) = false, want true", v)
		}
	}
}

func TestAddTwoBoxedIntsYieldsBoxedIntSum(t *testing.T) {
	sum := addValues(values.NewInt(2), values.NewInt(40))
	iv, ok := sum.(*values.IntValue)
	if !ok {
		t.Fatalf("addValues(2,40) = %#v, want *values.IntValue", sum)
	}
	if iv.V != 42 {
		t.Fatalf("addValues(2,40).V = %d, want 42", iv.V)
	}
}

func TestObjectShapeSharing(t *testing.T) {
	a := values.NewObject()
	a.Set("x", values.NewInt(1))
	a.Set("y", values.NewInt(2))

	b := values.NewObject()
	b.Set("x", values.NewInt(10))
	b.Set("y", values.NewInt(20))

	if a.Shape != b.Shape {
		t.Fatalf("objects with the same key-assignment order should share a shape")
	}

	c := values.NewObject()
	c.Set("y", values.NewInt(1))
	c.Set("x", values.NewInt(2))

	if a.Shape == c.Shape {
		t.Fatalf("objects with a different key-assignment order should not share a shape")
	}
}
