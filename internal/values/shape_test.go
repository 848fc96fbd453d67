package values

import "testing"

func TestShapeSharingSameOrder(t *testing.T) {
	a := NewObject()
	b := NewObject()
	a.Set("x", NewInt(1))
	a.Set("y", NewInt(2))
	b.Set("x", NewInt(3))
	b.Set("y", NewInt(4))

	if a.Shape != b.Shape {
		t.Fatalf("expected shared shape for same key order, got distinct shapes")
	}
}

func TestShapeDivergesOnDifferentOrder(t *testing.T) {
	a := NewObject()
	b := NewObject()
	a.Set("x", NewInt(1))
	a.Set("y", NewInt(2))
	b.Set("y", NewInt(2))
	b.Set("x", NewInt(1))

	if a.Shape == b.Shape {
		t.Fatalf("expected distinct shapes for different key order, got shared shape")
	}
}

func TestObjectGetMissingKeyIsUndefined(t *testing.T) {
	o := NewObject()
	if got := o.Get("nope"); got != Value(Undefined) {
		t.Fatalf("expected Undefined for missing key, got %#v", got)
	}
}

func TestObjectSetOverwritesExistingSlot(t *testing.T) {
	o := NewObject()
	o.Set("x", NewInt(1))
	o.Set("x", NewInt(99))
	if len(o.Members) != 1 {
		t.Fatalf("expected 1 member slot after overwrite, got %d", len(o.Members))
	}
	got, ok := o.Get("x").(*IntValue)
	if !ok || got.V != 99 {
		t.Fatalf("expected overwritten value 99, got %#v", got)
	}
}

func TestEmptyShapeIsRoot(t *testing.T) {
	o := NewObject()
	if o.Shape != EmptyShape {
		t.Fatalf("expected fresh object bound to EmptyShape")
	}
}
