package runtime

import (
	"sdynjit/internal/diag"
	"sdynjit/internal/values"
)

// boxBoolValue, boxIntValue, boxStringValue implement spec §4.5's
// box_bool/box_int/box_string contracts.
func boxBoolValue(v bool) *values.BoolValue { return values.BoolOf(v) }
func boxIntValue(v int64) *values.IntValue  { return values.NewInt(v) }
func boxStringValue(bytes string) *values.StringValue {
	return values.NewString(Unquote(bytes))
}

// assertFunctionValue implements spec §4.5's assert_function: "fatal if
// the tag is not Function" — the one runtime routine that is fatal at
// runtime rather than returning a safe default (spec §7 "Propagation
// policy").
func assertFunctionValue(v values.Value) *values.FunctionValue {
	f, ok := v.(*values.FunctionValue)
	if !ok {
		diag.Fatal(diag.RuntimeAssertionErrorKind, v.Kind().String(), "assert_function: value is not a Function")
	}
	return f
}

// objectGetValue implements spec §4.5's object_get: non-Object returns
// Undefined, missing key returns Undefined — both safe defaults, never an
// error (spec §7 "runtime coercion never raises").
func objectGetValue(obj values.Value, key string) values.Value {
	o, ok := obj.(*values.ObjectValue)
	if !ok {
		return values.Undefined
	}
	return o.Get(key)
}

// objectSetValue implements spec §4.5's object_set: a no-op on a
// non-Object receiver (Open Question resolution, SPEC_FULL.md §9 /
// DESIGN.md: "member set on a non-object: source silently ignores").
func objectSetValue(obj values.Value, key string, v values.Value) {
	o, ok := obj.(*values.ObjectValue)
	if !ok {
		return
	}
	o.Set(key, v)
}

// --- ABI-facing wrappers.

func BoxBool(pstack uintptr, v int64) uintptr {
	return values.PointerOf(boxBoolValue(v != 0))
}

func BoxInt(pstack uintptr, v int64) uintptr {
	return values.PointerOf(boxIntValue(v))
}

// BoxString is box_string (spec §4.5.1), but unlike every other routine in
// this file it is never embedded as a machine-code call target: raw emitted
// code has no way to build a Go string header to pass as an argument. It is
// instead called directly from Go by internal/codegen's per-function string
// constant pool, once per distinct STR literal, at compile time — the
// resulting *values.StringValue's address is then embedded straight into
// the generated code via asm.Assembler.LoadPtr (see internal/codegen's
// internString).
func BoxString(bytes string) uintptr {
	return values.PointerOf(boxStringValue(bytes))
}

func AssertFunction(pstack, v uintptr) uintptr {
	return values.PointerOf(assertFunctionValue(values.FromPointer(v)))
}

func NewObject(pstack uintptr) uintptr {
	return values.PointerOf(values.NewObject())
}

// ObjectGet and ObjectSet take key as a boxed String pointer rather than a
// raw Go string: spec §4.4 "the string key is pinned in a small
// allocator-provided indirection so the GC can relocate it while the
// native code is running" — the key crosses the call boundary exactly like
// any other value, boxed.
func ObjectGet(pstack, obj, key uintptr) uintptr {
	k := values.FromPointer(key).(*values.StringValue)
	return values.PointerOf(objectGetValue(values.FromPointer(obj), k.V))
}

func ObjectSet(pstack, obj, key, v uintptr) {
	k := values.FromPointer(key).(*values.StringValue)
	objectSetValue(values.FromPointer(obj), k.V, values.FromPointer(v))
}
