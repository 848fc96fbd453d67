package values

import "unsafe"

// PointerOf returns the raw address of v's concrete boxed representation —
// the form every value takes once it crosses the native/runtime call
// boundary (spec §4.4 "every value crossing the call boundary is boxed").
// internal/runtime's ABI-facing wrappers use this to hand a Value back to
// emitted machine code as a plain machine word.
func PointerOf(v Value) uintptr {
	if v == nil {
		return 0
	}
	switch vv := v.(type) {
	case *UndefinedValue:
		return uintptr(unsafe.Pointer(vv))
	case *BoolValue:
		return uintptr(unsafe.Pointer(vv))
	case *IntValue:
		return uintptr(unsafe.Pointer(vv))
	case *StringValue:
		return uintptr(unsafe.Pointer(vv))
	case *ObjectValue:
		return uintptr(unsafe.Pointer(vv))
	case *FunctionValue:
		return uintptr(unsafe.Pointer(vv))
	default:
		return 0
	}
}

// kindAt reads a boxed value's tag through the three-level dereference
// spec §6 pins for speculative tag-checking: "the emitter reads the kind
// indirectly as [[[value+0]+8]+8]". Every boxed struct in this package
// declares its *Descriptor as its first field, so a single generic read
// works for any of them: [p+0] is the Descriptor pointer, its own first
// field is the TagBox pointer, and TagBox's first field is the tag word.
func kindAt(p uintptr) Kind {
	if p == 0 {
		return BoxedUndefined
	}
	desc := *(**Descriptor)(unsafe.Pointer(p))
	return desc.TagBox.Tag
}

// FromPointer reconstructs a Value from a raw address crossing the
// runtime-call boundary, the inverse of PointerOf. A nil/zero address is
// treated as Undefined, matching the singleton's own tag.
func FromPointer(p uintptr) Value {
	if p == 0 {
		return Undefined
	}
	switch kindAt(p) {
	case BoxedBool:
		return (*BoolValue)(unsafe.Pointer(p))
	case BoxedInt:
		return (*IntValue)(unsafe.Pointer(p))
	case String:
		return (*StringValue)(unsafe.Pointer(p))
	case Object:
		return (*ObjectValue)(unsafe.Pointer(p))
	case Function:
		return (*FunctionValue)(unsafe.Pointer(p))
	default:
		return Undefined
	}
}
