package runtime

import "reflect"

// addr resolves a runtime routine's entry address for embedding as an
// immediate call target in emitted machine code. This pins the boundary
// to Go's own amd64 internal (register-based) calling convention rather
// than a portable C ABI — an explicit Open Question resolution, see
// SPEC_FULL.md §9 and DESIGN.md ("Runtime-call ABI boundary").
func addr(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// Table is the fixed set of runtime routine addresses internal/codegen
// resolves once per compile (spec §4.4/§4.5's "runtime ABI"). Every
// opcode's lowering that needs a runtime call looks its target up here by
// name rather than hard-coding an address.
type Table struct {
	ToBool         uintptr
	ToNumber       uintptr
	ToString       uintptr
	ToObject       uintptr
	ToValue        uintptr
	Add            uintptr
	Equal          uintptr
	Typeof         uintptr
	BoxBool        uintptr
	BoxInt         uintptr
	AssertFunction uintptr
	NewObject      uintptr
	ObjectGet      uintptr
	ObjectSet      uintptr
	Call           uintptr
	ArgAt          uintptr
}

// Addrs builds the fixed runtime-routine address table. It is cheap to
// call (a handful of reflect.Value.Pointer lookups) and codegen calls it
// once per compiled function rather than caching a package-level copy, so
// that a test build substituting fakes for these routines (none do today)
// would stay consistent without extra plumbing.
func Addrs() Table {
	return Table{
		ToBool:         addr(ToBool),
		ToNumber:       addr(ToNumber),
		ToString:       addr(ToString),
		ToObject:       addr(ToObject),
		ToValue:        addr(ToValue),
		Add:            addr(Add),
		Equal:          addr(Equal),
		Typeof:         addr(Typeof),
		BoxBool:        addr(BoxBool),
		BoxInt:         addr(BoxInt),
		AssertFunction: addr(AssertFunction),
		NewObject:      addr(NewObject),
		ObjectGet:      addr(ObjectGet),
		ObjectSet:      addr(ObjectSet),
		Call:           addr(Call),
		ArgAt:          addr(ArgAt),
	}
}
