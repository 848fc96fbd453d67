package runtime

import (
	"unsafe"

	"sdynjit/internal/diag"
	"sdynjit/internal/values"
)

// funcVal is the minimal shape of a Go func value's header: a pointer to
// a code entry point (plus, for closures, captured free variables this
// package never uses). Constructing one by hand and reinterpreting it as
// a typed func is the standard trick for calling a raw machine-code
// address from Go without cgo or a hand-written assembly stub — the only
// way internal/codegen's mmap'd, mprotect'd buffer (internal/asm/amd64's
// Finalize) becomes callable at all.
type funcVal struct{ entry uintptr }

type nativeFunc func(pstackTop uintptr, argc int64, argv uintptr) uintptr

// nativeTrampoline turns a raw code address into a callable nativeFunc.
func nativeTrampoline(addr uintptr) nativeFunc {
	fv := &funcVal{entry: addr}
	return *(*nativeFunc)(unsafe.Pointer(&fv))
}

// initialPointerStackTop is the P value a freshly entered top-level call
// starts from: the high end of the process-wide pointer-stack region
// (spec §5: the pointer stack "grows monotonically within a call and is
// fully unwound by the time PPOPA executes" — nothing has claimed any of
// it yet at the very first call).
func initialPointerStackTop() uintptr {
	return DefaultAllocator.PointerStackBase() + uintptr(DefaultAllocator.PointerStackWords())*8
}

// Call implements spec §4.5's call: "assert function, force compile
// (invoking §4.1-4.4 lazily), invoke the compiled code." This is the ABI
// wrapper internal/codegen's CALL lowering resolves through
// Table.Call — calleeBoxed, argv, and the return value are all raw boxed
// pointers crossing the call boundary exactly as emitted code sees them.
func Call(pstack, calleeBoxed uintptr, argc int64, argv uintptr) uintptr {
	fn := assertFunctionValue(values.FromPointer(calleeBoxed))
	native, err := fn.Compiled()
	if err != nil {
		diag.Fatal(diag.RuntimeAssertionErrorKind, "Function", "call: compiling %q failed: %v", fn.Name, err)
	}
	return nativeTrampoline(native)(pstack, argc, argv)
}

// ArgAt implements the entry-time PARAM read internal/codegen's prologue
// lowering uses: argv is the raw address a caller staged outgoing arguments
// at (its own pointer-frame arg region, or a plain Go slice base for
// Invoke); index i past argc reads as Undefined rather than faulting,
// matching spec §7's "runtime coercion never raises."
func ArgAt(pstack, argv uintptr, argc, i int64) uintptr {
	if i < 0 || i >= argc {
		return values.PointerOf(values.Undefined)
	}
	return *(*uintptr)(unsafe.Pointer(argv + uintptr(i)*8))
}

// Invoke is the Go-facing entry point internal/driver uses to run a
// top-level GLOBALCALL or re-entrant $eval call: it has no generated
// caller frame to borrow argument slots from, so it builds its own argv
// out of an ordinary Go slice (kept alive by the stack frame for the
// duration of the call, which is all the native callee needs — it copies
// out of argv during its own PALLOCA'd prologue).
func Invoke(fn *values.FunctionValue, args []values.Value) (values.Value, error) {
	native, err := fn.Compiled()
	if err != nil {
		return nil, err
	}
	argv := make([]uintptr, len(args)+1)
	argv[0] = values.PointerOf(values.Undefined) // receiver ("this"); spec §4.1 ARG 0 is always the receiver.
	for i, a := range args {
		argv[i+1] = values.PointerOf(a)
	}
	result := nativeTrampoline(native)(initialPointerStackTop(), int64(len(argv)), uintptr(unsafe.Pointer(&argv[0])))
	return values.FromPointer(result), nil
}
