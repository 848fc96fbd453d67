// Package runtime implements the runtime support library contracts of
// spec §2/§4.5: boxers, coercions, generic add/equal, object member
// get/set, the function-type assertion, global-object access, and the
// JIT compile-on-demand trampoline. internal/codegen resolves every call
// target it emits against this package's Addrs table; the functions
// themselves never import internal/codegen back (the compile-on-demand
// step is wired in by internal/driver via values.FunctionValue.SetCompiler, to
// keep this package a leaf).
package runtime

import "unsafe"

// Allocator is THE CORE's contract with the external "general-purpose
// precise garbage collector" collaborator named in spec §1: the core
// consumes an allocator interface rather than owning collection itself.
type Allocator interface {
	// PointerStackBase is the address of word 0 of the process-wide
	// pointer-stack region (spec §5 "the pointer-stack region" is
	// process-wide, initialised once at startup).
	PointerStackBase() uintptr
	// PointerStackWords is the region's capacity in 8-byte words.
	PointerStackWords() int
}

// pointerStackWords matches the scale of the original implementation's
// POINTER_STACK_SZ (original_source/sdyn/value.c), mmap'd once at startup
// there; here it is 1M words (8 MiB), backed by an ordinary Go slice whose backing
// array Go's own GC scans like any other live slice — standing in for the
// bespoke tracing collector's pointer-stack region (SPEC_FULL.md "Allocator
// interface").
const pointerStackWords = 1 << 20

// heapAllocator is the one concrete Allocator: ordinary Go heap allocation
// plus a process-wide pointer-stack slice that is never trimmed except at
// PPOPA/POPA.
type heapAllocator struct {
	stack []unsafe.Pointer
}

func newHeapAllocator() *heapAllocator {
	return &heapAllocator{stack: make([]unsafe.Pointer, pointerStackWords)}
}

func (h *heapAllocator) PointerStackBase() uintptr {
	return uintptr(unsafe.Pointer(&h.stack[0]))
}

func (h *heapAllocator) PointerStackWords() int { return len(h.stack) }

// DefaultAllocator is the process-wide Allocator instance every compiled
// function's PALLOCA/PPOPA prologue/epilogue is generated against (spec
// §5 "Shared resources": "the pointer-stack region ... process-wide,
// initialised once at startup").
var DefaultAllocator Allocator = newHeapAllocator()
