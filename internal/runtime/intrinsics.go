package runtime

import (
	"fmt"

	"sdynjit/internal/values"
)

// EvalHook is installed by internal/driver: $eval re-enters the top-level
// lexer/parser/driver pipeline on a fresh source buffer, sharing the
// global object with the caller (spec §6 glossary "Intrinsic"; §9 Open
// Question "$eval" resolution, preserved per SPEC_FULL.md's "SUPPLEMENTED
// FEATURES"). internal/runtime cannot import internal/driver directly
// (driver already imports this package), so the re-entry point is
// injected by internal/driver, just as each function's compile step is
// injected through values.FunctionValue.SetCompiler.
var EvalHook func(source string) (values.Value, error)

// Print implements the $print intrinsic: spec §6 "writes to_string(v)
// followed by newline."
func Print(pstack, v uintptr) uintptr {
	s := toStringValue(values.FromPointer(v))
	fmt.Println(s.V)
	return values.PointerOf(values.Undefined)
}

// Eval implements the $eval intrinsic: spec §6 "$eval(s) re-enters the
// toplevel on s as a source buffer."
func Eval(pstack, v uintptr) uintptr {
	s, ok := values.FromPointer(v).(*values.StringValue)
	if !ok || EvalHook == nil {
		return values.PointerOf(values.Undefined)
	}
	result, err := EvalHook(s.V)
	if err != nil || result == nil {
		return values.PointerOf(values.Undefined)
	}
	return values.PointerOf(result)
}

// Intrinsics is the fixed, published table spec §6 describes: "resolved
// at compile time by exact-match lookup against a small published table."
// internal/codegen's INTRINSICCALL lowering looks a name up here once, at
// emit time, and embeds the resolved address directly as a call target
// (spec §4.4: "resolve the intrinsic name to a known function at emit
// time ... call it directly") — unlike CALL, there is no runtime dispatch
// indirection for an intrinsic.
var Intrinsics = map[string]uintptr{
	"print": addr(Print),
	"eval":  addr(Eval),
}
