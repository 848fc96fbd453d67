// Package driver orchestrates the pipeline spec §2 calls "Driver
// (core-facing): owns lexer → parser → IR builder → type-flow → storage
// allocator → emitter invocation; caches the result on the function value;
// invokes it." It is the only package that imports every pipeline stage.
package driver

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"sdynjit/internal/asm/amd64"
	"sdynjit/internal/ast"
	"sdynjit/internal/codegen"
	"sdynjit/internal/diag"
	"sdynjit/internal/ir"
	"sdynjit/internal/lexer"
	"sdynjit/internal/runtime"
	"sdynjit/internal/values"
)

// compileGroup deduplicates concurrent/re-entrant first-call compiles of
// the same Function value (SPEC_FULL.md DOMAIN STACK: "two re-entrant
// calls to the same not-yet-compiled function ... converge on one compile
// rather than racing two emitters over the same Function.native slot").
var compileGroup singleflight.Group

func init() {
	runtime.EvalHook = evalHook
}

// compile runs §4.1-4.4 of the pipeline over node (a FUNDECL parse-tree
// node) and returns a native entry point, the func value.FunctionValue.
// SetCompiler installs as fn's lazy compiler.
func compile(node *ast.Node) (uintptr, error) {
	irFn, err := ir.Build(node)
	if err != nil {
		return 0, err
	}
	ir.TypeFlow(irFn)
	ir.LastUse(irFn)
	ir.Alloc(irFn)
	return codegen.Emit(irFn, amd64.New())
}

// installCompiler wires fn's lazy compile step through the singleflight
// group, keyed on fn's own identity (its Name is not unique across
// shadowed re-declarations, so the *values.FunctionValue pointer itself is
// the key).
func installCompiler(fn *values.FunctionValue, node *ast.Node) {
	key := fmt.Sprintf("%p", fn)
	fn.SetCompiler(func() (uintptr, error) {
		v, err, _ := compileGroup.Do(key, func() (any, error) {
			return compile(node)
		})
		if err != nil {
			return 0, err
		}
		return v.(uintptr), nil
	})
}

// Run parses source, binds every top-level FUNDECL and VARDECL name into
// the shared global object, then executes every top-level GLOBALCALL in
// declaration order (SPEC_FULL.md SUPPLEMENTED FEATURES: "internal/driver.
// Run executes the program's TOP node by compiling each FUNDECL lazily and
// then executing each GLOBALCALL in sequence"). Compilation itself is
// lazy: a FUNDECL only actually emits native code the first time something
// calls it.
func Run(source string) error {
	tokens := lexer.New(source).ScanTokens()
	p := ast.NewParser(tokens)
	top := p.Parse()
	if len(p.Errors) > 0 {
		return p.Errors[0]
	}
	return runTop(top)
}

func runTop(top *ast.Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = diag.Recover(r)
		}
	}()

	for _, node := range top.Children {
		switch node.Kind {
		case ast.FunDecl:
			fn := values.NewFunction(node.Lexeme, node)
			installCompiler(fn, node)
			runtime.GlobalObject.Set(node.Lexeme, fn)

		case ast.VarDecl:
			runtime.GlobalObject.Set(node.Lexeme, values.Undefined)
		}
	}

	for _, node := range top.Children {
		if node.Kind != ast.GlobalCall {
			continue
		}
		callee := runtime.GlobalObject.Get(node.Lexeme)
		fn, ok := callee.(*values.FunctionValue)
		if !ok {
			diag.Fatal(diag.RuntimeAssertionErrorKind, "Function",
				"top level: %q is not a function", node.Lexeme)
		}
		if _, err := runtime.Invoke(fn, nil); err != nil {
			return err
		}
	}
	return nil
}

// evalHook backs the $eval intrinsic (SUPPLEMENTED FEATURES): it re-enters
// this same pipeline over a fresh source buffer against the one shared
// global object, then returns the value of the last top-level GLOBALCALL
// result — matching the original's "re-enters the top-level parser on the
// supplied string and shares the global object." $eval's own opcode-level
// contract only needs a Value back, not an error, so failures collapse to
// Undefined (handled by the caller in intrinsics.go).
func evalHook(source string) (values.Value, error) {
	tokens := lexer.New(source).ScanTokens()
	p := ast.NewParser(tokens)
	top := p.Parse()
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	var last values.Value = values.Undefined
	for _, node := range top.Children {
		switch node.Kind {
		case ast.FunDecl:
			fn := values.NewFunction(node.Lexeme, node)
			installCompiler(fn, node)
			runtime.GlobalObject.Set(node.Lexeme, fn)
		case ast.VarDecl:
			runtime.GlobalObject.Set(node.Lexeme, values.Undefined)
		case ast.GlobalCall:
			callee := runtime.GlobalObject.Get(node.Lexeme)
			fn, ok := callee.(*values.FunctionValue)
			if !ok {
				return nil, fmt.Errorf("$eval: %q is not a function", node.Lexeme)
			}
			result, err := runtime.Invoke(fn, nil)
			if err != nil {
				return nil, err
			}
			last = result
		}
	}
	return last, nil
}
