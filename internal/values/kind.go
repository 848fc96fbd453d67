// Package values implements the runtime value model: kinds, boxed layout,
// objects, shapes, and functions. It is the Go encoding of the data model
// described for THE CORE: a descriptor-tagged boxed value plus a
// shape-transition tree for objects.
package values

// Kind is the closed set of runtime value kinds, plus the IR-only
// meta-kinds used by type-flow before a value is known to be fully
// unboxed or fully boxed.
type Kind int

const (
	Nil Kind = iota // no value; IR-only

	Undefined
	Bool
	Int
	String
	Object
	Function

	// Meta-kinds. Boxed is only ever an IR type annotation; BoxedUndefined,
	// BoxedBool and BoxedInt are IR annotations and also the runtime tags of
	// the undefined singleton, the bool singletons and boxed ints.
	Boxed          // heap-allocated, underlying kind statically unknown
	BoxedUndefined
	BoxedBool
	BoxedInt
)

func (k Kind) String() string {
	switch k {
	case Nil:
		return "Nil"
	case Undefined:
		return "Undefined"
	case Bool:
		return "Bool"
	case Int:
		return "Int"
	case String:
		return "String"
	case Object:
		return "Object"
	case Function:
		return "Function"
	case Boxed:
		return "Boxed"
	case BoxedUndefined:
		return "BoxedUndefined"
	case BoxedBool:
		return "BoxedBool"
	case BoxedInt:
		return "BoxedInt"
	default:
		return "Kind(?)"
	}
}

// IsNil reports whether an instruction of this kind produces no runtime
// value at all (spec §4.3 "Result kind Nil: no slot").
func (k Kind) IsNil() bool {
	return k == Nil
}

// IsBoxed reports whether a value of this kind always lives behind a
// pointer-stack reference, per spec §3's unboxed/boxed partition: Undefined,
// Bool, and Int are unboxed; String, Object, Function, and every meta-kind
// from Boxed onward are boxed.
func (k Kind) IsBoxed() bool {
	switch k {
	case Undefined, Bool, Int, Nil:
		return false
	default:
		return true
	}
}

// TypeofString is the string the `typeof` runtime routine and IR opcode
// report for a kind, including the Boxed* tags runtime values carry; plain
// Boxed (underlying kind unknown) reports "undefined".
func (k Kind) TypeofString() string {
	switch k {
	case Undefined, BoxedUndefined:
		return "undefined"
	case Bool, BoxedBool:
		return "boolean"
	case Int, BoxedInt:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Function:
		return "function"
	default:
		return "undefined"
	}
}
