package values

import "fmt"

func errNoCompiler(name string) error {
	return fmt.Errorf("values: function %q has no compiler installed", name)
}

// Value is any runtime value: the three unboxed scalars (represented
// directly as Go values by the interpreter-facing helpers below, though the
// emitted code only ever treats them as boxed once they cross a call
// boundary — see spec §4.4 "every value crossing the call boundary is
// boxed") and the boxed heap kinds.
//
// Boxed values share a Descriptor as the Go encoding of the three-level
// "[[[v+0]+8]+8]" dereference contract from spec §6: a Value's Descriptor()
// method is the first hop, Descriptor.TagBox is the second, and
// TagBox.Tag is the tag word itself. internal/codegen's SPECULATE lowering
// emits exactly these three loads rather than using a Go type switch, so the
// emitted-code contract stays faithful even though Go needs no raw pointer
// arithmetic to express it.
type Value interface {
	Kind() Kind
	Descriptor() *Descriptor
}

// Descriptor is the first-hop header every boxed value carries.
type Descriptor struct {
	TagBox *TagBox
}

// TagBox is the second-hop indirection; its Tag is the tag word read by the
// third dereference.
type TagBox struct {
	Tag Kind
}

func newDescriptor(k Kind) *Descriptor {
	return &Descriptor{TagBox: &TagBox{Tag: k}}
}

// UndefinedValue is the single Undefined singleton.
type UndefinedValue struct{ desc *Descriptor }

func (v *UndefinedValue) Kind() Kind            { return BoxedUndefined }
func (v *UndefinedValue) Descriptor() *Descriptor { return v.desc }

// BoolValue is one of the two Bool singletons.
type BoolValue struct {
	desc *Descriptor
	V    bool
}

func (v *BoolValue) Kind() Kind            { return BoxedBool }
func (v *BoolValue) Descriptor() *Descriptor { return v.desc }

// IntValue is a heap-boxed 64-bit signed integer.
type IntValue struct {
	desc *Descriptor
	V    int64
}

func (v *IntValue) Kind() Kind            { return BoxedInt }
func (v *IntValue) Descriptor() *Descriptor { return v.desc }

// StringValue is an immutable byte sequence.
type StringValue struct {
	desc *Descriptor
	V    string
}

func (v *StringValue) Kind() Kind            { return String }
func (v *StringValue) Descriptor() *Descriptor { return v.desc }

// FunctionValue holds the source parse tree plus the lazily-produced native
// code, matching spec §3's Function layout. ParseTree is declared as `any`
// here to avoid an import cycle with internal/ast; internal/driver does not
// read it back, its compile step closes over the *ast.Node directly.
type FunctionValue struct {
	desc *Descriptor

	Name      string
	ParseTree any
	IR        any // not set by internal/driver; stays nil
	Native    uintptr

	compileOnce func() (uintptr, error)
}

func (v *FunctionValue) Kind() Kind            { return Function }
func (v *FunctionValue) Descriptor() *Descriptor { return v.desc }

// SetCompiler installs the lazy parse-tree→native-pointer compile step
// internal/driver wires up for this function, matching spec §2's "Driver
// (core-facing): ... caches the result on the function value." Compiled
// calls it at most once and caches the result on Native.
func (v *FunctionValue) SetCompiler(f func() (uintptr, error)) {
	v.compileOnce = f
}

// Compiled returns this function's native entry point, compiling it on
// first call via the installed compiler (spec §4.5 "call: ... force
// compile (invoking §4.1-4.4 lazily), invoke the compiled code").
func (v *FunctionValue) Compiled() (uintptr, error) {
	if v.Native != 0 {
		return v.Native, nil
	}
	if v.compileOnce == nil {
		return 0, errNoCompiler(v.Name)
	}
	ptr, err := v.compileOnce()
	if err != nil {
		return 0, err
	}
	v.Native = ptr
	return ptr, nil
}

// Singletons, process-wide per spec §5 "Shared resources".
var (
	Undefined = &UndefinedValue{desc: newDescriptor(BoxedUndefined)}
	True      = &BoolValue{desc: newDescriptor(BoxedBool), V: true}
	False     = &BoolValue{desc: newDescriptor(BoxedBool), V: false}
)

func NewInt(v int64) *IntValue       { return &IntValue{desc: newDescriptor(BoxedInt), V: v} }
func NewString(v string) *StringValue { return &StringValue{desc: newDescriptor(String), V: v} }

func NewFunction(name string, parseTree any) *FunctionValue {
	return &FunctionValue{desc: newDescriptor(Function), Name: name, ParseTree: parseTree}
}

func BoolOf(b bool) *BoolValue {
	if b {
		return True
	}
	return False
}
