// Package diag implements the error taxonomy of spec §7: compile-time
// errors that abort a single compile (reported, then turned into a normal
// Go error at the internal/driver boundary), runtime assertions that are
// fatal by contract, and the safe-default runtime cases that are not
// errors at all. Grounded on the teacher's internal/errors.SentraError
// (a typed error + location), built on github.com/pkg/errors for the
// stack-trace-carrying wrap the teacher's CallStack field plays the same
// role for.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind distinguishes the three fatal error categories spec §7 names.
type Kind string

const (
	CompileErrorKind          Kind = "CompileError"
	UnsupportedOpcodeKind     Kind = "UnsupportedOpcode"
	RuntimeAssertionErrorKind Kind = "RuntimeAssertion"
)

// Error is the one typed error value used across THE CORE. Node, when
// non-empty, names the offending parse-tree or IR node kind, matching
// spec §7's "reports the offending node name".
type Error struct {
	Kind    Kind
	Node    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Node, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Fatal panics with a *Error wrapped by pkg/errors (capturing a stack
// trace at the panic site). internal/ir's builder calls this for
// "parse-tree misuse" and internal/runtime for a failed function assertion
// (spec §7); internal/codegen collects unsupported opcodes in
// UnsupportedOpcodes instead. internal/driver recovers it at the parse-tree → native
// pointer boundary and turns it into a returned error, so one bad compile
// never os.Exits a process that embeds the driver as a library.
func Fatal(kind Kind, node, format string, args ...any) {
	e := &Error{Kind: kind, Node: node, Message: fmt.Sprintf(format, args...)}
	e.cause = errors.WithStack(e)
	panic(e)
}

// Recover turns a panic value produced by Fatal into an error, or
// re-panics anything else (an unexpected Go panic is not this package's
// business to swallow).
func Recover(r any) error {
	if r == nil {
		return nil
	}
	if e, ok := r.(*Error); ok {
		return e
	}
	panic(r)
}

// UnsupportedOpcodes accumulates every opcode the emitter could not lower
// during one whole-function pass, per spec §7: "counted during a whole
// function pass; if any remain, the whole compile aborts after reporting
// each" — maximizing diagnostic signal from a single build.
type UnsupportedOpcodes struct {
	Opcodes []string
}

func (u *UnsupportedOpcodes) Add(opcode string) {
	u.Opcodes = append(u.Opcodes, opcode)
}

func (u *UnsupportedOpcodes) Err() error {
	if len(u.Opcodes) == 0 {
		return nil
	}
	msg := "unsupported opcodes in function:"
	for _, op := range u.Opcodes {
		msg += " " + op
	}
	return &Error{Kind: UnsupportedOpcodeKind, Message: msg}
}
