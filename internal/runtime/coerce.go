package runtime

import (
	"strconv"
	"strings"

	"sdynjit/internal/values"
)

// toBool implements spec §4.5.1 to_bool: "Undefined and zero Int and empty
// String -> false; Bool -> self; others -> true."
func toBool(v values.Value) bool {
	switch vv := v.(type) {
	case *values.UndefinedValue:
		return false
	case *values.BoolValue:
		return vv.V
	case *values.IntValue:
		return vv.V != 0
	case *values.StringValue:
		return len(vv.V) != 0
	default:
		return true
	}
}

// toNumber implements spec §4.5.1 to_number. Per the Open Question
// resolution (SPEC_FULL.md §9 / DESIGN.md): leading whitespace is NOT
// skipped, matching original_source/sdyn/value.c's sdyn_toNumber, which
// starts scanning at byte 0 and stops at the first non-digit/non-sign byte.
func toNumber(v values.Value) int64 {
	switch vv := v.(type) {
	case *values.IntValue:
		return vv.V
	case *values.UndefinedValue:
		return 0
	case *values.BoolValue:
		if vv.V {
			return 1
		}
		return 0
	case *values.StringValue:
		return parseLeadingInt(vv.V)
	default:
		return 0
	}
}

func parseLeadingInt(s string) int64 {
	var val int64
	sign := int64(1)
	i := 0
	if i < len(s) {
		switch s[i] {
		case '-':
			sign = -1
			i++
		case '+':
			i++
		}
	}
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		val = val*10 + int64(s[i]-'0')
	}
	return sign * val
}

// toStringValue implements spec §4.5.1 to_string.
func toStringValue(v values.Value) *values.StringValue {
	switch vv := v.(type) {
	case *values.StringValue:
		return vv
	case *values.UndefinedValue:
		return values.NewString("undefined")
	case *values.BoolValue:
		if vv.V {
			return values.NewString("true")
		}
		return values.NewString("false")
	case *values.IntValue:
		return values.NewString(strconv.FormatInt(vv.V, 10))
	case *values.ObjectValue:
		return values.NewString("[object Object]")
	case *values.FunctionValue:
		return values.NewString("[function]")
	default:
		return values.NewString("undefined")
	}
}

// toObjectValue implements spec §4.5's to_object: coerces non-objects to
// the fresh empty object the caller is about to read/write through
// object_get/object_set's MEMBER lowering (spec §4.4: "coercing non-object
// to object first for MEMBER"). Objects and functions pass through
// unchanged since MEMBER/ASSIGNMEMBER on a Function must still resolve
// through object_get/object_set's non-object defaults rather than this
// coercion (functions hold no Shape); only a non-object, non-function
// value is actually promoted.
func toObjectValue(v values.Value) values.Value {
	switch v.(type) {
	case *values.ObjectValue, *values.FunctionValue:
		return v
	default:
		return values.NewObject()
	}
}

// toValueValue implements spec §4.5's to_value: objects and functions are
// coerced through to_string (matching original_source/sdyn/value.c's
// sdyn_toValue, which only special-cases those two tags); every other
// kind is already a first-class value and passes through unchanged.
func toValueValue(v values.Value) values.Value {
	switch v.(type) {
	case *values.ObjectValue, *values.FunctionValue:
		return toStringValue(v)
	default:
		return v
	}
}

// Unquote processes backslash escapes inside a string literal's lexeme
// (spec §4.5 "unquote(String) -> String; processes \n/\r/\\ inside a
// lexeme with outer quotes"). internal/lexer already strips the literal's
// outer quote characters, so this operates on the quote-stripped lexeme
// text internal/codegen passes for every STR opcode's constant.
func Unquote(lexeme string) string {
	if !strings.ContainsRune(lexeme, '\\') {
		return lexeme
	}
	var b strings.Builder
	b.Grow(len(lexeme))
	for i := 0; i < len(lexeme); i++ {
		c := lexeme[i]
		if c != '\\' || i+1 >= len(lexeme) {
			b.WriteByte(c)
			continue
		}
		i++
		switch lexeme[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(lexeme[i])
		}
	}
	return b.String()
}

// --- ABI-facing wrappers: uintptr in, uintptr/int64 out, matching the
// runtime-call contract of spec §4.4/§4.5 ("every runtime support routine
// takes the pointer-stack top as its first argument"). internal/codegen
// never calls the typed helpers above directly; it embeds these
// addresses (via Addrs) as immediate call targets instead.

func ToBool(pstack, v uintptr) int64 {
	if toBool(values.FromPointer(v)) {
		return 1
	}
	return 0
}

func ToNumber(pstack, v uintptr) int64 {
	return toNumber(values.FromPointer(v))
}

func ToString(pstack, v uintptr) uintptr {
	return values.PointerOf(toStringValue(values.FromPointer(v)))
}

func ToObject(pstack, v uintptr) uintptr {
	return values.PointerOf(toObjectValue(values.FromPointer(v)))
}

func ToValue(pstack, v uintptr) uintptr {
	return values.PointerOf(toValueValue(values.FromPointer(v)))
}
