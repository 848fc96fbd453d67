package runtime

import "sdynjit/internal/values"

// addValues implements spec §4.5's add: "if both are BoxedInt, return
// boxed-int sum; otherwise coerce both to string and concatenate" —
// mirroring original_source/sdyn/value.c's sdyn_add exactly (int fast
// path, string-concat fallback, no other numeric coercion).
func addValues(l, r values.Value) values.Value {
	li, lok := l.(*values.IntValue)
	ri, rok := r.(*values.IntValue)
	if lok && rok {
		return values.NewInt(li.V + ri.V)
	}
	ls := toStringValue(l)
	rs := toStringValue(r)
	return values.NewString(ls.V + rs.V)
}

// equalValues implements spec §4.5's standard coercive-equality rules,
// grounded directly on original_source/sdyn/value.c's sdyn_equal (a
// reduced ES5 abstract-equality algorithm): equal kinds compare directly
// (strings by value, objects/functions by identity); booleans coerce to
// number before retrying; object/function vs. anything else coerces both
// sides to string before retrying; number-vs-string coerces the string to
// a number before retrying.
func equalValues(l, r values.Value) bool {
	for {
		lk, rk := sameKindClass(l), sameKindClass(r)
		if lk == rk {
			switch lv := l.(type) {
			case *values.IntValue:
				return lv.V == r.(*values.IntValue).V
			case *values.StringValue:
				return lv.V == r.(*values.StringValue).V
			default:
				return l == r
			}
		}

		switch {
		case lk == classBool:
			l = values.NewInt(toNumber(l))
		case rk == classBool:
			r = values.NewInt(toNumber(r))
		case lk == classRef || rk == classRef:
			l = toStringValue(l)
			r = toStringValue(r)
		case lk == classInt && rk == classString:
			r = values.NewInt(toNumber(r))
		case lk == classString && rk == classInt:
			l = values.NewInt(toNumber(l))
		default:
			return false
		}
	}
}

type kindClass int

const (
	classUndefined kindClass = iota
	classBool
	classInt
	classString
	classRef // Object or Function
)

func sameKindClass(v values.Value) kindClass {
	switch v.(type) {
	case *values.UndefinedValue:
		return classUndefined
	case *values.BoolValue:
		return classBool
	case *values.IntValue:
		return classInt
	case *values.StringValue:
		return classString
	default:
		return classRef
	}
}

// typeofString implements spec §4.5's typeof.
func typeofString(v values.Value) string {
	return v.Kind().TypeofString()
}

// --- ABI-facing wrappers (see coerce.go's comment on this convention).

func Add(pstack, l, r uintptr) uintptr {
	return values.PointerOf(addValues(values.FromPointer(l), values.FromPointer(r)))
}

func Equal(pstack, l, r uintptr) int64 {
	if equalValues(values.FromPointer(l), values.FromPointer(r)) {
		return 1
	}
	return 0
}

func Typeof(pstack, v uintptr) uintptr {
	s := typeofString(values.FromPointer(v))
	return values.PointerOf(values.NewString(s))
}
