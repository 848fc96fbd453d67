package ir

import "sdynjit/internal/values"

// Find walks idx's Uidx chain to its canonical representative, per spec
// §4.2/§8: "following uidx always terminates" and "the storage slot is
// assigned to this representative" (glossary, "Canonical representative").
func Find(fn *Function, idx int) int {
	for {
		instr := fn.At(idx)
		if instr == nil || instr.Uidx == idx {
			return idx
		}
		idx = instr.Uidx
	}
}

func canonicalKind(fn *Function, idx int) values.Kind {
	if idx == 0 {
		return values.Nil
	}
	return fn.At(Find(fn, idx)).Kind
}

// TypeFlow runs the unification pass followed by the flow pass described
// in spec §4.2, mutating each instruction's Kind and Uidx in place.
func TypeFlow(fn *Function) {
	initUidx(fn)
	unifyPass(fn)
	flowPass(fn)
	finalizeKinds(fn)
}

// finalizeKinds copies every instruction's canonical representative's
// resolved Kind back onto the instruction's own Kind field. flowPass only
// ever mutates the canonical representative (spec §4.2's refinement rules
// are phrased in terms of "the canonical instruction's annotation"); this
// makes every instruction in the function carry its final, resolved
// result-type annotation directly (spec §3: "IR instruction ... result-type
// annotation"), so both internal/ir's own storage allocator and
// internal/codegen can read instr.Kind without re-walking Uidx chains.
func finalizeKinds(fn *Function) {
	for i, instr := range fn.Instrs {
		instr.Kind = fn.At(Find(fn, i+1)).Kind
	}
}

func initUidx(fn *Function) {
	for i, instr := range fn.Instrs {
		instr.Uidx = i + 1
	}
}

// unifyPass processes UNIFY instructions in reverse order of appearance,
// copying each one's own canonical index into both operands' Uidx,
// repeating until no UNIFY changes anything, matching spec §4.2's
// "Unification pass (pre)".
func unifyPass(fn *Function) {
	changed := true
	for changed {
		changed = false
		for i := len(fn.Instrs) - 1; i >= 0; i-- {
			instr := fn.Instrs[i]
			if instr.Op != OpUnify {
				continue
			}
			canon := i + 1
			if union(fn, instr.Left, canon) {
				changed = true
			}
			if union(fn, instr.Right, canon) {
				changed = true
			}
		}
	}
}

// union points idx's canonical representative at canon, unless it's
// already there.
func union(fn *Function, idx, canon int) bool {
	if idx == 0 {
		return false
	}
	root := Find(fn, idx)
	canonRoot := Find(fn, canon)
	if root == canonRoot {
		return false
	}
	fn.At(root).Uidx = canonRoot
	return true
}

// flowPass iterates opcode-specific kind refinement to a fixed point, per
// spec §4.2's "Flow pass".
func flowPass(fn *Function) {
	changed := true
	for changed {
		changed = false
		for i, instr := range fn.Instrs {
			canon := fn.At(Find(fn, i+1))
			target := refine(fn, instr)
			if canon != instr && canon.Kind != values.Nil {
				// A member of a UNIFY class can only widen the class's kind.
				target = refineUnify(canon.Kind, target)
			}
			if target != canon.Kind {
				canon.Kind = target
				changed = true
			}
		}
	}
}

func refine(fn *Function, instr *Instr) values.Kind {
	switch instr.Op {
	case OpAssign:
		return canonicalKind(fn, instr.Left)
	case OpAssignMember:
		return canonicalKind(fn, instr.Right)
	case OpAssignIndex:
		return canonicalKind(fn, instr.Third)
	case OpAdd:
		return refineAdd(canonicalKind(fn, instr.Left), canonicalKind(fn, instr.Right))
	case OpUnify:
		return refineUnify(canonicalKind(fn, instr.Left), canonicalKind(fn, instr.Right))
	default:
		return instr.Kind
	}
}

func refineAdd(l, r values.Kind) values.Kind {
	isInt := func(k values.Kind) bool { return k == values.Int || k == values.BoxedInt }
	known := func(k values.Kind) bool { return k != values.Boxed }

	switch {
	case isInt(l) && isInt(r):
		return values.Int
	case known(l) && known(r):
		return values.String
	case known(l) && !isInt(l) && !known(r):
		return values.String
	case known(r) && !isInt(r) && !known(l):
		return values.String
	default:
		return values.Boxed
	}
}

func refineUnify(l, r values.Kind) values.Kind {
	switch {
	case l == r:
		return l
	case (l == values.Bool && r == values.BoxedBool) || (l == values.BoxedBool && r == values.Bool):
		return values.BoxedBool
	case (l == values.Int && r == values.BoxedInt) || (l == values.BoxedInt && r == values.Int):
		return values.BoxedInt
	default:
		return values.Boxed
	}
}
