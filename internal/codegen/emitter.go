// Package codegen lowers one type-flowed, storage-allocated IR function
// (internal/ir) into native machine code through a target-specific
// internal/asm.Assembler backend, per spec §4.4's "Selected emission
// contracts." It never imports a concrete backend package; Emit is handed
// one already constructed by the caller (internal/driver).
package codegen

import (
	"sdynjit/internal/asm"
	"sdynjit/internal/diag"
	"sdynjit/internal/ir"
	"sdynjit/internal/runtime"
	"sdynjit/internal/values"
)

// emitter walks fn.Instrs once, in order, translating each instruction
// into a handful of backend calls. IF/WHILE pair up via label maps keyed
// by the defining instruction's own 1-based index, the same back-reference
// convention instr.Left/instr.Right already use to point at a sibling
// bookkeeping opcode.
type emitter struct {
	fn *ir.Function
	a  asm.Assembler
	rt runtime.Table

	ifElse map[int]asm.Label // IF index -> its IFELSE's jump-over-then label
	ifEnd  map[int]asm.Label // IFELSE index -> its IFEND's merge label
	loop   map[int]asm.Label // WHILE index -> loop-start label
	wcond  map[int]asm.Label // WCOND index -> loop-exit label
	spec   map[int]asm.Label // SPECULATE index -> its SPECULATE_FAIL label

	strings map[string]uintptr // interned STR/member-name constant pool

	exit asm.Label
	errs diag.UnsupportedOpcodes
}

// Emit lowers fn's whole instruction sequence and finalises the backend
// into an executable function pointer (spec §4.4 Finalisation).
func Emit(fn *ir.Function, backend asm.Assembler) (uintptr, error) {
	e := &emitter{
		fn:      fn,
		a:       backend,
		rt:      runtime.Addrs(),
		ifElse:  map[int]asm.Label{},
		ifEnd:   map[int]asm.Label{},
		loop:    map[int]asm.Label{},
		wcond:   map[int]asm.Label{},
		spec:    map[int]asm.Label{},
		strings: map[string]uintptr{},
		exit:    backend.NewLabel(),
	}
	for i, instr := range fn.Instrs {
		e.emitInstr(i, instr)
	}
	if err := e.errs.Err(); err != nil {
		return 0, err
	}
	return backend.Finalize()
}

// load/store dispatch on an instruction's allocator-assigned storage class
// (spec §4.3), independent of its result Kind.
func (e *emitter) load(reg asm.Reg, operand *ir.Instr) {
	switch operand.Storage {
	case ir.StorageData:
		e.a.LoadDataSlot(reg, operand.Slot)
	case ir.StoragePointer:
		e.a.LoadPointerSlot(reg, operand.Slot)
	case ir.StorageArg:
		e.a.LoadArgSlot(reg, operand.Slot)
	}
}

func (e *emitter) store(instr *ir.Instr, reg asm.Reg) {
	switch instr.Storage {
	case ir.StorageData:
		e.a.StoreDataSlot(instr.Slot, reg)
	case ir.StoragePointer:
		e.a.StorePointerSlot(instr.Slot, reg)
	case ir.StorageArg:
		e.a.StoreArgSlot(instr.Slot, reg)
	}
}

// callRuntime brackets one runtime call with the mandatory SaveP/RestoreP
// (spec §4.4: P is not guaranteed to survive a call into arbitrary Go code)
// and moves the RAX-resident result into dst.
func (e *emitter) callRuntime(dst asm.Reg, addr uintptr, args ...asm.Reg) {
	e.a.SaveP()
	e.a.CallRuntime(addr, args...)
	e.a.RestoreP()
	if dst != asm.R0 {
		e.a.Move(dst, asm.R0)
	}
}

// internString boxes a string constant once (at compile time, via a direct
// Go call to runtime.BoxString — never an emitted call target, see
// box.go) and reuses its address for every later use of the same text
// within this function (spec §4.4 "string literal constant pool").
func (e *emitter) internString(s string) uintptr {
	if p, ok := e.strings[s]; ok {
		return p
	}
	p := runtime.BoxString(s)
	e.strings[s] = p
	return p
}

// finishRaw stores a scalar computed natively in reg, boxing it first via
// boxAddr when the allocator gave this instruction a pointer-backed slot.
// That happens whenever type-flow unifies this literal/NOT/OR/AND result
// with a value of a genuinely boxed kind across a branch merge (spec
// §4.3's "canonical representatives share one storage class"): the
// instruction's own builder-time Kind stays raw, but its finalized Kind —
// and therefore its slot — does not.
func (e *emitter) finishRaw(instr *ir.Instr, reg asm.Reg, boxAddr uintptr) {
	if instr.Storage == ir.StoragePointer {
		e.callRuntime(reg, boxAddr, reg)
	}
	e.store(instr, reg)
}

// boxOperand materialises operand as a boxed pointer in reg: an Int/Bool
// unboxed scalar is boxed via a runtime call; anything else (Undefined's
// already-boxed singleton pointer, or any already-heap kind) is just
// loaded as-is.
func (e *emitter) boxOperand(operand *ir.Instr, reg asm.Reg) {
	switch operand.Kind {
	case values.Int:
		e.load(reg, operand)
		e.callRuntime(reg, e.rt.BoxInt, reg)
	case values.Bool:
		e.load(reg, operand)
		e.callRuntime(reg, e.rt.BoxBool, reg)
	default:
		e.load(reg, operand)
	}
}

// fastInt unboxes a statically int-ish operand (Int or BoxedInt) into a raw
// int64 with no runtime call: BoxedInt's payload sits at a fixed 8-byte
// offset inside the boxed IntValue (values.IntValue{desc, V int64}).
func (e *emitter) fastInt(operand *ir.Instr, reg asm.Reg) {
	e.load(reg, operand)
	if operand.Kind == values.BoxedInt {
		e.a.LoadOffset(reg, reg, 8)
	}
}

// intOperand is the general "coerce to int" path spec §4.4 calls for in
// SUB/MUL/MOD/DIV/LT/GT/LE/GE: Int and Bool are already raw-compatible
// scalars, BoxedInt unboxes inline, everything else goes through the
// runtime to_number coercion.
func (e *emitter) intOperand(operand *ir.Instr, reg asm.Reg) {
	switch operand.Kind {
	case values.Int, values.Bool:
		e.load(reg, operand)
	case values.BoxedInt:
		e.load(reg, operand)
		e.a.LoadOffset(reg, reg, 8)
	default:
		e.boxOperand(operand, reg)
		e.callRuntime(reg, e.rt.ToNumber, reg)
	}
}

// boolOperand is the general "coerce to bool" path (NOT, IF/WCOND
// conditions, OR/AND operands). The Int-to-bool zero test uses R1 as
// disposable scratch, or R2 when reg is R1 itself.
func (e *emitter) boolOperand(operand *ir.Instr, reg asm.Reg) {
	switch operand.Kind {
	case values.Bool:
		e.load(reg, operand)
	case values.Int:
		e.load(reg, operand)
		scratch := asm.R1
		if reg == asm.R1 {
			scratch = asm.R2
		}
		e.a.LoadImm(scratch, 0)
		e.a.CompareSet(asm.CondNe, reg, reg, scratch)
	default:
		e.boxOperand(operand, reg)
		e.callRuntime(reg, e.rt.ToBool, reg)
	}
}

// countArgs counts the OpArg instructions immediately preceding the CALL
// at 0-based index callIdx: buildCall always emits a contiguous run of ARG
// instructions right before the CALL they feed (spec §4.1), the same
// adjacency internal/ir's LastUse relies on for its own backward scan.
func countArgs(fn *ir.Function, callIdx int) int {
	n := 0
	for j := callIdx - 1; j >= 0 && fn.Instrs[j].Op == ir.OpArg; j-- {
		n++
	}
	return n
}

func cmpCond(op ir.Op) asm.Cond {
	switch op {
	case ir.OpLt:
		return asm.CondLt
	case ir.OpGt:
		return asm.CondGt
	case ir.OpLe:
		return asm.CondLe
	case ir.OpGe:
		return asm.CondGe
	default:
		return asm.CondEq
	}
}

func (e *emitter) emitInstr(i int, instr *ir.Instr) {
	idx := i + 1
	fn := e.fn

	switch instr.Op {
	case ir.OpAlloca:
		e.a.Prologue(fn.DataSlots)
		e.a.StoreDataSlot(fn.ArgcSlot, asm.R1)
		e.a.StoreDataSlot(fn.ArgvSlot, asm.R2)
		e.a.InitP(asm.R0)

	case ir.OpPAlloca:
		e.a.PointerPrologue(fn.PointerSlots, runtime.UndefinedAddr())

	case ir.OpPopA:
		e.a.Epilogue()

	case ir.OpPPopA:
		e.a.Bind(e.exit)
		e.a.PointerEpilogue(fn.PointerSlots)

	case ir.OpParam:
		e.a.LoadDataSlot(asm.R1, fn.ArgvSlot)
		e.a.LoadDataSlot(asm.R2, fn.ArgcSlot)
		e.a.LoadImm(asm.R3, instr.Imm)
		e.callRuntime(asm.R0, e.rt.ArgAt, asm.R1, asm.R2, asm.R3)
		e.store(instr, asm.R0)

	case ir.OpArg:
		e.boxOperand(fn.At(instr.Left), asm.R0)
		e.a.StoreArgSlot(instr.Slot, asm.R0)

	case ir.OpReturn:
		e.boxOperand(fn.At(instr.Left), asm.R0)
		e.a.Return(asm.R0)
		e.a.Jump(e.exit)

	case ir.OpNop, ir.OpUnify:
		// UNIFY's canonical slot is shared with both its operands by
		// construction (internal/ir's union-find); NOP preserves a
		// loop-entry binding across the back-edge. Neither needs code.

	case ir.OpAssign:
		// instr.Left may hold a raw scalar while this ASSIGN's own
		// finalized slot is pointer-backed (the two branches of an
		// IFELSE assigned different natural kinds and unified to a
		// boxed one) — boxOperand already picks the right coercion for
		// whichever kind Left actually carries.
		left := fn.At(instr.Left)
		if instr.Storage == ir.StoragePointer {
			e.boxOperand(left, asm.R0)
		} else {
			e.load(asm.R0, left)
		}
		e.store(instr, asm.R0)

	case ir.OpTop:
		e.a.LoadPtr(asm.R0, runtime.GlobalObjectAddr())
		e.store(instr, asm.R0)

	case ir.OpNil:
		e.a.LoadPtr(asm.R0, runtime.UndefinedAddr())
		e.store(instr, asm.R0)

	case ir.OpNum:
		e.a.LoadImm(asm.R0, instr.Imm)
		e.finishRaw(instr, asm.R0, e.rt.BoxInt)

	case ir.OpStr:
		e.a.LoadPtr(asm.R0, e.internString(instr.ImmS))
		e.store(instr, asm.R0)

	case ir.OpTrue:
		e.a.LoadImm(asm.R0, 1)
		e.finishRaw(instr, asm.R0, e.rt.BoxBool)

	case ir.OpFalse:
		e.a.LoadImm(asm.R0, 0)
		e.finishRaw(instr, asm.R0, e.rt.BoxBool)

	case ir.OpObj:
		e.callRuntime(asm.R0, e.rt.NewObject)
		e.store(instr, asm.R0)

	case ir.OpNot:
		e.boolOperand(fn.At(instr.Left), asm.R0)
		e.a.LoadImm(asm.R1, 1)
		e.a.Xor(asm.R0, asm.R0, asm.R1)
		e.finishRaw(instr, asm.R0, e.rt.BoxBool)

	case ir.OpTypeof:
		e.boxOperand(fn.At(instr.Left), asm.R0)
		e.callRuntime(asm.R0, e.rt.Typeof, asm.R0)
		e.store(instr, asm.R0)

	case ir.OpAdd:
		l, r := fn.At(instr.Left), fn.At(instr.Right)
		isInt := func(k values.Kind) bool { return k == values.Int || k == values.BoxedInt }
		if instr.Kind == values.Int && isInt(l.Kind) && isInt(r.Kind) {
			e.fastInt(l, asm.R0)
			e.fastInt(r, asm.R1)
			e.a.Add(asm.R0, asm.R0, asm.R1)
			e.store(instr, asm.R0)
			break
		}
		e.boxOperand(l, asm.R1)
		e.a.StorePointerSlot(fn.ScratchSlot, asm.R1)
		e.boxOperand(r, asm.R2)
		e.a.LoadPointerSlot(asm.R1, fn.ScratchSlot)
		e.callRuntime(asm.R0, e.rt.Add, asm.R1, asm.R2)
		e.store(instr, asm.R0)

	case ir.OpSub, ir.OpMul, ir.OpMod, ir.OpDiv:
		l, r := fn.At(instr.Left), fn.At(instr.Right)
		e.intOperand(l, asm.R1)
		e.a.StoreDataSlot(fn.ScratchDataSlot, asm.R1)
		e.intOperand(r, asm.R2)
		e.a.LoadDataSlot(asm.R1, fn.ScratchDataSlot)
		switch instr.Op {
		case ir.OpSub:
			e.a.Sub(asm.R0, asm.R1, asm.R2)
		case ir.OpMul:
			e.a.Mul(asm.R0, asm.R1, asm.R2)
		default: // OpMod, OpDiv: safe-zero divisor (Open Question resolution).
			zero := e.a.NewLabel()
			done := e.a.NewLabel()
			e.a.JumpIfZero(asm.R2, zero)
			e.a.DivMod(asm.R0, asm.R4, asm.R1, asm.R2)
			if instr.Op == ir.OpMod {
				e.a.Move(asm.R0, asm.R4)
			}
			e.a.Jump(done)
			e.a.Bind(zero)
			e.a.LoadImm(asm.R0, 0)
			e.a.Bind(done)
		}
		e.callRuntime(asm.R0, e.rt.BoxInt, asm.R0)
		e.store(instr, asm.R0)

	case ir.OpLt, ir.OpGt, ir.OpLe, ir.OpGe:
		l, r := fn.At(instr.Left), fn.At(instr.Right)
		e.intOperand(l, asm.R1)
		e.a.StoreDataSlot(fn.ScratchDataSlot, asm.R1)
		e.intOperand(r, asm.R2)
		e.a.LoadDataSlot(asm.R1, fn.ScratchDataSlot)
		e.a.CompareSet(cmpCond(instr.Op), asm.R0, asm.R1, asm.R2)
		e.callRuntime(asm.R0, e.rt.BoxBool, asm.R0)
		e.store(instr, asm.R0)

	case ir.OpEq, ir.OpNe:
		l, r := fn.At(instr.Left), fn.At(instr.Right)
		scalarMatch := l.Kind == r.Kind && (l.Kind == values.Int || l.Kind == values.Bool)
		if scalarMatch {
			e.load(asm.R1, l)
			e.load(asm.R2, r)
			cond := asm.CondEq
			if instr.Op == ir.OpNe {
				cond = asm.CondNe
			}
			e.a.CompareSet(cond, asm.R0, asm.R1, asm.R2)
		} else {
			e.boxOperand(l, asm.R1)
			e.a.StorePointerSlot(fn.ScratchSlot, asm.R1)
			e.boxOperand(r, asm.R2)
			e.a.LoadPointerSlot(asm.R1, fn.ScratchSlot)
			e.callRuntime(asm.R0, e.rt.Equal, asm.R1, asm.R2)
			if instr.Op == ir.OpNe {
				e.a.LoadImm(asm.R1, 1)
				e.a.Xor(asm.R0, asm.R0, asm.R1)
			}
		}
		e.callRuntime(asm.R0, e.rt.BoxBool, asm.R0)
		e.store(instr, asm.R0)

	case ir.OpOr, ir.OpAnd:
		// Unreachable from the current builder (&&/|| desugar to IF/IFELSE/
		// IFEND before IR is ever built); kept for the opcode's published
		// contract as a plain, non-short-circuit evaluation of both sides.
		l, r := fn.At(instr.Left), fn.At(instr.Right)
		e.boolOperand(l, asm.R1)
		e.a.StoreDataSlot(fn.ScratchDataSlot, asm.R1)
		e.boolOperand(r, asm.R2)
		e.a.LoadDataSlot(asm.R1, fn.ScratchDataSlot)
		if instr.Op == ir.OpAnd {
			e.a.Mul(asm.R0, asm.R1, asm.R2)
		} else {
			e.a.Add(asm.R0, asm.R1, asm.R2)
		}
		e.a.LoadImm(asm.R1, 0)
		e.a.CompareSet(asm.CondNe, asm.R0, asm.R0, asm.R1)
		e.finishRaw(instr, asm.R0, e.rt.BoxBool)

	case ir.OpMember:
		e.boxOperand(fn.At(instr.Left), asm.R1)
		e.callRuntime(asm.R1, e.rt.ToObject, asm.R1)
		e.a.LoadPtr(asm.R2, e.internString(instr.ImmS))
		e.callRuntime(asm.R0, e.rt.ObjectGet, asm.R1, asm.R2)
		e.store(instr, asm.R0)

	case ir.OpIndex:
		e.boxOperand(fn.At(instr.Left), asm.R1)
		e.callRuntime(asm.R1, e.rt.ToObject, asm.R1)
		e.a.StorePointerSlot(fn.ScratchSlot, asm.R1)
		e.boxOperand(fn.At(instr.Right), asm.R2)
		e.callRuntime(asm.R2, e.rt.ToString, asm.R2)
		e.a.LoadPointerSlot(asm.R1, fn.ScratchSlot)
		e.callRuntime(asm.R0, e.rt.ObjectGet, asm.R1, asm.R2)
		e.store(instr, asm.R0)

	case ir.OpAssignMember:
		right := fn.At(instr.Right)
		// ASSIGNMEMBER's own value is the rhs (assignment is an expression,
		// reachable e.g. as `return o.x = 5;`): store it in whatever
		// representation this instruction's own finalized kind calls for,
		// which is not always boxed — see OpAssign's comment above.
		if instr.Storage == ir.StoragePointer {
			e.boxOperand(right, asm.R0)
		} else {
			e.load(asm.R0, right)
		}
		e.store(instr, asm.R0)
		e.boxOperand(fn.At(instr.Left), asm.R1)
		e.callRuntime(asm.R1, e.rt.ToObject, asm.R1)
		e.a.LoadPtr(asm.R2, e.internString(instr.ImmS))
		e.boxOperand(right, asm.R0)
		e.callRuntime(asm.R0, e.rt.ObjectSet, asm.R1, asm.R2, asm.R0)

	case ir.OpAssignIndex:
		third := fn.At(instr.Third)
		// ASSIGNINDEX's own value is the rhs (assignment is an expression);
		// store it in whatever representation this instruction's own
		// finalized kind calls for, same reasoning as ASSIGNMEMBER above.
		if instr.Storage == ir.StoragePointer {
			e.boxOperand(third, asm.R0)
		} else {
			e.load(asm.R0, third)
		}
		e.store(instr, asm.R0)
		e.boxOperand(fn.At(instr.Left), asm.R1)
		e.callRuntime(asm.R1, e.rt.ToObject, asm.R1)
		e.a.StorePointerSlot(fn.ScratchSlot, asm.R1)
		e.boxOperand(fn.At(instr.Right), asm.R2)
		e.callRuntime(asm.R2, e.rt.ToString, asm.R2)
		e.a.LoadPointerSlot(asm.R1, fn.ScratchSlot)
		// third's boxed form isn't kept live across the calls above (this
		// function has exactly one pointer-stack scratch slot, already used
		// for the object pointer); rebox it fresh here instead.
		e.boxOperand(third, asm.R3)
		e.callRuntime(asm.R0, e.rt.ObjectSet, asm.R1, asm.R2, asm.R3)

	case ir.OpCall:
		e.boxOperand(fn.At(instr.Left), asm.R1)
		e.a.LoadImm(asm.R2, int64(countArgs(fn, i)))
		e.a.ReadP(asm.R3)
		e.callRuntime(asm.R0, e.rt.Call, asm.R1, asm.R2, asm.R3)
		e.store(instr, asm.R0)

	case ir.OpIntrinsicCall:
		addr, ok := runtime.Intrinsics[instr.ImmS]
		if !ok {
			e.errs.Add("INTRINSICCALL " + instr.ImmS)
			break
		}
		argc := int(instr.Imm)
		start := i - argc
		regs := [...]asm.Reg{asm.R1, asm.R2, asm.R3}
		var args []asm.Reg
		for k := 0; k < argc && k < len(regs); k++ {
			e.a.LoadArgSlot(regs[k], fn.Instrs[start+k].Slot)
			args = append(args, regs[k])
		}
		e.callRuntime(asm.R0, addr, args...)
		e.store(instr, asm.R0)

	case ir.OpIf:
		e.boolOperand(fn.At(instr.Left), asm.R0)
		l := e.a.NewLabel()
		e.ifElse[idx] = l
		e.a.JumpIfZero(asm.R0, l)

	case ir.OpIfElse:
		l := e.a.NewLabel()
		e.ifEnd[idx] = l
		e.a.Jump(l)
		e.a.Bind(e.ifElse[instr.Left])

	case ir.OpIfEnd:
		e.a.Bind(e.ifEnd[instr.Left])

	case ir.OpWhile:
		l := e.a.NewLabel()
		e.loop[idx] = l
		e.a.Bind(l)

	case ir.OpWCond:
		e.boolOperand(fn.At(instr.Left), asm.R0)
		l := e.a.NewLabel()
		e.wcond[idx] = l
		e.a.JumpIfZero(asm.R0, l)

	case ir.OpWEnd:
		e.a.Jump(e.loop[instr.Left])
		e.a.Bind(e.wcond[instr.Right])

	case ir.OpSpeculate:
		// Unreachable from the current builder (no deoptimiser consumer
		// yet); lowers the three-level tag dereference spec §6 describes.
		e.load(asm.R0, fn.At(instr.Left))
		e.a.LoadOffset(asm.R0, asm.R0, 0)
		e.a.LoadOffset(asm.R0, asm.R0, 0)
		e.a.LoadOffset(asm.R0, asm.R0, 0)
		e.a.LoadImm(asm.R1, instr.Imm)
		l := e.a.NewLabel()
		e.spec[idx] = l
		e.a.CompareSet(asm.CondEq, asm.R2, asm.R0, asm.R1)
		e.a.JumpIfZero(asm.R2, l)

	case ir.OpSpeculateFail:
		e.a.Bind(e.spec[instr.Left])

	default:
		e.errs.Add(instr.Op.String())
	}
}
