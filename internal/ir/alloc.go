package ir

import "sdynjit/internal/values"

// LastUse runs the reverse last-use analysis of spec §4.3. Each
// instruction's LastUsed list names every canonical operand index whose
// live range ends at that instruction. CALL/INTRINSICCALL instructions
// fuse with their immediately preceding ARG instructions into one
// interference region, per spec: "the call and all preceding ARGs that
// feed it are fused into one interference region".
func LastUse(fn *Function) {
	marked := make(map[int]bool)

	noteOnce := func(instr *Instr, idx int) {
		if idx == 0 {
			return
		}
		c := Find(fn, idx)
		if marked[c] {
			return
		}
		marked[c] = true
		instr.LastUsed = append(instr.LastUsed, c)
	}

	for i := len(fn.Instrs) - 1; i >= 0; i-- {
		instr := fn.Instrs[i]

		switch instr.Op {
		case OpArg:
			// Consumed by the owning CALL/INTRINSICCALL below; not an
			// independent interference point.
			continue

		case OpCall, OpIntrinsicCall:
			if instr.Op == OpCall {
				noteOnce(instr, instr.Left)
			}
			for j := i - 1; j >= 0 && fn.Instrs[j].Op == OpArg; j-- {
				noteOnce(instr, fn.Instrs[j].Left)
			}

		default:
			noteOnce(instr, instr.Left)
			noteOnce(instr, instr.Right)
			noteOnce(instr, instr.Third)
		}
	}
}

type slotInfo struct {
	storage StorageClass
	slot    int
}

// Alloc runs the forward slot-assignment pass of spec §4.3, then the
// finalisation step that biases pointer-stack addresses by the argument
// high-water mark and fixes up fn.DataSlots/PointerSlots/ArgSlots.
func Alloc(fn *Function) {
	dataUsed := map[int]bool{}
	ptrUsed := map[int]bool{}
	dataHigh, ptrHigh := 0, 0
	argHigh := 0

	allocFrom := func(used map[int]bool, high *int) int {
		i := 0
		for used[i] {
			i++
		}
		used[i] = true
		if i+1 > *high {
			*high = i + 1
		}
		return i
	}
	free := func(used map[int]bool, slot int) {
		delete(used, slot)
	}

	assigned := map[int]slotInfo{}

	for i, instr := range fn.Instrs {
		idx := i + 1

		switch {
		case instr.Op == OpArg:
			instr.Storage = StorageArg
			instr.Slot = int(instr.Imm)
			if int(instr.Imm)+1 > argHigh {
				argHigh = int(instr.Imm) + 1
			}

		case instr.Kind.IsNil():
			instr.Storage = StorageNone

		default:
			canon := Find(fn, idx)
			if info, ok := assigned[canon]; ok {
				instr.Storage = info.storage
				instr.Slot = info.slot
			} else {
				var info slotInfo
				if instr.Kind.IsBoxed() {
					info = slotInfo{storage: StoragePointer, slot: allocFrom(ptrUsed, &ptrHigh)}
				} else {
					info = slotInfo{storage: StorageData, slot: allocFrom(dataUsed, &dataHigh)}
				}
				assigned[canon] = info
				instr.Storage = info.storage
				instr.Slot = info.slot
			}
		}

		for _, used := range instr.LastUsed {
			info, ok := assigned[used]
			if !ok {
				continue
			}
			switch info.storage {
			case StorageData:
				free(dataUsed, info.slot)
			case StoragePointer:
				free(ptrUsed, info.slot)
			}
		}
	}

	// Finalisation (spec §4.3): argument slots occupy the low addresses of
	// the pointer-stack frame, locals follow; the argument region always
	// reserves at least two words of runtime scratch.
	if argHigh < 2 {
		argHigh = 2
	}
	for _, instr := range fn.Instrs {
		if instr.Storage == StoragePointer {
			instr.Slot += argHigh
		}
	}

	fn.DataSlots = dataHigh
	fn.ArgSlots = argHigh
	fn.ArgcSlot = dataHigh
	fn.ArgvSlot = dataHigh + 1
	fn.ScratchDataSlot = dataHigh + 2
	fn.DataSlots += 3

	// Two more pointer-stack words, above every real local and argument
	// slot, reserved for the emitter to spill a boxed temporary across a
	// runtime call when an opcode's lowering needs more live values than
	// registers (spec §4.4's "emitter scratch").
	fn.ScratchSlot = ptrHigh + argHigh
	fn.PointerSlots = ptrHigh + argHigh + 2
}
