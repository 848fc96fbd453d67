package amd64

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"sdynjit/internal/asm"
)

// Register convention (spec §4.4 "Calling convention (contract for
// generated functions)"):
//
//	P  = R15  pointer-stack top; never clobbered by generated code except
//	     across an explicit Save/RestoreP around a runtime call.
//	S  = RSP, F = RBP, following the platform ABI.
//	Two low data-stack scratch slots live at [F-16] ([F-8] is the canonical
//	save slot for P across runtime calls, per spec).
//	The two pointer-stack scratch slots (spill of a boxed temporary across
//	a call) are ir.Function's ScratchSlot pair, placed above every
//	argument and local slot of the frame.
//
// The five abstract asm.Reg values map onto RAX, RBX, RCX, RDX and RSI,
// with RAX as the universal accumulator/return register. RDI carries the
// fourth runtime-call argument (see callArgRegs).
var regMap = [...]register{rax, rbx, rcx, rdx, rsi}

const pReg = r15

// callArgRegs is the fixed argument-register order runtime calls use,
// pinned to Go's amd64 internal ABI integer-argument order as of the 1.17+
// register-based calling convention (SPEC_FULL.md §9, Open Question
// "Runtime-call ABI boundary"). This is a toolchain-version-pinned choice,
// not a portable C ABI, and is called out there and in DESIGN.md rather
// than left implicit.
var callArgRegs = [...]register{rax, rbx, rcx, rdi}

// Backend implements asm.Assembler for amd64/Linux.
type Backend struct {
	buf *buffer
}

// New creates an empty amd64 assembler ready to emit one function's body.
func New() *Backend {
	return &Backend{buf: newBuffer()}
}

func (b *Backend) NewLabel() asm.Label { return asm.Label(b.buf.newLabel()) }
func (b *Backend) Bind(l asm.Label)    { b.buf.bind(int(l)) }

func (b *Backend) reg(r asm.Reg) register { return regMap[r] }

// movRegReg: mov dst, src (64-bit).
func (b *Backend) movRegReg(dst, src register) {
	b.buf.emitByte(rex(true, src.needsRex(), false, dst.needsRex()))
	b.buf.emitByte(0x89)
	b.buf.emitByte(modrm(3, byte(src.lowBits()), byte(dst.lowBits())))
}

// movRegMem: mov dst, [base+disp32].
func (b *Backend) movRegMem(dst, base register, disp int32) {
	b.buf.emitByte(rex(true, dst.needsRex(), false, base.needsRex()))
	b.buf.emitByte(0x8b)
	b.buf.emitByte(modrm(2, byte(dst.lowBits()), byte(base.lowBits())))
	if base.lowBits() == rsp.lowBits() {
		b.buf.emitByte(0x24) // SIB: no index, base = RSP/R12 class
	}
	b.buf.emitU32(uint32(disp))
}

// movMemReg: mov [base+disp32], src.
func (b *Backend) movMemReg(base register, disp int32, src register) {
	b.buf.emitByte(rex(true, src.needsRex(), false, base.needsRex()))
	b.buf.emitByte(0x89)
	b.buf.emitByte(modrm(2, byte(src.lowBits()), byte(base.lowBits())))
	if base.lowBits() == rsp.lowBits() {
		b.buf.emitByte(0x24)
	}
	b.buf.emitU32(uint32(disp))
}

// movRegImm64: mov dst, imm64.
func (b *Backend) movRegImm64(dst register, v uint64) {
	b.buf.emitByte(rex(true, false, false, dst.needsRex()))
	b.buf.emitByte(0xb8 + dst.lowBits())
	b.buf.emitU64(v)
}

func (b *Backend) LoadImm(dst asm.Reg, v int64)   { b.movRegImm64(b.reg(dst), uint64(v)) }
func (b *Backend) LoadPtr(dst asm.Reg, p uintptr) { b.movRegImm64(b.reg(dst), uint64(p)) }
func (b *Backend) Move(dst, src asm.Reg)          { b.movRegReg(b.reg(dst), b.reg(src)) }

func (b *Backend) LoadOffset(dst, base asm.Reg, offset int32) {
	b.movRegMem(b.reg(dst), b.reg(base), offset)
}

// Data-stack slots live below the frame pointer, past the two reserved
// scratch words: slot i is at [F - (i+3)*8] (spec §4.3/§4.4).
func dataSlotOffset(slot int) int32 { return -int32((slot + 3) * 8) }

// Pointer-stack slots live above P: slot i is at [P + i*8]. Alloc's
// finalisation pass already biases every Pointer instruction's slot index by
// argHigh (the function's own argument-region width, floored at 2 words),
// so the two reserved low scratch words spec §4.4 describes fall out of
// that bias rather than a second, separately-hardcoded one here.
func pointerSlotOffset(slot int) int32 { return int32(slot * 8) }

func (b *Backend) LoadDataSlot(dst asm.Reg, slot int) {
	b.movRegMem(b.reg(dst), rbp, dataSlotOffset(slot))
}
func (b *Backend) StoreDataSlot(slot int, src asm.Reg) {
	b.movMemReg(rbp, dataSlotOffset(slot), b.reg(src))
}
func (b *Backend) LoadPointerSlot(dst asm.Reg, slot int) {
	b.movRegMem(b.reg(dst), pReg, pointerSlotOffset(slot))
}
func (b *Backend) StorePointerSlot(slot int, src asm.Reg) {
	b.movMemReg(pReg, pointerSlotOffset(slot), b.reg(src))
}

// Argument slots are the low part of the pointer-stack frame (spec §4.3
// Finalisation: "argument slots are allocated from the start of the
// pointer-stack frame"); the Alloc pass already biases every Pointer slot
// by argHigh, so Arg slots use the raw, unbiased offset.
func argSlotOffset(slot int) int32 { return int32(slot * 8) }

func (b *Backend) LoadArgSlot(dst asm.Reg, slot int) {
	b.movRegMem(b.reg(dst), pReg, argSlotOffset(slot))
}
func (b *Backend) StoreArgSlot(slot int, src asm.Reg) {
	b.movMemReg(pReg, argSlotOffset(slot), b.reg(src))
}

func (b *Backend) arith(opcode byte, dst, a, bb register) {
	if dst != a {
		b.movRegReg(dst, a)
	}
	b.buf.emitByte(rex(true, bb.needsRex(), false, dst.needsRex()))
	b.buf.emitByte(opcode)
	b.buf.emitByte(modrm(3, byte(bb.lowBits()), byte(dst.lowBits())))
}

func (b *Backend) Add(dst, a, bb asm.Reg) { b.arith(0x01, b.reg(dst), b.reg(a), b.reg(bb)) }
func (b *Backend) Sub(dst, a, bb asm.Reg) { b.arith(0x29, b.reg(dst), b.reg(a), b.reg(bb)) }

// Mul: imul dst, src (two-operand form; two's-complement wraparound
// matches spec §4.5's plain 64-bit integer semantics).
func (b *Backend) Mul(dst, a, bb asm.Reg) {
	d, s1, s2 := b.reg(dst), b.reg(a), b.reg(bb)
	if d != s1 {
		b.movRegReg(d, s1)
	}
	b.buf.emitByte(rex(true, d.needsRex(), false, s2.needsRex()))
	b.buf.emitBytes(0x0f, 0xaf)
	b.buf.emitByte(modrm(3, byte(d.lowBits()), byte(s2.lowBits())))
}

// DivMod: cqo; idiv b; quot in RAX-mapped reg, rem in RDX-mapped reg, per
// spec §4.4 "clear the high result register and use the platform's divide
// instruction with the remainder going to the extra result register."
// Division/modulus by zero is handled by the caller (internal/codegen),
// which checks the divisor before ever emitting this, per the Open
// Question resolution in SPEC_FULL.md §9 (safe zero result, not a fault).
func (b *Backend) DivMod(quot, rem, a, bb asm.Reg) {
	b.movRegReg(rax, b.reg(a))
	b.buf.emitBytes(0x48, 0x99) // cqo: sign-extend rax into rdx:rax
	divisor := b.reg(bb)
	b.buf.emitByte(rex(true, false, false, divisor.needsRex()))
	b.buf.emitByte(0xf7)
	b.buf.emitByte(modrm(3, 7, byte(divisor.lowBits()))) // /7 = idiv
	if q := b.reg(quot); q != rax {
		b.movRegReg(q, rax)
	}
	if r := b.reg(rem); r != rdx {
		b.movRegReg(r, rdx)
	}
}

func (b *Backend) Xor(dst, a, bb asm.Reg) { b.arith(0x31, b.reg(dst), b.reg(a), b.reg(bb)) }

func (b *Backend) Not(dst, src asm.Reg) {
	d, s := b.reg(dst), b.reg(src)
	if d != s {
		b.movRegReg(d, s)
	}
	b.buf.emitByte(rex(true, false, false, d.needsRex()))
	b.buf.emitByte(0xf7)
	b.buf.emitByte(modrm(3, 2, byte(d.lowBits()))) // /2 = not
}

var setccOpcode = map[asm.Cond]byte{
	asm.CondEq: 0x94, asm.CondNe: 0x95,
	asm.CondLt: 0x9c, asm.CondGe: 0x9d,
	asm.CondLe: 0x9e, asm.CondGt: 0x9f,
}

// CompareSet: cmp a, b; setcc al (extended to dst); zero-extends into dst.
func (b *Backend) CompareSet(cond asm.Cond, dst, a, bb asm.Reg) {
	ra, rb := b.reg(a), b.reg(bb)
	b.buf.emitByte(rex(true, rb.needsRex(), false, ra.needsRex()))
	b.buf.emitByte(0x39)
	b.buf.emitByte(modrm(3, byte(rb.lowBits()), byte(ra.lowBits())))

	d := b.reg(dst)
	b.buf.emitBytes(0x0f, setccOpcode[cond])
	b.buf.emitByte(modrm(3, 0, byte(d.lowBits())))
	// movzx d, dl
	b.buf.emitByte(rex(true, d.needsRex(), false, d.needsRex()))
	b.buf.emitBytes(0x0f, 0xb6)
	b.buf.emitByte(modrm(3, byte(d.lowBits()), byte(d.lowBits())))
}

// JumpIfZero: test r, r; jz rel32 (patched at Bind time).
func (b *Backend) JumpIfZero(r asm.Reg, l asm.Label) {
	rr := b.reg(r)
	b.buf.emitByte(rex(true, rr.needsRex(), false, rr.needsRex()))
	b.buf.emitByte(0x85)
	b.buf.emitByte(modrm(3, byte(rr.lowBits()), byte(rr.lowBits())))
	b.buf.emitBytes(0x0f, 0x84)
	b.buf.emitRel32Patch(int(l))
}

func (b *Backend) Jump(l asm.Label) {
	b.buf.emitByte(0xe9)
	b.buf.emitRel32Patch(int(l))
}

// pushReg: push r64 (r8-r15 need a REX.B prefix before the opcode byte).
func (b *Backend) pushReg(r register) {
	if r.needsRex() {
		b.buf.emitByte(0x41)
	}
	b.buf.emitByte(0x50 + r.lowBits())
}

func (b *Backend) SaveP() {
	// mov [rbp-8], r15 — the canonical P-save scratch slot (spec §4.4).
	b.buf.emitByte(rex(true, pReg.needsRex(), false, false))
	b.buf.emitByte(0x89)
	b.buf.emitByte(modrm(1, byte(pReg.lowBits()), byte(rbp.lowBits())))
	b.buf.emitByte(0xf8) // disp8 = -8
}

func (b *Backend) RestoreP() {
	b.buf.emitByte(rex(true, pReg.needsRex(), false, false))
	b.buf.emitByte(0x8b)
	b.buf.emitByte(modrm(1, byte(pReg.lowBits()), byte(rbp.lowBits())))
	b.buf.emitByte(0xf8)
}

func (b *Backend) InitP(src asm.Reg) { b.movRegReg(pReg, b.reg(src)) }
func (b *Backend) ReadP(dst asm.Reg) { b.movRegReg(b.reg(dst), pReg) }

// CallRuntime passes P as the implicit first Go-ABI argument (spec §4.4:
// "every runtime support routine takes the pointer-stack top as its first
// argument"), then args[0..] in the remaining three call-argument registers,
// loads addr into a scratch register, and calls it; the result lands in
// R0/RAX. Every internal/runtime routine's Go signature starts with a
// pstack uintptr parameter for exactly this reason.
func (b *Backend) CallRuntime(addr uintptr, args ...asm.Reg) {
	// Args move into their target registers before P overwrites
	// callArgRegs[0] (rax), since an arg's source register may itself be
	// rax/R0.
	for i, a := range args {
		if i+1 >= len(callArgRegs) {
			break
		}
		target := callArgRegs[i+1]
		src := b.reg(a)
		if target != src {
			b.movRegReg(target, src)
		}
	}
	b.movRegReg(callArgRegs[0], pReg)
	b.movRegImm64(r11, uint64(addr))
	b.buf.emitByte(rex(false, false, false, r11.needsRex()))
	b.buf.emitByte(0xff)
	b.buf.emitByte(modrm(3, 2, byte(r11.lowBits()))) // /2 = call r/m64
	if b.reg(asm.R0) != rax {
		b.movRegReg(b.reg(asm.R0), rax)
	}
}

// CallCompiled calls a previously-JITted native function pointer held in a
// register rather than a fixed immediate address. internal/codegen does not
// emit it: CALL goes through CallRuntime to runtime.Call, which compiles
// lazily and invokes the callee's native code from Go.
func (b *Backend) CallCompiled(target asm.Reg, args ...asm.Reg) {
	for i, a := range args {
		if i >= len(callArgRegs) {
			break
		}
		tr := callArgRegs[i]
		src := b.reg(a)
		if tr != src {
			b.movRegReg(tr, src)
		}
	}
	t := b.reg(target)
	b.buf.emitByte(rex(false, false, false, t.needsRex()))
	b.buf.emitByte(0xff)
	b.buf.emitByte(modrm(3, 2, byte(t.lowBits())))
	if b.reg(asm.R0) != rax {
		b.movRegReg(b.reg(asm.R0), rax)
	}
}

func (b *Backend) Prologue(dataSlots int) {
	b.pushReg(rbp)
	b.movRegReg(rbp, rsp)
	frameWords := ((dataSlots + 2 + 1) / 2) * 2 // rounded up to even, per spec §4.4
	b.buf.emitBytes(0x48, 0x81, 0xec)            // sub rsp, imm32
	b.buf.emitU32(uint32(frameWords * 8))
}

func (b *Backend) Epilogue() {
	b.movRegReg(rsp, rbp)
	b.buf.emitByte(0x58 + rbp.lowBits()) // pop rbp
	b.buf.emitByte(0xc3)                 // ret
}

// PointerPrologue subtracts (slots+2)*8 from P and fills the whole range
// with the singleton Undefined pointer, per spec §4.4: "this ensures the GC
// sees valid references while the frame is live."
func (b *Backend) PointerPrologue(ptrSlots int, undefinedSingleton uintptr) {
	total := (ptrSlots + 2) * 8
	b.buf.emitBytes(0x49, 0x81, 0xef) // sub r15, imm32
	b.buf.emitU32(uint32(total))
	b.movRegImm64(r10, uint64(undefinedSingleton))
	for off := 0; off < total; off += 8 {
		b.buf.emitByte(rex(true, r10.needsRex(), false, pReg.needsRex()))
		b.buf.emitByte(0x89)
		b.buf.emitByte(modrm(2, byte(r10.lowBits()), byte(pReg.lowBits())))
		b.buf.emitU32(uint32(off))
	}
}

// PointerEpilogue restores P: add r15, (ptrSlots+2)*8 — the inverse of
// PointerPrologue's subtraction.
func (b *Backend) PointerEpilogue(ptrSlots int) {
	total := (ptrSlots + 2) * 8
	b.buf.emitBytes(0x49, 0x81, 0xc7) // add r15, imm32
	b.buf.emitU32(uint32(total))
}

func (b *Backend) Return(valueReg asm.Reg) {
	if b.reg(valueReg) != rax {
		b.movRegReg(rax, b.reg(valueReg))
	}
}

func (b *Backend) Finalize() (uintptr, error) {
	b.buf.resolvePatches()
	size := len(b.buf.code)
	pageSize := unix.Getpagesize()
	mapped := ((size + pageSize - 1) / pageSize) * pageSize
	if mapped == 0 {
		mapped = pageSize
	}
	mem, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("amd64: mmap executable page: %w", err)
	}
	copy(mem, b.buf.code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return 0, fmt.Errorf("amd64: mprotect W^X transition: %w", err)
	}
	return uintptr(unsafe.Pointer(&mem[0])), nil
}
