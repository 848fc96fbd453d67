// Package amd64 is the one concrete internal/asm.Assembler backend: it
// encodes real amd64 machine bytes for the moves, arithmetic, comparisons,
// and control flow THE CORE's emitter (internal/codegen) needs, and maps
// the finished buffer executable via golang.org/x/sys/unix.
//
// Byte-emission style (emitByte/emitBytes/emitU32 appending to a growing
// []byte, plus a forward-reference/patch table for jump targets) is
// grounded in the retrieved pack's other native-codegen examples
// (std-compiler-backend_linux_x64.go, arch-amd64-compiler.go), which all
// share this exact shape; the teacher itself never emits machine code.
package amd64

import "encoding/binary"

// register is the real amd64 register encoding (3-bit field plus the REX.B/
// R/X extension bit for r8-r15).
type register int

const (
	rax register = iota
	rcx
	rdx
	rbx
	rsp
	rbp
	rsi
	rdi
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
)

func (r register) lowBits() byte  { return byte(r) & 0x7 }
func (r register) needsRex() bool { return r >= r8 }

// buffer is the growing machine-code byte buffer plus label bookkeeping,
// matching the other_examples backends' emitByte/emitBytes/emitU32 shape.
type buffer struct {
	code    []byte
	labels  []int  // labels[l] is the bound code offset, or -1 if unbound
	patches []patch
}

type patch struct {
	label int
	at    int // offset of the rel32 field to patch
}

func newBuffer() *buffer {
	return &buffer{}
}

func (b *buffer) emitByte(v byte) {
	b.code = append(b.code, v)
}

func (b *buffer) emitBytes(vs ...byte) {
	b.code = append(b.code, vs...)
}

func (b *buffer) emitU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.code = append(b.code, tmp[:]...)
}

func (b *buffer) emitU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.code = append(b.code, tmp[:]...)
}

func (b *buffer) here() int { return len(b.code) }

func (b *buffer) newLabel() int {
	b.labels = append(b.labels, -1)
	return len(b.labels) - 1
}

func (b *buffer) bind(l int) {
	b.labels[l] = b.here()
}

// emitRel32Patch emits a placeholder rel32 and records it for resolution
// once l is bound (it may already be bound, in which case it resolves
// immediately — matching spec §4.4's backward WEND jump).
func (b *buffer) emitRel32Patch(l int) {
	at := b.here()
	b.emitU32(0)
	if b.labels[l] >= 0 {
		b.patchRel32At(at, b.labels[l])
		return
	}
	b.patches = append(b.patches, patch{label: l, at: at})
}

func (b *buffer) patchRel32At(at, target int) {
	rel := int32(target - (at + 4))
	binary.LittleEndian.PutUint32(b.code[at:at+4], uint32(rel))
}

// resolvePatches fixes up every patch whose label is now bound; called
// before Finalize. Every IF/WHILE label in one function's IR is bound by
// the time emission of that function completes (spec §8: "exactly one
// matching IFELSE/IFEND/WCOND/WEND"), so no patch should remain unresolved.
func (b *buffer) resolvePatches() {
	remaining := b.patches[:0]
	for _, p := range b.patches {
		target := b.labels[p.label]
		if target < 0 {
			remaining = append(remaining, p)
			continue
		}
		b.patchRel32At(p.at, target)
	}
	b.patches = remaining
}

// rex builds a REX prefix byte: W (64-bit operand), R (reg field ext), X
// (index field ext, unused here), B (rm/base field ext).
func rex(w, r, x, bbit bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if bbit {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7)
}
