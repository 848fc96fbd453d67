package ir

import (
	"testing"

	"github.com/kr/pretty"

	"sdynjit/internal/ast"
	"sdynjit/internal/lexer"
)

// buildFunc parses one function declaration and runs it through
// Build/TypeFlow/LastUse/Alloc, the same pipeline internal/driver drives.
func buildFunc(t *testing.T, src string) *Function {
	t.Helper()
	toks := lexer.New(src).ScanTokens()
	p := ast.NewParser(toks)
	top := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	if len(top.Children) != 1 || top.Children[0].Kind != ast.FunDecl {
		t.Fatalf("expected exactly one FUNDECL, got %#v", top.Children)
	}
	fn, err := Build(top.Children[0])
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	TypeFlow(fn)
	LastUse(fn)
	Alloc(fn)
	return fn
}

// Spec §8 invariant: every instruction's uidx points to a predecessor or
// itself, and following it always terminates.
func TestUidxChainTerminates(t *testing.T) {
	fn := buildFunc(t, `
		function f(a) {
			var x;
			if (a < 2) { x = 1; } else { x = 2; }
			return x;
		}
	`)
	for i, instr := range fn.Instrs {
		idx := i + 1
		seen := map[int]bool{}
		cur := idx
		for {
			if seen[cur] {
				t.Fatalf("uidx chain from instr %d cycles without reaching a fixed point", idx)
			}
			seen[cur] = true
			next := Find(fn, cur)
			if next == cur {
				break
			}
			cur = next
		}
		_ = instr
	}
}

// Spec §8 invariant: after storage allocation, two instructions with the
// same canonical representative share one storage slot.
func TestCanonicalInstructionsShareStorage(t *testing.T) {
	fn := buildFunc(t, `
		function f(a) {
			var x;
			if (a < 2) { x = 1; } else { x = 2; }
			return x;
		}
	`)
	for i, instr := range fn.Instrs {
		idx := i + 1
		canon := Find(fn, idx)
		canonInstr := fn.At(canon)
		if instr.Storage != canonInstr.Storage || instr.Slot != canonInstr.Slot {
			// %# v deep-dumps the two full Instr structs side by side —
			// far more useful here than the bare field mismatch above,
			// since the fix usually lives in a field neither side prints.
			t.Fatalf("instr %d disagrees with its canonical rep %d:\n%# v\nvs\n%# v",
				idx, canon, pretty.Formatter(instr), pretty.Formatter(canonInstr))
		}
	}
}

// Spec §8 invariant: every ARG feeding a CALL/INTRINSICCALL ranges over a
// dense 0-based prefix.
func TestArgIndicesAreDensePrefix(t *testing.T) {
	fn := buildFunc(t, `
		function f(a, b) {
			return $print(a, b);
		}
	`)
	var argImms []int64
	for _, instr := range fn.Instrs {
		if instr.Op == OpArg {
			argImms = append(argImms, instr.Imm)
		}
	}
	for i, imm := range argImms {
		if imm != int64(i) {
			t.Fatalf("ARG immediates = %v, want a dense 0-based prefix", argImms)
		}
	}
}

// Spec §3/§4.1 invariant: the instructions immediately preceding a CALL or
// INTRINSICCALL are exactly its ARGs, with no other instruction interleaved
// — even when a later argument is a non-trivial sub-expression whose own
// instructions would otherwise land between two ARGs.
func TestArgsAreContiguousBeforeCall(t *testing.T) {
	fn := buildFunc(t, `
		function f(g, a, b) {
			return g(a, b - 1, $print(b));
		}
	`)
	for i, instr := range fn.Instrs {
		if instr.Op != OpCall && instr.Op != OpIntrinsicCall {
			continue
		}
		want := 0
		switch instr.Op {
		case OpCall:
			want = 4 // receiver + 3 positional args
		case OpIntrinsicCall:
			want = 1
		}
		got := 0
		for j := i - 1; j >= 0 && fn.Instrs[j].Op == OpArg; j-- {
			got++
		}
		if got != want {
			t.Fatalf("instr %d (%v) has %d contiguous preceding ARGs, want %d:\n%# v",
				i+1, instr.Op, got, want, pretty.Formatter(fn.Instrs))
		}
	}
}

// Spec §8 invariant: for every IF there is exactly one matching IFELSE at
// a later index, and for every IFELSE exactly one matching IFEND.
func TestIfElseEndWiring(t *testing.T) {
	fn := buildFunc(t, `
		function f(a) {
			var x;
			if (a < 2) { x = 1; } else { x = 2; }
			return x;
		}
	`)
	for i, instr := range fn.Instrs {
		idx := i + 1
		switch instr.Op {
		case OpIfElse:
			if fn.At(instr.Left) == nil || fn.At(instr.Left).Op != OpIf {
				t.Fatalf("IFELSE %d does not back-reference an IF", idx)
			}
		case OpIfEnd:
			if fn.At(instr.Left) == nil || fn.At(instr.Left).Op != OpIfElse {
				t.Fatalf("IFEND %d does not back-reference an IFELSE", idx)
			}
		}
	}
}
