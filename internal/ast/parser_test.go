package ast

import (
	"testing"

	"sdynjit/internal/lexer"
)

func parseString(t *testing.T, src string) (*Node, []error) {
	t.Helper()
	toks := lexer.New(src).ScanTokens()
	p := NewParser(toks)
	n := p.Parse()
	return n, p.Errors
}

func assertParseOK(t *testing.T, src string) *Node {
	t.Helper()
	n, errs := parseString(t, src)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors for %q: %v", src, errs)
	}
	return n
}

func TestParseGlobalCall(t *testing.T) {
	top := assertParseOK(t, "main();")
	if len(top.Children) != 1 || top.Children[0].Kind != GlobalCall {
		t.Fatalf("expected single GlobalCall child, got %#v", top.Children)
	}
	if top.Children[0].Lexeme != "main" {
		t.Fatalf("expected lexeme 'main', got %q", top.Children[0].Lexeme)
	}
}

func TestParseFunDecl(t *testing.T) {
	top := assertParseOK(t, `
		function add(a, b) {
			var r;
			return a + b;
		}
		add();
	`)
	if len(top.Children) != 2 {
		t.Fatalf("expected 2 top-level children, got %d", len(top.Children))
	}
	fn := top.Children[0]
	if fn.Kind != FunDecl || fn.Lexeme != "add" {
		t.Fatalf("expected FunDecl 'add', got %#v", fn)
	}
	if len(fn.Children) != 3 {
		t.Fatalf("FunDecl should have 3 children (params, vardecls, statements), got %d", len(fn.Children))
	}
	params := fn.Children[0]
	if len(params.Children) != 2 || params.Children[0].Lexeme != "a" || params.Children[1].Lexeme != "b" {
		t.Fatalf("unexpected params: %#v", params.Children)
	}
	stmts := fn.Children[2]
	if len(stmts.Children) != 1 || stmts.Children[0].Kind != Return {
		t.Fatalf("expected single return statement, got %#v", stmts.Children)
	}
	ret := stmts.Children[0]
	if ret.Children[0].Kind != Add {
		t.Fatalf("expected Add expr in return, got %v", ret.Children[0].Kind)
	}
}

func TestParseIfElse(t *testing.T) {
	top := assertParseOK(t, `
		function f() {
			if (true) {
				return 1;
			} else {
				return 2;
			}
		}
		f();
	`)
	stmts := top.Children[0].Children[2]
	ifNode := stmts.Children[0]
	if ifNode.Kind != If {
		t.Fatalf("expected If, got %v", ifNode.Kind)
	}
	if ifNode.Children[0].Kind != True {
		t.Fatalf("expected True condition, got %v", ifNode.Children[0].Kind)
	}
	if ifNode.Children[2] == nil {
		t.Fatalf("expected non-nil else clause")
	}
}

func TestParseIfNoElse(t *testing.T) {
	top := assertParseOK(t, `
		function f() {
			if (true) {
				return 1;
			}
		}
		f();
	`)
	ifNode := top.Children[0].Children[2].Children[0]
	if ifNode.Children[2] != nil {
		t.Fatalf("expected nil else clause, got %#v", ifNode.Children[2])
	}
}

func TestParseAssignTargets(t *testing.T) {
	top := assertParseOK(t, `
		function f() {
			var x;
			x = 1;
			x.y = 2;
			x[0] = 3;
		}
		f();
	`)
	stmts := top.Children[0].Children[2]
	for i, want := range []Kind{Assign, Assign, Assign} {
		if stmts.Children[i].Kind != want {
			t.Fatalf("statement %d: got %v, want %v", i, stmts.Children[i].Kind, want)
		}
	}
	if stmts.Children[1].Children[0].Kind != Member {
		t.Fatalf("expected Member lvalue, got %v", stmts.Children[1].Children[0].Kind)
	}
	if stmts.Children[2].Children[0].Kind != Index {
		t.Fatalf("expected Index lvalue, got %v", stmts.Children[2].Children[0].Kind)
	}
}

func TestParsePrecedence(t *testing.T) {
	top := assertParseOK(t, `
		function f() {
			return 1 + 2 * 3;
		}
		f();
	`)
	expr := top.Children[0].Children[2].Children[0].Children[0]
	if expr.Kind != Add {
		t.Fatalf("expected top-level Add, got %v", expr.Kind)
	}
	if expr.Children[1].Kind != Mul {
		t.Fatalf("expected Mul on rhs of Add, got %v", expr.Children[1].Kind)
	}
}

func TestParseIntrinsicCall(t *testing.T) {
	top := assertParseOK(t, `
		function f() {
			$print(1, 2);
		}
		f();
	`)
	call := top.Children[0].Children[2].Children[0]
	if call.Kind != IntrinsicCall || call.Lexeme != "print" {
		t.Fatalf("expected IntrinsicCall 'print', got %#v", call)
	}
	if len(call.Children[0].Children) != 2 {
		t.Fatalf("expected 2 args, got %d", len(call.Children[0].Children))
	}
}

func TestParseObjectAndMemberChain(t *testing.T) {
	top := assertParseOK(t, `
		function f() {
			var o;
			o = {};
			return o.x.y;
		}
		f();
	`)
	stmts := top.Children[0].Children[2]
	assign := stmts.Children[0]
	if assign.Children[1].Kind != Obj {
		t.Fatalf("expected Obj rhs, got %v", assign.Children[1].Kind)
	}
	ret := stmts.Children[1].Children[0]
	if ret.Kind != Member || ret.Lexeme != "y" {
		t.Fatalf("expected outer Member 'y', got %#v", ret)
	}
	if ret.Children[0].Kind != Member || ret.Children[0].Lexeme != "x" {
		t.Fatalf("expected inner Member 'x', got %#v", ret.Children[0])
	}
}

func TestParseErrorRecovery(t *testing.T) {
	_, errs := parseString(t, "function ( ) { }")
	if len(errs) == 0 {
		t.Fatalf("expected parse errors for malformed function declaration")
	}
}
