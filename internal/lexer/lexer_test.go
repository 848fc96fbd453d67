package lexer

import (
	"testing"

	"sdynjit/internal/token"
)

func scanTypes(t *testing.T, src string) []token.Type {
	t.Helper()
	toks := New(src).ScanTokens()
	types := make([]token.Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestScanTokensBasic(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []token.Type
	}{
		{"empty", "", []token.Type{token.EOF}},
		{"number", "42", []token.Type{token.Number, token.EOF}},
		{"float", "3.5", []token.Type{token.Number, token.EOF}},
		{"string", `"hi"`, []token.Type{token.String, token.EOF}},
		{"ident", "foo", []token.Type{token.Ident, token.EOF}},
		{"keywords", "var if else while return function true false typeof",
			[]token.Type{token.KwVar, token.KwIf, token.KwElse, token.KwWhile, token.KwReturn,
				token.KwFunction, token.KwTrue, token.KwFalse, token.KwTypeof, token.EOF}},
		{"assign and eq", "= ==", []token.Type{token.Assign, token.Eq, token.EOF}},
		{"comparisons", "< > <= >= != ==",
			[]token.Type{token.Lt, token.Gt, token.Le, token.Ge, token.Ne, token.Eq, token.EOF}},
		{"logical", "&& ||", []token.Type{token.And, token.Or, token.EOF}},
		{"arithmetic", "+ - * / %",
			[]token.Type{token.Add, token.Sub, token.Mul, token.Div, token.Mod, token.EOF}},
		{"punctuation", "( ) { } [ ] ; , .",
			[]token.Type{token.LParen, token.RParen, token.LBrace, token.RBrace, token.LBracket,
				token.RBracket, token.Semi, token.Comma, token.Dot, token.EOF}},
		{"intrinsic call", "$print(1)",
			[]token.Type{token.Intrinsic, token.LParen, token.Number, token.RParen, token.EOF}},
		{"line comment skipped", "1 // trailing\n2",
			[]token.Type{token.Number, token.Number, token.EOF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanTypes(t, tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("%s: got %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("%s: token %d = %s, want %s", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScanLineNumbers(t *testing.T) {
	toks := New("1\n2\n3").ScanTokens()
	want := []int{1, 2, 3, 3}
	for i, tok := range toks {
		if tok.Line != want[i] {
			t.Errorf("token %d on line %d, want %d", i, tok.Line, want[i])
		}
	}
}

func TestScanUnterminatedString(t *testing.T) {
	toks := New(`"abc`).ScanTokens()
	if toks[0].Type != token.Err {
		t.Fatalf("expected Err token for unterminated string, got %s", toks[0].Type)
	}
}

func TestScanIntrinsicRequiresName(t *testing.T) {
	toks := New("$").ScanTokens()
	if toks[0].Type != token.Err {
		t.Fatalf("expected Err token for bare '$', got %s", toks[0].Type)
	}
}
