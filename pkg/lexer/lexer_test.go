package lexer

import "testing"

func collect(src string) []Token {
	return New(src).Tokenize()
}

func TestIndentAttachedToLineStart(t *testing.T) {
	toks := collect("v := 0\nwhile v < 3:\n  print v\n  v += 1")
	// first token of each physical line should carry its indent.
	var gotIndents []int
	var lits []string
	for _, tok := range toks {
		if tok.Indent != NoIndent {
			gotIndents = append(gotIndents, tok.Indent)
			lits = append(lits, tok.Literal)
		}
	}
	want := []int{0, 0, 2, 2}
	if len(gotIndents) != len(want) {
		t.Fatalf("indents: got %v (lits %v), want %v", gotIndents, lits, want)
	}
	for i := range want {
		if gotIndents[i] != want[i] {
			t.Fatalf("indent[%d]: got %d want %d (lits %v)", i, gotIndents[i], want[i], lits)
		}
	}
}

func TestMidLineTokensHaveNoIndent(t *testing.T) {
	toks := collect("a + b")
	for i, tok := range toks {
		if i == 0 {
			continue
		}
		if tok.Type == TokenEOF {
			continue
		}
		if tok.Indent != NoIndent {
			t.Fatalf("token %d (%q) unexpectedly carries indent %d", i, tok.Literal, tok.Indent)
		}
	}
}

func TestKeywordsAndOperators(t *testing.T) {
	toks := collect("fn f(a, b=1): return a ?? b")
	var types []TokenType
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	want := []TokenType{
		TokenFn, TokenIdent, TokenLParen, TokenIdent, TokenComma, TokenIdent,
		TokenAssign, TokenInt, TokenRParen, TokenColon, TokenReturn, TokenIdent,
		TokenCoalesce, TokenIdent, TokenEOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(types), len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, types[i], want[i])
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks := collect(`"a\tb\n\x41\u{1F600}"`)
	if toks[0].Type != TokenString {
		t.Fatalf("expected string token, got %v", toks[0].Type)
	}
	want := "a\tb\nA\U0001F600"
	if toks[0].Literal != want {
		t.Fatalf("got %q want %q", toks[0].Literal, want)
	}
}

func TestInvalidEscapeIsError(t *testing.T) {
	toks := collect(`"bad \q"`)
	if toks[0].Type != TokenError {
		t.Fatalf("expected error token, got %v", toks[0].Type)
	}
}

func TestCommentsAndBlankLinesSkipped(t *testing.T) {
	toks := collect("# hi\n\nv := 1 # trailing\n")
	var lits []string
	for _, tok := range toks {
		if tok.Type != TokenEOF {
			lits = append(lits, tok.Literal)
		}
	}
	want := []string{"v", ":=", "1"}
	if len(lits) != len(want) {
		t.Fatalf("got %v want %v", lits, want)
	}
}

func TestDoubleSemicolon(t *testing.T) {
	toks := collect("a;; b")
	if toks[1].Type != TokenDoubleSemi {
		t.Fatalf("expected ;; got %v", toks[1].Type)
	}
}

func TestNegativeNumberIsTwoTokens(t *testing.T) {
	// unary minus is a prefix operator, not part of the numeric literal,
	// so the parser (not the lexer) decides the sign.
	toks := collect("-5")
	if toks[0].Type != TokenMinus || toks[1].Type != TokenInt {
		t.Fatalf("got %v %v", toks[0].Type, toks[1].Type)
	}
}

func TestFloatExponent(t *testing.T) {
	toks := collect("1.5e10 2e-3")
	if toks[0].Type != TokenFloat || toks[0].Literal != "1.5e10" {
		t.Fatalf("got %v %q", toks[0].Type, toks[0].Literal)
	}
	if toks[1].Type != TokenFloat || toks[1].Literal != "2e-3" {
		t.Fatalf("got %v %q", toks[1].Type, toks[1].Literal)
	}
}
