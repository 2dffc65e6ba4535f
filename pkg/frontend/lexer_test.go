package frontend

import "testing"

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	l := newLexer("fn var return if else while foo_bar")
	wantKinds := []tokenKind{tokFn, tokVar, tokReturn, tokIf, tokElse, tokWhile, tokIdent}
	for i, want := range wantKinds {
		tok := l.next()
		if tok.kind != want {
			t.Errorf("token %d: kind = %d, want %d (%+v)", i, tok.kind, want, tok)
		}
	}
}

func TestLexerIntegerLiteral(t *testing.T) {
	l := newLexer("12345")
	tok := l.next()
	if tok.kind != tokInt || tok.val != "12345" {
		t.Errorf("got %+v, want int 12345", tok)
	}
}

func TestLexerTwoCharOperators(t *testing.T) {
	l := newLexer("<= >= == != && ||")
	wantKinds := []tokenKind{tokLessEq, tokGreaterEq, tokEqEq, tokNotEq, tokAndAnd, tokOrOr}
	for i, want := range wantKinds {
		tok := l.next()
		if tok.kind != want {
			t.Errorf("token %d: kind = %d, want %d (%+v)", i, tok.kind, want, tok)
		}
	}
}

func TestLexerSingleCharPunctuation(t *testing.T) {
	l := newLexer("(){}:,;*=+-<>^")
	wantKinds := []tokenKind{
		tokLParen, tokRParen, tokLBrace, tokRBrace, tokColon, tokComma,
		tokSemicolon, tokStar, tokAssign, tokPlus, tokMinus, tokLess, tokGreater, tokCaret,
	}
	for i, want := range wantKinds {
		tok := l.next()
		if tok.kind != want {
			t.Errorf("token %d: kind = %d, want %d (%+v)", i, tok.kind, want, tok)
		}
	}
}

func TestLexerSkipsLineCommentsAndWhitespace(t *testing.T) {
	l := newLexer("  // a comment\n\tfn")
	tok := l.next()
	if tok.kind != tokFn {
		t.Errorf("got %+v, want fn", tok)
	}
}

func TestLexerTracksLineAndColumn(t *testing.T) {
	l := newLexer("fn\nfoo")
	l.next() // fn
	tok := l.next()
	if tok.line != 2 || tok.col != 1 {
		t.Errorf("second token position = %d:%d, want 2:1", tok.line, tok.col)
	}
}

func TestLexerEmitsEOF(t *testing.T) {
	l := newLexer("")
	tok := l.next()
	if tok.kind != tokEOF {
		t.Errorf("got %+v, want EOF", tok)
	}
}

func TestLexerUnknownCharIsError(t *testing.T) {
	l := newLexer("@")
	tok := l.next()
	if tok.kind != tokError {
		t.Errorf("got %+v, want tokError", tok)
	}
}
