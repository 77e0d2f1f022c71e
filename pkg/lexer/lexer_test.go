package lexer

import "testing"

func TestScanBasics(t *testing.T) {
	src := `policy "p" { file "/tmp/x" { mode: 0644 } }`
	l := New("t.pol", src)

	want := []TokenType{
		KW_POLICY, STRING, LBRACE,
		IDENT, STRING, LBRACE,
		IDENT, COLON, NUMBER,
		RBRACE, RBRACE, EOF,
	}
	for i, w := range want {
		tok := l.Next()
		if tok.Type != w {
			t.Fatalf("token %d: got %s, want %s (%+v)", i, tok.Type, w, tok)
		}
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := New("t.pol", `host "h"`)
	p1 := l.Peek()
	p2 := l.Peek()
	if p1 != p2 {
		t.Fatalf("peek not idempotent: %+v != %+v", p1, p2)
	}
	n := l.Next()
	if n != p1 {
		t.Fatalf("next after peek mismatched: %+v != %+v", n, p1)
	}
}

func TestArrowVsColon(t *testing.T) {
	l := New("t.pol", `a => b : c`)
	if tok := l.Next(); tok.Type != IDENT {
		t.Fatalf("got %v", tok)
	}
	if tok := l.Next(); tok.Type != ARROW {
		t.Fatalf("got %v, want ARROW", tok)
	}
	l.Next() // b
	if tok := l.Next(); tok.Type != COLON {
		t.Fatalf("got %v, want COLON", tok)
	}
}

func TestLineTracking(t *testing.T) {
	l := New("t.pol", "a\nb\nc")
	l.Next()
	tok := l.Next()
	if tok.Line != 2 {
		t.Fatalf("line = %d, want 2", tok.Line)
	}
	tok = l.Next()
	if tok.Line != 3 {
		t.Fatalf("line = %d, want 3", tok.Line)
	}
}

func TestStringEscapes(t *testing.T) {
	l := New("t.pol", `"a\nb"`)
	tok := l.Next()
	if tok.Type != STRING || tok.Literal != "a\nb" {
		t.Fatalf("got %+v", tok)
	}
}
