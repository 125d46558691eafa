package codec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParserReadsGrammar(t *testing.T) {
	p := NewParser(strings.NewReader("u{42:-7:\"a\\\"b\"}\nx"))
	if err := p.Expect("u{"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := p.ReadInt(); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if err := p.Expect(":"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := p.ReadInt(); v != -7 {
		t.Fatalf("expected -7, got %d", v)
	}
	if err := p.Expect(":"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := p.ReadString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != `a"b` {
		t.Fatalf("expected a\"b, got %q", s)
	}
	if err := p.Expect("}\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Line() != 2 {
		t.Fatalf("expected line 2, got %d", p.Line())
	}
}

func TestParserErrorCarriesLine(t *testing.T) {
	p := NewParser(strings.NewReader("a\nb\nc"))
	err := p.Expect("a\nb\nd")
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if syn.Line != 3 {
		t.Fatalf("expected line 3, got %d", syn.Line)
	}
	if syn.Msg != `unexpected "c" expected "d"` {
		t.Fatalf("unexpected message: %q", syn.Msg)
	}
}

func TestParserReadIntMissing(t *testing.T) {
	p := NewParser(strings.NewReader(":"))
	if v := p.ReadInt(); v != -1 {
		t.Fatalf("expected -1, got %d", v)
	}
	if !p.TestNext(':') {
		t.Fatalf("expected ':' to remain")
	}
	if !p.AtEOF() {
		t.Fatalf("expected EOF")
	}
}

func TestQuotedRoundTrip(t *testing.T) {
	for _, in := range []string{"", "plain", `q"uote`, `back\slash`, `end\`} {
		raw := AppendQuoted(nil, in)
		out, err := NewParser(bytes.NewReader(raw)).ReadString()
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in, err)
		}
		if out != in {
			t.Fatalf("expected %q, got %q", in, out)
		}
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Uint8(7)
	w.Uint16(4242)
	w.Int32(-3)
	w.Int64(1 << 40)
	w.Sized(-2, 1)
	w.String8("visits")
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := NewReader(&buf)
	if v, _ := r.Uint8(); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	if v, _ := r.Uint16(); v != 4242 {
		t.Fatalf("expected 4242, got %d", v)
	}
	if v, _ := r.Int32(); v != -3 {
		t.Fatalf("expected -3, got %d", v)
	}
	if v, _ := r.Int64(); v != 1<<40 {
		t.Fatalf("expected 1<<40, got %d", v)
	}
	if v, _ := r.Sized(1, true); v != -2 {
		t.Fatalf("expected -2, got %d", v)
	}
	if s, _ := r.String8(); s != "visits" {
		t.Fatalf("expected visits, got %q", s)
	}
	if _, err := r.Uint8(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestBinaryLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Uint16(0x0102)
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.Bytes(); got[0] != 0x02 || got[1] != 0x01 {
		t.Fatalf("expected little endian bytes, got %v", got)
	}
}
