// Package codec contains the low level readers and writers of the dump formats.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SyntaxError reports a malformed text dump.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parser reads the brace-delimited text dump grammar one byte at a time.
type Parser struct {
	r    *bufio.Reader
	line int
}

// NewParser wraps r.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReader(r), line: 1}
}

// Line returns the current line, starting at 1.
func (p *Parser) Line() int {
	return p.line
}

// Errorf builds a SyntaxError at the current line.
func (p *Parser) Errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) next() (byte, bool) {
	c, err := p.r.ReadByte()
	if err != nil {
		return 0, false
	}
	if c == '\n' {
		p.line++
	}
	return c, true
}

func (p *Parser) peek() (byte, bool) {
	buf, err := p.r.Peek(1)
	if err != nil {
		return 0, false
	}
	return buf[0], true
}

func charName(c byte, ok bool) string {
	if !ok {
		return "EOF"
	}
	if c == '\n' {
		return `\n`
	}
	return string(c)
}

// Expect consumes s byte by byte and fails on the first mismatch.
func (p *Parser) Expect(s string) error {
	for i := 0; i < len(s); i++ {
		c, ok := p.next()
		if !ok || c != s[i] {
			return p.Errorf("unexpected \"%s\" expected \"%s\"", charName(c, ok), charName(s[i], true))
		}
	}
	return nil
}

// TestNext consumes c if it is the next byte.
func (p *Parser) TestNext(c byte) bool {
	next, ok := p.peek()
	if !ok || next != c {
		return false
	}
	p.next()
	return true
}

func (p *Parser) readNumber() string {
	var b strings.Builder
	for {
		c, ok := p.peek()
		if !ok || !((c >= '0' && c <= '9') || c == '-') {
			break
		}
		p.next()
		b.WriteByte(c)
	}
	return b.String()
}

// numericPrefix keeps an optional leading minus and the digits after it.
func numericPrefix(s string) string {
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return ""
	}
	return s[:end]
}

// ReadInt reads a signed integer. It returns -1 when no number is present.
func (p *Parser) ReadInt() int64 {
	raw := numericPrefix(p.readNumber())
	if raw == "" {
		return -1
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1
	}
	return v
}

// ReadUint reads an unsigned integer. It returns 0 when no number is present.
func (p *Parser) ReadUint() uint64 {
	raw := numericPrefix(p.readNumber())
	if raw == "" || raw[0] == '-' {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ReadString reads a double quoted string with backslash escaped quotes.
func (p *Parser) ReadString() (string, error) {
	c, ok := p.next()
	if !ok || c != '"' {
		return "", p.Errorf("unexpected \"%s\" expected \"%s\"", charName(c, ok), `"`)
	}
	var b strings.Builder
	for {
		c, ok := p.next()
		if !ok {
			return "", p.Errorf("unterminated string")
		}
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.TestNext('"') {
				b.WriteByte('"')
				continue
			}
			p.TestNext('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}

// ReadUntil reads up to, but not including, c.
func (p *Parser) ReadUntil(c byte) string {
	var b strings.Builder
	for {
		next, ok := p.peek()
		if !ok || next == c {
			return b.String()
		}
		p.next()
		b.WriteByte(next)
	}
}

// AtEOF reports whether the input is exhausted.
func (p *Parser) AtEOF() bool {
	_, ok := p.peek()
	return !ok
}

// AppendQuoted appends s in the quoting understood by ReadString.
func AppendQuoted(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return append(b, '"')
}
