// Package words splits a command line into protocol tokens.
//
// A token is a maximal run of characters of the same class. Separators
// ( , ( ) [ ] { } ; ! * # " / ) always form single-character tokens, "=<>|"
// and "&" form operator runs, whitespace splits, and every other byte is part
// of a word. The empty string marks the end of input.
package words

type class uint8

const (
	classSpace class = iota
	classWord
	classSeparator
	classCompare
	classAmp
)

func classOf(c byte) class {
	switch c {
	case ' ', '\n', '\r', '\t':
		return classSpace
	case ',', '(', ')', '[', ']', '{', '}', ';', '!', '*', '#', '"', '/':
		return classSeparator
	case '=', '<', '>', '|':
		return classCompare
	case '&':
		return classAmp
	}
	return classWord
}

// Words is a cursor over one command line.
type Words struct {
	line    string
	pos     int
	current string
	peeked  bool
	next    string
	nextPos int
}

// New returns a cursor positioned before the first token of line.
func New(line string) *Words {
	return &Words{line: line}
}

func (w *Words) skipSpace(pos int) int {
	for pos < len(w.line) && classOf(w.line[pos]) == classSpace {
		pos++
	}
	return pos
}

func (w *Words) scan(pos int) (string, int) {
	pos = w.skipSpace(pos)
	if pos >= len(w.line) {
		return "", pos
	}
	start := pos
	cls := classOf(w.line[pos])
	pos++
	if cls != classSeparator {
		for pos < len(w.line) && classOf(w.line[pos]) == cls {
			pos++
		}
	}
	return w.line[start:pos], pos
}

// Next advances to the next token and returns it.
func (w *Words) Next() string {
	if w.peeked {
		w.peeked = false
		w.current, w.pos = w.next, w.nextPos
		return w.current
	}
	w.current, w.pos = w.scan(w.pos)
	return w.current
}

// NextAll advances to the next whitespace-delimited chunk regardless of
// character classes. It is used for file paths.
func (w *Words) NextAll() string {
	w.peeked = false
	pos := w.skipSpace(w.pos)
	start := pos
	for pos < len(w.line) && classOf(w.line[pos]) != classSpace {
		pos++
	}
	w.current, w.pos = w.line[start:pos], pos
	return w.current
}

// Current returns the last token returned by Next.
func (w *Words) Current() string {
	return w.current
}

// Peek returns the token Next would return without consuming it.
func (w *Words) Peek() string {
	if !w.peeked {
		w.next, w.nextPos = w.scan(w.pos)
		w.peeked = true
	}
	return w.next
}

// Rest returns the unread remainder of the line without leading blanks.
func (w *Words) Rest() string {
	return w.line[w.skipSpace(w.pos):]
}
