package command

import (
	"strconv"
)

// Mode is the output format of a reply body.
type Mode uint8

const (
	ModeText Mode = iota
	ModePHP
	// ModeNone never carries a body. UDP requests use it.
	ModeNone
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "TEXT"
	case ModePHP:
		return "PHP_SERIALIZE"
	}
	return "NONE"
}

// ParseMode resolves the argument of the mode command.
func ParseMode(name string) (Mode, bool) {
	switch name {
	case "text":
		return ModeText, true
	case "php_serialize":
		return ModePHP, true
	}
	return ModeNone, false
}

// DefaultErrorCode is used for every protocol error.
const DefaultErrorCode = 1

// Reply is one framed answer to a request.
type Reply struct {
	TID    uint64
	HasTID bool
	Quiet  bool
	Mode   Mode
	Code   int
	Data   []byte
}

// Fail turns r into an error reply carrying msg.
func (r *Reply) Fail(msg string) {
	r.Code = DefaultErrorCode
	r.Data = append(r.Data[:0], msg...)
}

// Text appends a line to a text body.
func (r *Reply) Text(line string) {
	r.Mode = ModeText
	r.Data = append(r.Data, line...)
	r.Data = append(r.Data, '\n')
}

// AppendTo appends the wire form of r:
//
//	[TID: <n>\n]
//	ERROR <code> <msg>\n | OK\n[DATA: <mode>\n<body>]
//	\r\n
func (r *Reply) AppendTo(b []byte) []byte {
	if r.HasTID {
		b = append(b, "TID: "...)
		b = strconv.AppendUint(b, r.TID, 10)
		b = append(b, '\n')
	}
	if r.Code != 0 {
		b = append(b, "ERROR "...)
		b = strconv.AppendInt(b, int64(r.Code), 10)
		b = append(b, ' ')
		b = append(b, r.Data...)
		b = append(b, '\n')
	} else {
		b = append(b, "OK\n"...)
		if !r.Quiet && r.Mode != ModeNone && len(r.Data) > 0 {
			b = append(b, "DATA: "...)
			b = append(b, r.Mode.String()...)
			b = append(b, '\n')
			b = append(b, r.Data...)
		}
	}
	return append(b, "\r\n"...)
}
