package users

import (
	"strconv"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/phpser"
)

// MaxIDLen is the longest id a binary dump can hold.
const MaxIDLen = 255

// IDKind selects how user ids are parsed, rendered and dumped.
type IDKind uint8

const (
	IDInt IDKind = iota
	IDInt64
	IDString
)

// ParseIDKind maps a configuration value to an IDKind.
func ParseIDKind(s string) (IDKind, bool) {
	switch s {
	case "int", "":
		return IDInt, true
	case "int64":
		return IDInt64, true
	case "string":
		return IDString, true
	}
	return IDInt, false
}

// String is the name reported by the info command.
func (k IDKind) String() string {
	switch k {
	case IDInt64:
		return "INTEGER 64"
	case IDString:
		return "STRING"
	}
	return "INTEGER"
}

// Normalize turns a protocol token into the canonical id key. Numeric kinds
// keep the leading digits, like the rest of the protocol does.
func (k IDKind) Normalize(raw string) string {
	switch k {
	case IDInt:
		return strconv.FormatUint(uint64(uint32(field.ToUint(raw))), 10)
	case IDInt64:
		return strconv.FormatUint(field.ToUint(raw), 10)
	}
	return raw
}

// AppendPHP appends the id as i:n; or s:len:"id";.
func (k IDKind) AppendPHP(b []byte, id string) []byte {
	if k == IDString {
		return phpser.AppendString(b, id)
	}
	b = append(b, "i:"...)
	b = append(b, id...)
	return append(b, ';')
}

func (k IDKind) appendText(b []byte, id string) []byte {
	if k == IDString {
		return codec.AppendQuoted(b, id)
	}
	return append(b, id...)
}

func (k IDKind) parseText(p *codec.Parser) (string, error) {
	if k == IDString {
		id, err := p.ReadString()
		if err == nil && len(id) > MaxIDLen {
			return "", p.Errorf("user id longer than %d bytes", MaxIDLen)
		}
		return id, err
	}
	if k == IDInt {
		v := p.ReadInt()
		if v < 0 {
			return "", p.Errorf("invalid user id")
		}
		return strconv.FormatUint(uint64(uint32(v)), 10), nil
	}
	return strconv.FormatUint(p.ReadUint(), 10), nil
}

func (k IDKind) dumpBinary(w *codec.Writer, id string) {
	switch k {
	case IDInt:
		w.Uint32(uint32(field.ToUint(id)))
	case IDInt64:
		w.Uint64(field.ToUint(id))
	default:
		w.String8(id)
	}
}

func (k IDKind) parseBinary(r *codec.Reader) (string, error) {
	switch k {
	case IDInt:
		v, err := r.Uint32()
		return strconv.FormatUint(uint64(v), 10), err
	case IDInt64:
		v, err := r.Uint64()
		return strconv.FormatUint(v, 10), err
	}
	return r.String8()
}
