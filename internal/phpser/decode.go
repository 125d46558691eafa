package phpser

import (
	"fmt"
	"strconv"
	"strings"
)

// Array is a decoded PHP array. Keys are int64 or string and keep their
// serialized order.
type Array struct {
	Keys   []any
	Values []any
}

// Len returns the number of entries.
func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Keys)
}

// Get returns the value stored under key. Integer keys match their decimal
// form.
func (a *Array) Get(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	for i, k := range a.Keys {
		switch k := k.(type) {
		case string:
			if k == key {
				return a.Values[i], true
			}
		case int64:
			if strconv.FormatInt(k, 10) == key {
				return a.Values[i], true
			}
		}
	}
	return nil, false
}

// Int returns the integer under key, or 0.
func (a *Array) Int(key string) int64 {
	v, _ := a.Get(key)
	n, _ := v.(int64)
	return n
}

// String returns the string under key, or "".
func (a *Array) String(key string) string {
	v, _ := a.Get(key)
	s, _ := v.(string)
	return s
}

// Bool returns the boolean under key, or false.
func (a *Array) Bool(key string) bool {
	v, _ := a.Get(key)
	b, _ := v.(bool)
	return b
}

// Array returns the nested array under key, or nil.
func (a *Array) Array(key string) *Array {
	v, _ := a.Get(key)
	arr, _ := v.(*Array)
	return arr
}

// Decode parses one serialized value: nil, bool, int64, float64, string or
// *Array.
func Decode(s string) (any, error) {
	d := &decoder{s: s}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.s) {
		return nil, d.errorf("trailing data")
	}
	return v, nil
}

// DecodeArray parses a serialized array.
func DecodeArray(s string) (*Array, error) {
	v, err := Decode(s)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(*Array)
	if !ok {
		return nil, fmt.Errorf("php: expected array, got %T", v)
	}
	return arr, nil
}

type decoder struct {
	s   string
	pos int
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("php: %s at offset %d", fmt.Sprintf(format, args...), d.pos)
}

func (d *decoder) expect(lit string) error {
	if !strings.HasPrefix(d.s[d.pos:], lit) {
		return d.errorf("expected %q", lit)
	}
	d.pos += len(lit)
	return nil
}

// until returns the text up to sep and consumes sep.
func (d *decoder) until(sep byte) (string, error) {
	i := strings.IndexByte(d.s[d.pos:], sep)
	if i < 0 {
		return "", d.errorf("expected %q", sep)
	}
	out := d.s[d.pos : d.pos+i]
	d.pos += i + 1
	return out, nil
}

func (d *decoder) number() (int64, error) {
	raw, err := d.until(';')
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, d.errorf("invalid integer %q", raw)
	}
	return n, nil
}

func (d *decoder) value() (any, error) {
	if d.pos+1 >= len(d.s) {
		return nil, d.errorf("unexpected end")
	}
	tag := d.s[d.pos]
	if tag == 'N' {
		return nil, d.expect("N;")
	}
	if err := d.expect(string(tag) + ":"); err != nil {
		return nil, err
	}
	switch tag {
	case 'b':
		n, err := d.number()
		return n != 0, err
	case 'i':
		return d.number()
	case 'd':
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, d.errorf("invalid float %q", raw)
		}
		return f, nil
	case 's':
		return d.str()
	case 'a':
		return d.array()
	}
	return nil, d.errorf("unknown type %q", tag)
}

func (d *decoder) str() (string, error) {
	raw, err := d.until(':')
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", d.errorf("invalid length %q", raw)
	}
	if err := d.expect(`"`); err != nil {
		return "", err
	}
	if d.pos+n > len(d.s) {
		return "", d.errorf("string overflows input")
	}
	out := d.s[d.pos : d.pos+n]
	d.pos += n
	return out, d.expect(`";`)
}

func (d *decoder) array() (*Array, error) {
	raw, err := d.until(':')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, d.errorf("invalid length %q", raw)
	}
	if err := d.expect("{"); err != nil {
		return nil, err
	}
	arr := &Array{Keys: make([]any, 0, n), Values: make([]any, 0, n)}
	for i := 0; i < n; i++ {
		key, err := d.value()
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case int64, string:
		default:
			return nil, d.errorf("invalid key type %T", key)
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		arr.Keys = append(arr.Keys, key)
		arr.Values = append(arr.Values, v)
	}
	return arr, d.expect("}")
}
