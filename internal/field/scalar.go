package field

import (
	"math"
	"strconv"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/phpser"
)

// Int is a 32-bit counter. The unsigned variant clamps at zero.
type Int struct {
	unsigned bool
	value    int32
}

// Kind implements Field.
func (f *Int) Kind() Kind {
	if f.unsigned {
		return KindUInt
	}
	return KindInt
}

// Value returns the current value.
func (f *Int) Value() int64 { return int64(f.value) }

// store saturates v to the 32-bit range.
func (f *Int) store(v int64) {
	switch {
	case v > math.MaxInt32:
		v = math.MaxInt32
	case v < math.MinInt32:
		v = math.MinInt32
	}
	if f.unsigned && v < 0 {
		v = 0
	}
	f.value = int32(v)
}

// Update implements Field.
func (f *Int) Update() {}

// Add implements Field.
func (f *Int) Add(n int64) {
	// Bound n so the sum cannot overflow.
	n = max(min(n, math.MaxUint32), -math.MaxUint32)
	f.store(int64(f.value) + n)
}

// Set implements Field.
func (f *Int) Set(value string) bool {
	f.store(ToInt(value))
	return true
}

// Score implements Field.
func (f *Int) Score(int) int64 { return int64(f.value) }

// Clear implements Field.
func (f *Int) Clear() { f.value = 0 }

// LastUpdate implements Field.
func (f *Int) LastUpdate() int64 { return 0 }

// AppendPHP implements Field.
func (f *Int) AppendPHP(b []byte) []byte { return phpser.AppendInt(b, int64(f.value)) }

// Show implements Field.
func (f *Int) Show() string { return strconv.Itoa(int(f.value)) + "\n" }

// Summary implements Field.
func (f *Int) Summary() string { return strconv.Itoa(int(f.value)) }

// AppendText implements Field.
func (f *Int) AppendText(b []byte) []byte {
	b = append(b, "i{"...)
	b = strconv.AppendInt(b, int64(f.value), 10)
	return append(b, '}')
}

// RestoreText implements Field.
func (f *Int) RestoreText(p *codec.Parser) error {
	if err := p.Expect("i{"); err != nil {
		return err
	}
	f.value = int32(p.ReadInt())
	return p.Expect("}")
}

// DumpBinary implements Field.
func (f *Int) DumpBinary(w *codec.Writer) { w.Int32(f.value) }

// RestoreBinary implements Field.
func (f *Int) RestoreBinary(r *codec.Reader) error {
	v, err := r.Int32()
	if err != nil {
		return err
	}
	f.value = v
	return nil
}

// Timestamp holds a unix time. Add stamps the current time.
type Timestamp struct {
	env   *Env
	value int64
}

// Kind implements Field.
func (f *Timestamp) Kind() Kind { return KindTimestamp }

// Update implements Field.
func (f *Timestamp) Update() {}

// Add implements Field. The delta is ignored.
func (f *Timestamp) Add(int64) { f.value = f.env.Timer.Now() }

// Set implements Field.
func (f *Timestamp) Set(value string) bool {
	f.value = int64(ToUint(value))
	return true
}

// Score implements Field.
func (f *Timestamp) Score(int) int64 { return f.value }

// Clear implements Field.
func (f *Timestamp) Clear() { f.value = 0 }

// LastUpdate implements Field.
func (f *Timestamp) LastUpdate() int64 { return f.value }

// AppendPHP implements Field.
func (f *Timestamp) AppendPHP(b []byte) []byte { return phpser.AppendInt(b, f.value) }

// Show implements Field.
func (f *Timestamp) Show() string { return strconv.FormatInt(f.value, 10) + "\n" }

// Summary implements Field.
func (f *Timestamp) Summary() string { return strconv.FormatInt(f.value, 10) }

// AppendText implements Field.
func (f *Timestamp) AppendText(b []byte) []byte {
	b = append(b, "t{"...)
	b = strconv.AppendInt(b, f.value, 10)
	return append(b, '}')
}

// RestoreText implements Field.
func (f *Timestamp) RestoreText(p *codec.Parser) error {
	if err := p.Expect("t{"); err != nil {
		return err
	}
	f.value = p.ReadInt()
	return p.Expect("}")
}

// DumpBinary implements Field.
func (f *Timestamp) DumpBinary(w *codec.Writer) { w.Int64(f.value) }

// RestoreBinary implements Field.
func (f *Timestamp) RestoreBinary(r *codec.Reader) error {
	v, err := r.Int64()
	if err != nil {
		return err
	}
	f.value = v
	return nil
}
