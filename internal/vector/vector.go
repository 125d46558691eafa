// Package vector implements the rolling sample vector used by time-bucketed fields.
//
// Sample 0 is always the most recent bucket. Samples are kept as int64 in
// memory, while the width (1, 2, 4 or 8 bytes) bounds the representable range
// and drives the dump encodings.
package vector

import (
	"strconv"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/phpser"
)

// MaxWidenedWidth is the widest width reachable through Widen.
const MaxWidenedWidth = 4

// Vector is a fixed capacity list of samples.
type Vector struct {
	width    int
	unsigned bool
	count    int
	samples  []int64
}

// New returns an empty vector with the given capacity and sample width.
func New(capacity, width int, unsigned bool) Vector {
	return Vector{width: width, unsigned: unsigned, samples: make([]int64, capacity)}
}

// Count returns the number of live samples.
func (v *Vector) Count() int { return v.count }

// Cap returns the capacity.
func (v *Vector) Cap() int { return len(v.samples) }

// Width returns the sample width in bytes.
func (v *Vector) Width() int { return v.width }

// Unsigned reports whether samples are unsigned.
func (v *Vector) Unsigned() bool { return v.unsigned }

// Fits reports whether n is representable at the current width.
func (v *Vector) Fits(n int64) bool {
	return fits(n, v.width, v.unsigned)
}

func fits(n int64, width int, unsigned bool) bool {
	if width >= 8 {
		return !unsigned || n >= 0
	}
	bits := uint(width * 8)
	if unsigned {
		return n >= 0 && n <= int64(1)<<bits-1
	}
	limit := int64(1) << (bits - 1)
	return n >= -limit && n < limit
}

// Inc adds n to sample 0, creating it if the vector is empty. An unsigned
// sum below zero clamps to 0. It returns false, leaving the sample unchanged,
// when the result does not fit the current width.
func (v *Vector) Inc(n int64) bool {
	if v.count == 0 {
		v.count = 1
		v.samples[0] = 0
	}
	value := v.samples[0] + n
	if v.unsigned && value < 0 {
		v.samples[0] = 0
		return true
	}
	if !v.Fits(value) {
		return false
	}
	v.samples[0] = value
	return true
}

// Widen doubles the sample width up to MaxWidenedWidth. Values are preserved.
func (v *Vector) Widen() bool {
	if v.width >= MaxWidenedWidth {
		return false
	}
	v.width *= 2
	return true
}

// IncWiden increments sample 0, widening the storage as needed. It returns
// false when the value still overflows at MaxWidenedWidth; the increment is
// then dropped.
func (v *Vector) IncWiden(n int64) bool {
	for !v.Inc(n) {
		if !v.Widen() {
			return false
		}
	}
	return true
}

// Translate ages the vector by k buckets.
func (v *Vector) Translate(k int) {
	if k <= 0 {
		return
	}
	capacity := len(v.samples)
	d := min(k, capacity)
	for i := min(v.count, capacity-d) - 1; i >= 0; i-- {
		v.samples[i+d] = v.samples[i]
	}
	for i := 0; i < d; i++ {
		v.samples[i] = 0
	}
	v.count = min(v.count+d, capacity)
}

// Sum adds the first n samples, or all of them when n is 0.
func (v *Vector) Sum(n int) int64 {
	j := v.count
	if n != 0 {
		j = min(n, v.count)
	}
	var sum int64
	for i := 0; i < j; i++ {
		sum += v.samples[i]
	}
	return sum
}

// Sample returns sample i, or 0 beyond count.
func (v *Vector) Sample(i int) int64 {
	if i < 0 || i >= v.count {
		return 0
	}
	return v.samples[i]
}

// SetSample overwrites an existing sample.
func (v *Vector) SetSample(i int, value int64) bool {
	if i < 0 || i >= v.count {
		return false
	}
	v.samples[i] = value
	return true
}

// Del removes the sample at pos, shifting the rest left.
func (v *Vector) Del(pos int) bool {
	if pos < 0 || pos >= v.count {
		return false
	}
	copy(v.samples[pos:v.count-1], v.samples[pos+1:v.count])
	v.count--
	return true
}

// Find returns the first position holding value, or -1.
func (v *Vector) Find(value int64) int {
	for i := 0; i < v.count; i++ {
		if v.samples[i] == value {
			return i
		}
	}
	return -1
}

func (v *Vector) extend(size int) {
	size = min(size, len(v.samples))
	for i := v.count; i < size; i++ {
		v.samples[i] = 0
	}
	if v.count < size {
		v.count = size
	}
}

// Add sums o into v element-wise.
func (v *Vector) Add(o *Vector) {
	v.extend(o.count)
	for i := 0; i < o.count && i < len(v.samples); i++ {
		v.samples[i] += o.samples[i]
	}
}

// CountActive increments every bucket where o has a non-zero sample.
func (v *Vector) CountActive(o *Vector) {
	v.extend(o.count)
	for i := 0; i < o.count && i < len(v.samples); i++ {
		if o.samples[i] != 0 {
			v.samples[i]++
		}
	}
}

// Clear drops all samples. The width is kept.
func (v *Vector) Clear() {
	v.count = 0
}

// AppendText appends "[width:]count:s0,s1,...".
func (v *Vector) AppendText(b []byte, withFormat bool) []byte {
	if withFormat {
		b = strconv.AppendInt(b, int64(v.width), 10)
		b = append(b, ':')
	}
	b = strconv.AppendInt(b, int64(v.count), 10)
	b = append(b, ':')
	for i := 0; i < v.count; i++ {
		if i != 0 {
			b = append(b, ',')
		}
		b = strconv.AppendInt(b, v.samples[i], 10)
	}
	return b
}

// RestoreText reads the form written by AppendText. With format, the width
// must be one this vector can take.
func (v *Vector) RestoreText(p *codec.Parser, withFormat bool) error {
	if withFormat {
		width := int(p.ReadInt())
		if !v.acceptsWidth(width) {
			return p.Errorf("invalid sample size %d", width)
		}
		v.width = width
		if err := p.Expect(":"); err != nil {
			return err
		}
	}
	count := p.ReadInt()
	if count < 0 {
		return p.Errorf("invalid sample count")
	}
	v.count = min(int(count), len(v.samples))
	if err := p.Expect(":"); err != nil {
		return err
	}
	for i := 0; i < v.count; i++ {
		v.samples[i] = p.ReadInt()
		if i < v.count-1 {
			if err := p.Expect(","); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Vector) acceptsWidth(width int) bool {
	switch width {
	case 1, 2, 4:
		return v.width <= MaxWidenedWidth
	case 8:
		return v.width == 8
	}
	return false
}

func (v *Vector) countWidth() int {
	if len(v.samples) > 255 {
		return 2
	}
	return 1
}

// DumpBinary writes [uint8 width] count and the raw little-endian samples.
// Vectors longer than 255 slots carry a two byte count.
func (v *Vector) DumpBinary(w *codec.Writer, withFormat bool) {
	if withFormat {
		w.Uint8(uint8(v.width))
	}
	w.Sized(int64(v.count), v.countWidth())
	for i := 0; i < v.count; i++ {
		w.Sized(v.samples[i], v.width)
	}
}

// RestoreBinary reads the form written by DumpBinary.
func (v *Vector) RestoreBinary(r *codec.Reader, withFormat bool) error {
	if withFormat {
		width, err := r.Uint8()
		if err != nil {
			return err
		}
		if !v.acceptsWidth(int(width)) {
			return &codec.FormatError{Msg: "invalid sample size " + strconv.Itoa(int(width))}
		}
		v.width = int(width)
	}
	count, err := r.Sized(v.countWidth(), false)
	if err != nil {
		return err
	}
	// Every advertised sample is consumed, even past capacity.
	n := int(count)
	v.count = min(n, len(v.samples))
	for i := 0; i < n; i++ {
		s, err := r.Sized(v.width, !v.unsigned)
		if err != nil {
			return err
		}
		if i < v.count {
			v.samples[i] = s
		}
	}
	return nil
}

// AppendPHP appends a:N:{i:0;i:s0;...}.
func (v *Vector) AppendPHP(b []byte) []byte {
	b = phpser.AppendArray(b, v.count)
	for i := 0; i < v.count; i++ {
		b = phpser.AppendIndex(b, i)
		b = phpser.AppendInt(b, v.samples[i])
	}
	return append(b, '}')
}

// Show renders the samples as "s0, s1, ...".
func (v *Vector) Show() string {
	b := make([]byte, 0, v.count*4)
	for i := 0; i < v.count; i++ {
		if i != 0 {
			b = append(b, ", "...)
		}
		b = strconv.AppendInt(b, v.samples[i], 10)
	}
	return string(b)
}
