package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// FormatError reports a malformed binary dump.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return e.Msg
}

// Writer emits little-endian binary records.
type Writer struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(p)
}

// Uint8 writes one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

// Uint16 writes v in two bytes.
func (w *Writer) Uint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

// Uint32 writes v in four bytes.
func (w *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// Uint64 writes v in eight bytes.
func (w *Writer) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

// Int32 writes v in four bytes.
func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

// Int64 writes v in eight bytes.
func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Sized writes v using width bytes.
func (w *Writer) Sized(v int64, width int) {
	switch width {
	case 1:
		w.Uint8(uint8(v))
	case 2:
		w.Uint16(uint16(v))
	case 4:
		w.Uint32(uint32(v))
	default:
		w.Uint64(uint64(v))
	}
}

// String8 writes a string prefixed by its one byte length.
func (w *Writer) String8(s string) {
	if len(s) > 255 {
		if w.err == nil {
			w.err = fmt.Errorf("string too long for dump: %d bytes", len(s))
		}
		return
	}
	w.Uint8(uint8(len(s)))
	w.write([]byte(s))
}

// Bytes writes raw bytes.
func (w *Writer) Bytes(p []byte) {
	w.write(p)
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

// Flush flushes buffered data and returns the first error seen.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Reader decodes little-endian binary records.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) read(n int) ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return r.buf[:n], nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	buf, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Uint16 reads two bytes.
func (r *Reader) Uint16() (uint16, error) {
	buf, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// Uint32 reads four bytes.
func (r *Reader) Uint32() (uint32, error) {
	buf, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Uint64 reads eight bytes.
func (r *Reader) Uint64() (uint64, error) {
	buf, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Int32 reads a signed four byte value.
func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

// Int64 reads a signed eight byte value.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Sized reads a width byte value, sign extending when signed is true.
func (r *Reader) Sized(width int, signed bool) (int64, error) {
	switch width {
	case 1:
		v, err := r.Uint8()
		if signed {
			return int64(int8(v)), err
		}
		return int64(v), err
	case 2:
		v, err := r.Uint16()
		if signed {
			return int64(int16(v)), err
		}
		return int64(v), err
	case 4:
		v, err := r.Uint32()
		if signed {
			return int64(int32(v)), err
		}
		return int64(v), err
	case 8:
		v, err := r.Uint64()
		return int64(v), err
	}
	return 0, fmt.Errorf("invalid sample width %d", width)
}

// String8 reads a string prefixed by its one byte length.
func (r *Reader) String8() (string, error) {
	n, err := r.Uint8()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
