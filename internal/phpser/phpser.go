// Package phpser appends values in the PHP serialize() encoding.
package phpser

import "strconv"

// AppendInt appends i:v;.
func AppendInt(b []byte, v int64) []byte {
	b = append(b, "i:"...)
	b = strconv.AppendInt(b, v, 10)
	return append(b, ';')
}

// AppendUint appends i:v; for an unsigned value.
func AppendUint(b []byte, v uint64) []byte {
	b = append(b, "i:"...)
	b = strconv.AppendUint(b, v, 10)
	return append(b, ';')
}

// AppendString appends s:len:"value";. The length is in bytes.
func AppendString(b []byte, s string) []byte {
	b = append(b, "s:"...)
	b = strconv.AppendInt(b, int64(len(s)), 10)
	b = append(b, ":\""...)
	b = append(b, s...)
	return append(b, "\";"...)
}

// AppendBool appends b:0; or b:1;.
func AppendBool(b []byte, v bool) []byte {
	if v {
		return append(b, "b:1;"...)
	}
	return append(b, "b:0;"...)
}

// AppendFloat appends d:v; with 16 significant digits.
func AppendFloat(b []byte, v float64) []byte {
	b = append(b, "d:"...)
	b = strconv.AppendFloat(b, v, 'g', 16, 64)
	return append(b, ';')
}

// AppendArray appends the a:n:{ header; the caller closes it with '}'.
func AppendArray(b []byte, n int) []byte {
	b = append(b, "a:"...)
	b = strconv.AppendInt(b, int64(n), 10)
	return append(b, ":{"...)
}

// AppendKey appends a string key.
func AppendKey(b []byte, key string) []byte {
	return AppendString(b, key)
}

// AppendIndex appends an integer key.
func AppendIndex(b []byte, i int) []byte {
	return AppendInt(b, int64(i))
}
