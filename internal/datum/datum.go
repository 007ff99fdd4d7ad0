// Package datum defines the column value representation shared by the
// storage layers. Values are opaque byte strings; typing is the caller's
// business.
package datum

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Datum is one column value. A null Datum carries no bytes.
type Datum struct {
	Value []byte
	Null  bool
}

// Row is one logical row, indexed by column position (attnum - 1).
type Row []Datum

// NullDatum returns the SQL NULL value.
func NullDatum() Datum { return Datum{Null: true} }

// Bytes wraps b without copying.
func Bytes(b []byte) Datum { return Datum{Value: b} }

// Text wraps s.
func Text(s string) Datum { return Datum{Value: []byte(s)} }

// Int64 encodes v as 8 little-endian bytes.
func Int64(v int64) Datum {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return Datum{Value: b}
}

// Float64 encodes v as its IEEE-754 bits.
func Float64(v float64) Datum {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return Datum{Value: b}
}

// Int64 decodes a value written by Int64. Short values decode as zero.
func (d Datum) Int64() int64 {
	if len(d.Value) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(d.Value))
}

// Float64 decodes a value written by Float64.
func (d Datum) Float64() float64 {
	if len(d.Value) < 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(d.Value))
}

// String returns the value as text.
func (d Datum) String() string {
	if d.Null {
		return "NULL"
	}
	return string(d.Value)
}

// Equal reports whether two datums hold the same value. Two nulls are equal.
func (d Datum) Equal(o Datum) bool {
	if d.Null || o.Null {
		return d.Null == o.Null
	}
	return bytes.Equal(d.Value, o.Value)
}

// Size is the encoded payload size, excluding framing.
func (d Datum) Size() int {
	if d.Null {
		return 0
	}
	return len(d.Value)
}

// Clone returns a copy that does not alias d's bytes.
func (d Datum) Clone() Datum {
	if d.Null {
		return d
	}
	return Datum{Value: append([]byte(nil), d.Value...)}
}

// Clone returns a deep copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for i, d := range r {
		out[i] = d.Clone()
	}
	return out
}

// Equal compares two rows value by value.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
