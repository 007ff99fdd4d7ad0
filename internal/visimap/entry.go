package visimap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// RowsPerEntry is the number of row numbers one entry covers.
const RowsPerEntry = 32768

const maxWords = RowsPerEntry / 64

// ErrAlreadyHidden is returned when hiding a row that is already hidden.
var ErrAlreadyHidden = errors.New("visimap: row already hidden")

// EntryFirstRowNum returns the first row number of the entry covering rowNum.
func EntryFirstRowNum(rowNum int64) int64 {
	return rowNum / RowsPerEntry * RowsPerEntry
}

// Entry is the bitmap of one segment's rows [FirstRowNum, FirstRowNum+RowsPerEntry).
type Entry struct {
	SegNo       int32
	FirstRowNum int64

	bits   *bitset.BitSet
	hidden int64
}

// NewEntry returns an empty entry.
func NewEntry(segno int32, firstRowNum int64) *Entry {
	return &Entry{SegNo: segno, FirstRowNum: firstRowNum, bits: bitset.New(0)}
}

// Covers reports whether rowNum belongs to the entry.
func (e *Entry) Covers(rowNum int64) bool {
	return rowNum >= e.FirstRowNum && rowNum < e.FirstRowNum+RowsPerEntry
}

// IsHidden reports whether rowNum is hidden.
func (e *Entry) IsHidden(rowNum int64) bool {
	if !e.Covers(rowNum) {
		return false
	}
	return e.bits.Test(uint(rowNum - e.FirstRowNum))
}

// Hide marks rowNum hidden.
func (e *Entry) Hide(rowNum int64) error {
	if !e.Covers(rowNum) {
		return fmt.Errorf("visimap: row %d outside entry starting at %d", rowNum, e.FirstRowNum)
	}
	off := uint(rowNum - e.FirstRowNum)
	if e.bits.Test(off) {
		return ErrAlreadyHidden
	}
	e.bits.Set(off)
	e.hidden++
	return nil
}

// HiddenCount returns the number of hidden rows.
func (e *Entry) HiddenCount() int64 { return e.hidden }

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := *e
	c.bits = e.bits.Clone()
	return &c
}

// words returns the bitmap with trailing zero words trimmed.
func (e *Entry) words() []uint64 {
	w := e.bits.Words()
	for len(w) > 0 && w[len(w)-1] == 0 {
		w = w[:len(w)-1]
	}
	return w
}

// Encode serializes the hidden count followed by the compressed bitmap.
func (e *Entry) Encode() ([]byte, error) {
	bm, err := Compress(e.words())
	if err != nil {
		return nil, err
	}
	b := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(bm)), uint64(e.hidden))
	return append(b, bm...), nil
}

// DecodeEntry parses an entry produced by Encode.
func DecodeEntry(segno int32, firstRowNum int64, b []byte) (*Entry, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: entry of %d bytes", ErrCorruptBitmap, len(b))
	}
	words, err := Decompress(b[8:], maxWords)
	if err != nil {
		return nil, fmt.Errorf("segment %d entry %d: %w", segno, firstRowNum, err)
	}
	e := &Entry{SegNo: segno, FirstRowNum: firstRowNum, bits: bitset.From(words)}
	e.hidden = int64(binary.LittleEndian.Uint64(b))
	if got := int64(e.bits.Count()); got != e.hidden {
		return nil, fmt.Errorf("%w: segment %d entry %d records %d hidden rows, bitmap has %d",
			ErrCorruptBitmap, segno, firstRowNum, e.hidden, got)
	}
	return e, nil
}
