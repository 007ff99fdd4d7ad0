package blockdir

import (
	"encoding/binary"
	"fmt"
)

// Entry maps rows [FirstRowNum, FirstRowNum+RowCount) to the block stored at
// file bytes [FileOffset, AfterFileOffset).
type Entry struct {
	FirstRowNum     int64
	RowCount        int64
	FileOffset      int64
	AfterFileOffset int64
}

// LastRowNum returns the last row number covered.
func (e Entry) LastRowNum() int64 { return e.FirstRowNum + e.RowCount - 1 }

// Contains reports whether rowNum lies within the entry's row range.
func (e Entry) Contains(rowNum int64) bool {
	return rowNum >= e.FirstRowNum && rowNum <= e.LastRowNum()
}

func (e Entry) validate() error {
	switch {
	case e.FirstRowNum < 1:
		return fmt.Errorf("blockdir: first row number %d must be positive", e.FirstRowNum)
	case e.RowCount < 1:
		return fmt.Errorf("blockdir: row count %d must be positive", e.RowCount)
	case e.FileOffset < 0 || e.AfterFileOffset <= e.FileOffset:
		return fmt.Errorf("blockdir: invalid byte range [%d, %d)", e.FileOffset, e.AfterFileOffset)
	}
	return nil
}

// The first row number lives in the key.
func encodeEntry(e Entry) []byte {
	b := make([]byte, 0, 24)
	b = binary.LittleEndian.AppendUint64(b, uint64(e.RowCount))
	b = binary.LittleEndian.AppendUint64(b, uint64(e.FileOffset))
	return binary.LittleEndian.AppendUint64(b, uint64(e.AfterFileOffset))
}

func decodeEntry(firstRowNum int64, b []byte) (Entry, error) {
	if len(b) != 24 {
		return Entry{}, fmt.Errorf("blockdir: malformed entry value of %d bytes", len(b))
	}
	return Entry{
		FirstRowNum:     firstRowNum,
		RowCount:        int64(binary.LittleEndian.Uint64(b)),
		FileOffset:      int64(binary.LittleEndian.Uint64(b[8:])),
		AfterFileOffset: int64(binary.LittleEndian.Uint64(b[16:])),
	}, nil
}

// CheckMonotonic verifies that entries are strictly increasing and
// non-overlapping in both row and byte space.
func CheckMonotonic(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.FirstRowNum <= prev.LastRowNum() {
			return fmt.Errorf("%w: rows [%d, %d] overlap [%d, %d]", ErrNonMonotonic,
				cur.FirstRowNum, cur.LastRowNum(), prev.FirstRowNum, prev.LastRowNum())
		}
		if cur.FileOffset < prev.AfterFileOffset {
			return fmt.Errorf("%w: offset %d before %d", ErrNonMonotonic, cur.FileOffset, prev.AfterFileOffset)
		}
	}
	return nil
}
