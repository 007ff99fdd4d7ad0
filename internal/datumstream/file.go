package datumstream

import (
	"errors"
	"fmt"
	"path/filepath"
)

// MaxSegments is the number of segment numbers per column file number. A
// column file's suffix is (filenum-1)*MaxSegments + segno.
const MaxSegments = 128

var (
	// ErrBlockFull signals that the current block cannot take another value.
	// The caller flushes the block and retries; it is a control signal, not
	// a failure.
	ErrBlockFull = errors.New("datumstream: block full")
	// ErrUnflushed is returned by Writer.Close while values are pending.
	ErrUnflushed = errors.New("datumstream: close with unflushed values")
	// ErrEOFMismatch is returned when a column file is shorter than the EOF
	// recorded in the segment directory.
	ErrEOFMismatch = errors.New("datumstream: file shorter than recorded eof")
)

// SegmentFileName returns the path of the file holding column file number
// filenum (1-based) for segment segno.
func SegmentFileName(dir string, relfilenode uint32, filenum, segno int32) string {
	fileSegNo := int64(filenum-1)*MaxSegments + int64(segno)
	return filepath.Join(dir, fmt.Sprintf("%d.%d", relfilenode, fileSegNo))
}

// BlockInfo describes one written block; the insert and rewrite engines turn
// it into a block directory entry.
type BlockInfo struct {
	FileOffset      int64
	AfterFileOffset int64
	FirstRowNum     int64
	RowCount        int
	Large           bool
}
