package engine

import (
	"errors"

	"github.com/hupe1980/aocs/internal/blockdir"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/datumstream"
)

// columnWriter appends the values of one column to one segment file and
// records a block directory entry for every block it writes.
type columnWriter struct {
	col    Column
	segno  int32
	w      *datumstream.Writer
	blocks *blockdir.Directory
}

// put appends the value of row rowNum. A row number that does not follow
// the pending block ends it, so blocks never span a hole.
func (cw *columnWriter) put(rowNum int64, d datum.Datum) error {
	if n := cw.w.Nth(); n > 0 && cw.w.BlockFirstRowNum()+int64(n) != rowNum {
		if err := cw.flush(); err != nil {
			return err
		}
	}
	if cw.w.Nth() == 0 {
		cw.w.SetBlockFirstRowNum(rowNum)
	}

	err := cw.w.Put(d)
	if !errors.Is(err, datumstream.ErrBlockFull) {
		return err
	}
	if err := cw.flush(); err != nil {
		return err
	}
	cw.w.SetBlockFirstRowNum(rowNum)
	err = cw.w.Put(d)
	if !errors.Is(err, datumstream.ErrBlockFull) {
		return err
	}

	// too large for an empty block
	info, err := cw.w.WriteLarge(d)
	if err != nil {
		return err
	}
	return cw.record(info)
}

// flush writes the pending block, if any.
func (cw *columnWriter) flush() error {
	info, ok, err := cw.w.FlushBlock()
	if err != nil || !ok {
		return err
	}
	return cw.record(info)
}

func (cw *columnWriter) record(info datumstream.BlockInfo) error {
	return cw.blocks.RecordEntry(cw.segno, cw.col.FileNum, blockdir.Entry{
		FirstRowNum:     info.FirstRowNum,
		RowCount:        int64(info.RowCount),
		FileOffset:      info.FileOffset,
		AfterFileOffset: info.AfterFileOffset,
	})
}

// pendingFirstRowNum returns the first row number of the unflushed block,
// or 0 when nothing is pending.
func (cw *columnWriter) pendingFirstRowNum() int64 {
	if cw.w.Nth() == 0 {
		return 0
	}
	return cw.w.BlockFirstRowNum()
}

// close flushes and closes the file and returns its new EOFs.
func (cw *columnWriter) close() (eof, uncompressedEOF int64, err error) {
	if err := cw.flush(); err != nil {
		return 0, 0, err
	}
	if err := cw.w.Close(); err != nil {
		return 0, 0, err
	}
	eof, uncompressedEOF = cw.w.EOF()
	return eof, uncompressedEOF, nil
}

func (cw *columnWriter) abort() {
	cw.w.Abort()
}
