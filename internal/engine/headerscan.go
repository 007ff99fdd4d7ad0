package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/datumstream"
	"github.com/hupe1980/aocs/internal/segdir"
)

// HeaderScan iterates the block headers of one column file without decoding
// block contents.
type HeaderScan struct {
	col     Column
	segno   int32
	r       *datumstream.Reader
	first   int64
	counter int64
}

// BeginHeaderScan opens column position col of segment segno.
func (e *Engine) BeginHeaderScan(sc *Context, segno int32, col int) (*HeaderScan, error) {
	c, err := sc.column(col)
	if err != nil {
		return nil, err
	}
	seg, ok, err := sc.segments.Get(segno)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: segment %d", ErrOutOfScanScope, segno)
	}
	if seg.State == segdir.AwaitingDrop {
		return nil, fmt.Errorf("%w: segment %d", ErrAwaitingDrop, segno)
	}
	eof := seg.Column(col).EOF
	r, err := e.openReader(sc.ctx, c, segno, eof)
	if err != nil {
		return nil, corruption(segno, c, e.path(c.FileNum, segno), 0, err)
	}
	return &HeaderScan{col: c, segno: segno, r: r}, nil
}

// Next moves to the next block header. It returns false at the EOF.
func (hs *HeaderScan) Next() (bool, error) {
	ok, err := hs.r.ReadBlockHeader()
	if err != nil {
		return false, corruption(hs.segno, hs.col, hs.r.Path(), hs.r.NextOffset(), err)
	}
	if !ok {
		return false, nil
	}
	b := hs.r.Block()
	hs.first = hs.counter + 1
	if b.HasFirstRowNum {
		hs.first = b.FirstRowNum
	}
	hs.counter = hs.first + int64(b.RowCount) - 1
	return true, nil
}

// Block returns the current block's metadata.
func (hs *HeaderScan) Block() datumstream.BlockMeta { return hs.r.Block() }

// FirstRowNum returns the first row number of the current block, derived
// from the running row counter when the header carries none.
func (hs *HeaderScan) FirstRowNum() int64 { return hs.first }

// LoadBlock decodes the current block, verifying its content checksum.
func (hs *HeaderScan) LoadBlock() error {
	if err := hs.r.LoadBlock(); err != nil {
		return corruption(hs.segno, hs.col, hs.r.Path(), hs.r.Block().FileOffset, err)
	}
	return nil
}

// Close releases the column file.
func (hs *HeaderScan) Close() error {
	return hs.r.Close()
}
