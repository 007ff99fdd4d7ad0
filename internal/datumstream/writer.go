package datumstream

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/aocs/internal/compress"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/fs"
	"github.com/hupe1980/aocs/internal/resource"
	"github.com/hupe1980/aocs/internal/varblock"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	BlockSize int
	Codec     compress.Codec
	Checksums bool
	Resources *resource.Controller
}

// Writer appends varblocks to one column segment file.
type Writer struct {
	ctx  context.Context
	path string
	f    fs.File
	opts WriterOptions

	eof             int64
	uncompressedEOF int64

	blockFirstRowNum int64
	datums           []datum.Datum
	sizer            varblock.ContentSizer

	blocksWritten int64
	reserved      int64
	closed        bool
}

// OpenWriter opens path for appending at eof. Bytes past eof are leftovers of
// an aborted write and are truncated. A file shorter than eof is corrupt.
func OpenWriter(ctx context.Context, fsys fs.FileSystem, path string, eof, uncompressedEOF int64, opts WriterOptions) (*Writer, error) {
	if opts.BlockSize <= varblock.MaxHeaderLen {
		return nil, fmt.Errorf("datumstream: block size %d too small", opts.BlockSize)
	}
	if fsys == nil {
		fsys = fs.Default
	}
	if err := opts.Resources.AcquireMemory(int64(opts.BlockSize)); err != nil {
		return nil, err
	}

	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		opts.Resources.ReleaseMemory(int64(opts.BlockSize))
		return nil, err
	}
	w := &Writer{
		ctx:             ctx,
		path:            path,
		f:               f,
		opts:            opts,
		eof:             eof,
		uncompressedEOF: uncompressedEOF,
		reserved:        int64(opts.BlockSize),
	}
	if err := w.positionAtEOF(fsys); err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

func (w *Writer) positionAtEOF(fsys fs.FileSystem) error {
	info, err := w.f.Stat()
	if err != nil {
		return err
	}
	switch size := info.Size(); {
	case size < w.eof:
		return fmt.Errorf("%w: %s is %d bytes, eof %d", ErrEOFMismatch, w.path, size, w.eof)
	case size > w.eof:
		if err := fsys.Truncate(w.path, w.eof); err != nil {
			return err
		}
	}
	_, err = w.f.Seek(w.eof, io.SeekStart)
	return err
}

// Path returns the file path.
func (w *Writer) Path() string { return w.path }

// SetBlockFirstRowNum sets the first row number of the next block. Only valid
// while no values are pending.
func (w *Writer) SetBlockFirstRowNum(rowNum int64) {
	w.blockFirstRowNum = rowNum
}

// BlockFirstRowNum returns the first row number of the pending block.
func (w *Writer) BlockFirstRowNum() int64 { return w.blockFirstRowNum }

// Nth returns the number of values pending in the current block.
func (w *Writer) Nth() int { return len(w.datums) }

// EOF returns the logical and uncompressed end of file.
func (w *Writer) EOF() (eof, uncompressedEOF int64) { return w.eof, w.uncompressedEOF }

// BlocksWritten returns the number of blocks written by this writer.
func (w *Writer) BlocksWritten() int64 { return w.blocksWritten }

// Put adds d to the current block, or returns ErrBlockFull when the block
// (including an empty one, for oversized values) cannot take it.
func (w *Writer) Put(d datum.Datum) error {
	if len(w.datums) >= varblock.MaxRowCount {
		return ErrBlockFull
	}
	if varblock.MaxHeaderLen+w.sizer.SizeWith(d) > w.opts.BlockSize {
		return ErrBlockFull
	}
	w.datums = append(w.datums, d.Clone())
	w.sizer.Add(d)
	return nil
}

// FlushBlock writes the pending values as one small content block. It
// reports false when nothing was pending.
func (w *Writer) FlushBlock() (BlockInfo, bool, error) {
	if len(w.datums) == 0 {
		return BlockInfo{}, false, nil
	}
	info, err := w.writeBlock(varblock.Block{
		Kind:           varblock.KindSmallContent,
		HasFirstRowNum: w.blockFirstRowNum > 0,
		FirstRowNum:    w.blockFirstRowNum,
		Datums:         w.datums,
	})
	if err != nil {
		return BlockInfo{}, false, err
	}
	w.datums = w.datums[:0]
	w.sizer.Reset()
	return info, true, nil
}

// WriteLarge writes d as a dedicated large content block. Pending values
// must be flushed first.
func (w *Writer) WriteLarge(d datum.Datum) (BlockInfo, error) {
	if len(w.datums) > 0 {
		return BlockInfo{}, ErrUnflushed
	}
	return w.writeBlock(varblock.Block{
		Kind:           varblock.KindLargeContent,
		HasFirstRowNum: w.blockFirstRowNum > 0,
		FirstRowNum:    w.blockFirstRowNum,
		Datums:         []datum.Datum{d},
	})
}

func (w *Writer) writeBlock(b varblock.Block) (BlockInfo, error) {
	buf, err := varblock.Encode(b, w.opts.Codec, w.opts.Checksums)
	if err != nil {
		return BlockInfo{}, err
	}
	if err := w.opts.Resources.AcquireIO(w.ctx, len(buf)); err != nil {
		return BlockInfo{}, err
	}
	if _, err := w.f.Write(buf); err != nil {
		return BlockInfo{}, fmt.Errorf("datumstream: write %s at %d: %w", w.path, w.eof, err)
	}

	h, err := varblock.ReadHeader(buf)
	if err != nil {
		return BlockInfo{}, err
	}
	info := BlockInfo{
		FileOffset:      w.eof,
		AfterFileOffset: w.eof + int64(len(buf)),
		FirstRowNum:     b.FirstRowNum,
		RowCount:        len(b.Datums),
		Large:           b.Kind == varblock.KindLargeContent,
	}
	w.eof = info.AfterFileOffset
	w.uncompressedEOF += int64(h.Len() + h.UncompressedLen)
	w.blocksWritten++
	if w.blockFirstRowNum > 0 {
		w.blockFirstRowNum += int64(info.RowCount)
	}
	return info, nil
}

// Close syncs and closes the file. All values must have been flushed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if len(w.datums) > 0 {
		return ErrUnflushed
	}
	w.closed = true
	defer w.release()

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Abort closes the file without flushing pending values.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.datums = nil
	_ = w.f.Close()
	w.release()
}

func (w *Writer) release() {
	w.opts.Resources.ReleaseMemory(w.reserved)
	w.reserved = 0
}
