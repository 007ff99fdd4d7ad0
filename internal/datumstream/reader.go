package datumstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/aocs/internal/cache"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/fs"
	"github.com/hupe1980/aocs/internal/resource"
	"github.com/hupe1980/aocs/internal/varblock"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Cache     cache.BlockCache
	Mmap      bool
	Resources *resource.Controller
}

// BlockMeta describes the block a Reader is positioned on.
type BlockMeta struct {
	FileOffset      int64
	AfterFileOffset int64
	HasFirstRowNum  bool
	FirstRowNum     int64
	RowCount        int
	Kind            varblock.Kind
}

// Contains reports whether the block holds rowNum. Blocks without a first
// row number never match.
func (b BlockMeta) Contains(rowNum int64) bool {
	return b.HasFirstRowNum && rowNum >= b.FirstRowNum && rowNum < b.FirstRowNum+int64(b.RowCount)
}

// Reader reads the varblocks of one column segment file up to the logical
// EOF recorded in the segment directory.
type Reader struct {
	ctx        context.Context
	path       string
	r          fs.ReaderAtCloser
	logicalEOF int64
	opts       ReaderOptions

	next int64

	hasBlock bool
	block    BlockMeta
	header   varblock.Header
	loaded   bool
	datums   []datum.Datum
	nth      int

	hdrBuf [varblock.MaxHeaderLen]byte
}

// OpenReader opens path for reading up to logicalEOF. A zero EOF opens
// nothing; the reader is simply empty.
func OpenReader(ctx context.Context, fsys fs.FileSystem, path string, logicalEOF int64, opts ReaderOptions) (*Reader, error) {
	r := &Reader{ctx: ctx, path: path, logicalEOF: logicalEOF, opts: opts, nth: -1}
	if logicalEOF == 0 {
		return r, nil
	}
	f, err := fs.OpenReaderAt(fsys, path, opts.Mmap)
	if err != nil {
		return nil, err
	}
	r.r = f
	return r, nil
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// LogicalEOF returns the read limit.
func (r *Reader) LogicalEOF() int64 { return r.logicalEOF }

// HasBlock reports whether the reader is positioned on a block.
func (r *Reader) HasBlock() bool { return r.hasBlock }

// Block returns the current block's metadata.
func (r *Reader) Block() BlockMeta { return r.block }

// Nth returns the index of the current value within the block, -1 before the
// first Advance into it.
func (r *Reader) Nth() int { return r.nth }

// Remaining returns how many values of the current block follow the current one.
func (r *Reader) Remaining() int {
	if !r.hasBlock {
		return 0
	}
	return r.block.RowCount - r.nth - 1
}

// NextOffset returns the offset the next ReadBlockHeader call reads from.
func (r *Reader) NextOffset() int64 { return r.next }

func (r *Reader) readAt(p []byte, off int64) error {
	if err := r.opts.Resources.AcquireIO(r.ctx, len(p)); err != nil {
		return err
	}
	n, err := r.r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return &varblock.FormatError{Reason: fmt.Sprintf("%s: short read at offset %d: %d of %d bytes", r.path, off, n, len(p))}
	}
	return fmt.Errorf("datumstream: read %s at %d: %w", r.path, off, err)
}

// ReadBlockHeader moves to the next block and decodes only its header. It
// returns false once the logical EOF is reached.
func (r *Reader) ReadBlockHeader() (bool, error) {
	r.hasBlock = false
	r.loaded = false
	r.datums = nil
	r.nth = -1

	off := r.next
	if off >= r.logicalEOF {
		return false, nil
	}
	if off+varblock.BaseHeaderLen > r.logicalEOF {
		return false, &varblock.FormatError{Reason: fmt.Sprintf("%s: truncated block header at offset %d (eof %d)", r.path, off, r.logicalEOF)}
	}
	if err := r.readAt(r.hdrBuf[:varblock.BaseHeaderLen], off); err != nil {
		return false, err
	}
	hlen, err := varblock.PeekHeaderLen(r.hdrBuf[:varblock.BaseHeaderLen])
	if err != nil {
		return false, err
	}
	if off+int64(hlen) > r.logicalEOF {
		return false, &varblock.FormatError{Reason: fmt.Sprintf("%s: truncated block header at offset %d (eof %d)", r.path, off, r.logicalEOF)}
	}
	if hlen > varblock.BaseHeaderLen {
		if err := r.readAt(r.hdrBuf[varblock.BaseHeaderLen:hlen], off+varblock.BaseHeaderLen); err != nil {
			return false, err
		}
	}
	h, err := varblock.ReadHeader(r.hdrBuf[:hlen])
	if err != nil {
		return false, err
	}
	after := off + int64(h.BlockLen())
	if after > r.logicalEOF {
		return false, &varblock.FormatError{Reason: fmt.Sprintf("%s: block at offset %d ends at %d past eof %d", r.path, off, after, r.logicalEOF)}
	}

	r.header = h
	r.block = BlockMeta{
		FileOffset:      off,
		AfterFileOffset: after,
		HasFirstRowNum:  h.HasFirstRowNum,
		FirstRowNum:     h.FirstRowNum,
		RowCount:        h.RowCount,
		Kind:            h.Kind,
	}
	r.hasBlock = true
	r.next = after
	return true, nil
}

// LoadBlock decodes the contents of the current block.
func (r *Reader) LoadBlock() error {
	if !r.hasBlock {
		return errors.New("datumstream: no current block")
	}
	if r.loaded {
		return nil
	}

	key := cache.Key{Path: r.path, Offset: r.block.FileOffset}
	content, ok := r.cachedContent(key)
	if !ok {
		stored := make([]byte, r.header.StoredLen)
		if err := r.readAt(stored, r.block.FileOffset+int64(r.header.Len())); err != nil {
			return err
		}
		var err error
		content, err = varblock.DecodeStored(r.header, stored)
		if err != nil {
			return err
		}
		if r.opts.Cache != nil {
			r.opts.Cache.Set(r.ctx, key, content)
		}
	}

	datums, err := varblock.DecodeContent(r.header, content)
	if err != nil {
		return err
	}
	r.datums = datums
	r.loaded = true
	return nil
}

func (r *Reader) cachedContent(key cache.Key) ([]byte, bool) {
	if r.opts.Cache == nil {
		return nil, false
	}
	return r.opts.Cache.Get(r.ctx, key)
}

// ReadBlock moves to the next block and decodes it.
func (r *Reader) ReadBlock() (bool, error) {
	ok, err := r.ReadBlockHeader()
	if !ok || err != nil {
		return ok, err
	}
	return true, r.LoadBlock()
}

// Advance moves to the next value, loading the next block when the current
// one is exhausted. It returns false at the logical EOF.
func (r *Reader) Advance() (bool, error) {
	for {
		if r.hasBlock && r.nth+1 < r.block.RowCount {
			if err := r.LoadBlock(); err != nil {
				return false, err
			}
			r.nth++
			return true, nil
		}
		ok, err := r.ReadBlock()
		if !ok || err != nil {
			return false, err
		}
	}
}

// Value returns the current value.
func (r *Reader) Value() datum.Datum {
	return r.datums[r.nth]
}

// SetNth positions the reader on value i of the loaded current block.
func (r *Reader) SetNth(i int) error {
	if !r.hasBlock || i < 0 || i >= r.block.RowCount {
		return fmt.Errorf("datumstream: position %d outside current block", i)
	}
	if err := r.LoadBlock(); err != nil {
		return err
	}
	r.nth = i
	return nil
}

// SkipBlock discards the rest of the current block without decoding it.
func (r *Reader) SkipBlock() {
	r.hasBlock = false
	r.loaded = false
	r.datums = nil
	r.nth = -1
}

// SkipToBlockAt makes the next ReadBlockHeader read the block starting at
// offset. Used for block-directory guided positioning.
func (r *Reader) SkipToBlockAt(offset int64) error {
	if offset < 0 || offset > r.logicalEOF {
		return fmt.Errorf("datumstream: offset %d outside %s (eof %d)", offset, r.path, r.logicalEOF)
	}
	r.SkipBlock()
	r.next = offset
	return nil
}

// Close releases the file.
func (r *Reader) Close() error {
	r.SkipBlock()
	if r.r == nil {
		return nil
	}
	err := r.r.Close()
	r.r = nil
	return err
}
