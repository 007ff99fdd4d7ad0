package datumstream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/aocs/internal/cache"
	"github.com/hupe1980/aocs/internal/compress"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/fs"
	"github.com/hupe1980/aocs/internal/resource"
	"github.com/hupe1980/aocs/internal/varblock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// putAll writes values starting at firstRowNum with the flush-and-retry
// protocol and returns the written blocks.
func putAll(t *testing.T, w *Writer, firstRowNum int64, values []datum.Datum) []BlockInfo {
	t.Helper()
	w.SetBlockFirstRowNum(firstRowNum)
	var blocks []BlockInfo
	for _, v := range values {
		err := w.Put(v)
		if err == ErrBlockFull {
			info, ok, ferr := w.FlushBlock()
			require.NoError(t, ferr)
			if ok {
				blocks = append(blocks, info)
			}
			err = w.Put(v)
		}
		if err == ErrBlockFull {
			info, lerr := w.WriteLarge(v)
			require.NoError(t, lerr)
			blocks = append(blocks, info)
			continue
		}
		require.NoError(t, err)
	}
	info, ok, err := w.FlushBlock()
	require.NoError(t, err)
	if ok {
		blocks = append(blocks, info)
	}
	return blocks
}

func intValues(n int) []datum.Datum {
	out := make([]datum.Datum, n)
	for i := range out {
		out[i] = datum.Int64(int64(i + 1))
	}
	return out
}

func TestWriterReaderRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := SegmentFileName(t.TempDir(), 16384, 1, 0)

	for _, typ := range []compress.Type{compress.None, compress.Zstd} {
		t.Run(typ.String(), func(t *testing.T) {
			_ = os.Remove(path)
			w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: 256, Codec: compress.MustNew(typ, 0), Checksums: true})
			require.NoError(t, err)

			values := intValues(300)
			values[17] = datum.NullDatum()
			blocks := putAll(t, w, 1, values)
			require.NoError(t, w.Close())
			require.Greater(t, len(blocks), 1)

			// Blocks are contiguous in both row and byte space.
			next := int64(1)
			var offset int64
			for _, b := range blocks {
				assert.Equal(t, next, b.FirstRowNum)
				assert.Equal(t, offset, b.FileOffset)
				next += int64(b.RowCount)
				offset = b.AfterFileOffset
			}
			eof, ueof := w.EOF()
			assert.Equal(t, offset, eof)
			assert.GreaterOrEqual(t, ueof, int64(0))
			assert.Equal(t, int64(len(blocks)), w.BlocksWritten())

			r, err := OpenReader(ctx, fs.Default, path, eof, ReaderOptions{})
			require.NoError(t, err)
			defer r.Close()

			var got []datum.Datum
			for {
				ok, err := r.Advance()
				require.NoError(t, err)
				if !ok {
					break
				}
				got = append(got, r.Value().Clone())
			}
			require.Len(t, got, len(values))
			for i := range values {
				assert.True(t, values[i].Equal(got[i]), "row %d", i+1)
			}
		})
	}
}

func TestWriterNeverExceedsBlockSize(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1.0")
	const blockSize = 128
	w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: blockSize})
	require.NoError(t, err)

	values := make([]datum.Datum, 200)
	for i := range values {
		values[i] = datum.Text(fmt.Sprintf("v%03d", i))
	}
	blocks := putAll(t, w, 1, values)
	require.NoError(t, w.Close())

	for _, b := range blocks {
		assert.False(t, b.Large)
		assert.LessOrEqual(t, b.AfterFileOffset-b.FileOffset, int64(blockSize))
	}
}

func TestLargeContentBlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1.0")
	w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: 128})
	require.NoError(t, err)

	big := datum.Bytes(make([]byte, 1000))
	values := []datum.Datum{datum.Int64(1), big, datum.Int64(3)}
	blocks := putAll(t, w, 10, values)
	require.NoError(t, w.Close())

	require.Len(t, blocks, 3)
	assert.Equal(t, BlockInfo{FileOffset: blocks[0].FileOffset, AfterFileOffset: blocks[0].AfterFileOffset, FirstRowNum: 10, RowCount: 1}, blocks[0])
	assert.True(t, blocks[1].Large)
	assert.Equal(t, int64(11), blocks[1].FirstRowNum)
	assert.Equal(t, int64(12), blocks[2].FirstRowNum)

	eof, _ := w.EOF()
	r, err := OpenReader(ctx, fs.Default, path, eof, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	ok, err := r.ReadBlock()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.ReadBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, varblock.KindLargeContent, r.Block().Kind)
	require.NoError(t, r.SetNth(0))
	assert.Len(t, r.Value().Value, 1000)
}

func TestWriteLargeRequiresFlush(t *testing.T) {
	w, err := OpenWriter(context.Background(), fs.Default, filepath.Join(t.TempDir(), "1.0"), 0, 0, WriterOptions{BlockSize: 128})
	require.NoError(t, err)
	require.NoError(t, w.Put(datum.Int64(1)))
	_, err = w.WriteLarge(datum.Bytes(make([]byte, 500)))
	require.ErrorIs(t, err, ErrUnflushed)
	require.ErrorIs(t, w.Close(), ErrUnflushed)
	w.Abort()
}

func TestSkipToBlockAtAndHeaderScan(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1.0")
	w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: 100})
	require.NoError(t, err)
	blocks := putAll(t, w, 1, intValues(50))
	require.NoError(t, w.Close())
	require.GreaterOrEqual(t, len(blocks), 3)
	eof, _ := w.EOF()

	r, err := OpenReader(ctx, fs.Default, path, eof, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	var headers []BlockMeta
	for {
		ok, err := r.ReadBlockHeader()
		require.NoError(t, err)
		if !ok {
			break
		}
		headers = append(headers, r.Block())
	}
	require.Len(t, headers, len(blocks))
	for i, h := range headers {
		assert.Equal(t, blocks[i].FileOffset, h.FileOffset)
		assert.Equal(t, blocks[i].FirstRowNum, h.FirstRowNum)
		assert.Equal(t, blocks[i].RowCount, h.RowCount)
		assert.True(t, h.Contains(h.FirstRowNum))
		assert.False(t, h.Contains(h.FirstRowNum+int64(h.RowCount)))
	}

	target := blocks[2]
	require.NoError(t, r.SkipToBlockAt(target.FileOffset))
	ok, err := r.ReadBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.SetNth(1))
	assert.Equal(t, target.FirstRowNum+1, r.Value().Int64())
	assert.Equal(t, target.RowCount-2, r.Remaining())

	require.Error(t, r.SkipToBlockAt(eof+1))
}

func TestReopenTruncatesAbortedTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1.0")

	w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: 1024})
	require.NoError(t, err)
	putAll(t, w, 1, intValues(10))
	require.NoError(t, w.Close())
	committed, ucommitted := w.EOF()

	// Aborted append.
	w, err = OpenWriter(ctx, fs.Default, path, committed, ucommitted, WriterOptions{BlockSize: 1024})
	require.NoError(t, err)
	putAll(t, w, 11, intValues(10))
	w.Abort()

	w, err = OpenWriter(ctx, fs.Default, path, committed, ucommitted, WriterOptions{BlockSize: 1024})
	require.NoError(t, err)
	blocks := putAll(t, w, 31, intValues(5))
	require.NoError(t, w.Close())
	require.Len(t, blocks, 1)
	assert.Equal(t, committed, blocks[0].FileOffset)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, blocks[0].AfterFileOffset, info.Size())
}

func TestOpenWriterRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.0")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	_, err := OpenWriter(context.Background(), fs.Default, path, 10, 10, WriterOptions{BlockSize: 128})
	require.ErrorIs(t, err, ErrEOFMismatch)
}

func TestReaderDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1.0")
	w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: 1024, Checksums: true})
	require.NoError(t, err)
	putAll(t, w, 1, intValues(20))
	require.NoError(t, w.Close())
	eof, _ := w.EOF()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-3] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := OpenReader(ctx, fs.Default, path, eof, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Advance()
	require.ErrorIs(t, err, varblock.ErrFormat)

	// A logical EOF cutting a block in half is also corrupt.
	r2, err := OpenReader(ctx, fs.Default, path, eof-1, ReaderOptions{})
	require.NoError(t, err)
	defer r2.Close()
	_, err = r2.ReadBlockHeader()
	require.ErrorIs(t, err, varblock.ErrFormat)
}

func TestReaderUsesBlockCacheAndMmap(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "1.0")
	w, err := OpenWriter(ctx, fs.Default, path, 0, 0, WriterOptions{BlockSize: 1024})
	require.NoError(t, err)
	putAll(t, w, 1, intValues(20))
	require.NoError(t, w.Close())
	eof, _ := w.EOF()

	bc := cache.NewLRUBlockCache(1<<20, nil)
	for i := 0; i < 2; i++ {
		r, err := OpenReader(ctx, fs.Default, path, eof, ReaderOptions{Cache: bc, Mmap: true})
		require.NoError(t, err)
		ok, err := r.ReadBlock()
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, r.Close())
	}
	hits, misses := bc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEmptyReader(t *testing.T) {
	r, err := OpenReader(context.Background(), fs.Default, filepath.Join(t.TempDir(), "missing"), 0, ReaderOptions{})
	require.NoError(t, err)
	ok, err := r.Advance()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.Close())
}

func TestWriterReservesMemory(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1000})
	dir := t.TempDir()

	w, err := OpenWriter(context.Background(), fs.Default, filepath.Join(dir, "1.0"), 0, 0, WriterOptions{BlockSize: 600, Resources: rc})
	require.NoError(t, err)
	assert.Equal(t, int64(600), rc.MemoryUsage())

	_, err = OpenWriter(context.Background(), fs.Default, filepath.Join(dir, "1.1"), 0, 0, WriterOptions{BlockSize: 600, Resources: rc})
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	require.NoError(t, w.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestWriteErrorsPropagate(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("1.0", fs.Fault{FailAfterBytes: 10})
	w, err := OpenWriter(context.Background(), ffs, filepath.Join(t.TempDir(), "1.0"), 0, 0, WriterOptions{BlockSize: 1024})
	require.NoError(t, err)
	require.NoError(t, w.Put(datum.Int64(1)))
	_, _, err = w.FlushBlock()
	require.ErrorIs(t, err, fs.ErrInjected)
	w.Abort()
}
