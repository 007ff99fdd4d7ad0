package auxstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func collect(t *testing.T, v *View, lo, hi []byte) []string {
	t.Helper()
	var out []string
	require.NoError(t, v.Scan(lo, hi, func(k, val []byte) bool {
		out = append(out, fmt.Sprintf("%s=%s", k, val))
		return true
	}))
	return out
}

func TestViewIsolation(t *testing.T) {
	s := openStore(t)

	writer := s.NewView()
	defer writer.Close()
	reader := s.NewView()
	defer reader.Close()

	writer.Set([]byte("a"), []byte("1"))
	v, ok, err := writer.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	_, ok, err = reader.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok, "uncommitted write leaked")

	require.NoError(t, writer.Commit())
	assert.False(t, writer.Dirty())

	// The old snapshot still hides the commit until refreshed.
	_, ok, err = reader.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	reader.Refresh()
	_, ok, err = reader.Get([]byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestViewFork(t *testing.T) {
	s := openStore(t)
	v := s.NewView()
	defer v.Close()
	v.Set([]byte("a"), []byte("1"))
	v.Set([]byte("b"), []byte("1"))
	v.DeleteRange([]byte("c"), []byte("d"))

	fork := v.Fork()
	defer fork.Close()

	// writes after the fork stay private to each side
	v.Set([]byte("b"), []byte("2"))
	fork.Set([]byte("x"), []byte("f"))
	assert.Equal(t, []string{"a=1", "b=1", "x=f"}, collect(t, fork, []byte("a"), []byte("z")))
	assert.Equal(t, []string{"a=1", "b=2"}, collect(t, v, []byte("a"), []byte("z")))

	// commits by others after the fork are not seen
	other := s.NewView()
	defer other.Close()
	other.Set([]byte("e"), []byte("other"))
	require.NoError(t, other.Commit())
	_, ok, err := fork.Get([]byte("e"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fork.Close())
	require.NoError(t, v.Commit())
	assert.Equal(t, []string{"a=1", "b=2", "e=other"}, collect(t, v, []byte("a"), []byte("z")))
}

func TestViewDiscard(t *testing.T) {
	s := openStore(t)
	v := s.NewView()
	defer v.Close()

	v.Set([]byte("k"), []byte("v"))
	require.True(t, v.Dirty())
	v.Discard()
	_, ok, err := v.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanMergesOverlay(t *testing.T) {
	s := openStore(t)
	v := s.NewView()
	defer v.Close()

	for _, k := range []string{"b", "d", "f"} {
		v.Set([]byte(k), []byte("old"))
	}
	require.NoError(t, v.Commit())

	v.Set([]byte("a"), []byte("new"))
	v.Set([]byte("d"), []byte("new"))
	v.Delete([]byte("f"))
	v.Set([]byte("z"), []byte("out"))

	assert.Equal(t, []string{"a=new", "b=old", "d=new"}, collect(t, v, []byte("a"), []byte("g")))

	require.NoError(t, v.Commit())
	assert.Equal(t, []string{"a=new", "b=old", "d=new", "z=out"}, collect(t, v, []byte("a"), []byte("zz")))
}

func TestScanStopsEarly(t *testing.T) {
	s := openStore(t)
	v := s.NewView()
	defer v.Close()
	for i := 0; i < 10; i++ {
		v.Set([]byte{byte('a' + i)}, []byte("x"))
	}
	require.NoError(t, v.Commit())

	n := 0
	require.NoError(t, v.Scan([]byte("a"), []byte("z"), func(_, _ []byte) bool {
		n++
		return n < 3
	}))
	assert.Equal(t, 3, n)
}

func TestDeleteRange(t *testing.T) {
	s := openStore(t)
	v := s.NewView()
	defer v.Close()

	lo, hi := BlockDirRange(1, 1)
	for i := int64(1); i <= 3; i++ {
		v.Set(BlockDirKey(1, 1, i*100), []byte("e"))
	}
	v.Set(BlockDirKey(1, 2, 1), []byte("other"))
	require.NoError(t, v.Commit())

	v.DeleteRange(lo, hi)
	v.Set(BlockDirKey(1, 1, 500), []byte("fresh"))

	var keys [][]byte
	require.NoError(t, v.Scan(lo, hi, func(k, _ []byte) bool {
		keys = append(keys, k)
		return true
	}))
	require.Len(t, keys, 1)
	_, _, first, err := DecodeBlockDirKey(keys[0])
	require.NoError(t, err)
	assert.Equal(t, int64(500), first)

	require.NoError(t, v.Commit())
	_, ok, err := v.Get(BlockDirKey(1, 1, 100))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = v.Get(BlockDirKey(1, 2, 1))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = v.Get(BlockDirKey(1, 1, 500))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyOrdering(t *testing.T) {
	// Big-endian encoding keeps numeric order.
	assert.Less(t, string(BlockDirKey(0, 1, 255)), string(BlockDirKey(0, 1, 256)))
	assert.Less(t, string(VisimapKey(1, 32768)), string(VisimapKey(2, 0)))

	lo, hi := VisimapRange(3)
	k := VisimapKey(3, 65536)
	assert.True(t, keyRange{lo: lo, hi: hi}.contains(k))

	segno, first, err := DecodeVisimapKey(k)
	require.NoError(t, err)
	assert.Equal(t, int32(3), segno)
	assert.Equal(t, int64(65536), first)

	_, _, err = DecodeVisimapKey(SegmentKey(3))
	require.Error(t, err)
	_, _, _, err = DecodeBlockDirKey(VisimapKey(3, 1))
	require.Error(t, err)

	assert.Equal(t, []byte{'S', 0, 0, 1}, prefixEnd([]byte{'S', 0, 0, 0, 0xff}))
}

func TestAllocateSequences(t *testing.T) {
	s := openStore(t)

	first, err := s.AllocateSequences(0, NumSequences)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	first, err = s.AllocateSequences(0, NumSequences)
	require.NoError(t, err)
	assert.Equal(t, int64(101), first)

	first, err = s.AllocateSequences(1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	last, err := s.LastSequence(0)
	require.NoError(t, err)
	assert.Equal(t, int64(200), last)

	_, err = s.AllocateSequences(0, 0)
	require.Error(t, err)
}

func TestAllocateSequencesConcurrent(t *testing.T) {
	s := openStore(t)

	const workers = 8
	firsts := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := s.AllocateSequences(7, 10)
			assert.NoError(t, err)
			firsts[i] = f
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, f := range firsts {
		assert.False(t, seen[f], "range starting at %d handed out twice", f)
		seen[f] = true
		assert.Equal(t, int64(1), (f-1)%10+1)
	}
}

func TestSequencesSurviveAbort(t *testing.T) {
	s := openStore(t)
	v := s.NewView()
	defer v.Close()

	_, err := s.AllocateSequences(0, NumSequences)
	require.NoError(t, err)
	v.Discard()

	first, err := s.AllocateSequences(0, NumSequences)
	require.NoError(t, err)
	assert.Equal(t, int64(NumSequences+1), first)
}

func TestClosedStore(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.AllocateSequences(0, 1)
	require.ErrorIs(t, err, ErrClosed)
}
