package segdir

import (
	"testing"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentEncodeDecode(t *testing.T) {
	s := Segment{
		SegNo:         5,
		State:         AwaitingDrop,
		TupleCount:    1000,
		VarblockCount: 10,
		ModCount:      3,
		HiddenCount:   4,
		Columns:       []ColumnEOF{{EOF: 100, UncompressedEOF: 200}, {EOF: 0, UncompressedEOF: 0}},
	}
	got, err := Decode(s.Encode())
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = Decode(s.Encode()[:20])
	require.ErrorIs(t, err, ErrMalformed)

	bad := s.Encode()
	bad[1] = 9
	_, err = Decode(bad)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSegmentColumn(t *testing.T) {
	s := Segment{Columns: []ColumnEOF{{EOF: 7}}}
	assert.Equal(t, int64(7), s.Column(0).EOF)
	assert.Equal(t, ColumnEOF{}, s.Column(3))
	assert.Equal(t, "awaiting-drop", AwaitingDrop.String())
}

func TestDirectory(t *testing.T) {
	store, err := auxstore.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	view := store.NewView()
	defer view.Close()
	d := New(view)

	segs := []Segment{
		{SegNo: 3, State: Active, TupleCount: 30},
		{SegNo: 1, State: Active, TupleCount: 10},
		{SegNo: 2, State: AwaitingDrop, TupleCount: 20},
		{SegNo: 4, State: Active},
	}
	for _, s := range segs {
		require.NoError(t, d.Put(s))
	}

	list, err := d.List()
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, s := range list {
		assert.Equal(t, int32(i+1), s.SegNo)
	}

	scannable, err := d.Scannable()
	require.NoError(t, err)
	require.Len(t, scannable, 2)
	assert.Equal(t, int32(1), scannable[0].SegNo)
	assert.Equal(t, int32(3), scannable[1].SegNo)

	total, err := d.TotalTupleCount()
	require.NoError(t, err)
	assert.Equal(t, int64(40), total)

	// Another view does not see the staged descriptors until commit.
	other := store.NewView()
	defer other.Close()
	od := New(other)
	_, ok, err := od.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, view.Commit())
	other.Refresh()
	od.Refresh()
	s, ok, err := od.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(30), s.TupleCount)
}

func TestDirectoryReturnsCopies(t *testing.T) {
	store, err := auxstore.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()
	view := store.NewView()
	defer view.Close()

	d := New(view)
	require.NoError(t, d.Put(Segment{SegNo: 0, State: Active, Columns: []ColumnEOF{{EOF: 1}}}))
	s, _, err := d.Get(0)
	require.NoError(t, err)
	s.Columns[0].EOF = 99

	again, _, err := d.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Columns[0].EOF)
}
