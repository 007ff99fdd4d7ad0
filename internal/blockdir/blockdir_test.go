package blockdir

import (
	"testing"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory(t *testing.T) (*Directory, *auxstore.Store, *auxstore.View) {
	t.Helper()
	store, err := auxstore.OpenInMemory()
	require.NoError(t, err)
	view := store.NewView()
	t.Cleanup(func() {
		_ = view.Close()
		_ = store.Close()
	})
	return New(view), store, view
}

// Rows 1-100 at [0,50), hole 101-150, rows 151-200 at [50,90).
func recordWithHole(t *testing.T, d *Directory) {
	t.Helper()
	require.NoError(t, d.RecordEntry(0, 1, Entry{FirstRowNum: 1, RowCount: 100, FileOffset: 0, AfterFileOffset: 50}))
	require.NoError(t, d.RecordEntry(0, 1, Entry{FirstRowNum: 151, RowCount: 50, FileOffset: 50, AfterFileOffset: 90}))
}

func TestFindEntry(t *testing.T) {
	d, _, _ := newDirectory(t)
	recordWithHole(t, d)

	tests := []struct {
		name  string
		row   int64
		found bool
		first int64
	}{
		{"below first entry", 0, false, 0},
		{"first row", 1, true, 1},
		{"inside first", 57, true, 1},
		{"last row of first", 100, true, 1},
		{"boundary starting a hole", 101, false, 0},
		{"inside hole", 120, false, 0},
		{"last row of hole", 150, false, 0},
		{"first row after hole", 151, true, 151},
		{"last row", 200, true, 151},
		{"past last", 201, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok, err := d.FindEntry(0, 1, tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.first, e.FirstRowNum)
			}
		})
	}
}

func TestFindEntryUnknownFile(t *testing.T) {
	d, _, _ := newDirectory(t)
	_, ok, err := d.FindEntry(9, 9, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordEntryRejectsNonMonotonic(t *testing.T) {
	d, _, _ := newDirectory(t)
	recordWithHole(t, d)

	overlapRows := Entry{FirstRowNum: 200, RowCount: 10, FileOffset: 90, AfterFileOffset: 100}
	require.ErrorIs(t, d.RecordEntry(0, 1, overlapRows), ErrNonMonotonic)

	overlapBytes := Entry{FirstRowNum: 201, RowCount: 10, FileOffset: 80, AfterFileOffset: 100}
	require.ErrorIs(t, d.RecordEntry(0, 1, overlapBytes), ErrNonMonotonic)

	require.Error(t, d.RecordEntry(0, 1, Entry{FirstRowNum: 300, RowCount: 0, FileOffset: 90, AfterFileOffset: 100}))
	require.Error(t, d.RecordEntry(0, 1, Entry{FirstRowNum: 300, RowCount: 1, FileOffset: 90, AfterFileOffset: 90}))

	// Other files of the same segment are independent.
	require.NoError(t, d.RecordEntry(0, 2, Entry{FirstRowNum: 1, RowCount: 10, FileOffset: 0, AfterFileOffset: 10}))

	entries, err := d.Entries(0, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, CheckMonotonic(entries))
}

func TestEntriesPersistAcrossViews(t *testing.T) {
	d, store, view := newDirectory(t)
	recordWithHole(t, d)
	require.NoError(t, view.Commit())

	other := store.NewView()
	defer other.Close()
	d2 := New(other)

	entries, err := d2.Entries(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{FirstRowNum: 1, RowCount: 100, FileOffset: 0, AfterFileOffset: 50},
		{FirstRowNum: 151, RowCount: 50, FileOffset: 50, AfterFileOffset: 90},
	}, entries)

	last, ok, err := d2.LastEntry(0, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), last.LastRowNum())
}

func TestAbortedEntriesVanish(t *testing.T) {
	d, _, view := newDirectory(t)
	recordWithHole(t, d)
	view.Discard()
	d.Refresh()

	entries, err := d.Entries(0, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlaceholder(t *testing.T) {
	d, _, view := newDirectory(t)
	recordWithHole(t, d)

	require.NoError(t, d.InsertPlaceholder(0, 1, 201, 100, 90))

	covered, err := d.CoversRow(0, 1, 250)
	require.NoError(t, err)
	assert.True(t, covered)

	covered, err = d.CoversRow(0, 1, 120)
	require.NoError(t, err)
	assert.False(t, covered)

	// Never visible to ordinary lookups.
	_, ok, err := d.FindEntry(0, 1, 250)
	require.NoError(t, err)
	assert.False(t, ok)
	entries, err := d.Entries(0, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, view.Commit())
	lo, hi := auxstore.BlockDirRange(0, 1)
	n := 0
	require.NoError(t, view.Scan(lo, hi, func(_, _ []byte) bool { n++; return true }))
	assert.Equal(t, 2, n)

	d.RemovePlaceholder(0, 1)
	covered, err = d.CoversRow(0, 1, 250)
	require.NoError(t, err)
	assert.False(t, covered)
}

func TestDeleteFileAndSegment(t *testing.T) {
	d, _, view := newDirectory(t)
	recordWithHole(t, d)
	require.NoError(t, d.RecordEntry(0, 2, Entry{FirstRowNum: 1, RowCount: 1, FileOffset: 0, AfterFileOffset: 8}))
	require.NoError(t, d.RecordEntry(1, 1, Entry{FirstRowNum: 1, RowCount: 1, FileOffset: 0, AfterFileOffset: 8}))
	require.NoError(t, view.Commit())

	d.DeleteFile(0, 1)
	entries, err := d.Entries(0, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = d.Entries(0, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	d.DeleteSegment(0)
	require.NoError(t, view.Commit())
	d.Refresh()

	entries, err = d.Entries(0, 2)
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = d.Entries(1, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
