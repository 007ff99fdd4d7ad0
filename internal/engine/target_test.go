package engine

import (
	"testing"

	"github.com/hupe1980/aocs/internal/datum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type targetResult struct {
	id    RowID
	row   datum.Row
	found bool
}

func (f *fixture) targets(n int64, opts ScanOptions) []targetResult {
	f.t.Helper()
	out := make([]targetResult, 0, n)
	f.mustExec(func(sc *Context) error {
		s, err := sc.Scan(opts)
		require.NoError(f.t, err)
		for target := int64(0); target < n; target++ {
			id, row, found, err := s.GetTargetRow(target)
			require.NoError(f.t, err)
			out = append(out, targetResult{id: id, row: row.Clone(), found: found})
		}
		return nil
	})
	return out
}

func TestGetTargetRowStrategiesAgree(t *testing.T) {
	f := newFixture(t)
	f.insertRows(0, 1, 150)
	f.abortedInsert(0, 20)
	f.insertRows(0, 151, 60)
	f.insertRows(3, 1000, 25)
	require.NoError(t, f.deleteRow(RowID{SegNo: 0, RowNum: 7}))
	require.NoError(t, f.deleteRow(RowID{SegNo: 3, RowNum: 2}))

	const total = 150 + 60 + 25
	n := int64(total + 3)

	directory := f.withEngine(WithTargetStrategy(TargetDirectory)).targets(n, ScanOptions{})
	sequential := f.withEngine(WithTargetStrategy(TargetSequential)).targets(n, ScanOptions{})
	auto := f.targets(n, ScanOptions{})
	require.Equal(t, directory, sequential)
	require.Equal(t, directory, auto)

	visible := 0
	for _, r := range directory {
		if r.found {
			visible++
		}
	}
	assert.Equal(t, total-2, visible)

	assert.Equal(t, targetResult{id: RowID{0, 1}, row: testRow(1), found: true}, directory[0])
	assert.False(t, directory[6].found, "hidden row")
	assert.Equal(t, RowID{0, 301}, directory[150].id, "first row after the hole")
	assert.Equal(t, int64(151), directory[150].row[0].Int64())
	assert.Equal(t, RowID{3, 1}, directory[210].id)
	assert.False(t, directory[total].found, "past the end")
}

func TestGetTargetRowIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.insertRows(0, 1, 300)

	f.mustExec(func(sc *Context) error {
		s, err := sc.Scan(ScanOptions{Columns: []int{1}})
		require.NoError(t, err)

		// interleave with sequential scanning; the scan position is unchanged
		ok, err := s.Next()
		require.NoError(t, err)
		require.True(t, ok)

		for _, target := range []int64{250, 3, 250, 299, 3} {
			id, row, found, err := s.GetTargetRow(target)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, target+1, id.RowNum)
			assert.Equal(t, testRow(target + 1)[1].String(), row[0].String())
		}
		assert.Equal(t, RowID{0, 1}, s.RowID())

		ok, err = s.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, RowID{0, 2}, s.RowID())
		return nil
	})
}
