package blockdir

import (
	"errors"
	"fmt"

	"github.com/google/btree"
	"github.com/hupe1980/aocs/internal/auxstore"
)

// ErrNonMonotonic is returned when an entry does not follow the previous one.
var ErrNonMonotonic = errors.New("blockdir: entry not monotonic")

type fileKey struct {
	segno   int32
	filenum int32
}

type file struct {
	entries     *btree.BTreeG[Entry]
	placeholder *Entry
}

func entryLess(a, b Entry) bool { return a.FirstRowNum < b.FirstRowNum }

// Directory is the block directory of one table, read and written through an
// aux store view. Entries of a column file are loaded on first use.
type Directory struct {
	view  *auxstore.View
	files map[fileKey]*file
}

// New returns a directory reading through view.
func New(view *auxstore.View) *Directory {
	return &Directory{view: view, files: make(map[fileKey]*file)}
}

// Refresh drops loaded entries so that the next lookup re-reads the view.
// Placeholders are dropped too.
func (d *Directory) Refresh() {
	d.files = make(map[fileKey]*file)
}

func (d *Directory) load(segno, filenum int32) (*file, error) {
	k := fileKey{segno, filenum}
	if f, ok := d.files[k]; ok {
		return f, nil
	}
	f := &file{entries: btree.NewG(16, entryLess)}
	var decodeErr error
	lo, hi := auxstore.BlockDirRange(segno, filenum)
	err := d.view.Scan(lo, hi, func(key, value []byte) bool {
		_, _, first, err := auxstore.DecodeBlockDirKey(key)
		if err == nil {
			var e Entry
			if e, err = decodeEntry(first, value); err == nil {
				f.entries.ReplaceOrInsert(e)
				return true
			}
		}
		decodeErr = err
		return false
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, fmt.Errorf("blockdir: load segment %d file %d: %w", segno, filenum, err)
	}
	d.files[k] = f
	return f, nil
}

// RecordEntry appends e for (segno, filenum). It must start after the last
// recorded row and byte.
func (d *Directory) RecordEntry(segno, filenum int32, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	f, err := d.load(segno, filenum)
	if err != nil {
		return err
	}
	if last, ok := f.entries.Max(); ok {
		if err := CheckMonotonic([]Entry{last, e}); err != nil {
			return fmt.Errorf("segment %d file %d: %w", segno, filenum, err)
		}
	}
	f.entries.ReplaceOrInsert(e)
	d.view.Set(auxstore.BlockDirKey(segno, filenum, e.FirstRowNum), encodeEntry(e))
	return nil
}

// FindEntry returns the entry whose row range contains rowNum. Rows below the
// first entry and rows in a gap between entries are not found. A row right
// after an entry's last row that starts a gap is in the gap.
func (d *Directory) FindEntry(segno, filenum int32, rowNum int64) (Entry, bool, error) {
	f, err := d.load(segno, filenum)
	if err != nil {
		return Entry{}, false, err
	}
	var (
		found Entry
		ok    bool
	)
	f.entries.DescendLessOrEqual(Entry{FirstRowNum: rowNum}, func(e Entry) bool {
		found, ok = e, true
		return false
	})
	if !ok || !found.Contains(rowNum) {
		return Entry{}, false, nil
	}
	return found, true, nil
}

// Entries returns all entries of (segno, filenum) in row order.
func (d *Directory) Entries(segno, filenum int32) ([]Entry, error) {
	f, err := d.load(segno, filenum)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, f.entries.Len())
	f.entries.Ascend(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out, nil
}

// LastEntry returns the entry with the highest row range.
func (d *Directory) LastEntry(segno, filenum int32) (Entry, bool, error) {
	f, err := d.load(segno, filenum)
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := f.entries.Max()
	return e, ok, nil
}

// InsertPlaceholder marks rows an insert has reserved but not flushed yet,
// so that CoversRow sees them. It replaces any previous placeholder of the
// same file. Placeholders are never persisted nor returned by FindEntry or
// Entries.
func (d *Directory) InsertPlaceholder(segno, filenum int32, firstRowNum, rowCount, fileOffset int64) error {
	f, err := d.load(segno, filenum)
	if err != nil {
		return err
	}
	f.placeholder = &Entry{FirstRowNum: firstRowNum, RowCount: rowCount, FileOffset: fileOffset, AfterFileOffset: fileOffset}
	return nil
}

// RemovePlaceholder drops the placeholder of (segno, filenum).
func (d *Directory) RemovePlaceholder(segno, filenum int32) {
	if f, ok := d.files[fileKey{segno, filenum}]; ok {
		f.placeholder = nil
	}
}

// CoversRow reports whether rowNum is covered by a recorded entry or by the
// placeholder of an in-progress insert.
func (d *Directory) CoversRow(segno, filenum int32, rowNum int64) (bool, error) {
	f, err := d.load(segno, filenum)
	if err != nil {
		return false, err
	}
	if p := f.placeholder; p != nil && p.Contains(rowNum) {
		return true, nil
	}
	_, ok, err := d.FindEntry(segno, filenum, rowNum)
	return ok, err
}

// DeleteFile stages the removal of all entries of (segno, filenum).
func (d *Directory) DeleteFile(segno, filenum int32) {
	lo, hi := auxstore.BlockDirRange(segno, filenum)
	d.view.DeleteRange(lo, hi)
	delete(d.files, fileKey{segno, filenum})
}

// DeleteSegment stages the removal of all entries of segno.
func (d *Directory) DeleteSegment(segno int32) {
	lo, hi := auxstore.BlockDirSegmentRange(segno)
	d.view.DeleteRange(lo, hi)
	for k := range d.files {
		if k.segno == segno {
			delete(d.files, k)
		}
	}
}
