package segdir

import (
	"fmt"
	"sort"

	"github.com/hupe1980/aocs/internal/auxstore"
)

// Directory reads and stages segment descriptors through an aux store view.
// Descriptors are loaded once and cached until Refresh; Put updates the cache
// so a statement sees its own changes.
type Directory struct {
	view   *auxstore.View
	loaded bool
	segs   map[int32]Segment
}

// New returns a directory reading through view.
func New(view *auxstore.View) *Directory {
	return &Directory{view: view}
}

// Refresh drops cached descriptors. The next call re-reads the view.
func (d *Directory) Refresh() {
	d.loaded = false
	d.segs = nil
}

func (d *Directory) load() error {
	if d.loaded {
		return nil
	}
	segs := make(map[int32]Segment)
	var decodeErr error
	lo, hi := auxstore.SegmentRange()
	err := d.view.Scan(lo, hi, func(_, value []byte) bool {
		s, err := Decode(value)
		if err != nil {
			decodeErr = err
			return false
		}
		segs[s.SegNo] = s
		return true
	})
	if err != nil {
		return fmt.Errorf("segdir: load: %w", err)
	}
	if decodeErr != nil {
		return decodeErr
	}
	d.segs = segs
	d.loaded = true
	return nil
}

// List returns all segments in ascending segment number.
func (d *Directory) List() ([]Segment, error) {
	if err := d.load(); err != nil {
		return nil, err
	}
	out := make([]Segment, 0, len(d.segs))
	for _, s := range d.segs {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegNo < out[j].SegNo })
	return out, nil
}

// Get returns the descriptor of segno.
func (d *Directory) Get(segno int32) (Segment, bool, error) {
	if err := d.load(); err != nil {
		return Segment{}, false, err
	}
	s, ok := d.segs[segno]
	if !ok {
		return Segment{}, false, nil
	}
	return s.Clone(), true, nil
}

// Scannable returns the segments a scan visits: not AwaitingDrop and not
// empty, in ascending order.
func (d *Directory) Scannable() ([]Segment, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if s.Scannable() {
			out = append(out, s)
		}
	}
	return out, nil
}

// TotalTupleCount sums the row counts of all scannable segments.
func (d *Directory) TotalTupleCount() (int64, error) {
	segs, err := d.Scannable()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, s := range segs {
		n += s.TupleCount
	}
	return n, nil
}

// Put stages a descriptor in the view.
func (d *Directory) Put(s Segment) error {
	if err := d.load(); err != nil {
		return err
	}
	s = s.Clone()
	d.view.Set(auxstore.SegmentKey(s.SegNo), s.Encode())
	d.segs[s.SegNo] = s
	return nil
}
