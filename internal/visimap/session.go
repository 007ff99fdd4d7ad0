package visimap

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/aocs/internal/auxstore"
)

// DeleteSession collects the hides of one statement so that repeated deletes
// in the same entry are written once. It is the single writer of the map for
// the segments it touches. The rows hidden per segment are kept so that the
// caller can maintain segment hidden counts.
type DeleteSession struct {
	m      *Map
	dirty  map[entryKey]*Entry
	hidden map[int32]*roaring64.Bitmap
}

// NewDeleteSession starts a delete session on m.
func NewDeleteSession(m *Map) *DeleteSession {
	return &DeleteSession{
		m:      m,
		dirty:  make(map[entryKey]*Entry),
		hidden: make(map[int32]*roaring64.Bitmap),
	}
}

// Hide marks row rowNum of segno hidden. It returns ErrAlreadyHidden if the
// row was hidden before, either by a committed delete or earlier in this
// session.
func (s *DeleteSession) Hide(segno int32, rowNum int64) error {
	k := entryKey{segno, EntryFirstRowNum(rowNum)}
	e, ok := s.dirty[k]
	if !ok {
		stored, err := s.m.entry(segno, rowNum)
		if err != nil {
			return err
		}
		if stored != nil {
			e = stored.Clone()
		} else {
			e = NewEntry(segno, k.first)
		}
	}
	if err := e.Hide(rowNum); err != nil {
		return err
	}
	s.dirty[k] = e

	rows := s.hidden[segno]
	if rows == nil {
		rows = roaring64.New()
		s.hidden[segno] = rows
	}
	rows.Add(uint64(rowNum))
	return nil
}

// Pending reports whether unflushed hides exist.
func (s *DeleteSession) Pending() bool { return len(s.dirty) > 0 }

// HiddenRows returns the number of distinct rows this session hid in segno.
func (s *DeleteSession) HiddenRows(segno int32) int64 {
	if rows := s.hidden[segno]; rows != nil {
		return int64(rows.GetCardinality())
	}
	return 0
}

// Segments returns the segments this session hid rows in, ascending.
func (s *DeleteSession) Segments() []int32 {
	out := make([]int32, 0, len(s.hidden))
	for segno := range s.hidden {
		out = append(out, segno)
	}
	slices.Sort(out)
	return out
}

// Flush writes dirty entries into the map's view and resets the session.
// After Flush, IsVisible on the same map reports the hidden rows.
func (s *DeleteSession) Flush() error {
	for k, e := range s.dirty {
		b, err := e.Encode()
		if err != nil {
			return err
		}
		s.m.view.Set(auxstore.VisimapKey(k.segno, k.first), b)
		s.m.invalidate(k)
	}
	clear(s.dirty)
	clear(s.hidden)
	return nil
}
