package visimap

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/aocs/internal/auxstore"
)

// Snapshot is the visibility token a check is made under. The committed
// state a check sees comes from the aux store view the Map reads; the only
// interpreted snapshot property is IgnoreVisibility.
type Snapshot struct {
	id     uint64
	ignore bool
}

// IgnoreVisibility treats every physically present row as visible.
var IgnoreVisibility = Snapshot{ignore: true}

// NewSnapshot returns a regular snapshot with the given id.
func NewSnapshot(id uint64) Snapshot { return Snapshot{id: id} }

// ID returns the snapshot id.
func (s Snapshot) ID() uint64 { return s.id }

// IgnoresVisibility reports whether s is IgnoreVisibility.
func (s Snapshot) IgnoresVisibility() bool { return s.ignore }

type entryKey struct {
	segno int32
	first int64
}

// Map answers visibility checks through an aux store view. Entries are
// loaded on demand and cached until Refresh.
type Map struct {
	view    *auxstore.View
	entries map[entryKey]*Entry
	current *Entry
}

// New returns a map reading through view.
func New(view *auxstore.View) *Map {
	return &Map{view: view, entries: make(map[entryKey]*Entry)}
}

// Refresh drops cached entries.
func (m *Map) Refresh() {
	m.entries = make(map[entryKey]*Entry)
	m.current = nil
}

func (m *Map) invalidate(k entryKey) {
	delete(m.entries, k)
	if m.current != nil && m.current.SegNo == k.segno && m.current.FirstRowNum == k.first {
		m.current = nil
	}
}

// entry returns the entry covering rowNum; it is nil if none was stored.
func (m *Map) entry(segno int32, rowNum int64) (*Entry, error) {
	if c := m.current; c != nil && c.SegNo == segno && c.Covers(rowNum) {
		return c, nil
	}
	k := entryKey{segno, EntryFirstRowNum(rowNum)}
	if e, ok := m.entries[k]; ok {
		if e != nil {
			m.current = e
		}
		return e, nil
	}
	v, ok, err := m.view.Get(auxstore.VisimapKey(k.segno, k.first))
	if err != nil {
		return nil, fmt.Errorf("visimap: load segment %d entry %d: %w", k.segno, k.first, err)
	}
	var e *Entry
	if ok {
		if e, err = DecodeEntry(k.segno, k.first, v); err != nil {
			return nil, err
		}
		m.current = e
	}
	m.entries[k] = e
	return e, nil
}

// IsVisible reports whether row rowNum of segno is visible under snap.
func (m *Map) IsVisible(segno int32, rowNum int64, snap Snapshot) (bool, error) {
	if snap.IgnoresVisibility() {
		return true, nil
	}
	e, err := m.entry(segno, rowNum)
	if err != nil {
		return false, err
	}
	if e == nil {
		return true, nil
	}
	return !e.IsHidden(rowNum), nil
}

// HiddenCount returns the number of hidden rows of segno.
func (m *Map) HiddenCount(segno int32) (int64, error) {
	var (
		n      int64
		badKey []byte
	)
	lo, hi := auxstore.VisimapRange(segno)
	err := m.view.Scan(lo, hi, func(key, value []byte) bool {
		if len(value) < 8 {
			badKey = key
			return false
		}
		n += int64(binary.LittleEndian.Uint64(value))
		return true
	})
	if err != nil {
		return 0, err
	}
	if badKey != nil {
		return 0, fmt.Errorf("%w: malformed entry %x", ErrCorruptBitmap, badKey)
	}
	return n, nil
}

// DeleteSegment stages the removal of all entries of segno.
func (m *Map) DeleteSegment(segno int32) {
	lo, hi := auxstore.VisimapRange(segno)
	m.view.DeleteRange(lo, hi)
	for k := range m.entries {
		if k.segno == segno {
			m.invalidate(k)
		}
	}
}
