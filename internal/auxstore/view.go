package auxstore

import (
	"bytes"
	"errors"
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/google/btree"
)

type pendingItem struct {
	key       []byte
	value     []byte
	tombstone bool
}

func pendingLess(a, b pendingItem) bool { return bytes.Compare(a.key, b.key) < 0 }

type keyRange struct {
	lo, hi []byte
}

func (r keyRange) contains(k []byte) bool {
	return bytes.Compare(k, r.lo) >= 0 && bytes.Compare(k, r.hi) < 0
}

// View reads a pebble snapshot through an overlay of its own pending writes.
// A View is used by one transaction at a time and is not safe for concurrent
// use.
type View struct {
	db      *pebble.DB
	snap    *pebble.Snapshot
	pending *btree.BTreeG[pendingItem]
	ranges  []keyRange
}

func newView(db *pebble.DB) *View {
	return &View{
		db:      db,
		snap:    db.NewSnapshot(),
		pending: btree.NewG(16, pendingLess),
	}
}

// Fork returns an independent view on a fresh snapshot that starts with a
// copy of v's pending writes. Later writes to either view are not seen by
// the other.
func (v *View) Fork() *View {
	return &View{
		db:      v.db,
		snap:    v.db.NewSnapshot(),
		pending: v.pending.Clone(),
		ranges:  slices.Clone(v.ranges),
	}
}

// Dirty reports whether the view holds uncommitted writes.
func (v *View) Dirty() bool {
	return v.pending.Len() > 0 || len(v.ranges) > 0
}

// Get returns a copy of the value stored at key.
func (v *View) Get(key []byte) ([]byte, bool, error) {
	if it, ok := v.pending.Get(pendingItem{key: key}); ok {
		if it.tombstone {
			return nil, false, nil
		}
		return it.value, true, nil
	}
	if v.rangeDeleted(key) {
		return nil, false, nil
	}
	val, closer, err := v.snap.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return bytes.Clone(val), true, nil
}

// Set stages key=value.
func (v *View) Set(key, value []byte) {
	v.pending.ReplaceOrInsert(pendingItem{key: bytes.Clone(key), value: bytes.Clone(value)})
}

// Delete stages the removal of key.
func (v *View) Delete(key []byte) {
	v.pending.ReplaceOrInsert(pendingItem{key: bytes.Clone(key), tombstone: true})
}

// DeleteRange stages the removal of all keys in [lo, hi). Later writes into
// the range take precedence.
func (v *View) DeleteRange(lo, hi []byte) {
	var drop []pendingItem
	v.pending.AscendRange(pendingItem{key: lo}, pendingItem{key: hi}, func(it pendingItem) bool {
		drop = append(drop, it)
		return true
	})
	for _, it := range drop {
		v.pending.Delete(it)
	}
	v.ranges = append(v.ranges, keyRange{lo: bytes.Clone(lo), hi: bytes.Clone(hi)})
}

func (v *View) rangeDeleted(k []byte) bool {
	for _, r := range v.ranges {
		if r.contains(k) {
			return true
		}
	}
	return false
}

// Scan calls fn for every live key in [lo, hi) in ascending order until fn
// returns false. Keys and values passed to fn may be retained.
func (v *View) Scan(lo, hi []byte, fn func(key, value []byte) bool) error {
	var pend []pendingItem
	v.pending.AscendRange(pendingItem{key: lo}, pendingItem{key: hi}, func(it pendingItem) bool {
		pend = append(pend, it)
		return true
	})

	iter, err := v.snap.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return err
	}
	valid := iter.First()
	i := 0
	for valid || i < len(pend) {
		fromSnap := i >= len(pend)
		if valid && !fromSnap {
			c := bytes.Compare(iter.Key(), pend[i].key)
			if c == 0 {
				// shadowed by a pending write
				valid = iter.Next()
				continue
			}
			fromSnap = c < 0
		}

		if fromSnap {
			k := iter.Key()
			if !v.rangeDeleted(k) && !fn(bytes.Clone(k), bytes.Clone(iter.Value())) {
				break
			}
			valid = iter.Next()
			continue
		}

		it := pend[i]
		i++
		if !it.tombstone && !fn(it.key, it.value) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

// Commit atomically applies the pending writes and moves the view to a fresh
// snapshot.
func (v *View) Commit() error {
	if v.Dirty() {
		b := v.db.NewBatch()
		for _, r := range v.ranges {
			if err := b.DeleteRange(r.lo, r.hi, nil); err != nil {
				_ = b.Close()
				return err
			}
		}
		var err error
		v.pending.Ascend(func(it pendingItem) bool {
			if it.tombstone {
				err = b.Delete(it.key, nil)
			} else {
				err = b.Set(it.key, it.value, nil)
			}
			return err == nil
		})
		if err == nil {
			err = b.Commit(pebble.Sync)
		}
		if cerr := b.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	v.Discard()
	return nil
}

// Discard drops the pending writes and moves to a fresh snapshot.
func (v *View) Discard() {
	v.pending.Clear(false)
	v.ranges = nil
	v.Refresh()
}

// Refresh moves to a fresh snapshot, keeping pending writes.
func (v *View) Refresh() {
	if v.snap != nil {
		_ = v.snap.Close()
	}
	v.snap = v.db.NewSnapshot()
}

// Close releases the snapshot. Pending writes are dropped.
func (v *View) Close() error {
	v.pending.Clear(false)
	v.ranges = nil
	if v.snap == nil {
		return nil
	}
	err := v.snap.Close()
	v.snap = nil
	return err
}
