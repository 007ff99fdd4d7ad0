package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/segdir"
	"github.com/hupe1980/aocs/internal/visimap"
)

// Deleter hides rows in the visibility map. Hides are buffered per
// statement and written by Flush.
type Deleter struct {
	sc      *Context
	session *visimap.DeleteSession
	deleted int64
}

// BeginDelete starts a delete descriptor.
func (e *Engine) BeginDelete(sc *Context) *Deleter {
	return &Deleter{sc: sc, session: visimap.NewDeleteSession(sc.visimap)}
}

// Delete hides row id. It returns ErrRowNotFound for rows that were never
// written and visimap.ErrAlreadyHidden for rows deleted before.
func (d *Deleter) Delete(id RowID) error {
	seg, ok, err := d.sc.segments.Get(id.SegNo)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: segment %d", ErrOutOfScanScope, id.SegNo)
	}
	if seg.State == segdir.AwaitingDrop {
		return fmt.Errorf("%w: delete from segment %d", ErrAwaitingDrop, id.SegNo)
	}
	if len(d.sc.columns) == 0 || id.RowNum <= 0 {
		return fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	_, found, err := d.sc.blocks.FindEntry(id.SegNo, d.sc.columns[0].FileNum, id.RowNum)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrRowNotFound, id)
	}
	if err := d.session.Hide(id.SegNo, id.RowNum); err != nil {
		return err
	}
	d.deleted++
	return nil
}

// Deleted returns the number of rows hidden by this descriptor.
func (d *Deleter) Deleted() int64 { return d.deleted }

// Flush writes the pending hides into the statement's view. Every touched
// segment gets its modification count bumped and its hidden count raised by
// the rows hidden in it.
func (d *Deleter) Flush() error {
	if !d.session.Pending() {
		return nil
	}
	for _, segno := range d.session.Segments() {
		seg, ok, err := d.sc.segments.Get(segno)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		seg.ModCount++
		seg.HiddenCount += d.session.HiddenRows(segno)
		if err := d.sc.segments.Put(seg); err != nil {
			return err
		}
	}
	if err := d.session.Flush(); err != nil {
		return err
	}
	d.sc.logger.Debug("delete flushed", "rows", d.deleted)
	return nil
}
