package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/catalog"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/visimap"
)

// RowID identifies a physical row: its segment and its row number inside
// the segment. Row numbers start at 1 and are never reused.
type RowID struct {
	SegNo  int32
	RowNum int64
}

func (id RowID) String() string {
	return fmt.Sprintf("(%d,%d)", id.SegNo, id.RowNum)
}

// Snapshot is the visibility token of a statement.
type Snapshot = visimap.Snapshot

// IgnoreVisibility sees every physically present row.
var IgnoreVisibility = visimap.IgnoreVisibility

// NewSnapshot returns a regular snapshot.
func NewSnapshot(id uint64) Snapshot { return visimap.NewSnapshot(id) }

// Column is the engine's view of one column: where its files live and how
// its blocks are written.
type Column struct {
	AttNum  int32
	Name    string
	NotNull bool
	FileNum int32
	Storage catalog.StorageOptions
}

// ColumnsFromRelation derives the engine columns of rel.
func ColumnsFromRelation(rel *catalog.Relation) ([]Column, error) {
	cols := make([]Column, len(rel.Columns))
	for i, c := range rel.Columns {
		opts, err := catalog.DeriveStorageOptions(rel, c.AttNum)
		if err != nil {
			return nil, err
		}
		cols[i] = Column{
			AttNum:  c.AttNum,
			Name:    c.Name,
			NotNull: c.NotNull,
			FileNum: c.FileNum,
			Storage: opts,
		}
	}
	return cols, nil
}

// Expr computes the value of a new column for one row.
type Expr func(id RowID) (datum.Datum, error)

// Cast converts an existing value to a column's new type.
type Cast func(d datum.Datum) (datum.Datum, error)

// Constraint is a CHECK constraint on a single column.
type Constraint struct {
	Name  string
	Check func(d datum.Datum) (bool, error)
}

// ScanState is the position of a scan in its state machine.
type ScanState uint8

const (
	ScanInit ScanState = iota
	ScanSegmentOpen
	ScanBlockLoaded
	ScanRowEmit
	ScanSegmentExhausted
	ScanDone
)

func (s ScanState) String() string {
	switch s {
	case ScanInit:
		return "init"
	case ScanSegmentOpen:
		return "segment-open"
	case ScanBlockLoaded:
		return "block-loaded"
	case ScanRowEmit:
		return "row-emit"
	case ScanSegmentExhausted:
		return "segment-exhausted"
	case ScanDone:
		return "done"
	default:
		return fmt.Sprintf("ScanState(%d)", uint8(s))
	}
}

// checkValue enforces NOT NULL and the CHECK constraints of a column.
func checkValue(col Column, constraints []Constraint, id RowID, d datum.Datum) error {
	if col.NotNull && d.Null {
		return &ConstraintError{Column: col.Name, Constraint: "NOT NULL", Row: id}
	}
	for _, c := range constraints {
		ok, err := c.Check(d)
		if err != nil {
			return fmt.Errorf("engine: check %s on column %q: %w", c.Name, col.Name, err)
		}
		if !ok {
			return &ConstraintError{Column: col.Name, Constraint: c.Name, Row: id}
		}
	}
	return nil
}
