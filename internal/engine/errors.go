package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfScanScope is returned when a row id names a segment the
	// statement cannot see. Valid index entries never produce one.
	ErrOutOfScanScope = errors.New("engine: row out of scan scope")

	// ErrAwaitingDrop is returned when a statement touches a segment that
	// waits to be reclaimed.
	ErrAwaitingDrop = errors.New("engine: segment awaiting drop")

	// ErrRowNotFound is returned when a delete names a row that does not exist.
	ErrRowNotFound = errors.New("engine: row not found")

	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("engine: invalid argument")

	// ErrClosed is returned when a descriptor is used after Close or Finish.
	ErrClosed = errors.New("engine: descriptor closed")

	// ErrCorrupt is matched by every CorruptionError.
	ErrCorrupt = errors.New("engine: data corruption detected")

	// ErrConstraint is matched by every ConstraintError.
	ErrConstraint = errors.New("engine: constraint violation")
)

// CorruptionError locates a corrupt or inconsistent column file.
type CorruptionError struct {
	SegNo  int32
	Column string
	Path   string
	Offset int64
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("engine: corrupt column %q in segment %d (%s at offset %d): %v",
		e.Column, e.SegNo, e.Path, e.Offset, e.Err)
}

func (e *CorruptionError) Unwrap() []error { return []error{ErrCorrupt, e.Err} }

// ConstraintError reports a row rejected by NOT NULL or a CHECK constraint.
type ConstraintError struct {
	Column     string
	Constraint string
	Row        RowID
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("engine: row %s violates %s on column %q", e.Row, e.Constraint, e.Column)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraint }
