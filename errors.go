package aocs

import (
	"errors"
	"fmt"

	"github.com/hupe1980/aocs/internal/catalog"
	"github.com/hupe1980/aocs/internal/engine"
	"github.com/hupe1980/aocs/internal/varblock"
	"github.com/hupe1980/aocs/internal/visimap"
)

var (
	// ErrTableExists is returned by Create when dir already holds a table.
	ErrTableExists = errors.New("aocs: table already exists")

	// ErrTableNotFound is returned by Open when dir holds no table.
	ErrTableNotFound = errors.New("aocs: table not found")

	// ErrClosed is returned when the table has been closed.
	ErrClosed = errors.New("aocs: table closed")

	// ErrTxnDone is returned when a finished transaction is used.
	ErrTxnDone = errors.New("aocs: transaction already committed or aborted")

	// ErrTxnFailed is returned by every call on a transaction after one of its
	// statements failed. The transaction can only be aborted.
	ErrTxnFailed = errors.New("aocs: transaction failed")

	// ErrNoFreeSegment is returned when every segment is owned by another
	// transaction or awaiting drop.
	ErrNoFreeSegment = errors.New("aocs: no free segment")

	// ErrSegmentBusy is returned when a transaction modifies a segment owned
	// by another transaction.
	ErrSegmentBusy = errors.New("aocs: segment owned by another transaction")
)

// Errors of the storage engine.
var (
	ErrOutOfScanScope  = engine.ErrOutOfScanScope
	ErrAwaitingDrop    = engine.ErrAwaitingDrop
	ErrRowNotFound     = engine.ErrRowNotFound
	ErrInvalidArgument = engine.ErrInvalidArgument
	ErrCorrupt         = engine.ErrCorrupt
	ErrConstraint      = engine.ErrConstraint
	ErrAlreadyHidden   = visimap.ErrAlreadyHidden
	ErrNoSuchColumn    = catalog.ErrNoSuchColumn
)

// CorruptionError locates a corrupt column file. It matches ErrCorrupt.
type CorruptionError = engine.CorruptionError

// ConstraintError reports a row rejected by NOT NULL or a CHECK constraint.
// It matches ErrConstraint.
type ConstraintError = engine.ConstraintError

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrTableNotFound, err)
	}
	if errors.Is(err, catalog.ErrInvalid) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	// Format errors that escaped the engine still mean corruption.
	if errors.Is(err, varblock.ErrFormat) && !errors.Is(err, ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if errors.Is(err, catalog.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return err
}
