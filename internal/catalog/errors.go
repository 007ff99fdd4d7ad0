package catalog

import "errors"

var (
	// ErrNotFound is returned when no catalog has been published yet.
	ErrNotFound = errors.New("catalog: not found")

	// ErrIncompatibleVersion is returned for an unsupported manifest version.
	ErrIncompatibleVersion = errors.New("catalog: incompatible manifest version")

	// ErrCorrupt is returned when a manifest fails its magic or checksum check.
	ErrCorrupt = errors.New("catalog: corrupt manifest")

	// ErrInvalid is returned when a relation definition is inconsistent.
	ErrInvalid = errors.New("catalog: invalid relation")

	// ErrNoSuchColumn is returned for an unknown column.
	ErrNoSuchColumn = errors.New("catalog: no such column")
)
