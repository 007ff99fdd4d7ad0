package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/aocs/internal/compress"
)

const (
	// MaxColumns bounds the attribute numbers of a relation. Rewritten column
	// files alternate between the file number ranges [1, MaxColumns] and
	// (MaxColumns, 2*MaxColumns].
	MaxColumns = 1600

	// MinBlockSize and MaxBlockSize bound the varblock size; it must be a
	// multiple of MinBlockSize.
	MinBlockSize = 8 * 1024
	MaxBlockSize = 2 * 1024 * 1024

	// DefaultBlockSize is the table default block size.
	DefaultBlockSize = 32 * 1024
)

// Toggle is a per-column boolean override.
type Toggle uint8

const (
	// Inherit takes the table default.
	Inherit Toggle = iota
	// On forces the option on.
	On
	// Off forces the option off.
	Off
)

func (t Toggle) resolve(def bool) bool {
	switch t {
	case On:
		return true
	case Off:
		return false
	default:
		return def
	}
}

// StorageOptions are the effective storage options of a column.
type StorageOptions struct {
	Compression   compress.Type
	CompressLevel int
	BlockSize     int
	Checksum      bool
}

// DefaultStorageOptions returns the options a new relation starts with.
func DefaultStorageOptions() StorageOptions {
	return StorageOptions{
		Compression: compress.None,
		BlockSize:   DefaultBlockSize,
		Checksum:    true,
	}
}

// Validate checks the block size.
func (o StorageOptions) Validate() error {
	if o.BlockSize < MinBlockSize || o.BlockSize > MaxBlockSize || o.BlockSize%MinBlockSize != 0 {
		return fmt.Errorf("%w: block size %d must be a multiple of %d between %d and %d",
			ErrInvalid, o.BlockSize, MinBlockSize, MinBlockSize, MaxBlockSize)
	}
	return nil
}

// Codec builds the compression codec for the options.
func (o StorageOptions) Codec() (compress.Codec, error) {
	return compress.New(o.Compression, o.CompressLevel)
}

// ColumnStorage holds per-column overrides. Zero values inherit.
type ColumnStorage struct {
	Compression   string
	CompressLevel int
	BlockSize     int
	Checksum      Toggle
}

// Column describes one column.
type Column struct {
	AttNum  int32
	Name    string
	Type    string
	NotNull bool
	// FileNum selects the column's files; see MaxColumns.
	FileNum int32
	Storage ColumnStorage
}

// Relation is one catalog version.
type Relation struct {
	Version     int
	ID          uint64
	CreatedAt   time.Time
	Name        string
	RelFileNode uint32
	Defaults    StorageOptions
	Columns     []Column
}

// NewRelation creates a relation with default storage options. Columns get
// consecutive attribute numbers and matching file numbers.
func NewRelation(name string, relfilenode uint32, cols []Column) (*Relation, error) {
	r := &Relation{
		Version:     CurrentVersion,
		Name:        name,
		RelFileNode: relfilenode,
		Defaults:    DefaultStorageOptions(),
		CreatedAt:   time.Now(),
	}
	for _, c := range cols {
		r.Columns = append(r.Columns, r.nextColumn(c))
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relation) nextColumn(c Column) Column {
	c.AttNum = int32(len(r.Columns) + 1)
	c.FileNum = c.AttNum
	return c
}

// AddColumn appends c, assigning its attribute and file number.
func (r *Relation) AddColumn(c Column) (Column, error) {
	if len(r.Columns) >= MaxColumns {
		return Column{}, fmt.Errorf("%w: too many columns", ErrInvalid)
	}
	c = r.nextColumn(c)
	r.Columns = append(r.Columns, c)
	if err := r.Validate(); err != nil {
		r.Columns = r.Columns[:len(r.Columns)-1]
		return Column{}, err
	}
	return c, nil
}

// Lookup returns the column called name (case-insensitive).
func (r *Relation) Lookup(name string) (Column, bool) {
	for _, c := range r.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Column returns the column with attribute number attnum.
func (r *Relation) Column(attnum int32) (Column, error) {
	if attnum < 1 || int(attnum) > len(r.Columns) {
		return Column{}, fmt.Errorf("%w: attnum %d", ErrNoSuchColumn, attnum)
	}
	return r.Columns[attnum-1], nil
}

// SetColumn replaces the column with c.AttNum.
func (r *Relation) SetColumn(c Column) error {
	if _, err := r.Column(c.AttNum); err != nil {
		return err
	}
	r.Columns[c.AttNum-1] = c
	return nil
}

// Clone returns a deep copy.
func (r *Relation) Clone() *Relation {
	out := *r
	out.Columns = append([]Column(nil), r.Columns...)
	return &out
}

// Validate checks the relation for internal consistency.
func (r *Relation) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if err := r.Defaults.Validate(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(r.Columns))
	files := make(map[int32]struct{}, len(r.Columns))
	for i, c := range r.Columns {
		if c.AttNum != int32(i+1) {
			return fmt.Errorf("%w: column %q has attnum %d at position %d", ErrInvalid, c.Name, c.AttNum, i+1)
		}
		if c.Name == "" {
			return fmt.Errorf("%w: column %d has no name", ErrInvalid, c.AttNum)
		}
		key := strings.ToLower(c.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalid, c.Name)
		}
		names[key] = struct{}{}
		if c.FileNum < 1 || c.FileNum > 2*MaxColumns {
			return fmt.Errorf("%w: column %q has file number %d", ErrInvalid, c.Name, c.FileNum)
		}
		if _, dup := files[c.FileNum]; dup {
			return fmt.Errorf("%w: file number %d used twice", ErrInvalid, c.FileNum)
		}
		files[c.FileNum] = struct{}{}
		if _, err := DeriveStorageOptions(r, c.AttNum); err != nil {
			return err
		}
	}
	return nil
}

// RewriteFileNum returns the file number a rewrite of a column stored in
// filenum writes to. The two ranges never overlap, so old and new files
// coexist until the rewrite commits.
func RewriteFileNum(filenum int32) int32 {
	if filenum > MaxColumns {
		return filenum - MaxColumns
	}
	return filenum + MaxColumns
}

// DeriveStorageOptions returns the effective storage options of column
// attnum: the table defaults with the column's overrides applied.
func DeriveStorageOptions(rel *Relation, attnum int32) (StorageOptions, error) {
	c, err := rel.Column(attnum)
	if err != nil {
		return StorageOptions{}, err
	}
	opts := rel.Defaults
	if c.Storage.Compression != "" {
		t, err := compress.ParseType(c.Storage.Compression)
		if err != nil {
			return StorageOptions{}, fmt.Errorf("%w: column %q: %w", ErrInvalid, c.Name, err)
		}
		opts.Compression = t
		opts.CompressLevel = 0
	}
	if c.Storage.CompressLevel != 0 {
		opts.CompressLevel = c.Storage.CompressLevel
	}
	if c.Storage.BlockSize != 0 {
		opts.BlockSize = c.Storage.BlockSize
	}
	opts.Checksum = c.Storage.Checksum.resolve(opts.Checksum)
	if err := opts.Validate(); err != nil {
		return StorageOptions{}, fmt.Errorf("column %q: %w", c.Name, err)
	}
	return opts, nil
}
