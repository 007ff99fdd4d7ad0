package segdir

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// State is the lifecycle state of a segment.
type State uint8

const (
	// UseCurrent marks a segment created by the current operation whose
	// state is resolved at commit.
	UseCurrent State = iota
	// Active segments accept inserts and are scanned.
	Active
	// AwaitingDrop segments are retired. They are never scanned, inserted
	// into or used to build a block directory.
	AwaitingDrop
)

func (s State) String() string {
	switch s {
	case UseCurrent:
		return "use-current"
	case Active:
		return "active"
	case AwaitingDrop:
		return "awaiting-drop"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrMalformed is returned for a descriptor that cannot be decoded.
var ErrMalformed = errors.New("segdir: malformed segment descriptor")

const descriptorVersion = 2

// ColumnEOF is the end of a column's segment file.
type ColumnEOF struct {
	EOF             int64
	UncompressedEOF int64
}

// Segment describes one segment. Columns is indexed by column position.
type Segment struct {
	SegNo         int32
	State         State
	TupleCount    int64
	VarblockCount int64
	ModCount      int64
	// HiddenCount is the number of rows hidden in the visibility map.
	HiddenCount   int64
	Columns       []ColumnEOF
}

// Column returns the EOF of column position i, zero for columns the segment
// has never stored.
func (s Segment) Column(i int) ColumnEOF {
	if i < 0 || i >= len(s.Columns) {
		return ColumnEOF{}
	}
	return s.Columns[i]
}

// Scannable reports whether scans visit the segment.
func (s Segment) Scannable() bool {
	return s.State != AwaitingDrop && s.TupleCount > 0
}

// Clone returns a deep copy.
func (s Segment) Clone() Segment {
	s.Columns = append([]ColumnEOF(nil), s.Columns...)
	return s
}

// Encode serializes the descriptor.
func (s Segment) Encode() []byte {
	b := make([]byte, 0, 42+16*len(s.Columns))
	b = append(b, descriptorVersion, byte(s.State))
	b = binary.LittleEndian.AppendUint32(b, uint32(s.SegNo))
	b = binary.LittleEndian.AppendUint64(b, uint64(s.TupleCount))
	b = binary.LittleEndian.AppendUint64(b, uint64(s.VarblockCount))
	b = binary.LittleEndian.AppendUint64(b, uint64(s.ModCount))
	b = binary.LittleEndian.AppendUint64(b, uint64(s.HiddenCount))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s.Columns)))
	for _, c := range s.Columns {
		b = binary.LittleEndian.AppendUint64(b, uint64(c.EOF))
		b = binary.LittleEndian.AppendUint64(b, uint64(c.UncompressedEOF))
	}
	return b
}

// Decode parses a descriptor produced by Encode.
func Decode(b []byte) (Segment, error) {
	const fixed = 2 + 4 + 8*4 + 4
	if len(b) < fixed {
		return Segment{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	if b[0] != descriptorVersion {
		return Segment{}, fmt.Errorf("%w: version %d", ErrMalformed, b[0])
	}
	s := Segment{
		State:         State(b[1]),
		SegNo:         int32(binary.LittleEndian.Uint32(b[2:])),
		TupleCount:    int64(binary.LittleEndian.Uint64(b[6:])),
		VarblockCount: int64(binary.LittleEndian.Uint64(b[14:])),
		ModCount:      int64(binary.LittleEndian.Uint64(b[22:])),
		HiddenCount:   int64(binary.LittleEndian.Uint64(b[30:])),
	}
	if s.State > AwaitingDrop {
		return Segment{}, fmt.Errorf("%w: state %d", ErrMalformed, b[1])
	}
	n := int(binary.LittleEndian.Uint32(b[38:]))
	if len(b) != fixed+16*n {
		return Segment{}, fmt.Errorf("%w: %d columns in %d bytes", ErrMalformed, n, len(b))
	}
	s.Columns = make([]ColumnEOF, n)
	for i := range s.Columns {
		off := fixed + 16*i
		s.Columns[i] = ColumnEOF{
			EOF:             int64(binary.LittleEndian.Uint64(b[off:])),
			UncompressedEOF: int64(binary.LittleEndian.Uint64(b[off+8:])),
		}
	}
	return s, nil
}
