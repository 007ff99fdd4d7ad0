package varblock

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/aocs/internal/compress"
	"github.com/hupe1980/aocs/internal/hash"
)

// Kind is the header kind of a varblock.
type Kind uint8

const (
	// KindSmallContent holds up to MaxRowCount values.
	KindSmallContent Kind = 1
	// KindLargeContent holds exactly one value of any size.
	KindLargeContent Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSmallContent:
		return "small"
	case KindLargeContent:
		return "large"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	// BaseHeaderLen is the fixed part of every header.
	BaseHeaderLen = 16
	// MaxHeaderLen is the header length with first row number and checksums.
	MaxHeaderLen = BaseHeaderLen + 8 + 8
	// MaxRowCount bounds the number of values in a small content block.
	MaxRowCount = 16383
)

const (
	flagHasFirstRowNum = 1 << 0
	flagCompressed     = 1 << 1
	flagChecksummed    = 1 << 2
	flagsReserved      = ^uint8(flagHasFirstRowNum | flagCompressed | flagChecksummed)
)

// ErrFormat is the sentinel matched by every FormatError.
var ErrFormat = errors.New("varblock: format error")

// FormatError reports a corrupt or inconsistent block.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "varblock: " + e.Reason
}

func (e *FormatError) Unwrap() error { return ErrFormat }

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Header is the decoded varblock header.
//
// Layout (little endian):
//
//	kind(1) flags(1) codec(1) reserved(1)
//	rowCount(4) uncompressedLen(4) storedLen(4)
//	[firstRowNum(8)]            if flagHasFirstRowNum
//	[headerCRC(4) contentCRC(4)] if flagChecksummed
type Header struct {
	Kind            Kind
	RowCount        int
	HasFirstRowNum  bool
	FirstRowNum     int64
	Compressed      bool
	Codec           compress.Type
	Checksummed     bool
	UncompressedLen int
	StoredLen       int
	HeaderCRC       uint32
	ContentCRC      uint32
}

// Len returns the encoded header length.
func (h *Header) Len() int {
	n := BaseHeaderLen
	if h.HasFirstRowNum {
		n += 8
	}
	if h.Checksummed {
		n += 8
	}
	return n
}

// BlockLen returns the full on-disk length of the block.
func (h *Header) BlockLen() int {
	return h.Len() + h.StoredLen
}

func (h *Header) flags() uint8 {
	var f uint8
	if h.HasFirstRowNum {
		f |= flagHasFirstRowNum
	}
	if h.Compressed {
		f |= flagCompressed
	}
	if h.Checksummed {
		f |= flagChecksummed
	}
	return f
}

// put writes h into dst, which must be at least h.Len() bytes, and
// computes the header checksum.
func (h *Header) put(dst []byte) {
	dst[0] = byte(h.Kind)
	dst[1] = h.flags()
	dst[2] = byte(h.Codec)
	dst[3] = 0
	binary.LittleEndian.PutUint32(dst[4:], uint32(h.RowCount))
	binary.LittleEndian.PutUint32(dst[8:], uint32(h.UncompressedLen))
	binary.LittleEndian.PutUint32(dst[12:], uint32(h.StoredLen))

	off := BaseHeaderLen
	if h.HasFirstRowNum {
		binary.LittleEndian.PutUint64(dst[off:], uint64(h.FirstRowNum))
		off += 8
	}
	if h.Checksummed {
		h.HeaderCRC = hash.CRC32C(dst[:off])
		binary.LittleEndian.PutUint32(dst[off:], h.HeaderCRC)
		binary.LittleEndian.PutUint32(dst[off+4:], h.ContentCRC)
	}
}

// PeekHeaderLen returns the header length announced by the first
// BaseHeaderLen bytes of a block.
func PeekHeaderLen(prefix []byte) (int, error) {
	if len(prefix) < BaseHeaderLen {
		return 0, formatErrorf("short header: %d bytes", len(prefix))
	}
	if binary.LittleEndian.Uint32(prefix[0:4]) == 0 {
		return 0, formatErrorf("first 32 bits of header are all zeroes")
	}
	kind := Kind(prefix[0])
	if kind != KindSmallContent && kind != KindLargeContent {
		return 0, formatErrorf("invalid header kind %d", prefix[0])
	}
	if prefix[1]&flagsReserved != 0 || prefix[3] != 0 {
		return 0, formatErrorf("reserved header bits set (flags 0x%02x)", prefix[1])
	}
	h := Header{
		HasFirstRowNum: prefix[1]&flagHasFirstRowNum != 0,
		Checksummed:    prefix[1]&flagChecksummed != 0,
	}
	return h.Len(), nil
}

// ReadHeader decodes and validates the header at the start of buf.
// buf must hold at least the full header; trailing bytes are ignored.
func ReadHeader(buf []byte) (Header, error) {
	hlen, err := PeekHeaderLen(buf)
	if err != nil {
		return Header{}, err
	}
	if len(buf) < hlen {
		return Header{}, formatErrorf("short header: need %d bytes, have %d", hlen, len(buf))
	}

	h := Header{
		Kind:            Kind(buf[0]),
		HasFirstRowNum:  buf[1]&flagHasFirstRowNum != 0,
		Compressed:      buf[1]&flagCompressed != 0,
		Checksummed:     buf[1]&flagChecksummed != 0,
		Codec:           compress.Type(buf[2]),
		RowCount:        int(binary.LittleEndian.Uint32(buf[4:])),
		UncompressedLen: int(binary.LittleEndian.Uint32(buf[8:])),
		StoredLen:       int(binary.LittleEndian.Uint32(buf[12:])),
		FirstRowNum:     -1,
	}

	off := BaseHeaderLen
	if h.HasFirstRowNum {
		h.FirstRowNum = int64(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}
	if h.Checksummed {
		h.HeaderCRC = binary.LittleEndian.Uint32(buf[off:])
		h.ContentCRC = binary.LittleEndian.Uint32(buf[off+4:])
		if got := hash.CRC32C(buf[:off]); got != h.HeaderCRC {
			return Header{}, formatErrorf("header checksum mismatch: stored 0x%08x, computed 0x%08x", h.HeaderCRC, got)
		}
		off += 8
	}
	if off != hlen {
		return Header{}, formatErrorf("content offset %d doesn't equal header length %d", off, hlen)
	}

	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (h *Header) validate() error {
	switch h.Kind {
	case KindSmallContent:
		if h.RowCount <= 0 || h.RowCount > MaxRowCount {
			return formatErrorf("invalid row count %d for small content block", h.RowCount)
		}
	case KindLargeContent:
		if h.RowCount != 1 {
			return formatErrorf("large content block must hold one row, has %d", h.RowCount)
		}
	}
	if h.HasFirstRowNum && h.FirstRowNum < 0 {
		return formatErrorf("negative first row number %d", h.FirstRowNum)
	}
	if h.Compressed {
		if h.Codec == compress.None {
			return formatErrorf("compressed block without codec")
		}
		if h.StoredLen > h.UncompressedLen {
			return formatErrorf("compressed length %d exceeds uncompressed length %d", h.StoredLen, h.UncompressedLen)
		}
	} else if h.StoredLen != h.UncompressedLen {
		return formatErrorf("stored length %d differs from uncompressed length %d in uncompressed block", h.StoredLen, h.UncompressedLen)
	}
	return nil
}
