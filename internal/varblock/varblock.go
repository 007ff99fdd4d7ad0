package varblock

import (
	"encoding/binary"

	"github.com/hupe1980/aocs/internal/compress"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/hash"
)

// Content flags.
const contentHasNulls = 1 << 0

// Block is the logical content of one varblock.
type Block struct {
	Kind           Kind
	HasFirstRowNum bool
	FirstRowNum    int64
	Datums         []datum.Datum
}

// Decoded is a fully decoded varblock.
type Decoded struct {
	Header Header
	Datums []datum.Datum
}

// Encode frames b as a varblock. A nil codec means no compression. Content
// that does not shrink by at least 10% is stored uncompressed.
func Encode(b Block, codec compress.Codec, checksums bool) ([]byte, error) {
	var content []byte
	switch b.Kind {
	case KindSmallContent:
		if len(b.Datums) == 0 || len(b.Datums) > MaxRowCount {
			return nil, formatErrorf("cannot encode %d rows in a small content block", len(b.Datums))
		}
		content = AppendSmallContent(nil, b.Datums)
	case KindLargeContent:
		if len(b.Datums) != 1 || b.Datums[0].Null {
			return nil, formatErrorf("large content block needs exactly one non-null value")
		}
		content = b.Datums[0].Value
	default:
		return nil, formatErrorf("invalid header kind %d", b.Kind)
	}

	h := Header{
		Kind:            b.Kind,
		RowCount:        len(b.Datums),
		HasFirstRowNum:  b.HasFirstRowNum,
		FirstRowNum:     b.FirstRowNum,
		Checksummed:     checksums,
		UncompressedLen: len(content),
		StoredLen:       len(content),
	}
	if !b.HasFirstRowNum {
		h.FirstRowNum = -1
	}

	stored := content
	if codec != nil && codec.Type() != compress.None && len(content) > 0 {
		out, err := codec.Compress(nil, content)
		if err != nil {
			return nil, err
		}
		if out != nil && float64(len(out)) <= float64(len(content))*0.9 {
			stored = out
			h.Compressed = true
			h.Codec = codec.Type()
			h.StoredLen = len(out)
		}
	}
	if checksums {
		h.ContentCRC = hash.CRC32C(stored)
	}

	hlen := h.Len()
	buf := make([]byte, hlen+len(stored))
	copy(buf[hlen:], stored)
	h.put(buf)
	return buf, nil
}

// Decode parses a complete varblock. buf must be exactly one block: a header
// whose declared lengths disagree with len(buf) is a FormatError.
func Decode(buf []byte) (*Decoded, error) {
	h, err := ReadHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.BlockLen() != len(buf) {
		return nil, formatErrorf("header declares %d block bytes (header %d + content %d), block boundary is %d",
			h.BlockLen(), h.Len(), h.StoredLen, len(buf))
	}
	content, err := DecodeStored(h, buf[h.Len():])
	if err != nil {
		return nil, err
	}
	datums, err := DecodeContent(h, content)
	if err != nil {
		return nil, err
	}
	return &Decoded{Header: h, Datums: datums}, nil
}

// DecodeStored verifies and decompresses the stored part of a block.
func DecodeStored(h Header, stored []byte) ([]byte, error) {
	if len(stored) != h.StoredLen {
		return nil, formatErrorf("stored content is %d bytes, header declares %d", len(stored), h.StoredLen)
	}
	if h.Checksummed {
		if got := hash.CRC32C(stored); got != h.ContentCRC {
			return nil, formatErrorf("content checksum mismatch: stored 0x%08x, computed 0x%08x", h.ContentCRC, got)
		}
	}
	if !h.Compressed {
		return stored, nil
	}
	codec, err := compress.New(h.Codec, 0)
	if err != nil {
		return nil, formatErrorf("block compressed with unknown codec %d", h.Codec)
	}
	content, err := codec.Decompress(nil, stored, h.UncompressedLen)
	if err != nil {
		return nil, formatErrorf("decompress %s content: %v", h.Codec, err)
	}
	return content, nil
}

// DecodeContent parses uncompressed content into h.RowCount datums. Returned
// datums alias content.
func DecodeContent(h Header, content []byte) ([]datum.Datum, error) {
	if len(content) != h.UncompressedLen {
		return nil, formatErrorf("content is %d bytes, header declares %d", len(content), h.UncompressedLen)
	}
	if h.Kind == KindLargeContent {
		return []datum.Datum{{Value: content}}, nil
	}

	n := h.RowCount
	if len(content) < 1 {
		return nil, formatErrorf("empty small content")
	}
	flags := content[0]
	pos := 1

	var nulls []byte
	if flags&contentHasNulls != 0 {
		nb := (n + 7) / 8
		if len(content) < pos+nb {
			return nil, formatErrorf("truncated null bitmap")
		}
		nulls = content[pos : pos+nb]
		pos += nb
	}

	out := make([]datum.Datum, n)
	for i := 0; i < n; i++ {
		if nulls != nil && nulls[i/8]&(1<<(i%8)) != 0 {
			out[i] = datum.Datum{Null: true}
			continue
		}
		l, w := binary.Uvarint(content[pos:])
		if w <= 0 {
			return nil, formatErrorf("bad length prefix for value %d", i)
		}
		pos += w
		if uint64(len(content)-pos) < l {
			return nil, formatErrorf("value %d overruns content", i)
		}
		out[i] = datum.Datum{Value: content[pos : pos+int(l)]}
		pos += int(l)
	}
	if pos != len(content) {
		return nil, formatErrorf("%d trailing content bytes after %d values", len(content)-pos, n)
	}
	return out, nil
}

// AppendSmallContent appends the small-content encoding of datums to dst.
func AppendSmallContent(dst []byte, datums []datum.Datum) []byte {
	var hasNulls bool
	for _, d := range datums {
		if d.Null {
			hasNulls = true
			break
		}
	}
	if !hasNulls {
		dst = append(dst, 0)
	} else {
		dst = append(dst, contentHasNulls)
		bitmap := make([]byte, (len(datums)+7)/8)
		for i, d := range datums {
			if d.Null {
				bitmap[i/8] |= 1 << (i % 8)
			}
		}
		dst = append(dst, bitmap...)
	}
	for _, d := range datums {
		if d.Null {
			continue
		}
		dst = binary.AppendUvarint(dst, uint64(len(d.Value)))
		dst = append(dst, d.Value...)
	}
	return dst
}

// ContentSizer tracks the small-content size of a growing block without
// encoding it.
type ContentSizer struct {
	rows     int
	hasNulls bool
	payload  int
}

// Add accounts for d.
func (s *ContentSizer) Add(d datum.Datum) {
	s.rows++
	if d.Null {
		s.hasNulls = true
		return
	}
	s.payload += valueSize(d)
}

// Size returns the encoded content size of the values added so far.
func (s *ContentSizer) Size() int {
	return contentSize(s.rows, s.hasNulls, s.payload)
}

// SizeWith returns the encoded content size if d were added.
func (s *ContentSizer) SizeWith(d datum.Datum) int {
	if d.Null {
		return contentSize(s.rows+1, true, s.payload)
	}
	return contentSize(s.rows+1, s.hasNulls, s.payload+valueSize(d))
}

// Rows returns the number of values added.
func (s *ContentSizer) Rows() int { return s.rows }

// Reset clears the sizer for a new block.
func (s *ContentSizer) Reset() { *s = ContentSizer{} }

func valueSize(d datum.Datum) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], uint64(len(d.Value))) + len(d.Value)
}

func contentSize(rows int, hasNulls bool, payload int) int {
	n := 1 + payload
	if hasNulls {
		n += (rows + 7) / 8
	}
	return n
}
