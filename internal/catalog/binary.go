package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/aocs/internal/compress"
	"github.com/hupe1980/aocs/internal/hash"
)

const (
	binaryMagic = 0x53434F41 // "AOCS"
	// CurrentVersion is the manifest format version.
	CurrentVersion = 1
	headerLen      = 16
)

// WriteBinary writes the relation in binary format.
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Checksum (4 bytes) - CRC32C of payload
// PayloadLength (4 bytes)
// Payload:
//
//	ID (8 bytes)
//	CreatedAt (8 bytes) - UnixNano
//	Name (string)
//	RelFileNode (4 bytes)
//	Defaults (storage options)
//	NumColumns (4 bytes)
//	Columns...
//	  AttNum (4 bytes)
//	  Name (string)
//	  Type (string)
//	  NotNull (1 byte)
//	  FileNum (4 bytes)
//	  Compression (string)
//	  CompressLevel (4 bytes)
//	  BlockSize (4 bytes)
//	  Checksum (1 byte toggle)
func (r *Relation) WriteBinary(w io.Writer) error {
	pb := newPayloadBuffer(make([]byte, 0, 64+len(r.Columns)*48))

	pb.writeUint64(r.ID)
	pb.writeUint64(uint64(r.CreatedAt.UnixNano()))
	pb.writeString(r.Name)
	pb.writeUint32(r.RelFileNode)
	pb.writeUint8(uint8(r.Defaults.Compression))
	pb.writeUint32(uint32(int32(r.Defaults.CompressLevel)))
	pb.writeUint32(uint32(r.Defaults.BlockSize))
	pb.writeBool(r.Defaults.Checksum)
	pb.writeUint32(uint32(len(r.Columns)))

	for _, c := range r.Columns {
		pb.writeUint32(uint32(c.AttNum))
		pb.writeString(c.Name)
		pb.writeString(c.Type)
		pb.writeBool(c.NotNull)
		pb.writeUint32(uint32(c.FileNum))
		pb.writeString(c.Storage.Compression)
		pb.writeUint32(uint32(int32(c.Storage.CompressLevel)))
		pb.writeUint32(uint32(c.Storage.BlockSize))
		pb.writeUint8(uint8(c.Storage.Checksum))
	}
	if pb.err != nil {
		return pb.err
	}

	payload := pb.buf
	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], CurrentVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadBinary reads a relation written by WriteBinary.
func ReadBinary(r io.Reader) (*Relation, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	rel := &Relation{Version: int(version)}
	rel.ID = pb.readUint64()
	rel.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	rel.Name = pb.readString()
	rel.RelFileNode = pb.readUint32()
	rel.Defaults.Compression = compress.Type(pb.readUint8())
	rel.Defaults.CompressLevel = int(int32(pb.readUint32()))
	rel.Defaults.BlockSize = int(pb.readUint32())
	rel.Defaults.Checksum = pb.readBool()

	n := pb.readUint32()
	if pb.err == nil && int(n) > MaxColumns {
		return nil, fmt.Errorf("%w: %d columns", ErrCorrupt, n)
	}
	rel.Columns = make([]Column, n)
	for i := range rel.Columns {
		c := &rel.Columns[i]
		c.AttNum = int32(pb.readUint32())
		c.Name = pb.readString()
		c.Type = pb.readString()
		c.NotNull = pb.readBool()
		c.FileNum = int32(pb.readUint32())
		c.Storage.Compression = pb.readString()
		c.Storage.CompressLevel = int(int32(pb.readUint32()))
		c.Storage.BlockSize = int(pb.readUint32())
		c.Storage.Checksum = Toggle(pb.readUint8())
	}
	if pb.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, pb.err)
	}
	if pb.pos != len(pb.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(pb.buf)-pb.pos)
	}
	return rel, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeBool(v bool) {
	if v {
		p.writeUint8(1)
	} else {
		p.writeUint8(0)
	}
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) need(n int) bool {
	if p.err != nil {
		return false
	}
	if p.pos+n > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return false
	}
	return true
}

func (p *payloadBuffer) readUint64() uint64 {
	if !p.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if !p.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readUint8() uint8 {
	if !p.need(1) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readBool() bool {
	return p.readUint8() != 0
}

func (p *payloadBuffer) readString() string {
	if !p.need(2) {
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if !p.need(l) {
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
