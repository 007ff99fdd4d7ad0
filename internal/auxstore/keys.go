package auxstore

import (
	"encoding/binary"
	"fmt"
)

const (
	prefixSegment  byte = 'S'
	prefixBlockDir byte = 'B'
	prefixVisimap  byte = 'V'
	prefixSequence byte = 'Q'
	prefixCatalog  byte = 'C'
)

func appendUint32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

func appendUint64(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// SegmentKey is the key of a segment descriptor.
func SegmentKey(segno int32) []byte {
	return appendUint32([]byte{prefixSegment}, segno)
}

// SegmentRange bounds all segment descriptor keys.
func SegmentRange() (lo, hi []byte) {
	lo = []byte{prefixSegment}
	return lo, prefixEnd(lo)
}

// BlockDirKey is the key of the block directory entry of column file filenum
// in segment segno starting at firstRowNum.
func BlockDirKey(segno, filenum int32, firstRowNum int64) []byte {
	k := appendUint32([]byte{prefixBlockDir}, segno)
	k = appendUint32(k, filenum)
	return appendUint64(k, firstRowNum)
}

// BlockDirRange bounds the block directory entries of one column file.
func BlockDirRange(segno, filenum int32) (lo, hi []byte) {
	lo = appendUint32(appendUint32([]byte{prefixBlockDir}, segno), filenum)
	return lo, prefixEnd(lo)
}

// BlockDirSegmentRange bounds all block directory entries of a segment.
func BlockDirSegmentRange(segno int32) (lo, hi []byte) {
	lo = appendUint32([]byte{prefixBlockDir}, segno)
	return lo, prefixEnd(lo)
}

// DecodeBlockDirKey splits a block directory key.
func DecodeBlockDirKey(k []byte) (segno, filenum int32, firstRowNum int64, err error) {
	if len(k) != 17 || k[0] != prefixBlockDir {
		return 0, 0, 0, fmt.Errorf("auxstore: malformed block directory key %x", k)
	}
	segno = int32(binary.BigEndian.Uint32(k[1:]))
	filenum = int32(binary.BigEndian.Uint32(k[5:]))
	firstRowNum = int64(binary.BigEndian.Uint64(k[9:]))
	return segno, filenum, firstRowNum, nil
}

// VisimapKey is the key of the visibility map entry covering rows from
// firstRowNum in segment segno.
func VisimapKey(segno int32, firstRowNum int64) []byte {
	return appendUint64(appendUint32([]byte{prefixVisimap}, segno), firstRowNum)
}

// VisimapRange bounds the visibility map entries of a segment.
func VisimapRange(segno int32) (lo, hi []byte) {
	lo = appendUint32([]byte{prefixVisimap}, segno)
	return lo, prefixEnd(lo)
}

// DecodeVisimapKey splits a visibility map key.
func DecodeVisimapKey(k []byte) (segno int32, firstRowNum int64, err error) {
	if len(k) != 13 || k[0] != prefixVisimap {
		return 0, 0, fmt.Errorf("auxstore: malformed visimap key %x", k)
	}
	return int32(binary.BigEndian.Uint32(k[1:])), int64(binary.BigEndian.Uint64(k[5:])), nil
}

func sequenceKey(segno int32) []byte {
	return appendUint32([]byte{prefixSequence}, segno)
}

// CatalogKey holds the name of the catalog manifest the committed aux state
// belongs to.
func CatalogKey() []byte {
	return []byte{prefixCatalog}
}
