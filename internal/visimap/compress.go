package visimap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CompressionType is the 1-bit type in a compressed bitmap header.
type CompressionType uint8

const (
	// NoCompression stores raw little-endian 32-bit blocks after the header.
	NoCompression CompressionType = 0
	// DefaultCompression stores a 2-bit flag per block.
	DefaultCompression CompressionType = 1
)

const (
	flagZero = 0
	flagOne  = 1
	flagRLE  = 2
	flagRaw  = 3

	headerLen = 2
	// maxBlockCount is the largest count the 12-bit header field holds.
	maxBlockCount = 1<<12 - 1
)

// ErrCorruptBitmap is returned for a compressed bitmap that cannot be decoded.
var ErrCorruptBitmap = errors.New("visimap: corrupt bitmap")

// CompressBlocks compresses 32-bit blocks. If the default encoding would not
// fit in 4*len(blocks)+2 bytes the blocks are stored uncompressed.
func CompressBlocks(blocks []uint32) ([]byte, error) {
	if len(blocks) > maxBlockCount {
		return nil, fmt.Errorf("visimap: %d blocks exceed the maximum of %d", len(blocks), maxBlockCount)
	}
	out := make([]byte, 4*len(blocks)+headerLen)
	w := &bitWriter{buf: out}
	writeHeader(w, DefaultCompression, len(blocks))
	if compressDefault(w, blocks) {
		return out[:w.length()], nil
	}

	clear(out)
	return compressNone(out, blocks), nil
}

func writeHeader(w *bitWriter, t CompressionType, blockCount int) {
	// The buffer always has room for the header.
	w.put(uint32(t), 1)
	w.skip(3)
	w.put(uint32(blockCount), 12)
}

func compressNone(out []byte, blocks []uint32) []byte {
	w := &bitWriter{buf: out}
	writeHeader(w, NoCompression, len(blocks))
	for i, b := range blocks {
		binary.LittleEndian.PutUint32(out[headerLen+4*i:], b)
	}
	return out[:headerLen+4*len(blocks)]
}

func compressDefault(w *bitWriter, blocks []uint32) bool {
	var (
		last     uint32
		lastFlag uint32
		repeat   int
	)
	for i, b := range blocks {
		if b == last && repeat <= 255 && i > 0 {
			repeat++
			continue
		}
		if repeat > 0 {
			if !encodeRepeat(w, repeat, lastFlag) {
				return false
			}
			repeat = 0
		}
		switch b {
		case 0:
			if !w.put(flagZero, 2) {
				return false
			}
			lastFlag = flagZero
		case 0xFFFFFFFF:
			if !w.put(flagOne, 2) {
				return false
			}
			lastFlag = flagOne
		default:
			if !w.put(flagRaw, 2) || !w.put(b, 32) {
				return false
			}
			lastFlag = flagRaw
		}
		last = b
	}
	if repeat > 0 {
		return encodeRepeat(w, repeat, lastFlag)
	}
	return true
}

// encodeRepeat writes a run of blocks equal to the previous one. Short runs
// of zero or one blocks are cheaper as repeated flags.
func encodeRepeat(w *bitWriter, repeat int, lastFlag uint32) bool {
	if lastFlag == flagRaw || repeat > 4 {
		return w.put(flagRLE, 2) && w.put(uint32(repeat-1), 8)
	}
	for i := 0; i < repeat; i++ {
		if !w.put(lastFlag, 2) {
			return false
		}
	}
	return true
}

// DecompressBlocks decodes a bitmap produced by CompressBlocks. maxBlocks
// bounds the accepted block count.
func DecompressBlocks(data []byte, maxBlocks int) ([]uint32, error) {
	r := &bitReader{buf: data}
	t, ok1 := r.get(1)
	ok2 := r.skip(3)
	n, ok3 := r.get(12)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptBitmap)
	}
	count := int(n)
	if count > maxBlocks {
		return nil, fmt.Errorf("%w: invalid block count %d, compression type %d", ErrCorruptBitmap, count, t)
	}

	blocks := make([]uint32, count)
	switch CompressionType(t) {
	case NoCompression:
		if len(data) < headerLen+4*count {
			return nil, fmt.Errorf("%w: %d raw blocks in %d bytes", ErrCorruptBitmap, count, len(data))
		}
		for i := range blocks {
			blocks[i] = binary.LittleEndian.Uint32(data[headerLen+4*i:])
		}
	case DefaultCompression:
		var last, repeat uint32
		for i := range blocks {
			if repeat > 0 {
				blocks[i] = last
				repeat--
				continue
			}
			flag, ok := r.get(2)
			if !ok {
				return nil, fmt.Errorf("%w: bitstream read error, block count %d", ErrCorruptBitmap, count)
			}
			switch flag {
			case flagZero:
				blocks[i] = 0
			case flagOne:
				blocks[i] = 0xFFFFFFFF
			case flagRaw:
				if blocks[i], ok = r.get(32); !ok {
					return nil, fmt.Errorf("%w: bitstream read error, block count %d", ErrCorruptBitmap, count)
				}
			case flagRLE:
				if i == 0 {
					return nil, fmt.Errorf("%w: repeat without a previous block", ErrCorruptBitmap)
				}
				if repeat, ok = r.get(8); !ok {
					return nil, fmt.Errorf("%w: bitstream read error, block count %d", ErrCorruptBitmap, count)
				}
				blocks[i] = last
			}
			last = blocks[i]
		}
		if repeat > 0 {
			return nil, fmt.Errorf("%w: illegal repeat state, block count %d, repeat count %d", ErrCorruptBitmap, count, repeat)
		}
	}
	return blocks, nil
}

// OnDiskBlockCount returns the number of 32-bit blocks that store words. A
// single word with a zero high half needs one block, anything else two per
// word.
func OnDiskBlockCount(words []uint64) int {
	switch {
	case len(words) == 0:
		return 0
	case len(words) == 1 && words[0]>>32 == 0:
		return 1
	default:
		return 2 * len(words)
	}
}

// InMemoryWordCount returns the number of 64-bit words that hold
// onDiskBlocks 32-bit blocks. The block count must be 0, 1 or even.
func InMemoryWordCount(onDiskBlocks int) (int, error) {
	switch {
	case onDiskBlocks == 1:
		return 1, nil
	case onDiskBlocks < 0 || onDiskBlocks%2 != 0:
		return 0, fmt.Errorf("%w: odd on-disk block count %d", ErrCorruptBitmap, onDiskBlocks)
	default:
		return onDiskBlocks / 2, nil
	}
}

// WordsToBlocks splits 64-bit words into 32-bit blocks, low half first.
func WordsToBlocks(words []uint64) []uint32 {
	n := OnDiskBlockCount(words)
	blocks := make([]uint32, n)
	if n == 1 {
		blocks[0] = uint32(words[0])
		return blocks
	}
	for i, w := range words {
		blocks[2*i] = uint32(w)
		blocks[2*i+1] = uint32(w >> 32)
	}
	return blocks
}

// BlocksToWords joins 32-bit blocks into 64-bit words, low half first.
func BlocksToWords(blocks []uint32) ([]uint64, error) {
	n, err := InMemoryWordCount(len(blocks))
	if err != nil {
		return nil, err
	}
	words := make([]uint64, n)
	if len(blocks) == 1 {
		words[0] = uint64(blocks[0])
		return words, nil
	}
	for i := range words {
		words[i] = uint64(blocks[2*i]) | uint64(blocks[2*i+1])<<32
	}
	return words, nil
}

// Compress compresses an in-memory bitmap.
func Compress(words []uint64) ([]byte, error) {
	return CompressBlocks(WordsToBlocks(words))
}

// Decompress restores an in-memory bitmap of at most maxWords words.
func Decompress(data []byte, maxWords int) ([]uint64, error) {
	blocks, err := DecompressBlocks(data, 2*maxWords)
	if err != nil {
		return nil, err
	}
	return BlocksToWords(blocks)
}
