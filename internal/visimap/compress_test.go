package visimap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressBlocksKnownEncodings(t *testing.T) {
	out, err := CompressBlocks(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x00}, out)

	out, err = CompressBlocks([]uint32{0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x01, 0x00}, out)

	// ONE, ZERO: 01 00 -> 0x40
	out, err = CompressBlocks([]uint32{0xFFFFFFFF, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x02, 0x40}, out)

	// A single raw block does not fit 6 bytes with its flag and falls back.
	out, err = CompressBlocks([]uint32{0x12345678})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x78, 0x56, 0x34, 0x12}, out)
}

func TestCompressBlocksRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := make([]uint32, 64)
	for i := range random {
		random[i] = rng.Uint32()
	}
	longRun := make([]uint32, 300)
	for i := 200; i < 300; i++ {
		longRun[i] = 0xFFFFFFFF
	}
	shortRuns := []uint32{0, 0, 0, 0xFFFFFFFF, 0xFFFFFFFF, 7, 7, 7, 0, 0, 0, 0, 0, 0}
	mixed := []uint32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0xFFFFFFFF, 0, 0, 0, 0, 0, 0, 0, 0}

	tests := []struct {
		name   string
		blocks []uint32
		typ    CompressionType
	}{
		{"empty", []uint32{}, DefaultCompression},
		{"single zero", []uint32{0}, DefaultCompression},
		{"random falls back", random, NoCompression},
		{"run longer than 256", longRun, DefaultCompression},
		{"short runs", shortRuns, DefaultCompression},
		{"raw repeats", mixed, DefaultCompression},
		{"full entry of ones", fill(1024, 0xFFFFFFFF), DefaultCompression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := CompressBlocks(tt.blocks)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(out), 4*len(tt.blocks)+2)
			assert.Equal(t, tt.typ, CompressionType(out[0]>>7))

			got, err := DecompressBlocks(out, 1024)
			require.NoError(t, err)
			assert.Equal(t, tt.blocks, got)
		})
	}
}

func fill(n int, v uint32) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDecompressBlocksErrors(t *testing.T) {
	_, err := DecompressBlocks([]byte{0x80}, 10)
	require.ErrorIs(t, err, ErrCorruptBitmap)

	// block count 5 above the limit of 4
	_, err = DecompressBlocks([]byte{0x80, 0x05, 0x00, 0x00}, 4)
	require.ErrorIs(t, err, ErrCorruptBitmap)

	// two blocks declared, flags missing
	_, err = DecompressBlocks([]byte{0x80, 0x02}, 4)
	require.ErrorIs(t, err, ErrCorruptBitmap)

	// RLE as first flag
	_, err = DecompressBlocks([]byte{0x80, 0x01, 0x80, 0x00}, 4)
	require.ErrorIs(t, err, ErrCorruptBitmap)

	// ZERO then RLE with 9 repeats for only 3 blocks
	_, err = DecompressBlocks([]byte{0x80, 0x03, 0x20, 0x90}, 4)
	require.ErrorIs(t, err, ErrCorruptBitmap)

	// uncompressed, short payload
	_, err = DecompressBlocks([]byte{0x00, 0x02, 1, 2, 3, 4}, 4)
	require.ErrorIs(t, err, ErrCorruptBitmap)
}

func TestWordBlockTranslation(t *testing.T) {
	tests := []struct {
		name   string
		words  []uint64
		blocks []uint32
	}{
		{"empty", nil, []uint32{}},
		{"one word low half only", []uint64{0x0000_0000_8000_0001}, []uint32{0x8000_0001}},
		{"one word with high half", []uint64{1 << 32}, []uint32{0, 1}},
		{"high bit of first word", []uint64{1 << 63}, []uint32{0, 0x8000_0000}},
		{"two words", []uint64{0xFFFF_FFFF, 0xAAAA_AAAA_0000_0001}, []uint32{0xFFFF_FFFF, 0, 1, 0xAAAA_AAAA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := WordsToBlocks(tt.words)
			assert.Equal(t, tt.blocks, blocks)
			assert.Equal(t, len(tt.blocks), OnDiskBlockCount(tt.words))

			words, err := BlocksToWords(blocks)
			require.NoError(t, err)
			if len(tt.words) == 0 {
				assert.Empty(t, words)
			} else {
				assert.Equal(t, tt.words, words)
			}

			out, err := Compress(tt.words)
			require.NoError(t, err)
			restored, err := Decompress(out, maxWords)
			require.NoError(t, err)
			assert.Equal(t, len(tt.words), len(restored))
			for i := range tt.words {
				assert.Equal(t, tt.words[i], restored[i])
			}
		})
	}

	_, err := InMemoryWordCount(3)
	require.ErrorIs(t, err, ErrCorruptBitmap)
	n, err := InMemoryWordCount(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = InMemoryWordCount(8)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCompressRandomBitmaps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		words := make([]uint64, 1+rng.Intn(maxWords))
		density := rng.Intn(4)
		for i := range words {
			switch density {
			case 0:
				if rng.Intn(16) == 0 {
					words[i] = 1 << uint(rng.Intn(64))
				}
			case 1:
				words[i] = ^uint64(0)
			case 2:
				words[i] = rng.Uint64()
			default:
				words[i] = uint64(rng.Uint32())
			}
		}
		out, err := Compress(words)
		require.NoError(t, err)
		got, err := Decompress(out, maxWords)
		require.NoError(t, err)
		require.Equal(t, words, got, "iteration %d", iter)
	}
}
