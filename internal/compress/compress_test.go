package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("segment-file-0042;"), 512)

	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 4096)
	rng.Read(random)

	for _, tc := range []struct {
		typ   Type
		level int
	}{
		{None, 0},
		{LZ4, 0},
		{Zstd, 0},
		{Zstd, 19},
		{S2, 0},
		{S2, 2},
		{S2, 3},
	} {
		t.Run(tc.typ.String(), func(t *testing.T) {
			codec, err := New(tc.typ, tc.level)
			require.NoError(t, err)
			require.Equal(t, tc.typ, codec.Type())

			for _, src := range [][]byte{compressible, random} {
				out, err := codec.Compress(nil, src)
				require.NoError(t, err)
				if out == nil {
					continue // incompressible or None
				}
				got, err := codec.Decompress(nil, out, len(src))
				require.NoError(t, err)
				assert.Equal(t, src, got)
			}
		})
	}
}

func TestCompressibleDataShrinks(t *testing.T) {
	src := bytes.Repeat([]byte{1, 2, 3, 4}, 2048)
	for _, typ := range []Type{LZ4, Zstd, S2} {
		out, err := MustNew(typ, 0).Compress(nil, src)
		require.NoError(t, err)
		require.NotNil(t, out, typ.String())
		assert.Less(t, len(out), len(src)/4, typ.String())
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	src := bytes.Repeat([]byte("abc"), 300)
	for _, typ := range []Type{LZ4, Zstd, S2} {
		codec := MustNew(typ, 0)
		out, err := codec.Compress(nil, src)
		require.NoError(t, err)
		_, err = codec.Decompress(nil, out, len(src)+1)
		require.Error(t, err, typ.String())
	}

	_, err := MustNew(None, 0).Decompress(nil, src, len(src)-1)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestParseType(t *testing.T) {
	for name, want := range map[string]Type{"": None, "NONE": None, "lz4": LZ4, "Zstd": Zstd, "snappy": S2} {
		got, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("zlib")
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = New(Type(99), 0)
	require.ErrorIs(t, err, ErrUnknownType)
}
