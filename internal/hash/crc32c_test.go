package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32CMatchesStreaming(t *testing.T) {
	data := []byte("append-optimized column storage")

	h := NewCRC32C()
	_, _ = h.Write(data[:10])
	_, _ = h.Write(data[10:])

	require.Equal(t, CRC32C(data), h.Sum32())
	require.Equal(t, CRC32C(data), UpdateCRC32C(CRC32C(data[:10]), data[10:]))
}

func TestCRC32CKnownValue(t *testing.T) {
	// RFC 3720 test vector: 32 bytes of zeros.
	require.Equal(t, uint32(0x8a9136aa), CRC32C(make([]byte, 32)))
}
