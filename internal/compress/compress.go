package compress

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a block compression algorithm. The value is persisted in
// varblock headers and must stay stable.
type Type uint8

const (
	// None stores content as is.
	None Type = 0
	// LZ4 is fast block compression, good for hot data.
	LZ4 Type = 1
	// Zstd trades speed for ratio.
	Zstd Type = 2
	// S2 is the Snappy-compatible extension from klauspost/compress.
	S2 Type = 3
)

var (
	// ErrUnknownType is returned for an unsupported compression type.
	ErrUnknownType = errors.New("compress: unknown compression type")
	// ErrSizeMismatch is returned when decompressed content does not have the declared size.
	ErrSizeMismatch = errors.New("compress: decompressed size mismatch")
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	default:
		return fmt.Sprintf("compress(%d)", uint8(t))
	}
}

// ParseType maps a storage option value (case-insensitive) to a Type.
// The empty string means None.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "s2", "snappy":
		return S2, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
}

// Codec compresses and decompresses whole blocks.
type Codec interface {
	Type() Type
	// Compress appends the compressed form of src to dst[:0].
	// A nil result means src is not compressible.
	Compress(dst, src []byte) ([]byte, error)
	// Decompress decodes src into a buffer of exactly size bytes.
	Decompress(dst, src []byte, size int) ([]byte, error)
}

// New returns a codec for t. level is algorithm specific; 0 selects the default.
func New(t Type, level int) (Codec, error) {
	switch t {
	case None:
		return noneCodec{}, nil
	case LZ4:
		return lz4Codec{}, nil
	case Zstd:
		return newZstdCodec(level), nil
	case S2:
		return s2Codec{level: level}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}

// MustNew is like New but panics on an unknown type.
func MustNew(t Type, level int) Codec {
	c, err := New(t, level)
	if err != nil {
		panic(err)
	}
	return c
}

type noneCodec struct{}

func (noneCodec) Type() Type { return None }

func (noneCodec) Compress(dst, src []byte) ([]byte, error) {
	return nil, nil
}

func (noneCodec) Decompress(dst, src []byte, size int) ([]byte, error) {
	if len(src) != size {
		return nil, ErrSizeMismatch
	}
	return append(dst[:0], src...), nil
}

type lz4Codec struct{}

func (lz4Codec) Type() Type { return LZ4 }

func (lz4Codec) Compress(dst, src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]

	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decompress(dst, src []byte, size int) ([]byte, error) {
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]

	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, ErrSizeMismatch
	}
	return dst, nil
}

// zstd encoders are not cheap; one pool per level.
var (
	zstdEncoderPools sync.Map // zstd.EncoderLevel -> *sync.Pool
	zstdDecoderPool  sync.Pool
)

type zstdCodec struct {
	level zstd.EncoderLevel
}

func newZstdCodec(level int) zstdCodec {
	if level <= 0 {
		return zstdCodec{level: zstd.SpeedDefault}
	}
	return zstdCodec{level: zstd.EncoderLevelFromZstd(level)}
}

func (zstdCodec) Type() Type { return Zstd }

func (c zstdCodec) encoderPool() *sync.Pool {
	if p, ok := zstdEncoderPools.Load(c.level); ok {
		return p.(*sync.Pool)
	}
	level := c.level
	p, _ := zstdEncoderPools.LoadOrStore(level, &sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
			return enc
		},
	})
	return p.(*sync.Pool)
}

func (c zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	pool := c.encoderPool()
	enc := pool.Get().(*zstd.Encoder)
	defer pool.Put(enc)

	return enc.EncodeAll(src, dst[:0]), nil
}

func (zstdCodec) Decompress(dst, src []byte, size int) ([]byte, error) {
	dec, _ := zstdDecoderPool.Get().(*zstd.Decoder)
	if dec == nil {
		var err error
		dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
	}
	defer zstdDecoderPool.Put(dec)

	if cap(dst) < size {
		dst = make([]byte, 0, size)
	}
	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, ErrSizeMismatch
	}
	return out, nil
}

type s2Codec struct {
	level int
}

func (s2Codec) Type() Type { return S2 }

func (c s2Codec) Compress(dst, src []byte) ([]byte, error) {
	if bound := s2.MaxEncodedLen(len(src)); bound < 0 {
		return nil, nil
	} else if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:cap(dst)]

	switch {
	case c.level >= 3:
		return s2.EncodeBest(dst, src), nil
	case c.level == 2:
		return s2.EncodeBetter(dst, src), nil
	default:
		return s2.Encode(dst, src), nil
	}
}

func (s2Codec) Decompress(dst, src []byte, size int) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, ErrSizeMismatch
	}
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	return s2.Decode(dst[:size], src)
}
