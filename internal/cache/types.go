package cache

import "context"

// Key identifies a decoded varblock: the column file and the block's byte
// offset. Column files are append-only, so a (path, offset) pair never
// changes meaning until the file is reclaimed.
type Key struct {
	Path   string
	Offset int64
}

// BlockCache caches uncompressed varblock contents.
// Returned slices must be treated as read-only.
type BlockCache interface {
	Get(ctx context.Context, key Key) ([]byte, bool)
	Set(ctx context.Context, key Key, b []byte)
	// Invalidate drops entries matching predicate.
	Invalidate(predicate func(Key) bool)
	Stats() (hits, misses int64)
}
