package catalog

import (
	"bytes"
	"context"
	"testing"

	"github.com/hupe1980/aocs/blobstore"
	"github.com/hupe1980/aocs/internal/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRelation(t *testing.T) *Relation {
	t.Helper()
	rel, err := NewRelation("orders", 16384, []Column{
		{Name: "id", Type: "int8", NotNull: true},
		{Name: "note", Type: "text", Storage: ColumnStorage{Compression: "zstd", CompressLevel: 3}},
		{Name: "blob", Type: "bytea", Storage: ColumnStorage{BlockSize: 64 * 1024, Checksum: Off}},
	})
	require.NoError(t, err)
	return rel
}

func TestNewRelationAssignsNumbers(t *testing.T) {
	rel := sampleRelation(t)
	for i, c := range rel.Columns {
		assert.Equal(t, int32(i+1), c.AttNum)
		assert.Equal(t, c.AttNum, c.FileNum)
	}

	c, ok := rel.Lookup("NOTE")
	require.True(t, ok)
	assert.Equal(t, int32(2), c.AttNum)

	_, err := rel.Column(4)
	assert.ErrorIs(t, err, ErrNoSuchColumn)
}

func TestDeriveStorageOptions(t *testing.T) {
	rel := sampleRelation(t)
	rel.Defaults.Compression = compress.LZ4
	rel.Defaults.CompressLevel = 1

	tests := []struct {
		attnum int32
		want   StorageOptions
	}{
		{1, StorageOptions{Compression: compress.LZ4, CompressLevel: 1, BlockSize: DefaultBlockSize, Checksum: true}},
		{2, StorageOptions{Compression: compress.Zstd, CompressLevel: 3, BlockSize: DefaultBlockSize, Checksum: true}},
		{3, StorageOptions{Compression: compress.LZ4, CompressLevel: 1, BlockSize: 64 * 1024, Checksum: false}},
	}
	for _, tt := range tests {
		got, err := DeriveStorageOptions(rel, tt.attnum)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "attnum %d", tt.attnum)
	}

	before := rel.Clone()
	_, err := DeriveStorageOptions(rel, 2)
	require.NoError(t, err)
	assert.Equal(t, before, rel)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(r *Relation)
	}{
		{"duplicate name", func(r *Relation) { r.Columns[1].Name = "ID" }},
		{"attnum gap", func(r *Relation) { r.Columns[2].AttNum = 7 }},
		{"shared file number", func(r *Relation) { r.Columns[2].FileNum = 1 }},
		{"odd block size", func(r *Relation) { r.Columns[0].Storage.BlockSize = 10000 }},
		{"unknown codec", func(r *Relation) { r.Columns[0].Storage.Compression = "brotli" }},
		{"tiny default block", func(r *Relation) { r.Defaults.BlockSize = 4096 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := sampleRelation(t)
			tt.mod(rel)
			assert.ErrorIs(t, rel.Validate(), ErrInvalid)
		})
	}
}

func TestAddColumn(t *testing.T) {
	rel := sampleRelation(t)
	c, err := rel.AddColumn(Column{Name: "extra", Type: "int8"})
	require.NoError(t, err)
	assert.Equal(t, int32(4), c.AttNum)
	assert.Equal(t, int32(4), c.FileNum)

	_, err = rel.AddColumn(Column{Name: "extra"})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, rel.Columns, 4)
}

func TestRewriteFileNum(t *testing.T) {
	assert.Equal(t, int32(1+MaxColumns), RewriteFileNum(1))
	assert.Equal(t, int32(1), RewriteFileNum(1+MaxColumns))
	assert.Equal(t, int32(2*MaxColumns), RewriteFileNum(MaxColumns))
}

func TestBinaryRoundTrip(t *testing.T) {
	rel := sampleRelation(t)
	rel.ID = 7

	var buf bytes.Buffer
	require.NoError(t, rel.WriteBinary(&buf))

	got, err := ReadBinary(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, rel.ID, got.ID)
	assert.Equal(t, rel.Name, got.Name)
	assert.Equal(t, rel.RelFileNode, got.RelFileNode)
	assert.Equal(t, rel.Defaults, got.Defaults)
	assert.Equal(t, rel.Columns, got.Columns)
	assert.True(t, rel.CreatedAt.Equal(got.CreatedAt))
}

func TestReadBinaryRejectsDamage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleRelation(t).WriteBinary(&buf))
	good := buf.Bytes()

	flipped := append([]byte(nil), good...)
	flipped[len(flipped)-1] ^= 0xff
	_, err := ReadBinary(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = ReadBinary(bytes.NewReader(good[:len(good)-3]))
	assert.ErrorIs(t, err, ErrCorrupt)

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 99
	_, err = ReadBinary(bytes.NewReader(badVersion))
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'
	_, err = ReadBinary(bytes.NewReader(badMagic))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStoreVersions(t *testing.T) {
	ctx := context.Background()
	store := NewStore(blobstore.NewMemoryStore())

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	rel := sampleRelation(t)
	require.NoError(t, store.Save(ctx, rel))
	assert.Equal(t, uint64(1), rel.ID)

	_, err = rel.AddColumn(Column{Name: "extra", Type: "int8"})
	require.NoError(t, err)
	name, err := store.Write(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, "MANIFEST-000002.bin", name)

	// written but not published
	cur, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cur.ID)
	assert.Len(t, cur.Columns, 3)

	require.NoError(t, store.Publish(ctx, name))
	cur, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cur.ID)
	assert.Len(t, cur.Columns, 4)

	versions, err := store.ListVersions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, uint64(1), versions[0].ID)

	require.NoError(t, store.DeleteVersion(ctx, 1))
	_, err = store.LoadVersion(ctx, 1)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestWriteRejectsInvalid(t *testing.T) {
	store := NewStore(blobstore.NewMemoryStore())
	rel := sampleRelation(t)
	rel.Columns[1].Name = "id"
	_, err := store.Write(context.Background(), rel)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Zero(t, rel.ID)
}
