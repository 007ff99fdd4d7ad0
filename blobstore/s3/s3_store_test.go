package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/aocs/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_OpenNotFound(t *testing.T) {
	client := &MockS3Client{}
	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "tbl/MANIFEST-1"
	})).Return(nil, &types.NotFound{})

	store := NewStore(client, "bucket", "tbl")
	_, err := store.Open(context.Background(), "MANIFEST-1")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	client.AssertExpectations(t)
}

func TestStore_OpenAndReadAt(t *testing.T) {
	ctx := context.Background()
	client := &MockS3Client{}
	client.On("HeadObject", mock.Anything, mock.Anything).
		Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(10)}, nil)
	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Range) == "bytes=6-9"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("6789"))}, nil)

	store := NewStore(client, "bucket", "tbl")
	blob, err := store.Open(ctx, "data")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(10), blob.Size())

	buf := make([]byte, 8)
	n, err := blob.ReadAt(ctx, buf, 6)
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "6789", string(buf[:n]))

	_, err = blob.ReadAt(ctx, buf, 10)
	assert.ErrorIs(t, err, io.EOF)
	client.AssertExpectations(t)
}

func TestStore_PutUsesUploader(t *testing.T) {
	client := &MockS3Client{}
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "tbl/CURRENT"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	store := NewStore(client, "bucket", "tbl")
	require.NoError(t, store.Put(context.Background(), "CURRENT", []byte("MANIFEST-2")))
	client.AssertExpectations(t)
}

func TestStore_DeleteIgnoresMissing(t *testing.T) {
	client := &MockS3Client{}
	client.On("DeleteObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	store := NewStore(client, "bucket", "tbl")
	require.NoError(t, store.Delete(context.Background(), "gone"))
}

func TestStore_ListStripsPrefix(t *testing.T) {
	client := &MockS3Client{}
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "tbl/MANIFEST-"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("tbl/MANIFEST-2")},
			{Key: aws.String("tbl/MANIFEST-1")},
		},
		IsTruncated: aws.Bool(false),
	}, nil)

	store := NewStore(client, "bucket", "tbl/")
	names, err := store.List(context.Background(), "MANIFEST-")
	require.NoError(t, err)
	assert.Equal(t, []string{"MANIFEST-1", "MANIFEST-2"}, names)
}
