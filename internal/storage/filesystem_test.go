package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystemBackend(t *testing.T) *FilesystemBackend {
	t.Helper()
	root := filepath.Join(t.TempDir(), "ps3-data")
	fs := NewFilesystemBackend(root)
	require.NoError(t, fs.Init(context.Background()))
	return fs
}

func TestFilesystemBackend_InitIsNonDestructive(t *testing.T) {
	fs := newTestFilesystemBackend(t)
	ctx := context.Background()

	_, err := fs.CreateBucket(ctx, "keep-me")
	require.NoError(t, err)

	require.NoError(t, fs.Init(ctx))

	buckets, err := fs.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Len(t, buckets, 1)
	assert.Equal(t, "keep-me", buckets[0].Name)
}

func TestFilesystemBackend_BucketLifecycle(t *testing.T) {
	fs := newTestFilesystemBackend(t)
	ctx := context.Background()

	t.Run("create and list", func(t *testing.T) {
		_, err := fs.CreateBucket(ctx, "bucket-a")
		require.NoError(t, err)

		buckets, err := fs.ListBuckets(ctx)
		require.NoError(t, err)
		assert.Len(t, buckets, 1)
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		_, err := fs.CreateBucket(ctx, "bucket-a")
		assert.ErrorIs(t, err, ErrBucketAlreadyExists)
	})

	t.Run("delete non-empty fails", func(t *testing.T) {
		_, err := fs.PutObject(ctx, "bucket-a", "file.txt", []byte("hello"))
		require.NoError(t, err)

		err = fs.DeleteBucket(ctx, "bucket-a")
		assert.ErrorIs(t, err, ErrBucketNotEmpty)
	})

	t.Run("delete missing bucket fails", func(t *testing.T) {
		err := fs.DeleteBucket(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrNoSuchBucket)
	})

	t.Run("delete empty bucket succeeds", func(t *testing.T) {
		require.NoError(t, fs.DeleteObject(ctx, "bucket-a", "file.txt"))
		assert.NoError(t, fs.DeleteBucket(ctx, "bucket-a"))
	})
}

func TestFilesystemBackend_ObjectLifecycle(t *testing.T) {
	fs := newTestFilesystemBackend(t)
	ctx := context.Background()
	_, err := fs.CreateBucket(ctx, "bucket")
	require.NoError(t, err)

	info, err := fs.PutObject(ctx, "bucket", "dir/nested.txt", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), info.Size)
	assert.NotEmpty(t, info.ETag)

	obj, err := fs.GetObject(ctx, "bucket", "dir/nested.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), obj.Body)
	assert.Equal(t, info.ETag, obj.ETag)

	objects, err := fs.ListObjects(ctx, "bucket", "dir/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "dir/nested.txt", objects[0].Key)

	require.NoError(t, fs.DeleteObject(ctx, "bucket", "dir/nested.txt"))

	_, err = fs.GetObject(ctx, "bucket", "dir/nested.txt")
	assert.ErrorIs(t, err, ErrNoSuchKey)
}

func TestFilesystemBackend_DeleteMissingObjectFails(t *testing.T) {
	fs := newTestFilesystemBackend(t)
	ctx := context.Background()
	_, err := fs.CreateBucket(ctx, "bucket")
	require.NoError(t, err)

	err = fs.DeleteObject(ctx, "bucket", "missing.txt")
	assert.ErrorIs(t, err, ErrNoSuchKey)
}

func TestFilesystemBackend_CleanUpIsDestructive(t *testing.T) {
	fs := newTestFilesystemBackend(t)
	ctx := context.Background()
	_, err := fs.CreateBucket(ctx, "bucket")
	require.NoError(t, err)

	require.NoError(t, fs.CleanUp(ctx))

	buckets, err := fs.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}
