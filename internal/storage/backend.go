package storage

import "context"

// Backend is the storage contract every implementation satisfies: a
// filesystem-rooted tree of buckets and objects, or an in-memory badger
// container pair. Every method except StorageRoot takes a context first so
// the Memory backend can resolve the calling task's sandbox container from it.
type Backend interface {
	// StorageRoot reports where this backend keeps its data: an absolute
	// filesystem path, or "memory" for the in-memory backend.
	StorageRoot() string

	// Init prepares the backend for use. It must be non-destructive: an
	// existing filesystem root is left untouched, an existing in-memory
	// container keeps whatever it already holds.
	Init(ctx context.Context) error

	// CleanUp destructively wipes everything the backend holds and then
	// re-initializes it. Never reachable over HTTP; it is called directly
	// by test harnesses. The sandbox registry does not call it: checking in
	// an owner closes that owner's containers instead.
	CleanUp(ctx context.Context) error

	ListBuckets(ctx context.Context) ([]Bucket, error)
	CreateBucket(ctx context.Context, name string) (Bucket, error)
	DeleteBucket(ctx context.Context, name string) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, body []byte) (ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (Object, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}
