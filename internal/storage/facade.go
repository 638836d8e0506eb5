package storage

import (
	"context"
	"sync"

	"github.com/maxiofs/ps3/internal/config"
	"github.com/maxiofs/ps3/internal/sandbox"
)

// Facade is the single long-lived storage service the S3 protocol adapter
// depends on. It owns the process's current backend and implements Backend
// itself by delegating every call to it.
type Facade struct {
	mu      sync.RWMutex
	backend Backend
}

// NewFacade selects and constructs the configured backend.
func NewFacade(cfg *config.StorageConfig, registry *sandbox.Registry) (*Facade, error) {
	var backend Backend
	switch cfg.Backend {
	case "filesystem":
		backend = NewFilesystemBackend(cfg.Root)
	case "memory":
		backend = NewMemoryBackend(registry)
	default:
		return nil, ErrInvalidBackend
	}
	return &Facade{backend: backend}, nil
}

func (f *Facade) current() Backend {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.backend
}

func (f *Facade) StorageRoot() string { return f.current().StorageRoot() }

func (f *Facade) Init(ctx context.Context) error { return f.current().Init(ctx) }

func (f *Facade) CleanUp(ctx context.Context) error { return f.current().CleanUp(ctx) }

func (f *Facade) ListBuckets(ctx context.Context) ([]Bucket, error) {
	return f.current().ListBuckets(ctx)
}

func (f *Facade) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	return f.current().CreateBucket(ctx, name)
}

func (f *Facade) DeleteBucket(ctx context.Context, name string) error {
	return f.current().DeleteBucket(ctx, name)
}

func (f *Facade) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	return f.current().ListObjects(ctx, bucket, prefix)
}

func (f *Facade) PutObject(ctx context.Context, bucket, key string, body []byte) (ObjectInfo, error) {
	return f.current().PutObject(ctx, bucket, key, body)
}

func (f *Facade) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	return f.current().GetObject(ctx, bucket, key)
}

func (f *Facade) DeleteObject(ctx context.Context, bucket, key string) error {
	return f.current().DeleteObject(ctx, bucket, key)
}
