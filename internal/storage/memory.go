package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/maxiofs/ps3/internal/sandbox"
)

const objectKeySeparator = "\x00"

// MemoryBackend keeps buckets and objects in the pair of badger in-memory
// containers the sandbox registry resolves for the calling context: either
// the process-wide well-known pair, or a sandboxed owner's own pair.
type MemoryBackend struct {
	registry *sandbox.Registry
}

// NewMemoryBackend wraps a sandbox registry as a storage.Backend.
func NewMemoryBackend(registry *sandbox.Registry) *MemoryBackend {
	return &MemoryBackend{registry: registry}
}

func (m *MemoryBackend) StorageRoot() string { return "memory" }

type bucketRecord struct {
	CreatedAt time.Time `json:"created_at"`
}

type objectRecord struct {
	Body         []byte    `json:"body"`
	LastModified time.Time `json:"last_modified"`
}

func objectKey(bucket, key string) string {
	return bucket + objectKeySeparator + key
}

func objectPrefix(bucket string) string {
	return bucket + objectKeySeparator
}

// Init is a no-op: a resolved container pair already exists, empty or not.
func (m *MemoryBackend) Init(ctx context.Context) error { return nil }

// CleanUp drops every bucket and object record in the resolved container
// pair, leaving it open and empty.
func (m *MemoryBackend) CleanUp(ctx context.Context) error {
	buckets, objects, err := m.registry.Resolve(ctx)
	if err != nil {
		return mapSandboxErr(err)
	}
	if err := buckets.DeletePrefix(""); err != nil {
		return newError("InternalError", err.Error())
	}
	if err := objects.DeletePrefix(""); err != nil {
		return newError("InternalError", err.Error())
	}
	return nil
}

func (m *MemoryBackend) ListBuckets(ctx context.Context) ([]Bucket, error) {
	buckets, _, err := m.registry.Resolve(ctx)
	if err != nil {
		return nil, mapSandboxErr(err)
	}
	raw, err := buckets.Scan("")
	if err != nil {
		return nil, newError("InternalError", err.Error())
	}
	out := make([]Bucket, 0, len(raw))
	for name, data := range raw {
		var rec bucketRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, Bucket{Name: name, CreatedAt: rec.CreatedAt})
	}
	return out, nil
}

func (m *MemoryBackend) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	buckets, _, err := m.registry.Resolve(ctx)
	if err != nil {
		return Bucket{}, mapSandboxErr(err)
	}
	if _, err := buckets.Get(name); err == nil {
		return Bucket{}, ErrBucketAlreadyExists
	}
	rec := bucketRecord{CreatedAt: time.Now().UTC()}
	data, _ := json.Marshal(rec)
	if err := buckets.Put(name, data); err != nil {
		return Bucket{}, newError("InternalError", err.Error())
	}
	return Bucket{Name: name, CreatedAt: rec.CreatedAt}, nil
}

// DeleteBucket checks that name is empty and then removes it. The
// emptiness scan reads the object container and the delete writes the
// bucket container, two separate badger databases, so the two calls
// cannot share one transaction: a PutObject landing between them can
// resurrect an object record under a bucket this call just removed.
func (m *MemoryBackend) DeleteBucket(ctx context.Context, name string) error {
	buckets, objects, err := m.registry.Resolve(ctx)
	if err != nil {
		return mapSandboxErr(err)
	}
	if _, err := buckets.Get(name); err != nil {
		return ErrNoSuchBucket
	}
	members, err := objects.Scan(objectPrefix(name))
	if err != nil {
		return newError("InternalError", err.Error())
	}
	if len(members) > 0 {
		return ErrBucketNotEmpty
	}
	if err := buckets.Delete(name); err != nil {
		return newError("InternalError", err.Error())
	}
	return nil
}

func (m *MemoryBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	buckets, objects, err := m.registry.Resolve(ctx)
	if err != nil {
		return nil, mapSandboxErr(err)
	}
	if _, err := buckets.Get(bucket); err != nil {
		return nil, ErrNoSuchBucket
	}
	raw, err := objects.Scan(objectPrefix(bucket))
	if err != nil {
		return nil, newError("InternalError", err.Error())
	}
	out := make([]ObjectInfo, 0, len(raw))
	for k, data := range raw {
		key := strings.TrimPrefix(k, objectPrefix(bucket))
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var rec objectRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		sum := md5.Sum(rec.Body)
		out = append(out, ObjectInfo{
			Key:          key,
			Size:         int64(len(rec.Body)),
			LastModified: rec.LastModified,
			ETag:         hex.EncodeToString(sum[:]),
		})
	}
	return out, nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, bucket, key string, body []byte) (ObjectInfo, error) {
	buckets, objects, err := m.registry.Resolve(ctx)
	if err != nil {
		return ObjectInfo{}, mapSandboxErr(err)
	}
	if _, err := buckets.Get(bucket); err != nil {
		return ObjectInfo{}, ErrNoSuchBucket
	}
	rec := objectRecord{Body: body, LastModified: time.Now().UTC()}
	data, _ := json.Marshal(rec)
	if err := objects.Put(objectKey(bucket, key), data); err != nil {
		return ObjectInfo{}, newError("InternalError", err.Error())
	}
	sum := md5.Sum(body)
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(body)),
		LastModified: rec.LastModified,
		ETag:         hex.EncodeToString(sum[:]),
	}, nil
}

func (m *MemoryBackend) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	_, objects, err := m.registry.Resolve(ctx)
	if err != nil {
		return Object{}, mapSandboxErr(err)
	}
	data, err := objects.Get(objectKey(bucket, key))
	if err != nil {
		return Object{}, ErrNoSuchKey
	}
	var rec objectRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Object{}, newError("InternalError", err.Error())
	}
	sum := md5.Sum(rec.Body)
	return Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         int64(len(rec.Body)),
			LastModified: rec.LastModified,
			ETag:         hex.EncodeToString(sum[:]),
		},
		Body: rec.Body,
	}, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	_, objects, err := m.registry.Resolve(ctx)
	if err != nil {
		return mapSandboxErr(err)
	}
	if err := objects.Delete(objectKey(bucket, key)); err != nil {
		return ErrNoSuchKey
	}
	return nil
}

func mapSandboxErr(err error) error {
	if err == sandbox.ErrNotFound {
		return newError("InternalError", "no sandbox container allowed for this task")
	}
	return newError("InternalError", err.Error())
}
