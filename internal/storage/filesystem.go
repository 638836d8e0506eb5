package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesystemBackend stores buckets as directories under a root path and
// objects as ordinary files under their bucket directory. It keeps no
// sidecar metadata: size and modification time are always derived from
// os.Stat, and ETag is always recomputed from the file's content.
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend creates a filesystem-rooted backend. It does not
// touch the filesystem; call Init to ensure the root exists.
func NewFilesystemBackend(root string) *FilesystemBackend {
	return &FilesystemBackend{root: root}
}

func (fs *FilesystemBackend) StorageRoot() string { return fs.root }

// Init ensures the root directory exists. It is never destructive: an
// existing root and its contents are left untouched.
func (fs *FilesystemBackend) Init(ctx context.Context) error {
	if err := os.MkdirAll(fs.root, 0o755); err != nil {
		return newError("InternalError", "failed to create storage root: "+err.Error())
	}
	return nil
}

// CleanUp wipes the entire root directory tree and recreates it empty.
func (fs *FilesystemBackend) CleanUp(ctx context.Context) error {
	if err := os.RemoveAll(fs.root); err != nil {
		return newError("InternalError", "failed to remove storage root: "+err.Error())
	}
	return fs.Init(ctx)
}

func (fs *FilesystemBackend) bucketPath(name string) string {
	return filepath.Join(fs.root, filepath.FromSlash(name))
}

func (fs *FilesystemBackend) objectPath(bucket, key string) string {
	return filepath.Join(fs.bucketPath(bucket), filepath.FromSlash(key))
}

func (fs *FilesystemBackend) ListBuckets(ctx context.Context) ([]Bucket, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, newError("InternalError", "failed to list storage root: "+err.Error())
	}

	buckets := make([]Bucket, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		buckets = append(buckets, Bucket{Name: e.Name(), CreatedAt: info.ModTime().UTC()})
	}
	return buckets, nil
}

func (fs *FilesystemBackend) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	path := fs.bucketPath(name)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return Bucket{}, ErrBucketAlreadyExists
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Bucket{}, newError("InternalError", "failed to create bucket directory: "+err.Error())
	}
	info, err := os.Stat(path)
	if err != nil {
		return Bucket{}, newError("InternalError", "failed to stat bucket directory: "+err.Error())
	}
	return Bucket{Name: name, CreatedAt: info.ModTime().UTC()}, nil
}

func (fs *FilesystemBackend) DeleteBucket(ctx context.Context, name string) error {
	path := fs.bucketPath(name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrNoSuchBucket
	} else if err != nil {
		return newError("InternalError", "failed to stat bucket directory: "+err.Error())
	}
	if !info.IsDir() {
		return ErrNoSuchBucket
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return newError("InternalError", "failed to list bucket directory: "+err.Error())
	}
	if len(entries) > 0 {
		return ErrBucketNotEmpty
	}

	if err := os.Remove(path); err != nil {
		return newError("InternalError", "failed to remove bucket directory: "+err.Error())
	}
	return nil
}

func (fs *FilesystemBackend) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	root := fs.bucketPath(bucket)
	if info, err := os.Stat(root); os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		return nil, ErrNoSuchBucket
	} else if err != nil {
		return nil, newError("InternalError", "failed to stat bucket directory: "+err.Error())
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		etag, ferr := fileETag(path)
		if ferr != nil {
			return nil
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
			ETag:         etag,
		})
		return nil
	})
	if err != nil {
		return nil, newError("InternalError", "failed to walk bucket directory: "+err.Error())
	}
	return objects, nil
}

func (fs *FilesystemBackend) PutObject(ctx context.Context, bucket, key string, body []byte) (ObjectInfo, error) {
	bucketDir := fs.bucketPath(bucket)
	if info, err := os.Stat(bucketDir); os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		return ObjectInfo{}, ErrNoSuchBucket
	}

	fullPath := fs.objectPath(bucket, key)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ObjectInfo{}, newError("InternalError", "failed to create object directory: "+err.Error())
	}

	tmp, err := os.CreateTemp(dir, ".ps3-tmp-*")
	if err != nil {
		return ObjectInfo{}, newError("InternalError", "failed to create temp file: "+err.Error())
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return ObjectInfo{}, newError("InternalError", "failed to write object: "+err.Error())
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, newError("InternalError", "failed to close temp file: "+err.Error())
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return ObjectInfo{}, newError("InternalError", "failed to finalize object: "+err.Error())
	}

	sum := md5.Sum(body)
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(body)),
		LastModified: time.Now().UTC(),
		ETag:         hex.EncodeToString(sum[:]),
	}, nil
}

func (fs *FilesystemBackend) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	fullPath := fs.objectPath(bucket, key)
	f, err := os.Open(fullPath)
	if os.IsNotExist(err) {
		return Object{}, ErrNoSuchKey
	} else if err != nil {
		return Object{}, newError("InternalError", "failed to open object: "+err.Error())
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		return Object{}, newError("InternalError", "failed to read object: "+err.Error())
	}
	info, err := f.Stat()
	if err != nil {
		return Object{}, newError("InternalError", "failed to stat object: "+err.Error())
	}

	sum := md5.Sum(body)
	return Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
			ETag:         hex.EncodeToString(sum[:]),
		},
		Body: body,
	}, nil
}

func (fs *FilesystemBackend) DeleteObject(ctx context.Context, bucket, key string) error {
	fullPath := fs.objectPath(bucket, key)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNoSuchKey
		}
		return newError("InternalError", "failed to delete object: "+err.Error())
	}
	return nil
}

func fileETag(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
