package s3compat

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/maxiofs/ps3/internal/storage"
)

// ListObjects handles GET/HEAD /{bucket}[?prefix=...][?list-type=2]. A HEAD
// request is treated as HeadBucket: it only confirms the bucket exists.
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := getBucketName(r)

	if r.Method == http.MethodHead {
		if _, err := h.storage.ListObjects(r.Context(), bucket, ""); err != nil {
			h.writeStorageError(w, err, bucket)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	prefix := r.URL.Query().Get("prefix")
	objects, err := h.storage.ListObjects(r.Context(), bucket, prefix)
	if err != nil {
		h.writeStorageError(w, err, bucket)
		return
	}

	result := listBucketResult{
		Name:        bucket,
		Prefix:      prefix,
		MaxKeys:     1000,
		IsTruncated: false,
	}
	if r.URL.Query().Get("list-type") == "2" {
		count := len(objects)
		result.KeyCount = &count
	}
	for _, o := range objects {
		result.Contents = append(result.Contents, objectEntry{
			Key:          o.Key,
			LastModified: formatTime(o.LastModified),
			ETag:         `"` + o.ETag + `"`,
			Size:         o.Size,
			StorageClass: "STANDARD",
		})
	}
	h.writeXMLResponse(w, http.StatusOK, result)
}

// GetObject handles GET/HEAD /{bucket}/{object}. Go's net/http does not
// auto-suppress a HEAD response body, so the handler itself writes headers
// only when asked for HEAD.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := getBucketName(r)
	key := getObjectKey(r)

	obj, err := h.storage.GetObject(r.Context(), bucket, key)
	if err != nil {
		h.writeStorageError(w, err, key)
		return
	}

	etag := `"` + obj.ETag + `"`
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if match := r.Header.Get("If-Match"); match != "" && match != etag {
		h.writeError(w, "PreconditionFailed", "the ETag did not match", key)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Body)
}

// PutObject handles PUT /{bucket}/{object}. When the request carries an
// x-amz-copy-source header, it copies an existing object instead of reading
// a payload from the request body.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucket := getBucketName(r)
	key := getObjectKey(r)

	if src := r.Header.Get("x-amz-copy-source"); src != "" {
		h.copyObject(w, r, bucket, key, src)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "InvalidArgument", "failed to read request body", key)
		return
	}

	info, err := h.storage.PutObject(r.Context(), bucket, key, body)
	if err != nil {
		h.writeStorageError(w, err, key)
		return
	}
	w.Header().Set("ETag", `"`+info.ETag+`"`)
	w.WriteHeader(http.StatusOK)
}

// copyObject implements PutObject-as-copy: x-amz-copy-source is
// "/source-bucket/source-key" (or without the leading slash); the source is
// read and rewritten verbatim to the destination.
func (h *Handler) copyObject(w http.ResponseWriter, r *http.Request, dstBucket, dstKey, source string) {
	source = strings.TrimPrefix(source, "/")
	parts := strings.SplitN(source, "/", 2)
	if len(parts) != 2 {
		h.writeError(w, "InvalidArgument", "x-amz-copy-source must be /bucket/key", source)
		return
	}
	srcBucket, srcKey := parts[0], parts[1]

	obj, err := h.storage.GetObject(r.Context(), srcBucket, srcKey)
	if err != nil {
		h.writeStorageError(w, err, srcKey)
		return
	}

	info, err := h.storage.PutObject(r.Context(), dstBucket, dstKey, obj.Body)
	if err != nil {
		h.writeStorageError(w, err, dstKey)
		return
	}

	h.writeXMLResponse(w, http.StatusOK, copyObjectResult{
		LastModified: formatTime(info.LastModified),
		ETag:         `"` + info.ETag + `"`,
	})
}

// DeleteObject handles DELETE /{bucket}/{object}. A missing key is
// swallowed: the operation is idempotent from the client's perspective.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := getBucketName(r)
	key := getObjectKey(r)

	err := h.storage.DeleteObject(r.Context(), bucket, key)
	if err != nil && !errors.Is(err, storage.ErrNoSuchKey) {
		h.writeStorageError(w, err, key)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
