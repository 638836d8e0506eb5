package s3compat

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/maxiofs/ps3/internal/storage"
	"github.com/sirupsen/logrus"
)

// Handler adapts storage.Backend to the S3 REST surface.
type Handler struct {
	storage storage.Backend
}

// NewHandler wraps a backend (in practice *storage.Facade).
func NewHandler(backend storage.Backend) *Handler {
	return &Handler{storage: backend}
}

// RegisterRoutes builds the route table against router, mirroring the
// bucket-subrouter/object-subrouter split of a gorilla/mux S3 adapter:
// query-gated sub-resources are registered before the generic bucket/object
// CRUD routes so they take precedence.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.ListBuckets).Methods(http.MethodGet, http.MethodHead)

	bucketRouter := router.PathPrefix("/{bucket}").Subrouter()
	for _, suffix := range []string{"", "/"} {
		bucketRouter.HandleFunc(suffix, h.DeleteObjects).Methods(http.MethodPost).Queries("delete", "")
		bucketRouter.HandleFunc(suffix, h.ListObjects).Methods(http.MethodGet, http.MethodHead)
		bucketRouter.HandleFunc(suffix, h.CreateBucket).Methods(http.MethodPut)
		bucketRouter.HandleFunc(suffix, h.DeleteBucket).Methods(http.MethodDelete)
	}

	objectRouter := bucketRouter.PathPrefix("/{object:.+}").Subrouter()
	objectRouter.HandleFunc("", h.PutObject).Methods(http.MethodPut)
	objectRouter.HandleFunc("", h.GetObject).Methods(http.MethodGet, http.MethodHead)
	objectRouter.HandleFunc("", h.DeleteObject).Methods(http.MethodDelete)
}

func getBucketName(r *http.Request) string { return mux.Vars(r)["bucket"] }
func getObjectKey(r *http.Request) string  { return mux.Vars(r)["object"] }

func (h *Handler) writeXMLResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("s3compat: failed to encode xml response")
	}
}

// writeError maps a storage error code (or a protocol-level code the
// handler constructs directly) to the matching HTTP status and writes the
// uniform S3 XML error envelope.
func (h *Handler) writeError(w http.ResponseWriter, code, message, resource string) {
	statusCode := http.StatusInternalServerError
	switch code {
	case "InvalidArgument", "InvalidBucketName", "MalformedXML":
		statusCode = http.StatusBadRequest
	case "NoSuchBucket", "NoSuchKey":
		statusCode = http.StatusNotFound
	case "BucketAlreadyExists", "BucketNotEmpty":
		statusCode = http.StatusConflict
	case "PreconditionFailed":
		statusCode = http.StatusPreconditionFailed
	case "InternalError":
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("X-Amz-Request-Id", generateRequestID())
	w.WriteHeader(statusCode)
	w.Write([]byte(xml.Header))

	resp := errorResponse{Code: code, Message: message, RequestId: generateRequestID()}
	switch code {
	case "NoSuchKey":
		resp.Key = resource
	case "NoSuchBucket", "BucketAlreadyExists", "BucketNotEmpty":
		resp.BucketName = resource
	default:
		resp.Resource = resource
	}
	xml.NewEncoder(w).Encode(resp)
}

// writeStorageError maps a *storage.Error to the uniform XML error
// envelope. Internal failures and anything unrecognized are written as
// InternalError with a generic message, never the backend's own error text.
func (h *Handler) writeStorageError(w http.ResponseWriter, err error, resource string) {
	if serr, ok := err.(*storage.Error); ok && serr.Code != "InternalError" {
		h.writeError(w, serr.Code, serr.Message, resource)
		return
	}
	h.writeError(w, "InternalError", "internal server error", resource)
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ListBuckets handles GET/HEAD /.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListBuckets(r.Context())
	if err != nil {
		h.writeStorageError(w, err, "")
		return
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	result := listAllMyBucketsResult{
		Owner: owner{ID: "ps3", DisplayName: "ps3"},
	}
	for _, b := range list {
		result.Buckets.Bucket = append(result.Buckets.Bucket, bucketInfo{
			Name:         b.Name,
			CreationDate: formatTime(b.CreatedAt),
		})
	}
	h.writeXMLResponse(w, http.StatusOK, result)
}

// CreateBucket handles PUT /{bucket}.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	name := getBucketName(r)
	if _, err := h.storage.CreateBucket(r.Context(), name); err != nil {
		h.writeStorageError(w, err, name)
		return
	}
	w.Header().Set("Location", "/"+name)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket}.
func (h *Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	name := getBucketName(r)
	if err := h.storage.DeleteBucket(r.Context(), name); err != nil {
		h.writeStorageError(w, err, name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
