package s3compat

import (
	"encoding/xml"
	"io"
	"net/http"
)

type deleteObjectsRequest struct {
	XMLName xml.Name       `xml:"Delete"`
	Objects []objectToDelete `xml:"Object"`
}

type objectToDelete struct {
	Key string `xml:"Key"`
}

type deleteObjectsResult struct {
	XMLName xml.Name        `xml:"DeleteResult"`
	Deleted []deletedObject `xml:"Deleted"`
}

type deletedObject struct {
	Key string `xml:"Key"`
}

// DeleteObjects handles POST /{bucket}?delete, the S3 batch-delete
// operation: an XML body listing keys, each deleted individually and
// reported back as Deleted (individual failures, missing keys included, are
// ignored, as a single-object DeleteObject swallows a missing key).
func (h *Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bucket := getBucketName(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, "InvalidArgument", "failed to read request body", bucket)
		return
	}

	var req deleteObjectsRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		h.writeError(w, "MalformedXML", "the xml you provided was not well-formed", bucket)
		return
	}

	result := deleteObjectsResult{}
	for _, obj := range req.Objects {
		h.storage.DeleteObject(r.Context(), bucket, obj.Key)
		result.Deleted = append(result.Deleted, deletedObject{Key: obj.Key})
	}

	h.writeXMLResponse(w, http.StatusOK, result)
}
