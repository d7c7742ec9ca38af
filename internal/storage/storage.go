package storage

import (
	"context"
)

// BlobStorage is the artifact store used for uploaded sources and conversion
// results. Keys are slash-separated paths such as "uploads/<id>" or
// "results/<job-id>.<format>".
type BlobStorage interface {
	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the object bytes and recorded content type.
	Get(ctx context.Context, key string) ([]byte, string, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadKey builds the object key for an uploaded source file.
func UploadKey(fileID string) string {
	return "uploads/" + fileID
}

// ResultKey builds the object key for a conversion result.
func ResultKey(jobID, targetFormat string) string {
	return "results/" + jobID + "." + targetFormat
}
