package storage

import (
	"context"
	"time"
)

// ObjectInfo is the subset of object metadata the cleanup handlers need.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// MultipartUploadInfo describes an in-progress multipart upload.
type MultipartUploadInfo struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

// ObjectStorageClient is the narrow boundary to the object store. The file
// handler depends on this interface only; the MinIO adapter implements it.
type ObjectStorageClient interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
	ListMultipartUploads(ctx context.Context, prefix string) ([]MultipartUploadInfo, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}
