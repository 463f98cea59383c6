package minio

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mediakeep/sweeper/internal/storage"
)

// Client adapts minio-go to the ObjectStorageClient interface for one bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Client{mc: mc, bucket: bucket}, nil
}

func (c *Client) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	objects := make([]storage.ObjectInfo, 0)
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		objects = append(objects, storage.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (c *Client) ListMultipartUploads(ctx context.Context, prefix string) ([]storage.MultipartUploadInfo, error) {
	uploads := make([]storage.MultipartUploadInfo, 0)
	for upload := range c.mc.ListIncompleteUploads(ctx, c.bucket, prefix, true) {
		if upload.Err != nil {
			return nil, fmt.Errorf("list multipart uploads: %w", upload.Err)
		}
		uploads = append(uploads, storage.MultipartUploadInfo{
			Key:       upload.Key,
			UploadID:  upload.UploadID,
			Initiated: upload.Initiated,
		})
	}
	return uploads, nil
}

func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := c.mc.RemoveIncompleteUpload(ctx, c.bucket, key); err != nil {
		return fmt.Errorf("abort multipart upload %s: %w", key, err)
	}
	return nil
}
