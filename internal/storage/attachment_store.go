// Package storage holds submission attachments (essay uploads, evaluator
// feedback files) in object storage. Answers reference attachments by key,
// never by URL, so the backing store can move without touching answer rows.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AttachmentStore stores and serves submission attachments.
type AttachmentStore interface {
	// Put stores content and returns the attachment key.
	Put(ctx context.Context, submissionID uint, filename string, reader io.Reader, size int64, contentType string) (string, error)

	// Get opens an attachment for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignedURL returns a time-limited direct download link.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Delete removes an attachment.
	Delete(ctx context.Context, key string) error
}

// MinioConfig holds the connection settings for the MinIO backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioAttachmentStore implements AttachmentStore on MinIO.
type MinioAttachmentStore struct {
	client *minio.Client
	bucket string
}

func NewMinioAttachmentStore(cfg MinioConfig) (*MinioAttachmentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioAttachmentStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioAttachmentStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put keys attachments as submissions/<id>/<uuid>/<filename> so a
// submission's files group together and names cannot collide.
func (s *MinioAttachmentStore) Put(ctx context.Context, submissionID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	key := fmt.Sprintf("submissions/%d/%s/%s", submissionID, uuid.New().String(), path.Base(filename))

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store attachment: %w", err)
	}
	return key, nil
}

func (s *MinioAttachmentStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return obj, nil
}

func (s *MinioAttachmentStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign attachment url: %w", err)
	}
	return url.String(), nil
}

func (s *MinioAttachmentStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
