package store

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tphakala/lensstory/internal/conf"
)

// ObjectStore is the binary side of the remote backend: image payloads
// keyed by object name. Declared as an interface so the remote store can
// be exercised against a fake in tests.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
}

// minioStore implements ObjectStore on a MinIO/S3 bucket.
type minioStore struct {
	client *minio.Client
	bucket string
}

func newMinioStore(settings *conf.RemoteStoreSettings) (*minioStore, error) {
	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKeyID, settings.SecretAccessKey, ""),
		Secure: settings.UseSSL,
	})
	if err != nil {
		return nil, objectError(err, "connect", "")
	}
	return &minioStore{client: client, bucket: settings.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *minioStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return objectError(err, "bucket-exists", "")
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return objectError(err, "make-bucket", "")
		}
	}
	return nil
}

// Put uploads the payload under the given key.
func (m *minioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return objectError(err, "put", key)
	}
	return nil
}

// Remove deletes the object under the given key.
func (m *minioStore) Remove(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return objectError(err, "remove", key)
	}
	return nil
}
