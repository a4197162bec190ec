package mediastore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings for a MinioBackend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBackend stores blobs as objects named {partition}/{id} in one bucket.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend connects to MinIO and ensures the bucket exists.
func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

// ObjectName returns the object key of a blob.
func ObjectName(p Partition, id string) string {
	return string(p) + "/" + id
}

// Put implements Backend.
func (m *MinioBackend) Put(ctx context.Context, p Partition, id string, blob Blob) error {
	if err := checkKey(p, id); err != nil {
		return err
	}
	_, err := m.client.PutObject(ctx, m.bucket, ObjectName(p, id), bytes.NewReader(blob.Data), int64(len(blob.Data)),
		minio.PutObjectOptions{ContentType: blob.MIMEType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get implements Backend.
func (m *MinioBackend) Get(ctx context.Context, p Partition, id string) (*Blob, error) {
	if err := checkKey(p, id); err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, ObjectName(p, id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return &Blob{Data: data, MIMEType: info.ContentType}, nil
}

// Delete implements Backend.
func (m *MinioBackend) Delete(ctx context.Context, p Partition, id string) error {
	if err := checkKey(p, id); err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, ObjectName(p, id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Exists implements Backend.
func (m *MinioBackend) Exists(ctx context.Context, p Partition, id string) (bool, error) {
	if err := checkKey(p, id); err != nil {
		return false, err
	}
	_, err := m.client.StatObject(ctx, m.bucket, ObjectName(p, id), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// List implements Backend.
func (m *MinioBackend) List(ctx context.Context, p Partition) ([]string, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown partition %q", p)
	}

	prefix := string(p) + "/"
	var ids []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		ids = append(ids, strings.TrimPrefix(obj.Key, prefix))
	}
	return ids, nil
}

// Close implements Backend. The minio client holds no resources to release.
func (m *MinioBackend) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
