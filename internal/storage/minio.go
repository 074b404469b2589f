package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dvloznov/obr-ledger/internal/config"
	"github.com/dvloznov/obr-ledger/internal/domain"
)

// MinioSource lists and reads documents from an S3-compatible bucket.
type MinioSource struct {
	client *minio.Client
	bucket string
	prefix string
	filter extensionFilter
}

// NewMinioClient creates a client with static credentials.
func NewMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("NewMinioClient: %w", err)
	}
	return client, nil
}

// NewMinioSource creates a source from configuration.
func NewMinioSource(cfg config.MinioConfig, exts ...string) (*MinioSource, error) {
	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioSource{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, filter: newExtensionFilter(exts)}, nil
}

// List returns matching objects under the prefix, sorted by name.
func (s *MinioSource) List(ctx context.Context) ([]domain.Document, error) {
	opts := minio.ListObjectsOptions{Prefix: strings.TrimLeft(s.prefix, "/")}

	var docs []domain.Document
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("MinioSource.List: listing %s/%s: %w", s.bucket, s.prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") || !s.filter.match(obj.Key) {
			continue
		}
		docs = append(docs, domain.Document{
			Name: path.Base(obj.Key),
			URI:  obj.Key,
			Size: obj.Size,
		})
	}
	sortDocuments(docs)
	return docs, nil
}

// Open downloads the object whose key is doc.URI.
func (s *MinioSource) Open(ctx context.Context, doc domain.Document) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, doc.URI, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("MinioSource.Open: get %s: %w", doc.URI, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("MinioSource.Open: read %s: %w", doc.URI, err)
	}
	return data, nil
}

// MinioUploader writes exports into a bucket, creating it on first use.
type MinioUploader struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioUploader creates an uploader from configuration.
func NewMinioUploader(cfg config.MinioConfig) (*MinioUploader, error) {
	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioUploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload implements Uploader.
func (u *MinioUploader) Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("MinioUploader.Upload: %w", err)
	}

	key := objectKey(u.prefix, objectName)
	_, err := u.client.PutObject(ctx, u.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("MinioUploader.Upload: put %s: %w", key, err)
	}
	return "s3://" + u.bucket + "/" + key, nil
}

func (u *MinioUploader) ensureBucket(ctx context.Context) error {
	found, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if found {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", u.bucket, err)
	}
	return nil
}
