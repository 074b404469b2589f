package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/obr-ledger/internal/domain"
)

// GCSSource lists and reads documents under a bucket prefix.
type GCSSource struct {
	client *gcs.Client
	bucket string
	prefix string
	filter extensionFilter
}

// NewGCSClient uses Application Default Credentials unless credentialsFile is set.
func NewGCSClient(ctx context.Context, credentialsFile string) (*gcs.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSClient: create storage client: %w", err)
	}
	return client, nil
}

// NewGCSSource creates a source with its own client.
func NewGCSSource(ctx context.Context, bucket, prefix, credentialsFile string, exts ...string) (*GCSSource, error) {
	client, err := NewGCSClient(ctx, credentialsFile)
	if err != nil {
		return nil, err
	}
	return NewGCSSourceWithClient(client, bucket, prefix, exts...), nil
}

// NewGCSSourceWithClient creates a source over an existing client.
func NewGCSSourceWithClient(client *gcs.Client, bucket, prefix string, exts ...string) *GCSSource {
	return &GCSSource{client: client, bucket: bucket, prefix: prefix, filter: newExtensionFilter(exts)}
}

// List returns matching objects directly under the prefix, sorted by name.
func (s *GCSSource) List(ctx context.Context) ([]domain.Document, error) {
	query := &gcs.Query{Prefix: strings.TrimLeft(s.prefix, "/")}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)

	var docs []domain.Document
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GCSSource.List: listing gs://%s/%s: %w", s.bucket, s.prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") || !s.filter.match(attrs.Name) {
			continue
		}
		docs = append(docs, domain.Document{
			Name: path.Base(attrs.Name),
			URI:  "gs://" + s.bucket + "/" + attrs.Name,
			Size: attrs.Size,
		})
	}
	sortDocuments(docs)
	return docs, nil
}

// Open downloads the object named by doc.URI.
func (s *GCSSource) Open(ctx context.Context, doc domain.Document) ([]byte, error) {
	bucket, object, err := ParseGCSURI(doc.URI)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Open: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Open: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Open: reading bytes: %w", err)
	}
	return data, nil
}

// Close releases the client.
func (s *GCSSource) Close() error {
	return s.client.Close()
}

// GCSUploader writes exports under a bucket prefix.
type GCSUploader struct {
	client  *gcs.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewGCSUploader creates an uploader over an existing client.
func NewGCSUploader(client *gcs.Client, bucket, prefix string) *GCSUploader {
	return &GCSUploader{client: client, bucket: bucket, prefix: prefix, timeout: 2 * time.Minute}
}

// Upload implements Uploader.
func (u *GCSUploader) Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	key := objectKey(u.prefix, objectName)
	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("GCSUploader.Upload: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("GCSUploader.Upload: finalize upload: %w", err)
	}
	return "gs://" + u.bucket + "/" + key, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
