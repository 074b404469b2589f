// Package storage lists and reads scanned documents and uploads exports.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/dvloznov/obr-ledger/internal/config"
	"github.com/dvloznov/obr-ledger/internal/domain"
)

// Source enumerates and opens scanned documents.
// A List failure halts a batch; an Open failure only affects that document.
type Source interface {
	List(ctx context.Context) ([]domain.Document, error)
	Open(ctx context.Context, doc domain.Document) ([]byte, error)
}

// Uploader stores an export and returns its URI.
type Uploader interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

// DefaultExtensions are the document types accepted when none are configured.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".pdf"}

// NewSource builds the source selected by cfg.Source.Kind.
func NewSource(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Source.Kind {
	case config.SourceFolder, "":
		return NewFolderSource(cfg.Source.Folder, cfg.Source.Extensions...), nil
	case config.SourceGCS:
		src, err := NewGCSSource(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix, cfg.GCS.CredentialsFile, cfg.Source.Extensions...)
		if err != nil {
			return nil, fmt.Errorf("NewSource: %w", err)
		}
		return src, nil
	case config.SourceMinio:
		src, err := NewMinioSource(cfg.Minio, cfg.Source.Extensions...)
		if err != nil {
			return nil, fmt.Errorf("NewSource: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("NewSource: unknown source kind %q", cfg.Source.Kind)
	}
}

// NewUploader builds an uploader for target, which is "gcs" or "minio".
func NewUploader(ctx context.Context, cfg *config.Config, target string) (Uploader, error) {
	switch target {
	case config.SourceGCS:
		if cfg.GCS.Bucket == "" {
			return nil, fmt.Errorf("NewUploader: gcs.bucket is not set")
		}
		client, err := NewGCSClient(ctx, cfg.GCS.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("NewUploader: %w", err)
		}
		return NewGCSUploader(client, cfg.GCS.Bucket, cfg.GCS.Prefix), nil
	case config.SourceMinio:
		u, err := NewMinioUploader(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("NewUploader: %w", err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("NewUploader: unknown upload target %q", target)
	}
}

// extensionFilter matches file names by extension, case-insensitively.
type extensionFilter map[string]bool

func newExtensionFilter(exts []string) extensionFilter {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	f := make(extensionFilter, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f[ext] = true
	}
	return f
}

func (f extensionFilter) match(name string) bool {
	return f[strings.ToLower(path.Ext(name))]
}

func sortDocuments(docs []domain.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
}

// objectKey joins a prefix and a name with exactly one slash.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
