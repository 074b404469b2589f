package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/obr-ledger/internal/domain"
)

// FolderSource reads documents from a local directory. Subdirectories are not scanned.
type FolderSource struct {
	dir    string
	filter extensionFilter
}

// NewFolderSource creates a source over dir accepting exts (DefaultExtensions when empty).
func NewFolderSource(dir string, exts ...string) *FolderSource {
	return &FolderSource{dir: dir, filter: newExtensionFilter(exts)}
}

// List returns matching files sorted by name.
func (s *FolderSource) List(ctx context.Context) ([]domain.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("FolderSource.List: read dir %q: %w", s.dir, err)
	}

	var docs []domain.Document
	for _, entry := range entries {
		if entry.IsDir() || !s.filter.match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("FolderSource.List: stat %q: %w", entry.Name(), err)
		}
		docs = append(docs, domain.Document{
			Name: entry.Name(),
			URI:  filepath.Join(s.dir, entry.Name()),
			Size: info.Size(),
		})
	}
	sortDocuments(docs)
	return docs, nil
}

// Open reads the whole file.
func (s *FolderSource) Open(ctx context.Context, doc domain.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := doc.URI
	if p == "" {
		p = filepath.Join(s.dir, doc.Name)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("FolderSource.Open: %w", err)
	}
	return data, nil
}
