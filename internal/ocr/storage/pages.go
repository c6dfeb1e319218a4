package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// PageStore writes rendered page images to disk so the persisted document
// record can reference them. One subdirectory per file, pages named by their
// 1-based page number so the listing order matches the render order.
type PageStore struct {
	dir string
	log *logger.Logger
}

// NewPageStore creates a page image store from configuration
func NewPageStore(cfg config.StorageConfig, log *logger.Logger) *PageStore {
	return &PageStore{
		dir: cfg.PageImageDir,
		log: log.WithComponent("pagestore"),
	}
}

// WritePage writes one page PNG and returns the written path
func (s *PageStore) WritePage(fileID string, pageNumber int, png []byte) (string, error) {
	if s.dir == "" {
		return "", fmt.Errorf("no page image directory configured")
	}

	dir := filepath.Join(s.dir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create page image directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("page-%04d.png", pageNumber))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write page image: %w", err)
	}

	s.log.Debug().Str("file_id", fileID).Str("path", path).Msg("page image written")
	return path, nil
}
