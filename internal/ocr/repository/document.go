package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/pkg/database"
	"github.com/ocrflow/ocrflow-backend/pkg/errors"
)

// DocumentRepository handles persisted OCR document state, keyed by the
// external file ID. One row per document; re-runs upsert into the same row.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetByFileID gets a document record by its file ID
func (r *DocumentRepository) GetByFileID(ctx context.Context, fileID string) (*domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	query := `SELECT * FROM ocr_documents WHERE file_id = $1`
	if err := r.db.GetContext(ctx, &rec, query, fileID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("document")
		}
		return nil, err
	}

	if len(rec.MetricsJSON) > 0 {
		if err := json.Unmarshal(rec.MetricsJSON, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode document metrics: %w", err)
		}
	}
	return &rec, nil
}

// Upsert inserts or updates the record for a file. Text columns and metrics
// only overwrite on non-empty values so a degraded re-run cannot erase a
// previous good extraction.
func (r *DocumentRepository) Upsert(ctx context.Context, rec *domain.DocumentRecord) error {
	metricsJSON, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode document metrics: %w", err)
	}
	rec.MetricsJSON = metricsJSON

	query := `
		INSERT INTO ocr_documents (
			file_id, directory_id, pdf_text, ocr_text, pdf_image_path, ocr_image_path, thumbnail_path, metrics, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (file_id) DO UPDATE SET
			directory_id   = COALESCE(NULLIF(EXCLUDED.directory_id, ''), ocr_documents.directory_id),
			pdf_text       = COALESCE(NULLIF(EXCLUDED.pdf_text, ''), ocr_documents.pdf_text),
			ocr_text       = COALESCE(NULLIF(EXCLUDED.ocr_text, ''), ocr_documents.ocr_text),
			pdf_image_path = COALESCE(NULLIF(EXCLUDED.pdf_image_path, ''), ocr_documents.pdf_image_path),
			ocr_image_path = COALESCE(NULLIF(EXCLUDED.ocr_image_path, ''), ocr_documents.ocr_image_path),
			thumbnail_path = COALESCE(NULLIF(EXCLUDED.thumbnail_path, ''), ocr_documents.thumbnail_path),
			metrics        = ocr_documents.metrics || EXCLUDED.metrics,
			status         = EXCLUDED.status,
			updated_at     = NOW()
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		rec.FileID, rec.DirectoryID, rec.PDFText, rec.OCRText,
		rec.PDFImagePath, rec.OCRImagePath, rec.ThumbnailPath, rec.MetricsJSON, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetStatus returns just the stored status for a file, or empty when the
// document has never been processed. Used by the dedup check before a run.
func (r *DocumentRepository) GetStatus(ctx context.Context, fileID string) (domain.DocumentStatus, error) {
	var status string
	query := `SELECT status FROM ocr_documents WHERE file_id = $1`
	if err := r.db.GetContext(ctx, &status, query, fileID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return domain.DocumentStatus(status), nil
}

// ListByDirectory lists document records for a directory
func (r *DocumentRepository) ListByDirectory(ctx context.Context, directoryID string, limit int) ([]*domain.DocumentRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT * FROM ocr_documents
		WHERE directory_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	var recs []*domain.DocumentRecord
	if err := r.db.SelectContext(ctx, &recs, query, directoryID, limit); err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if len(rec.MetricsJSON) > 0 {
			if err := json.Unmarshal(rec.MetricsJSON, &rec.Metrics); err != nil {
				return nil, fmt.Errorf("failed to decode document metrics: %w", err)
			}
		}
	}
	return recs, nil
}
