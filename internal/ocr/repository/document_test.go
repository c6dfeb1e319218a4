package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/repository"
	apperrors "github.com/ocrflow/ocrflow-backend/pkg/errors"
	"github.com/ocrflow/ocrflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*repository.DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	return repository.NewDocumentRepository(mockDB.DB), mockDB.Mock
}

func TestDocumentRepository_GetByFileID(t *testing.T) {
	repo, mock := newMockRepo(t)

	metrics := domain.Metrics{PageCount: 3, TotalWords: 420, Engine: "vision"}
	metricsJSON, _ := json.Marshal(metrics)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"file_id", "directory_id", "pdf_text", "ocr_text",
		"pdf_image_path", "ocr_image_path", "thumbnail_path", "metrics", "status", "created_at", "updated_at",
	}).AddRow("f-1", "dir-1", "embedded text", "", "", "", "", metricsJSON, "text_extracted", now, now)

	mock.ExpectQuery(`SELECT \* FROM ocr_documents WHERE file_id = \$1`).
		WithArgs("f-1").
		WillReturnRows(rows)

	rec, err := repo.GetByFileID(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "f-1", rec.FileID)
	assert.Equal(t, "text_extracted", rec.Status)
	assert.Equal(t, 3, rec.Metrics.PageCount)
	assert.Equal(t, "vision", rec.Metrics.Engine)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByFileID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM ocr_documents`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"file_id"}))

	_, err := repo.GetByFileID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestDocumentRepository_Upsert(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO ocr_documents`).
		WithArgs("f-1", "dir-1", "page text", "", `["/pages/f-1/page-0001.png"]`, "", "/thumbs/f-1.png", sqlmock.AnyArg(), "ocr_processed").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	rec := &domain.DocumentRecord{
		FileID:        "f-1",
		DirectoryID:   "dir-1",
		PDFText:       "page text",
		PDFImagePath:  `["/pages/f-1/page-0001.png"]`,
		ThumbnailPath: "/thumbs/f-1.png",
		Status:        "ocr_processed",
		Metrics:       domain.Metrics{PageCount: 1, Engine: "tesseract"},
	}

	err := repo.Upsert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, now, rec.CreatedAt)
	assert.NotEmpty(t, rec.MetricsJSON)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT status FROM ocr_documents`).
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	status, err := repo.GetStatus(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocCompleted, status)
	assert.True(t, status.TerminalSuccess())
}

func TestDocumentRepository_GetStatus_NeverProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT status FROM ocr_documents`).
		WithArgs("new-file").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	status, err := repo.GetStatus(context.Background(), "new-file")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatus(""), status)
	assert.False(t, status.TerminalSuccess())
}
