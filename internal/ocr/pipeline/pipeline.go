package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/convert"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/extract"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/source"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Converter turns raw PDF bytes into rendered pages
type Converter interface {
	Convert(ctx context.Context, pdf []byte, opts convert.Options) (*convert.Result, error)
}

// PageExtractor produces the final text result for one rendered page
type PageExtractor interface {
	ExtractPage(ctx context.Context, page convert.Page, settings domain.Settings) domain.PageResult
}

// DocumentStore persists per-document outcomes and answers dedup lookups
type DocumentStore interface {
	GetStatus(ctx context.Context, fileID string) (domain.DocumentStatus, error)
	Upsert(ctx context.Context, rec *domain.DocumentRecord) error
}

// PageWriter persists rendered page images so the document record can
// reference them
type PageWriter interface {
	WritePage(fileID string, pageNumber int, png []byte) (string, error)
}

// Thumbnailer writes a preview image for a processed document
type Thumbnailer interface {
	Generate(fileID string, pagePNG []byte) (string, error)
}

// Pipeline processes one document end to end: dedup check, fetch, convert,
// extract, persist. Failures are captured in the returned FileError so the
// batch loop can keep going; ProcessFile itself never fails the batch.
type Pipeline struct {
	fetcher   source.Fetcher
	converter Converter
	extractor PageExtractor
	store     DocumentStore
	pages     PageWriter
	thumbs    Thumbnailer
	log       *logger.Logger
}

// New creates a document pipeline. store, pages and thumbs may be nil,
// disabling persistence, page image storage and previews respectively.
func New(fetcher source.Fetcher, converter Converter, extractor PageExtractor, store DocumentStore, pages PageWriter, thumbs Thumbnailer, log *logger.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		converter: converter,
		extractor: extractor,
		store:     store,
		pages:     pages,
		thumbs:    thumbs,
		log:       log.WithComponent("pipeline"),
	}
}

// ProcessFile runs the full pipeline for one file. The returned FileError is
// nil on success; on failure it describes what went wrong and the result
// carries an error status.
func (p *Pipeline) ProcessFile(ctx context.Context, file domain.FileDescriptor, settings domain.Settings) (domain.DocumentResult, *domain.FileError) {
	start := time.Now()
	log := p.log.WithFileID(file.ID)

	result := domain.DocumentResult{
		FileID:   file.ID,
		FileName: file.Name,
		Engine:   settings.Engine,
	}

	// Re-running a batch must not redo documents that already succeeded
	if p.store != nil {
		stored, err := p.store.GetStatus(ctx, file.ID)
		if err != nil {
			log.Warn().Err(err).Msg("dedup lookup failed, processing anyway")
		} else if stored.TerminalSuccess() {
			log.Info().Str("status", string(stored)).Msg("document already processed, skipping")
			result.Status = domain.DocSkipped
			result.Skipped = true
			return result, nil
		}
	}

	pdf, err := p.fetcher.Fetch(ctx, file.Source)
	if err != nil {
		return p.fail(result, file, start, fmt.Errorf("fetch failed: %w", err))
	}

	converted, err := p.converter.Convert(ctx, pdf, convert.Options{
		DPI:       settings.DPI,
		ColorMode: settings.ColorMode,
		Rotation:  settings.Rotation,
		PageRange: settings.PageRange,
	})
	if err != nil {
		return p.fail(result, file, start, fmt.Errorf("conversion failed: %w", err))
	}
	if len(converted.Pages) == 0 {
		return p.fail(result, file, start, fmt.Errorf("page range selects no pages"))
	}

	var embeddedParts, ocrParts []string
	var firstPNG []byte
	for _, page := range converted.Pages {
		pr := p.extractor.ExtractPage(ctx, page, settings)
		if p.pages != nil && !page.Failed && len(page.PNG) > 0 {
			if path, err := p.pages.WritePage(file.ID, page.PageNumber, page.PNG); err != nil {
				log.Warn().Err(err).Int("page", page.PageNumber).Msg("failed to store page image")
			} else {
				pr.ImagePath = path
			}
		}
		result.Pages = append(result.Pages, pr)
		result.TotalWords += pr.WordCount
		result.TotalCharacters += pr.CharacterCount
		if pr.HasEmbeddedText {
			result.HasEmbeddedText = true
		}

		switch pr.Status {
		case domain.DocTextExtracted:
			embeddedParts = append(embeddedParts, pr.ExtractedText)
		case domain.DocOCRProcessed:
			ocrParts = append(ocrParts, pr.ExtractedText)
		}

		if firstPNG == nil && !page.Failed && len(page.PNG) > 0 {
			firstPNG = page.PNG
		}
	}

	result.PageCount = converted.PageCount
	result.Status = extract.DeriveDocumentStatus(result.Pages)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	thumbPath := ""
	if p.thumbs != nil && firstPNG != nil {
		if path, err := p.thumbs.Generate(file.ID, firstPNG); err != nil {
			log.Warn().Err(err).Msg("thumbnail generation failed")
		} else {
			thumbPath = path
		}
	}

	p.persist(ctx, log, file, settings, &result, embeddedParts, ocrParts, thumbPath)

	if result.Status == domain.DocError {
		return result, &domain.FileError{
			FileID:   file.ID,
			FileName: file.Name,
			Error:    "one or more pages failed",
			Status:   string(domain.DocError),
			At:       time.Now(),
		}
	}

	log.Info().
		Str("status", string(result.Status)).
		Int("pages", len(result.Pages)).
		Int("words", result.TotalWords).
		Msg("document processed")

	return result, nil
}

// fail finalizes a result for a document-level failure
func (p *Pipeline) fail(result domain.DocumentResult, file domain.FileDescriptor, start time.Time, err error) (domain.DocumentResult, *domain.FileError) {
	p.log.WithFileID(file.ID).Error().Err(err).Msg("document processing failed")
	result.Status = domain.DocError
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, &domain.FileError{
		FileID:   file.ID,
		FileName: file.Name,
		Error:    err.Error(),
		Status:   string(domain.DocError),
		At:       time.Now(),
	}
}

// persist upserts the document record. Persistence failures are logged but
// never fail the document.
func (p *Pipeline) persist(ctx context.Context, log *logger.Logger, file domain.FileDescriptor, settings domain.Settings, result *domain.DocumentResult, embeddedParts, ocrParts []string, thumbPath string) {
	if p.store == nil {
		return
	}

	var pagePaths, ocrPagePaths []string
	for _, pr := range result.Pages {
		if pr.ImagePath == "" {
			continue
		}
		pagePaths = append(pagePaths, pr.ImagePath)
		if pr.Status == domain.DocOCRProcessed {
			ocrPagePaths = append(ocrPagePaths, pr.ImagePath)
		}
	}

	rec := &domain.DocumentRecord{
		FileID:        file.ID,
		DirectoryID:   settings.DirectoryID,
		PDFText:       strings.Join(embeddedParts, "\n\n"),
		OCRText:       strings.Join(ocrParts, "\n\n"),
		PDFImagePath:  joinPaths(pagePaths),
		OCRImagePath:  joinPaths(ocrPagePaths),
		ThumbnailPath: thumbPath,
		Status:        string(result.Status),
		Metrics: domain.Metrics{
			PageCount:        result.PageCount,
			TotalWords:       result.TotalWords,
			TotalCharacters:  result.TotalCharacters,
			ProcessingTimeMs: result.ProcessingTimeMs,
			Engine:           settings.Engine,
			HasEmbeddedText:  result.HasEmbeddedText,
		},
	}

	if err := p.store.Upsert(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to persist document record")
	}
}

// joinPaths serializes an ordered path list for a single text column.
// Empty lists serialize to the empty string so the upsert's non-empty merge
// rule leaves an earlier run's paths alone.
func joinPaths(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return ""
	}
	return string(data)
}
