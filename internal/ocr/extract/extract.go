package extract

import (
	"context"
	"strings"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/convert"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/gpu"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Extractions shorter than this are assumed to be decorative fragments
// (headers, page numbers) rather than reliable full-page text.
const embeddedTextMinWords = 6

const embeddedTextConfidence = 0.95

// Extractor produces final text for rendered pages, preferring embedded
// text and falling back to OCR through the governed engine registry.
type Extractor struct {
	registry *Registry
	governor *gpu.Governor
	cache    *Cache
	log      *logger.Logger
}

// NewExtractor creates a text extraction engine
func NewExtractor(registry *Registry, governor *gpu.Governor, cache *Cache, log *logger.Logger) *Extractor {
	return &Extractor{
		registry: registry,
		governor: governor,
		cache:    cache,
		log:      log.WithComponent("extractor"),
	}
}

// ExtractPage produces the final text for one converted page
func (e *Extractor) ExtractPage(ctx context.Context, page convert.Page, settings domain.Settings) domain.PageResult {
	start := time.Now()

	result := domain.PageResult{
		PageNumber: page.PageNumber,
		Width:      page.Width,
		Height:     page.Height,
	}

	if page.Failed {
		result.Status = domain.DocError
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return result
	}

	// Embedded text wins when it looks like real page content
	embeddedWords := countWords(page.EmbeddedText)
	if embeddedWords >= embeddedTextMinWords {
		result.ExtractedText = page.EmbeddedText
		result.WordCount = embeddedWords
		result.CharacterCount = len(page.EmbeddedText)
		result.Confidence = embeddedTextConfidence
		result.HasEmbeddedText = true
		result.Status = domain.DocTextExtracted
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return result
	}

	engine, err := e.registry.Resolve(settings.Engine)
	if err != nil {
		// No engine configured: the page stays converted-only
		e.log.Warn().Err(err).Int("page", page.PageNumber).Msg("no OCR engine available")
		result.ExtractedText = page.EmbeddedText
		result.WordCount = embeddedWords
		result.CharacterCount = len(page.EmbeddedText)
		result.Confidence = 0.5
		result.HasEmbeddedText = embeddedWords > 0
		result.Status = domain.DocConverted
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return result
	}

	text, ocrErr := e.recognize(ctx, engine, page.PNG, settings)
	if ocrErr != nil {
		if fallback := e.registry.Fallback(engine.Name()); fallback != nil {
			e.log.Warn().Err(ocrErr).
				Str("engine", engine.Name()).
				Str("fallback", fallback.Name()).
				Int("page", page.PageNumber).
				Msg("primary OCR engine failed, trying fallback")
			text, ocrErr = e.recognize(ctx, fallback, page.PNG, settings)
		}
	}
	if ocrErr != nil {
		e.log.Error().Err(ocrErr).Int("page", page.PageNumber).Msg("OCR failed")
		result.Status = domain.DocError
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		return result
	}

	words := countWords(text)
	result.ExtractedText = text
	result.WordCount = words
	result.CharacterCount = len(text)
	result.Confidence = ocrConfidence(words)
	result.Status = domain.DocOCRProcessed
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result
}

// recognize runs one OCR call with GPU arbitration and result caching.
// A granted device is always released, including on the error path.
func (e *Extractor) recognize(ctx context.Context, engine Engine, image []byte, settings domain.Settings) (string, error) {
	key := ""
	if e.cache != nil {
		key = e.cache.Key(engine.Name(), settings.Language, image)
		if text, ok := e.cache.Get(key); ok {
			return text, nil
		}
	}

	device := -1
	if settings.UseGPU && e.governor != nil {
		if granted, id := e.governor.Select(-1); granted {
			device = id
			defer e.governor.Release(id)
		}
		// Not granted: proceed on CPU rather than wait
	}

	text, err := engine.Recognize(ctx, image, settings.Language, device)
	if err != nil {
		return "", err
	}

	if e.cache != nil {
		e.cache.Put(key, text)
	}
	return text, nil
}

// DeriveDocumentStatus collapses per-page outcomes into the persisted
// document status. Precedence: any failed page makes the document an error;
// embedded-only documents are text_extracted; any OCR page makes it
// ocr_processed; otherwise completed.
func DeriveDocumentStatus(pages []domain.PageResult) domain.DocumentStatus {
	if len(pages) == 0 {
		return domain.DocError
	}

	anyFailed, anyEmbedded, anyOCR := false, false, false
	for _, p := range pages {
		switch p.Status {
		case domain.DocError:
			anyFailed = true
		case domain.DocTextExtracted:
			anyEmbedded = true
		case domain.DocOCRProcessed:
			anyOCR = true
		}
	}

	switch {
	case anyFailed:
		return domain.DocError
	case anyEmbedded && !anyOCR:
		return domain.DocTextExtracted
	case anyOCR:
		return domain.DocOCRProcessed
	default:
		return domain.DocCompleted
	}
}

// ocrConfidence is a crude scaling in [0.75, 0.95] favoring longer outputs.
// It is a UX signal, not a calibrated probability.
func ocrConfidence(wordCount int) float64 {
	if wordCount > 100 {
		wordCount = 100
	}
	return 0.75 + float64(wordCount)/100.0*0.2
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
