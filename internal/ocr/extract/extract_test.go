package extract_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/convert"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/extract"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/gpu"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Recognize(ctx context.Context, image []byte, lang string, device int) (string, error) {
	s.calls++
	return s.text, s.err
}

func newExtractor(t *testing.T, engines ...extract.Engine) (*extract.Extractor, *extract.Registry) {
	t.Helper()
	registry := extract.NewRegistry(engines...)
	governor := gpu.New(nil, logger.Nop())
	return extract.NewExtractor(registry, governor, nil, logger.Nop()), registry
}

func TestExtractPage_EmbeddedTextPreferred(t *testing.T) {
	engine := &stubEngine{name: "stub", text: "should not be used"}
	e, _ := newExtractor(t, engine)

	page := convert.Page{
		PageNumber:   1,
		PNG:          []byte("png"),
		EmbeddedText: "this page has plenty of real embedded words in it",
	}

	result := e.ExtractPage(context.Background(), page, domain.Settings{})

	assert.Equal(t, domain.DocTextExtracted, result.Status)
	assert.True(t, result.HasEmbeddedText)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, page.EmbeddedText, result.ExtractedText)
	assert.Equal(t, 0, engine.calls, "OCR must not run when embedded text is accepted")
}

func TestExtractPage_ShortEmbeddedTextFallsBackToOCR(t *testing.T) {
	engine := &stubEngine{name: "stub", text: "recognized by ocr engine output text"}
	e, _ := newExtractor(t, engine)

	// 5 words: at the noise-filter threshold, still treated as decorative
	page := convert.Page{PageNumber: 1, PNG: []byte("png"), EmbeddedText: "one two three four five"}

	result := e.ExtractPage(context.Background(), page, domain.Settings{})

	assert.Equal(t, domain.DocOCRProcessed, result.Status)
	assert.False(t, result.HasEmbeddedText)
	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, engine.text, result.ExtractedText)
}

func TestExtractPage_OCRConfidenceScaling(t *testing.T) {
	tests := []struct {
		words int
		want  float64
	}{
		{0, 0.75},
		{50, 0.85},
		{100, 0.95},
		{500, 0.95},
	}

	for _, tt := range tests {
		text := ""
		for i := 0; i < tt.words; i++ {
			text += "w "
		}
		engine := &stubEngine{name: "stub", text: text}
		e, _ := newExtractor(t, engine)

		result := e.ExtractPage(context.Background(), convert.Page{PageNumber: 1, PNG: []byte("p")}, domain.Settings{})
		assert.InDelta(t, tt.want, result.Confidence, 1e-9, "words=%d", tt.words)
	}
}

func TestExtractPage_FallbackEngine(t *testing.T) {
	primary := &stubEngine{name: "vision", err: errors.New("quota exceeded")}
	fallback := &stubEngine{name: "tesseract", text: "fallback text"}

	registry := extract.NewRegistry(primary, fallback)
	registry.SetFallback("tesseract")
	e := extract.NewExtractor(registry, gpu.New(nil, logger.Nop()), nil, logger.Nop())

	result := e.ExtractPage(context.Background(), convert.Page{PageNumber: 1, PNG: []byte("p")}, domain.Settings{Engine: "vision"})

	assert.Equal(t, domain.DocOCRProcessed, result.Status)
	assert.Equal(t, "fallback text", result.ExtractedText)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestExtractPage_BothEnginesFail(t *testing.T) {
	primary := &stubEngine{name: "vision", err: errors.New("down")}
	fallback := &stubEngine{name: "tesseract", err: errors.New("also down")}

	registry := extract.NewRegistry(primary, fallback)
	registry.SetFallback("tesseract")
	e := extract.NewExtractor(registry, gpu.New(nil, logger.Nop()), nil, logger.Nop())

	result := e.ExtractPage(context.Background(), convert.Page{PageNumber: 1, PNG: []byte("p")}, domain.Settings{})

	assert.Equal(t, domain.DocError, result.Status)
}

func TestExtractPage_FailedRenderPage(t *testing.T) {
	engine := &stubEngine{name: "stub"}
	e, _ := newExtractor(t, engine)

	result := e.ExtractPage(context.Background(), convert.Page{PageNumber: 2, Failed: true}, domain.Settings{})

	assert.Equal(t, domain.DocError, result.Status)
	assert.Equal(t, 0, engine.calls)
}

func TestExtractPage_GPUUnavailableStillProducesResult(t *testing.T) {
	engine := &stubEngine{name: "stub", text: "cpu path text"}
	// Governor with no devices: Select never grants
	e := extract.NewExtractor(extract.NewRegistry(engine), gpu.New(nil, logger.Nop()), nil, logger.Nop())

	result := e.ExtractPage(context.Background(), convert.Page{PageNumber: 1, PNG: []byte("p")}, domain.Settings{UseGPU: true})

	assert.Equal(t, domain.DocOCRProcessed, result.Status)
	assert.Equal(t, "cpu path text", result.ExtractedText)
}

func TestExtractPage_GPUReleasedAfterEngineError(t *testing.T) {
	engine := &stubEngine{name: "stub", err: errors.New("boom")}
	governor := gpu.New(gpu.StaticProbe{Count: 1}, logger.Nop())
	e := extract.NewExtractor(extract.NewRegistry(engine), governor, nil, logger.Nop())

	e.ExtractPage(context.Background(), convert.Page{PageNumber: 1, PNG: []byte("p")}, domain.Settings{UseGPU: true})

	// Device must be free again despite the engine error
	granted, id := governor.Select(-1)
	require.True(t, granted, "device was not released on the error path")
	governor.Release(id)
}

func TestCache_MemoizesRecognition(t *testing.T) {
	engine := &stubEngine{name: "stub", text: "cached text"}
	cache := extract.NewCache(8, time.Minute)
	e := extract.NewExtractor(extract.NewRegistry(engine), gpu.New(nil, logger.Nop()), cache, logger.Nop())

	page := convert.Page{PageNumber: 1, PNG: []byte("same image")}
	first := e.ExtractPage(context.Background(), page, domain.Settings{})
	second := e.ExtractPage(context.Background(), page, domain.Settings{})

	assert.Equal(t, first.ExtractedText, second.ExtractedText)
	assert.Equal(t, 1, engine.calls, "second call should hit the cache")
}

func TestDeriveDocumentStatus(t *testing.T) {
	page := func(s domain.DocumentStatus) domain.PageResult {
		return domain.PageResult{Status: s}
	}

	tests := []struct {
		name  string
		pages []domain.PageResult
		want  domain.DocumentStatus
	}{
		{"all embedded", []domain.PageResult{page(domain.DocTextExtracted), page(domain.DocTextExtracted)}, domain.DocTextExtracted},
		{"all ocr", []domain.PageResult{page(domain.DocOCRProcessed), page(domain.DocOCRProcessed)}, domain.DocOCRProcessed},
		{"mixed embedded and ocr", []domain.PageResult{page(domain.DocTextExtracted), page(domain.DocOCRProcessed)}, domain.DocOCRProcessed},
		{"one failed dominates", []domain.PageResult{page(domain.DocTextExtracted), page(domain.DocError)}, domain.DocError},
		{"converted only", []domain.PageResult{page(domain.DocConverted)}, domain.DocCompleted},
		{"no pages", nil, domain.DocError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extract.DeriveDocumentStatus(tt.pages))
		})
	}
}
