package convert

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Options are the rendering parameters for one document
type Options struct {
	DPI       int
	Scale     float64
	Width     int
	Height    int
	ColorMode string
	Rotation  int
	PageRange string
}

// Page is the conversion outcome for a single page. A failed page carries
// its error message and is skipped downstream without aborting the document.
type Page struct {
	PageNumber   int
	PNG          []byte
	Width        int
	Height       int
	EmbeddedText string
	Failed       bool
	Error        string
}

// Result holds all converted pages of one document
type Result struct {
	PageCount int
	Pages     []Page
}

// PageDim is a page's media box size in PDF points (72 points = 1 inch)
type PageDim struct {
	Width  float64
	Height float64
}

// Prober inspects raw PDF bytes without rasterizing them
type Prober interface {
	PageCount(pdf []byte) (int, error)
	PageDims(pdf []byte) ([]PageDim, error)
}

// Renderer rasterizes a single 1-based page to a PNG image
type Renderer interface {
	RenderPage(ctx context.Context, pdf []byte, page int, zoomX, zoomY float64, opts Options) (Page, error)
}

// TextExtractor pulls text embedded in a page's content stream, if any
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte, page int) (string, error)
}

// Converter turns raw PDF bytes into per-page images plus embedded text
type Converter struct {
	prober    Prober
	renderer  Renderer
	extractor TextExtractor
	log       *logger.Logger
}

// NewConverter creates a document converter
func NewConverter(prober Prober, renderer Renderer, extractor TextExtractor, log *logger.Logger) *Converter {
	return &Converter{
		prober:    prober,
		renderer:  renderer,
		extractor: extractor,
		log:       log.WithComponent("converter"),
	}
}

// Convert renders the selected pages of the document. A page that fails to
// render is recorded with a failure marker; remaining pages still convert.
// Only an unreadable document (or one with zero pages) is an error.
func (c *Converter) Convert(ctx context.Context, pdf []byte, opts Options) (*Result, error) {
	numPages, err := c.prober.PageCount(pdf)
	if err != nil {
		return nil, fmt.Errorf("not a readable PDF: %w", err)
	}
	if numPages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	dims, err := c.prober.PageDims(pdf)
	if err != nil {
		// Dimensions are only needed for explicit width/height sizing;
		// DPI-based zoom still works without them.
		c.log.Warn().Err(err).Msg("failed to read page dimensions")
		dims = nil
	}

	pages := ParsePageRange(opts.PageRange, numPages)
	result := &Result{PageCount: numPages, Pages: make([]Page, 0, len(pages))}

	for _, pageNum := range pages {
		start := time.Now()

		var dim PageDim
		if dims != nil && pageNum-1 < len(dims) {
			dim = dims[pageNum-1]
		}
		zoomX, zoomY := zoomFactors(opts, dim)

		page, err := c.renderer.RenderPage(ctx, pdf, pageNum, zoomX, zoomY, opts)
		if err != nil {
			c.log.Warn().Err(err).Int("page", pageNum).Msg("page render failed")
			result.Pages = append(result.Pages, Page{
				PageNumber: pageNum,
				Failed:     true,
				Error:      err.Error(),
			})
			continue
		}
		page.PageNumber = pageNum

		if opts.Rotation%360 != 0 && len(page.PNG) > 0 {
			rotated, w, h, err := rotatePNG(page.PNG, opts.Rotation)
			if err != nil {
				c.log.Warn().Err(err).Int("page", pageNum).Msg("rotation failed, keeping unrotated page")
			} else {
				page.PNG, page.Width, page.Height = rotated, w, h
			}
		}

		if c.extractor != nil {
			text, err := c.extractor.ExtractText(ctx, pdf, pageNum)
			if err != nil {
				c.log.Debug().Err(err).Int("page", pageNum).Msg("embedded text extraction failed")
			} else {
				page.EmbeddedText = text
			}
		}

		c.log.Debug().
			Int("page", pageNum).
			Dur("duration", time.Since(start)).
			Msg("page converted")

		result.Pages = append(result.Pages, page)
	}

	return result, nil
}

// zoomFactors computes per-axis zoom. Explicit width/height win over DPI;
// DPI-based zoom follows the standard device-space conversion (dpi/72),
// multiplied by an optional scale factor.
func zoomFactors(opts Options, dim PageDim) (float64, float64) {
	if opts.Width > 0 && opts.Height > 0 && dim.Width > 0 && dim.Height > 0 {
		return float64(opts.Width) / dim.Width, float64(opts.Height) / dim.Height
	}

	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 300
	}
	zoom := float64(dpi) / 72.0
	if opts.Scale > 0 {
		zoom *= opts.Scale
	}
	return zoom, zoom
}

// PDFCPUProber probes PDFs with pdfcpu in relaxed validation mode
type PDFCPUProber struct {
	conf *model.Configuration
}

// NewPDFCPUProber creates a prober that tolerates mildly malformed PDFs
func NewPDFCPUProber() *PDFCPUProber {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPUProber{conf: conf}
}

// PageCount implements Prober
func (p *PDFCPUProber) PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), p.conf)
}

// PageDims implements Prober
func (p *PDFCPUProber) PageDims(pdf []byte) ([]PageDim, error) {
	dims, err := api.PageDims(bytes.NewReader(pdf), p.conf)
	if err != nil {
		return nil, err
	}
	out := make([]PageDim, len(dims))
	for i, d := range dims {
		out[i] = PageDim{Width: d.Width, Height: d.Height}
	}
	return out, nil
}
