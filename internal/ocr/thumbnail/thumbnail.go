package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Generator writes downscaled first-page previews to disk. Thumbnails are a
// convenience for the frontend; generation failures never fail the document.
type Generator struct {
	dir      string
	maxWidth int
	log      *logger.Logger
}

// New creates a thumbnail generator from configuration
func New(cfg config.ThumbnailConfig, log *logger.Logger) *Generator {
	maxWidth := cfg.MaxWidth
	if maxWidth <= 0 {
		maxWidth = 320
	}
	return &Generator{
		dir:      cfg.Dir,
		maxWidth: maxWidth,
		log:      log.WithComponent("thumbnail"),
	}
}

// Generate downscales the page PNG and writes it as <fileID>.png under the
// configured directory, returning the written path.
func (g *Generator) Generate(fileID string, pagePNG []byte) (string, error) {
	if g.dir == "" {
		return "", fmt.Errorf("no thumbnail directory configured")
	}

	src, err := png.Decode(bytes.NewReader(pagePNG))
	if err != nil {
		return "", fmt.Errorf("failed to decode page image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width > g.maxWidth {
		height = height * g.maxWidth / width
		width = g.maxWidth
	}
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	path := filepath.Join(g.dir, fileID+".png")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, dst); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	g.log.Debug().Str("file_id", fileID).Str("path", path).Msg("thumbnail written")
	return path, nil
}
