package convert

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os/exec"
	"strconv"
)

// PopplerRenderer rasterizes pages by invoking pdftoppm. The rasterizer is
// treated as a black box; only its PNG output and exit code matter here.
type PopplerRenderer struct {
	Binary string
}

// NewPopplerRenderer creates a renderer backed by the pdftoppm binary
func NewPopplerRenderer(binary string) *PopplerRenderer {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &PopplerRenderer{Binary: binary}
}

// RenderPage implements Renderer
func (r *PopplerRenderer) RenderPage(ctx context.Context, pdf []byte, page int, zoomX, zoomY float64, opts Options) (Page, error) {
	// pdftoppm takes a resolution, not a zoom; map zoom back to DPI per axis
	args := []string{
		"-png",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-rx", strconv.Itoa(int(zoomX * 72)),
		"-ry", strconv.Itoa(int(zoomY * 72)),
	}
	if opts.ColorMode == "gray" {
		args = append(args, "-gray")
	}
	args = append(args, "-", "-") // stdin to stdout

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdin = bytes.NewReader(pdf)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Page{}, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, stderr.String())
	}

	data := stdout.Bytes()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("pdftoppm page %d produced invalid PNG: %w", page, err)
	}

	return Page{
		PNG:    data,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// PopplerTextExtractor pulls embedded text by invoking pdftotext
type PopplerTextExtractor struct {
	Binary string
}

// NewPopplerTextExtractor creates an extractor backed by the pdftotext binary
func NewPopplerTextExtractor(binary string) *PopplerTextExtractor {
	if binary == "" {
		binary = "pdftotext"
	}
	return &PopplerTextExtractor{Binary: binary}
}

// ExtractText implements TextExtractor
func (e *PopplerTextExtractor) ExtractText(ctx context.Context, pdf []byte, page int) (string, error) {
	args := []string{
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-", "-",
	}

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Stdin = bytes.NewReader(pdf)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext page %d: %w: %s", page, err, stderr.String())
	}

	return stdout.String(), nil
}
