package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// TesseractEngine recognizes text by invoking the tesseract binary on the
// page image. Tesseract is CPU-only, so the granted device is ignored.
type TesseractEngine struct {
	Binary string
}

// NewTesseractEngine creates an exec-backed tesseract engine
func NewTesseractEngine(binary string) *TesseractEngine {
	if binary == "" {
		binary = "tesseract"
	}
	return &TesseractEngine{Binary: binary}
}

// Name implements Engine
func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize implements Engine
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, lang string, device int) (string, error) {
	args := []string{"stdin", "stdout"}
	if lang != "" {
		args = append(args, "-l", lang)
	}
	// Run at reduced priority so a long OCR does not starve the API thread
	nice := exec.CommandContext(ctx, "nice", append([]string{"-n", strconv.Itoa(10), e.Binary}, args...)...)
	nice.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	nice.Stdout = &stdout
	nice.Stderr = &stderr

	if err := nice.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, stderr.String())
	}

	return stdout.String(), nil
}
