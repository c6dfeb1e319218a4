package thumbnail_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/thumbnail"
	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.White)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGenerate_Downscales(t *testing.T) {
	dir := t.TempDir()
	g := thumbnail.New(config.ThumbnailConfig{Dir: dir, MaxWidth: 100}, logger.Nop())

	path, err := g.Generate("file-1", testPNG(t, 400, 200))
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestGenerate_KeepsSmallImages(t *testing.T) {
	dir := t.TempDir()
	g := thumbnail.New(config.ThumbnailConfig{Dir: dir, MaxWidth: 320}, logger.Nop())

	path, err := g.Generate("small", testPNG(t, 80, 60))
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Width)
	assert.Equal(t, 60, cfg.Height)
}

func TestGenerate_InvalidImage(t *testing.T) {
	g := thumbnail.New(config.ThumbnailConfig{Dir: t.TempDir()}, logger.Nop())

	_, err := g.Generate("bad", []byte("not a png"))
	assert.Error(t, err)
}

func TestGenerate_NoDirConfigured(t *testing.T) {
	g := thumbnail.New(config.ThumbnailConfig{}, logger.Nop())

	_, err := g.Generate("x", testPNG(t, 10, 10))
	assert.Error(t, err)
}
