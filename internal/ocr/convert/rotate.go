package convert

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// rotatePNG rotates a PNG clockwise by a multiple of 90 degrees. Other
// angles are rounded down to the nearest supported quarter turn.
func rotatePNG(data []byte, degrees int) ([]byte, int, int, error) {
	quarter := ((degrees / 90) % 4 + 4) % 4
	if quarter == 0 {
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, 0, 0, err
		}
		return data, cfg.Width, cfg.Height, nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode for rotation: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if quarter == 2 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(b.Min.X+x, b.Min.Y+y)
			switch quarter {
			case 1:
				dst.Set(h-1-y, x, c)
			case 2:
				dst.Set(w-1-x, h-1-y, c)
			case 3:
				dst.Set(y, w-1-x, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, 0, 0, fmt.Errorf("encode rotated page: %w", err)
	}
	db := dst.Bounds()
	return buf.Bytes(), db.Dx(), db.Dy(), nil
}
