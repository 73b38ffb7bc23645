package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
)

// ThumbWidth bounds the thumbnail width in pixels.
const ThumbWidth = 400

// MaxDecodePixels caps the canvas Thumbnail will decode.
const MaxDecodePixels = 40_000_000

// ErrTooManyPixels is returned for images whose header declares more than
// MaxDecodePixels.
var ErrTooManyPixels = errors.New("image dimensions too large")

// ThumbName derives <base>-thumb.jpg from a stored name.
func ThumbName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name + "-thumb.jpg"
}

// Thumbnail renders a JPEG no wider than ThumbWidth. It returns nil, nil for
// formats it cannot decode. Dimensions are read from the header first, so an
// oversized canvas is refused before any pixels are allocated.
func Thumbnail(data []byte, contentType string) ([]byte, error) {
	var (
		decode       func(io.Reader) (image.Image, error)
		decodeConfig func(io.Reader) (image.Config, error)
	)
	switch contentType {
	case "image/jpeg", "image/jpg":
		decode, decodeConfig = jpeg.Decode, jpeg.DecodeConfig
	case "image/png":
		decode, decodeConfig = png.Decode, png.DecodeConfig
	default:
		return nil, nil
	}

	cfg, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", contentType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}

	if img.Bounds().Dx() > ThumbWidth {
		img = resize.Resize(ThumbWidth, 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
