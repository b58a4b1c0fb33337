package embedding

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	// Registered decoders for uploads.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var (
	// ErrEmptyImage is returned when no image bytes were supplied.
	ErrEmptyImage = errors.New("empty image")
	// ErrImageTooLarge is returned when the declared dimensions exceed the pixel limit.
	ErrImageTooLarge = errors.New("image too large")
)

// DecodeImage decodes JPEG, PNG, GIF or WebP data and returns the image with its format name.
// The header is checked against maxPixels before any pixel data is decoded; maxPixels <= 0 disables the check.
func DecodeImage(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", ErrEmptyImage
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

// EncodeJPEG re-encodes img as an RGB JPEG. Alpha is composited over white.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			rgb.Set(x, y, flatten(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composites c over an opaque white background.
func flatten(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	if a == 0xffff {
		return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff}
	}
	inv := 0xffff - a
	return color.RGBA{
		R: uint8((r + inv) >> 8),
		G: uint8((g + inv) >> 8),
		B: uint8((b + inv) >> 8),
		A: 0xff,
	}
}
