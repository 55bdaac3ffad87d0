// Package imagecodec converts between decoded images and the compressed
// byte encodings that are encrypted into containers.
package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is an image encoding name as reported by image.Decode.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// DefaultJPEGQuality is used when a caller passes quality 0.
const DefaultJPEGQuality = 90

// MaxPixels caps width*height of an image accepted by Decode.
// Headers are checked before any pixel buffer is allocated.
const MaxPixels = 1 << 26

var (
	// ErrNotImage indicates bytes that do not decode as any registered image format.
	ErrNotImage = errors.New("imagecodec: data is not a valid image")

	// ErrUnsupportedFormat indicates an encoding that cannot be written.
	ErrUnsupportedFormat = errors.New("imagecodec: unsupported image format")

	// ErrImageTooLarge indicates an image whose declared dimensions exceed MaxPixels.
	ErrImageTooLarge = errors.New("imagecodec: image dimensions too large")

	// ErrInvalidQuality indicates a JPEG quality outside 1..100.
	ErrInvalidQuality = errors.New("imagecodec: jpeg quality must be between 1 and 100")
)

// Image is a decoded image with the format it was decoded from.
type Image struct {
	image.Image
	Format string
}

// Width returns the pixel width.
func (i Image) Width() int { return i.Bounds().Dx() }

// Height returns the pixel height.
func (i Image) Height() int { return i.Bounds().Dy() }

// Decode decodes data in any registered format (png, jpeg, gif, bmp, tiff, webp).
// Images declaring more than MaxPixels pixels are rejected with
// ErrImageTooLarge before decoding.
func Decode(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty input", ErrNotImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Image{}, fmt.Errorf("%w: %dx%d", ErrNotImage, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Image{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return Image{Image: img, Format: format}, nil
}

// Encode compresses img in the given format.
// quality applies to JPEG only; 0 selects DefaultJPEGQuality.
func Encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatJPEG:
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		if quality < 1 || quality > 100 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case FormatGIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("imagecodec: %s encode failed: %w", format, err)
	}

	return buf.Bytes(), nil
}

// ParseFormat maps a user-facing format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath picks a Format from the file extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no file extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}
