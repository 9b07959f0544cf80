// Package imaging holds the image collaborators shared by ingestion,
// moderation and compositing: dimension probing, decoding and lossy
// recompression.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
)

// ErrProbeFailure is returned when an image's dimensions cannot be read.
var ErrProbeFailure = errors.New("probe failure")

// Prober reads image dimensions without decoding pixels.
type Prober interface {
	Probe(path string) (geometry.ImageRecord, error)
}

// Codec recompresses an image and returns the path of the new file.
type Codec interface {
	Compress(ctx context.Context, path string, quality, maxWidth int) (string, error)
}

// FileProber probes images on the local file system.
type FileProber struct{}

// Probe returns the record for path.
func (FileProber) Probe(path string) (geometry.ImageRecord, error) {
	f, err := os.Open(path) //nolint:gosec // user-selected image path
	if err != nil {
		return geometry.ImageRecord{}, fmt.Errorf("%w: %w", ErrProbeFailure, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return geometry.ImageRecord{}, fmt.Errorf("%w: %s: %w", ErrProbeFailure, filepath.Base(path), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return geometry.ImageRecord{}, fmt.Errorf("%w: %s has empty dimensions", ErrProbeFailure, filepath.Base(path))
	}

	return geometry.ImageRecord{Path: path, Width: cfg.Width, Height: cfg.Height}, nil
}

// DecodeFile decodes the image stored at path.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from a probed record
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// JPEGCodec writes recompressed JPEGs into Dir (os.TempDir when empty).
type JPEGCodec struct {
	Dir string
}

// Compress re-encodes path as JPEG at quality, scaling it down so the
// width does not exceed maxWidth. Aspect ratio is preserved.
func (c JPEGCodec) Compress(ctx context.Context, path string, quality, maxWidth int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := DecodeFile(path)
	if err != nil {
		return "", err
	}

	data, err := EncodeJPEG(ScaleToWidth(img, maxWidth), quality)
	if err != nil {
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out, err := os.CreateTemp(c.Dir, name+"-compressed-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create compressed file: %w", err)
	}
	defer out.Close()

	if _, err := out.Write(data); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("failed to write compressed file: %w", err)
	}
	return out.Name(), nil
}

// ScaleToWidth returns img scaled down to maxWidth. Images already within
// the limit, or a non-positive maxWidth, are returned unchanged.
func ScaleToWidth(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if maxWidth <= 0 || width <= maxWidth {
		return img
	}

	newHeight := max(1, int(float64(height)*float64(maxWidth)/float64(width)))
	resized := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

// EncodeJPEG encodes img at the given quality (clamped to 1..100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	quality = max(1, min(quality, 100))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
