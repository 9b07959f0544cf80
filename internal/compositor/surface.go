package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
)

var (
	// ErrDrawFailure covers load, draw and commit errors, and any attempt
	// to read a surface that has not been committed.
	ErrDrawFailure = errors.New("draw failure")

	// ErrExportFailure is returned when the committed raster cannot be
	// written out.
	ErrExportFailure = errors.New("export failure")

	errNotCommitted = fmt.Errorf("%w: surface not committed", ErrDrawFailure)
)

// DrawOp copies Src from Source onto Dst. Src is in the source image's
// native coordinates, Dst in canvas coordinates.
type DrawOp struct {
	Source geometry.ImageRecord
	Src    image.Rectangle
	Dst    image.Rectangle
}

// Format is the encoding of an exported raster.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ExportOptions controls how a committed surface is encoded.
type ExportOptions struct {
	Format  Format
	Quality int // JPEG only, 1..100
}

// Ext returns the file extension for the format.
func (o ExportOptions) Ext() string {
	if o.Format == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Surface is a raster drawing target. Draws must arrive in increasing,
// non-overlapping Dst order; Commit must follow the last draw before
// Export may be called.
type Surface interface {
	Resize(width, height int) error
	Draw(ctx context.Context, op DrawOp) error
	Commit(ctx context.Context) error
	Export(ctx context.Context, rect image.Rectangle, opts ExportOptions) ([]byte, error)
}

// Loader decodes the image referenced by a record.
type Loader func(rec geometry.ImageRecord) (image.Image, error)

// drawTracker enforces the draw ordering contract shared by both
// backends.
type drawTracker struct {
	width, height int
	nextY         int
	committed     bool
}

func (t *drawTracker) reset(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid surface size %dx%d", ErrDrawFailure, width, height)
	}
	t.width, t.height = width, height
	t.nextY = 0
	t.committed = false
	return nil
}

func (t *drawTracker) accept(op DrawOp) error {
	if t.width == 0 {
		return fmt.Errorf("%w: surface not allocated", ErrDrawFailure)
	}
	if op.Dst.Min.Y < t.nextY {
		return fmt.Errorf("%w: draw at y=%d out of order (next y=%d)", ErrDrawFailure, op.Dst.Min.Y, t.nextY)
	}
	if op.Dst.Empty() || !op.Dst.In(image.Rect(0, 0, t.width, t.height)) {
		return fmt.Errorf("%w: destination %v outside %dx%d canvas", ErrDrawFailure, op.Dst, t.width, t.height)
	}
	if op.Src.Empty() {
		return fmt.Errorf("%w: empty source rectangle", ErrDrawFailure)
	}
	t.nextY = op.Dst.Max.Y
	t.committed = false
	return nil
}

// sourceRect translates a native-coordinate rectangle into img's bounds.
func sourceRect(img image.Image, r image.Rectangle) (image.Rectangle, error) {
	b := img.Bounds()
	translated := r.Add(b.Min)
	if !translated.In(b) {
		return image.Rectangle{}, fmt.Errorf("%w: source window %v outside image bounds %v", ErrDrawFailure, r, b)
	}
	return translated, nil
}

// encode crops img to rect and encodes it per opts.
func encode(img image.Image, rect image.Rectangle, opts ExportOptions) ([]byte, error) {
	if !rect.In(img.Bounds()) || rect.Empty() {
		return nil, fmt.Errorf("%w: export rectangle %v outside canvas %v", ErrExportFailure, rect, img.Bounds())
	}
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok && rect != img.Bounds() {
		img = sub.SubImage(rect)
	}

	var buf bytes.Buffer
	switch opts.Format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExportFailure, err)
		}
	case FormatJPEG, "":
		quality := opts.Quality
		if quality <= 0 {
			quality = 100
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: min(quality, 100)}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExportFailure, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrExportFailure, opts.Format)
	}
	return buf.Bytes(), nil
}
