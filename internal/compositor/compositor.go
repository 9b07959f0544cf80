// Package compositor draws a composition plan onto a raster surface and
// exports the result as a single long image.
package compositor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
)

// Backend selects a Surface implementation.
type Backend string

const (
	BackendRetained  Backend = "retained"
	BackendImmediate Backend = "immediate"
)

// Options configures a Compositor.
type Options struct {
	Backend     Backend
	OutputDir   string
	Export      ExportOptions
	SettleDelay time.Duration // immediate backend only
	Loader      Loader        // defaults to decoding ImageRecord.Path
}

// Compositor executes plans. A Compositor owns one surface and must not
// be used by more than one goroutine at a time.
type Compositor struct {
	surface   Surface
	outputDir string
	export    ExportOptions
}

// New creates a compositor for the configured backend.
func New(opts Options) (*Compositor, error) {
	load := opts.Loader
	if load == nil {
		load = LoadFile
	}

	var surface Surface
	switch opts.Backend {
	case BackendRetained, "":
		surface = NewRetainedSurface(load)
	case BackendImmediate:
		surface = NewImmediateSurface(load, opts.SettleDelay)
	default:
		return nil, fmt.Errorf("unknown compositor backend: %s", opts.Backend)
	}

	return NewWithSurface(surface, opts.OutputDir, opts.Export), nil
}

// NewWithSurface creates a compositor around an existing surface.
func NewWithSurface(surface Surface, outputDir string, export ExportOptions) *Compositor {
	if export.Format == "" {
		export.Format = FormatJPEG
	}
	if export.Format == FormatJPEG && export.Quality <= 0 {
		export.Quality = 100
	}
	return &Compositor{surface: surface, outputDir: outputDir, export: export}
}

// LoadFile decodes the image at rec.Path.
func LoadFile(rec geometry.ImageRecord) (image.Image, error) {
	return imaging.DecodeFile(rec.Path)
}

// Composite draws every segment of plan in order, commits the surface and
// writes the full canvas to a new file in the output directory, returning
// its path. Errors wrap ErrDrawFailure or ErrExportFailure.
func (c *Compositor) Composite(ctx context.Context, plan *geometry.Plan) (string, error) {
	if err := checkPlan(plan); err != nil {
		return "", err
	}

	start := time.Now()
	if err := c.surface.Resize(plan.CanvasWidth, plan.CanvasHeight); err != nil {
		return "", err
	}

	for i, seg := range plan.Segments {
		op := DrawOp{
			Source: seg.Source,
			Src:    image.Rect(0, seg.SourceWindow.Top, seg.Source.Width, seg.SourceWindow.Bottom),
			Dst:    image.Rect(0, seg.DestY, plan.CanvasWidth, seg.DestY+seg.DestHeight),
		}
		if err := c.surface.Draw(ctx, op); err != nil {
			return "", fmt.Errorf("segment %d: %w", i, err)
		}
	}

	if err := c.surface.Commit(ctx); err != nil {
		return "", err
	}

	if s, ok := c.surface.(interface{ SettleDelay() time.Duration }); ok && s.SettleDelay() > 0 {
		timer := time.NewTimer(s.SettleDelay())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: %w", ErrExportFailure, ctx.Err())
		}
	}

	data, err := c.surface.Export(ctx, image.Rect(0, 0, plan.CanvasWidth, plan.CanvasHeight), c.export)
	if err != nil {
		return "", err
	}

	path, err := c.write(data)
	if err != nil {
		return "", err
	}

	slog.Info("composite written",
		"path", path,
		"width", plan.CanvasWidth,
		"height", plan.CanvasHeight,
		"segments", len(plan.Segments),
		"duration", time.Since(start))
	return path, nil
}

// Close releases pooled buffers held by the surface.
func (c *Compositor) Close() {
	if r, ok := c.surface.(interface{ Release() }); ok {
		r.Release()
	}
}

func (c *Compositor) write(data []byte) (string, error) {
	dir := c.outputDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExportFailure, err)
	}

	path := filepath.Join(dir, constants.OutputPrefix+uuid.New().String()+c.export.Ext())
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // output is meant to be shared
		return "", fmt.Errorf("%w: %w", ErrExportFailure, err)
	}
	return path, nil
}

// checkPlan rejects plans whose segments are not contiguous from the top
// of the canvas.
func checkPlan(plan *geometry.Plan) error {
	if plan == nil || len(plan.Segments) == 0 {
		return fmt.Errorf("%w: empty plan", ErrDrawFailure)
	}
	y := 0
	for i, seg := range plan.Segments {
		if seg.DestY != y {
			return fmt.Errorf("%w: segment %d starts at %d, expected %d", ErrDrawFailure, i, seg.DestY, y)
		}
		y += seg.DestHeight
	}
	if y != plan.CanvasHeight {
		return fmt.Errorf("%w: segments end at %d, canvas height is %d", ErrDrawFailure, y, plan.CanvasHeight)
	}
	return nil
}
