package compositor

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// RetainedSurface decodes every source up front and draws it onto an
// in-memory canvas as soon as Draw is called.
type RetainedSurface struct {
	load   Loader
	canvas *image.RGBA
	track  drawTracker
	mu     sync.Mutex
}

// NewRetainedSurface returns a surface loading sources with load.
func NewRetainedSurface(load Loader) *RetainedSurface {
	return &RetainedSurface{load: load}
}

// Resize allocates a cleared canvas of the given size, reusing a pooled
// buffer when one of the same size is available.
func (s *RetainedSurface) Resize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.track.reset(width, height); err != nil {
		return err
	}
	rect := image.Rect(0, 0, width, height)
	if s.canvas != nil && s.canvas.Rect == rect {
		clear(s.canvas.Pix)
		return nil
	}
	canvases.put(s.canvas)
	s.canvas = canvases.get(rect)
	return nil
}

// Draw copies op.Src from the decoded source onto op.Dst, scaling when
// the two rectangles differ in size.
func (s *RetainedSurface) Draw(ctx context.Context, op DrawOp) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDrawFailure, err)
	}

	s.mu.Lock()
	if err := s.track.accept(op); err != nil {
		s.mu.Unlock()
		return err
	}
	canvas := s.canvas
	s.mu.Unlock()

	img, err := s.load(op.Source)
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrDrawFailure, op.Source.Path, err)
	}
	return drawOp(canvas, img, op)
}

// Commit marks the canvas as complete. Retained draws are synchronous, so
// there is nothing to flush.
func (s *RetainedSurface) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDrawFailure, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canvas == nil {
		return fmt.Errorf("%w: surface not allocated", ErrDrawFailure)
	}
	s.track.committed = true
	return nil
}

// Export encodes rect of the committed canvas.
func (s *RetainedSurface) Export(ctx context.Context, rect image.Rectangle, opts ExportOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExportFailure, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track.committed {
		return nil, errNotCommitted
	}
	return encode(s.canvas, rect, opts)
}

// Release returns the canvas to the pool. The surface may be resized and
// reused afterwards.
func (s *RetainedSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	canvases.put(s.canvas)
	s.canvas = nil
	s.track = drawTracker{}
}

func drawOp(canvas *image.RGBA, img image.Image, op DrawOp) error {
	src, err := sourceRect(img, op.Src)
	if err != nil {
		return err
	}
	if src.Size() == op.Dst.Size() {
		draw.Draw(canvas, op.Dst, img, src.Min, draw.Src)
		return nil
	}
	draw.CatmullRom.Scale(canvas, op.Dst, img, src, draw.Src, nil)
	return nil
}
