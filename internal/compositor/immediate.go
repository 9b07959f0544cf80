package compositor

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// DefaultSettleDelay is the pause before an immediate-mode surface is read
// back after Commit.
const DefaultSettleDelay = 500 * time.Millisecond

// ImmediateSurface records draw commands and rasterizes them in the
// background once Commit is called. Export blocks until rasterization has
// finished; the Compositor pauses for SettleDelay before calling it.
type ImmediateSurface struct {
	load        Loader
	settleDelay time.Duration

	mu        sync.Mutex
	track     drawTracker
	ops       []DrawOp
	pending   chan struct{}
	canvas    *image.RGBA
	rasterErr error
}

// NewImmediateSurface returns a surface loading sources with load and
// waiting settleDelay before export. A negative delay disables the wait.
func NewImmediateSurface(load Loader, settleDelay time.Duration) *ImmediateSurface {
	return &ImmediateSurface{load: load, settleDelay: settleDelay}
}

// Resize discards recorded commands and any previous raster.
func (s *ImmediateSurface) Resize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.track.reset(width, height); err != nil {
		return err
	}
	s.ops = s.ops[:0]
	s.pending = nil
	canvases.put(s.canvas)
	s.canvas = nil
	s.rasterErr = nil
	return nil
}

// Draw records op. Sources are not touched until Commit.
func (s *ImmediateSurface) Draw(ctx context.Context, op DrawOp) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDrawFailure, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return fmt.Errorf("%w: surface already committed", ErrDrawFailure)
	}
	if err := s.track.accept(op); err != nil {
		return err
	}
	s.ops = append(s.ops, op)
	return nil
}

// Commit starts rasterizing the recorded commands and returns without
// waiting for them.
func (s *ImmediateSurface) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDrawFailure, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track.width == 0 {
		return fmt.Errorf("%w: surface not allocated", ErrDrawFailure)
	}
	if s.pending != nil {
		return nil
	}

	ops := append([]DrawOp(nil), s.ops...)
	rect := image.Rect(0, 0, s.track.width, s.track.height)
	done := make(chan struct{})
	s.pending = done
	s.track.committed = true

	go s.rasterize(done, rect, ops)
	return nil
}

func (s *ImmediateSurface) rasterize(done chan struct{}, rect image.Rectangle, ops []DrawOp) {
	defer close(done)

	canvas := canvases.get(rect)
	var err error
	for _, op := range ops {
		var img image.Image
		img, err = s.load(op.Source)
		if err != nil {
			err = fmt.Errorf("%w: load %s: %w", ErrDrawFailure, op.Source.Path, err)
			break
		}
		if err = drawOp(canvas, img, op); err != nil {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != done {
		// Resized while rasterizing; this result belongs to nobody.
		canvases.put(canvas)
		return
	}
	if err != nil {
		canvases.put(canvas)
		s.rasterErr = err
		return
	}
	s.canvas = canvas
}

// SettleDelay reports the wait applied before Export reads the raster.
func (s *ImmediateSurface) SettleDelay() time.Duration {
	return s.settleDelay
}

// Export waits for rasterization and encodes rect of the result.
func (s *ImmediateSurface) Export(ctx context.Context, rect image.Rectangle, opts ExportOptions) ([]byte, error) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return nil, errNotCommitted
	}

	select {
	case <-pending:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrExportFailure, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != pending {
		return nil, errNotCommitted
	}
	if s.rasterErr != nil {
		return nil, s.rasterErr
	}
	return encode(s.canvas, rect, opts)
}

// Release returns the raster to the pool.
func (s *ImmediateSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	canvases.put(s.canvas)
	s.canvas = nil
	s.pending = nil
	s.ops = nil
	s.track = drawTracker{}
}
