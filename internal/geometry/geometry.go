// Package geometry turns image dimensions and crop boundaries into a
// composition plan. Everything here is pure: the live preview recomputes
// the plan on every boundary change.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when the inputs cannot produce a plan.
var ErrInvalidGeometry = errors.New("invalid geometry")

// SubtitleRatio is the share of the preview height above the default
// subtitle strip; the strip is the remaining bottom ~18%.
const SubtitleRatio = 0.82

// Compute builds the composition plan for the given input.
func Compute(in Input) (*Plan, error) {
	n := len(in.Images)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 images, got %d", ErrInvalidGeometry, n)
	}

	cover := in.Images[0]
	coverWindow := CropWindow{Top: 0, Bottom: cover.Height}
	if in.CoverWindow != nil {
		coverWindow = *in.CoverWindow
	}
	if !coverWindow.ValidFor(cover.Height) {
		return nil, fmt.Errorf("%w: cover window %s outside image height %d", ErrInvalidGeometry, coverWindow, cover.Height)
	}

	subtitleHeight := in.SubtitleWindow.Height()
	if subtitleHeight <= 0 {
		return nil, fmt.Errorf("%w: subtitle height %d", ErrInvalidGeometry, subtitleHeight)
	}
	for i := 1; i < n; i++ {
		if !in.SubtitleWindow.ValidFor(in.Images[i].Height) {
			return nil, fmt.Errorf("%w: subtitle window %s outside image %d height %d",
				ErrInvalidGeometry, in.SubtitleWindow, i, in.Images[i].Height)
		}
	}

	coverHeight := coverWindow.Height()
	plan := &Plan{
		CanvasWidth:  cover.Width,
		CanvasHeight: coverHeight + subtitleHeight*(n-1),
		Segments:     make([]Segment, 0, n),
	}

	plan.Segments = append(plan.Segments, Segment{
		Source:       cover,
		SourceWindow: coverWindow,
		DestY:        0,
		DestHeight:   coverHeight,
	})
	for i := 1; i < n; i++ {
		plan.Segments = append(plan.Segments, Segment{
			Source:       in.Images[i],
			SourceWindow: in.SubtitleWindow,
			DestY:        coverHeight + subtitleHeight*(i-1),
			DestHeight:   subtitleHeight,
		})
	}

	return plan, nil
}

// DefaultSubtitleWindow returns the bottom strip of the preview image:
// [floor(h*0.82), h).
func DefaultSubtitleWindow(preview ImageRecord) CropWindow {
	top := int(math.Floor(float64(preview.Height) * SubtitleRatio))
	return CropWindow{Top: top, Bottom: preview.Height}
}

// DefaultCoverWindow selects the whole cover.
func DefaultCoverWindow(cover ImageRecord) CropWindow {
	return CropWindow{Top: 0, Bottom: cover.Height}
}

// ClampWindow pulls a window back inside [0, height] while keeping at
// least one row selected. Heights below 1 yield the zero window.
func ClampWindow(w CropWindow, height int) CropWindow {
	if height < 1 {
		return CropWindow{}
	}
	w.Top = max(0, min(w.Top, height-1))
	w.Bottom = min(height, max(w.Bottom, w.Top+1))
	return w
}

// TotalHeight is the canvas height when the cover is used uncropped and
// every other image contributes subtitleHeight rows.
func TotalHeight(images []ImageRecord, subtitleHeight int) int {
	if len(images) == 0 {
		return 0
	}
	return images[0].Height + subtitleHeight*(len(images)-1)
}
