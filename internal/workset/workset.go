// Package workset holds the ordered list of accepted images for one
// editing session together with the current crop windows.
package workset

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
)

var (
	ErrIndexOutOfRange = errors.New("image index out of range")
	ErrNoCover         = errors.New("no cover image")
	ErrNoPreview       = errors.New("no preview image")
)

// Options limits the working set.
type Options struct {
	MaxCount          int
	MinSubtitleHeight int // 0 disables
	MaxSubtitleHeight int // 0 disables
}

// WorkingSet is safe for concurrent use. The mutex is never held across
// I/O; callers composite from a Snapshot.
type WorkingSet struct {
	opts Options

	mu             sync.Mutex
	images         []geometry.ImageRecord
	coverWindow    *geometry.CropWindow
	subtitleWindow geometry.CropWindow
	cover          string
	preview        string
	generation     uint64
}

// Snapshot is an immutable copy of a working set's state.
type Snapshot struct {
	Images         []geometry.ImageRecord `json:"images"`
	CoverWindow    *geometry.CropWindow   `json:"cover_window,omitempty"`
	SubtitleWindow geometry.CropWindow    `json:"subtitle_window"`
	Generation     uint64                 `json:"generation"`
}

// Input converts the snapshot into geometry input.
func (s Snapshot) Input() geometry.Input {
	return geometry.Input{
		Images:         s.Images,
		CoverWindow:    s.CoverWindow,
		SubtitleWindow: s.SubtitleWindow,
	}
}

// New creates an empty working set.
func New(opts Options) *WorkingSet {
	return &WorkingSet{opts: opts}
}

// Len returns the number of images.
func (w *WorkingSet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.images)
}

// Remaining returns how many more images fit, or -1 when unbounded.
func (w *WorkingSet) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.MaxCount <= 0 {
		return -1
	}
	return max(w.opts.MaxCount-len(w.images), 0)
}

// Generation returns a counter that changes whenever the set is cleared.
func (w *WorkingSet) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Add appends records up to capacity and returns how many were added.
func (w *WorkingSet) Add(records ...geometry.ImageRecord) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.add(records)
}

// AddIfCurrent appends records only if the generation still equals gen,
// so results of a batch started before a Clear are discarded.
func (w *WorkingSet) AddIfCurrent(gen uint64, records ...geometry.ImageRecord) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != gen {
		return 0, false
	}
	return w.add(records), true
}

func (w *WorkingSet) add(records []geometry.ImageRecord) int {
	if w.opts.MaxCount > 0 {
		records = records[:min(len(records), max(w.opts.MaxCount-len(w.images), 0))]
	}
	w.images = append(w.images, records...)
	w.designate()
	return len(records)
}

// Remove deletes the image at index i.
func (w *WorkingSet) Remove(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.images) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, len(w.images))
	}
	w.images = slices.Delete(w.images, i, i+1)
	w.designate()
	return nil
}

// Clear removes every image and resets the windows.
func (w *WorkingSet) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images = nil
	w.generation++
	w.designate()
}

// designate picks the cover and preview from list order and resets the
// window belonging to any designation that changed.
func (w *WorkingSet) designate() {
	var cover, preview string
	var previewRec geometry.ImageRecord
	if len(w.images) > 0 {
		cover = w.images[0].Path
	}
	if len(w.images) > 1 {
		previewRec = w.images[1]
		preview = previewRec.Path
	}

	if cover != w.cover {
		w.cover = cover
		w.coverWindow = nil
	}
	if preview != w.preview {
		w.preview = preview
		if preview == "" {
			w.subtitleWindow = geometry.CropWindow{}
		} else {
			w.subtitleWindow = geometry.DefaultSubtitleWindow(previewRec)
		}
	}
}

// SetCoverBottom crops the cover to [0, bottom), clamped to the cover
// height.
func (w *WorkingSet) SetCoverBottom(bottom int) (geometry.CropWindow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.images) == 0 {
		return geometry.CropWindow{}, ErrNoCover
	}
	win := geometry.ClampWindow(geometry.CropWindow{Top: 0, Bottom: bottom}, w.images[0].Height)
	w.coverWindow = &win
	return win, nil
}

// ResetCover removes the cover crop.
func (w *WorkingSet) ResetCover() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.coverWindow = nil
}

// SetSubtitleWindow sets the shared subtitle window, clamped to the
// preview height and to the configured strip height limits.
func (w *WorkingSet) SetSubtitleWindow(top, bottom int) (geometry.CropWindow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.images) < 2 {
		return geometry.CropWindow{}, ErrNoPreview
	}
	height := w.images[1].Height

	win := geometry.ClampWindow(geometry.CropWindow{Top: top, Bottom: bottom}, height)
	if w.opts.MaxSubtitleHeight > 0 && win.Height() > w.opts.MaxSubtitleHeight {
		win.Top = win.Bottom - w.opts.MaxSubtitleHeight
	}
	if w.opts.MinSubtitleHeight > 0 && win.Height() < w.opts.MinSubtitleHeight {
		// Grow upwards, then downwards once the top edge is reached.
		want := min(w.opts.MinSubtitleHeight, height)
		win.Top = max(win.Bottom-want, 0)
		win.Bottom = win.Top + want
	}
	w.subtitleWindow = win
	return win, nil
}

// Snapshot copies the current state.
func (w *WorkingSet) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := Snapshot{
		Images:         slices.Clone(w.images),
		SubtitleWindow: w.subtitleWindow,
		Generation:     w.generation,
	}
	if w.coverWindow != nil {
		win := *w.coverWindow
		snap.CoverWindow = &win
	}
	return snap
}

// Plan computes the composition plan for the current state.
func (w *WorkingSet) Plan() (*geometry.Plan, error) {
	return geometry.Compute(w.Snapshot().Input())
}
