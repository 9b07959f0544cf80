package geometry

import "fmt"

// ImageRecord is a probed source image. Path is an opaque handle the
// compositor and moderation gate resolve to raster bytes.
type ImageRecord struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CropWindow is a half-open vertical pixel range [Top, Bottom) in the
// source image's native coordinates.
type CropWindow struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

// Height returns the number of rows selected by the window.
func (w CropWindow) Height() int {
	return w.Bottom - w.Top
}

// ValidFor reports whether 0 <= Top < Bottom <= height.
func (w CropWindow) ValidFor(height int) bool {
	return w.Top >= 0 && w.Top < w.Bottom && w.Bottom <= height
}

func (w CropWindow) String() string {
	return fmt.Sprintf("[%d,%d)", w.Top, w.Bottom)
}

// Segment is one ordered draw: SourceWindow of Source lands at
// (0, DestY) on the canvas with DestHeight rows.
type Segment struct {
	Source       ImageRecord `json:"source"`
	SourceWindow CropWindow  `json:"source_window"`
	DestY        int         `json:"dest_y"`
	DestHeight   int         `json:"dest_height"`
}

// Plan is the derived composition: canvas size plus segments in
// increasing DestY order.
type Plan struct {
	CanvasWidth  int       `json:"canvas_width"`
	CanvasHeight int       `json:"canvas_height"`
	Segments     []Segment `json:"segments"`
}

// Input holds everything Compute needs. Images[0] is the cover; a nil
// CoverWindow means the cover contributes its full height.
type Input struct {
	Images         []ImageRecord
	CoverWindow    *CropWindow
	SubtitleWindow CropWindow
}
