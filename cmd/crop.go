package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

// applyCropFlags sets the crop windows requested on the command line and
// reports the clamped result to w.
func applyCropFlags(cmd *cobra.Command, set *workset.WorkingSet, w io.Writer) error {
	if bottom := mustGetInt(cmd, "cover-bottom"); bottom >= 0 {
		win, err := set.SetCoverBottom(bottom)
		if err != nil {
			return fmt.Errorf("cropping cover: %w", err)
		}
		fmt.Fprintf(w, "Cover window: %s\n", win)
	}

	top := mustGetInt(cmd, "subtitle-top")
	bottom := mustGetInt(cmd, "subtitle-bottom")
	if top < 0 && bottom < 0 {
		return nil
	}

	current := set.Snapshot().SubtitleWindow
	if top < 0 {
		top = current.Top
	}
	if bottom < 0 {
		bottom = current.Bottom
	}
	win, err := set.SetSubtitleWindow(top, bottom)
	if err != nil {
		return fmt.Errorf("cropping subtitle strip: %w", err)
	}
	fmt.Fprintf(w, "Subtitle window: %s\n", win)
	return nil
}
