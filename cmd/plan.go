package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

var planCmd = &cobra.Command{
	Use:   "plan <cover> <image>...",
	Short: "Print the composition plan without drawing",
	Long: `Probe the images and print where each strip would land on the canvas.
No moderation is performed and nothing is written.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Bool("json", false, "Output as JSON")
	addCropFlags(planCmd)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	set := workset.New(workingSetOptions(cfg))
	prober := imaging.FileProber{}
	for _, path := range args {
		rec, err := prober.Probe(path)
		if err != nil {
			return err
		}
		if set.Add(rec) == 0 {
			fmt.Fprintf(os.Stderr, "Only the first %d images are used, ignoring %s\n", cfg.Ingest.MaxCount, path)
		}
	}

	var report io.Writer = os.Stdout
	if jsonOutput {
		report = os.Stderr
	}
	if err := applyCropFlags(cmd, set, report); err != nil {
		return err
	}

	plan, err := set.Plan()
	if err != nil {
		return fmt.Errorf("cannot generate: %w", err)
	}

	if jsonOutput {
		return outputJSON(plan)
	}

	snap := set.Snapshot()
	fmt.Printf("Canvas: %dx%d (uncropped cover: %d rows)\n\n", plan.CanvasWidth, plan.CanvasHeight,
		geometry.TotalHeight(snap.Images, snap.SubtitleWindow.Height()))
	fmt.Printf("%-4s %-10s %-14s %s\n", "#", "DEST Y", "SOURCE ROWS", "IMAGE")
	for i, seg := range plan.Segments {
		fmt.Printf("%-4d %-10d %-14s %s\n", i, seg.DestY, seg.SourceWindow, seg.Source.Path)
	}
	return nil
}
