package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/subtitle-stitcher/internal/album"
	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/ingest"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch <cover> <image>...",
	Short: "Screen images and stitch them into one long image",
	Long: `Screen every image through content moderation, then stack the cover
with the subtitle strip of each remaining image.

The first accepted image is the cover. The subtitle strip defaults to the
bottom 18% of the second accepted image and is cut at the same rows from
every following image.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runStitch,
}

func init() {
	rootCmd.AddCommand(stitchCmd)

	stitchCmd.Flags().StringP("output", "o", "", "Output file (.jpg or .png); defaults to a new file in WORK_DIR")
	stitchCmd.Flags().String("backend", "", "Draw surface: retained or immediate (default COMPOSITOR_BACKEND)")
	stitchCmd.Flags().String("provider", "", "Moderation provider: none, wechat, openai, gemini, ollama (default MODERATION_PROVIDER)")
	stitchCmd.Flags().String("album", "", "Save the result into this local album directory")
	stitchCmd.Flags().String("photoprism-album", "", "Upload the result into this PhotoPrism album UID")
	addCropFlags(stitchCmd)
}

// outputFormat derives the export format from the output file extension.
func outputFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		return "", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".png":
		return "png", nil
	default:
		return "", fmt.Errorf("unsupported output extension %q (use .jpg or .png)", filepath.Ext(path))
	}
}

// screenImages runs paths through the ingest pipeline, drawing progress
// and reporting what was left out to w.
func screenImages(ctx context.Context, cfg *config.Config, provider string, paths []string, w io.Writer) (*ingest.Result, error) {
	gate, err := newGate(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}

	bar := newProgressBar(min(len(paths), cfg.Ingest.MaxCount), "Screening images", w)
	result, err := newPipeline(cfg, gate, bar).Ingest(ctx, paths, 0)
	_ = bar.Finish()
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("screening images: %w", err)
	}

	for _, d := range result.Dropped {
		fmt.Fprintf(w, "Skipped %s: %v\n", d.Path, d.Err)
	}
	if len(result.Truncated) > 0 {
		fmt.Fprintf(w, "Only the first %d images are used, ignoring %d more\n", cfg.Ingest.MaxCount, len(result.Truncated))
	}
	if n := result.RejectedCount(); n > 0 {
		fmt.Fprintf(w, "%d image(s) filtered by content moderation\n", n)
	}
	return result, nil
}

func runStitch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	output := mustGetString(cmd, "output")
	format, err := outputFormat(output)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := newAlbumSink(ctx, cfg, mustGetString(cmd, "album"), mustGetString(cmd, "photoprism-album"))
	if err != nil {
		return err
	}
	defer func() {
		if err := album.Close(context.WithoutCancel(ctx), sink); err != nil {
			slog.Warn("closing album", "error", err)
		}
	}()

	result, err := screenImages(ctx, cfg, mustGetString(cmd, "provider"), args, os.Stdout)
	if err != nil {
		return err
	}

	set := workset.New(workingSetOptions(cfg))
	set.Add(result.Accepted...)
	if err := applyCropFlags(cmd, set, os.Stdout); err != nil {
		return err
	}

	plan, err := set.Plan()
	if err != nil {
		if errors.Is(err, geometry.ErrInvalidGeometry) {
			return fmt.Errorf("cannot generate: %w", err)
		}
		return err
	}

	outputDir := cfg.WorkDir
	if output != "" {
		outputDir = filepath.Dir(output)
	}
	comp, err := compositorFactory(cfg, mustGetString(cmd, "backend"), format)(outputDir)
	if err != nil {
		return err
	}
	defer comp.Close()

	fmt.Printf("Compositing %d images into %dx%d...\n", len(plan.Segments), plan.CanvasWidth, plan.CanvasHeight)
	path, err := comp.Composite(ctx, plan)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	if output != "" {
		if err := os.Rename(path, output); err != nil {
			return fmt.Errorf("moving output: %w", err)
		}
		path = output
	}
	fmt.Printf("Wrote %s\n", path)

	if sink == nil {
		return nil
	}
	location, err := sink.Save(ctx, path)
	if err != nil {
		if errors.Is(err, album.ErrPermissionDenied) {
			return fmt.Errorf("saving to album was denied, check the album permissions: %w", err)
		}
		return fmt.Errorf("saving to album: %w", err)
	}
	fmt.Printf("Saved to album: %s\n", location)
	return nil
}
