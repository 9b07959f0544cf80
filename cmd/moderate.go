package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
)

var moderateCmd = &cobra.Command{
	Use:   "moderate <image>...",
	Short: "Screen images through content moderation",
	Long: `Run each image through the moderation gate and print whether it would be
accepted. Images that fail to reach the moderation service count as
accepted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runModerate,
}

func init() {
	rootCmd.AddCommand(moderateCmd)

	moderateCmd.Flags().String("provider", "", "Moderation provider: none, wechat, openai, gemini, ollama (default MODERATION_PROVIDER)")
	moderateCmd.Flags().Bool("json", false, "Output as JSON")
}

type moderateOutput struct {
	Accepted []geometry.ImageRecord `json:"accepted"`
	Filtered []geometry.ImageRecord `json:"filtered"`
	Skipped  []string               `json:"skipped,omitempty"`
}

func runModerate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report io.Writer = os.Stdout
	if jsonOutput {
		report = os.Stderr
	}
	result, err := screenImages(ctx, cfg, mustGetString(cmd, "provider"), args, report)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := moderateOutput{Accepted: result.Accepted, Filtered: result.Rejected, Skipped: result.Truncated}
		for _, d := range result.Dropped {
			out.Skipped = append(out.Skipped, d.Path)
		}
		return outputJSON(out)
	}

	for _, rec := range result.Accepted {
		fmt.Printf("  accepted  %s (%dx%d)\n", rec.Path, rec.Width, rec.Height)
	}
	for _, rec := range result.Rejected {
		fmt.Printf("  filtered  %s\n", rec.Path)
	}
	fmt.Printf("\n%d accepted, %d filtered\n", len(result.Accepted), result.RejectedCount())
	return nil
}
