package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/subtitle-stitcher/internal/album"
	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the Subtitle Stitcher HTTP API.
Clients open a session, upload images (screened in the background with
progress over server-sent events), adjust the crop windows, generate the
long image and save it to the configured album.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().String("provider", "", "Moderation provider (default MODERATION_PROVIDER)")
	serveCmd.Flags().String("backend", "", "Draw surface: retained or immediate (default COMPOSITOR_BACKEND)")
}

// resolveServeHostPort resolves port and host, flags winning over config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) (int, string) {
	port := cfg.Web.Port
	host := cfg.Web.Host
	if p := mustGetInt(cmd, "port"); p > 0 {
		port = p
	}
	if h := mustGetString(cmd, "host"); h != "" {
		host = h
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	gate, err := newGate(ctx, cfg, mustGetString(cmd, "provider"))
	if err != nil {
		return err
	}
	backend := mustGetString(cmd, "backend")
	if backend == "" {
		backend = cfg.Compositor.Backend
	}
	factory := compositorFactory(cfg, backend, "")
	probe, err := factory(cfg.WorkDir)
	if err != nil {
		return err
	}
	probe.Close()

	sink, err := newAlbumSink(ctx, cfg, "", "")
	if err != nil {
		return err
	}
	if sink == nil {
		fmt.Println("No album configured (set ALBUM_DIR or PHOTOPRISM_URL), saving is disabled")
	}

	port, host := resolveServeHostPort(cmd, cfg)
	server := web.NewServer(cfg, port, host, web.Dependencies{
		Prober:     imaging.FileProber{},
		Moderator:  gate,
		Compositor: factory,
		Sink:       sink,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		if err := album.Close(shutdownCtx, sink); err != nil {
			fmt.Printf("Error closing album: %v\n", err)
		}
	}()

	fmt.Printf("Starting Subtitle Stitcher API on http://%s:%d/api/v1\n", host, port)
	fmt.Printf("Moderation provider: %s, compositor backend: %s\n", providerName(cfg, mustGetString(cmd, "provider")), backend)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-done
	return nil
}

func providerName(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Moderation.Provider
}
