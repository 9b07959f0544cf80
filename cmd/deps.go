package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/subtitle-stitcher/internal/album"
	"github.com/kozaktomas/subtitle-stitcher/internal/compositor"
	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/ingest"
	"github.com/kozaktomas/subtitle-stitcher/internal/moderation"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/handlers"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

// newChecker creates the content-safety checker for provider. An empty
// provider falls back to MODERATION_PROVIDER.
func newChecker(ctx context.Context, cfg *config.Config, provider string) (moderation.Checker, error) {
	if provider == "" {
		provider = cfg.Moderation.Provider
	}

	switch strings.ToLower(provider) {
	case "", "none":
		return moderation.NoopChecker{}, nil
	case "wechat":
		if cfg.WeChat.AppID == "" || cfg.WeChat.Secret == "" {
			return nil, errors.New("WECHAT_APP_ID and WECHAT_APP_SECRET environment variables are required")
		}
		return moderation.NewWeChatChecker(cfg.WeChat.AppID, cfg.WeChat.Secret, cfg.WeChat.APIURL, cfg.Moderation.RemoteTimeout), nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		return moderation.NewOpenAIChecker(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		checker, err := moderation.NewGeminiChecker(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("creating Gemini checker: %w", err)
		}
		return checker, nil
	case "ollama":
		return moderation.NewOllamaChecker(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown moderation provider: %s (use none, wechat, openai, gemini, or ollama)", provider)
	}
}

// newGate wraps the provider's checker in a moderation gate.
func newGate(ctx context.Context, cfg *config.Config, provider string) (*moderation.Gate, error) {
	checker, err := newChecker(ctx, cfg, provider)
	if err != nil {
		return nil, err
	}
	m := cfg.Moderation
	return moderation.NewGate(checker, moderation.Options{
		CompressThreshold: m.CompressThreshold,
		CompressQuality:   m.CompressQuality,
		CompressMaxWidth:  m.CompressMaxWidth,
		MaxPayload:        m.MaxPayload,
		Timeout:           m.Timeout,
		RemoteTimeout:     m.RemoteTimeout,
		Codec:             imaging.JPEGCodec{Dir: cfg.WorkDir},
	}), nil
}

// newPipeline creates an ingest pipeline reporting to a progress bar.
func newPipeline(cfg *config.Config, moderator ingest.Moderator, bar *progressbar.ProgressBar) *ingest.Pipeline {
	opts := ingest.Options{
		MaxCount:   cfg.Ingest.MaxCount,
		MaxSize:    cfg.Ingest.MaxSize,
		Extensions: cfg.Ingest.Extensions,
	}
	if bar != nil {
		opts.OnProgress = func(p ingest.ProgressInfo) {
			if p.Phase == ingest.PhaseModerating {
				_ = bar.Set(p.Current)
			}
		}
	}
	return ingest.New(imaging.FileProber{}, moderator, opts)
}

func newProgressBar(count int, description string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func workingSetOptions(cfg *config.Config) workset.Options {
	return workset.Options{
		MaxCount:          cfg.Ingest.MaxCount,
		MinSubtitleHeight: cfg.Subtitle.MinHeight,
		MaxSubtitleHeight: cfg.Subtitle.MaxHeight,
	}
}

// compositorFactory builds compositors for backend and format, falling
// back to the configured values when empty.
func compositorFactory(cfg *config.Config, backend, format string) handlers.CompositorFactory {
	if backend == "" {
		backend = cfg.Compositor.Backend
	}
	if format == "" {
		format = cfg.Compositor.Format
	}
	return func(outputDir string) (*compositor.Compositor, error) {
		return compositor.New(compositor.Options{
			Backend:     compositor.Backend(strings.ToLower(backend)),
			OutputDir:   outputDir,
			SettleDelay: cfg.Compositor.SettleDelay,
			Export: compositor.ExportOptions{
				Format:  compositor.Format(strings.ToLower(format)),
				Quality: cfg.Compositor.Quality,
			},
		})
	}
}

// newAlbumSink picks the album destination. Explicit arguments win over
// the configuration; PhotoPrism wins over a local directory. A nil sink
// means saving is disabled.
func newAlbumSink(ctx context.Context, cfg *config.Config, dir, photoprismAlbum string) (album.Sink, error) {
	pp := cfg.PhotoPrism
	if photoprismAlbum != "" {
		pp.AlbumUID = photoprismAlbum
	}

	switch {
	case dir != "":
		return album.NewDirSink(dir, cfg.Album.Title), nil
	case photoprismAlbum != "" || pp.Enabled():
		if !pp.Enabled() {
			return nil, errors.New("PHOTOPRISM_URL environment variable is required")
		}
		sink, err := album.ConnectPhotoPrism(ctx, pp.URL, pp.Username, pp.Password, pp.AlbumUID)
		if err != nil {
			return nil, fmt.Errorf("connecting to PhotoPrism: %w", err)
		}
		return sink, nil
	case cfg.Album.Dir != "":
		return album.NewDirSink(cfg.Album.Dir, cfg.Album.Title), nil
	default:
		return nil, nil
	}
}
