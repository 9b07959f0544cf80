package handlers

import (
	"net/http"

	"github.com/kozaktomas/subtitle-stitcher/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Providers         []ProviderInfo `json:"providers"`
	ActiveProvider    string         `json:"active_provider"`
	MaxImages         int            `json:"max_images"`
	MaxImageSize      int64          `json:"max_image_size"`
	Extensions        []string       `json:"extensions"`
	SubtitleMinHeight int            `json:"subtitle_min_height"`
	SubtitleMaxHeight int            `json:"subtitle_max_height"`
	Backend           string         `json:"backend"`
	Format            string         `json:"format"`
	AlbumSink         string         `json:"album_sink,omitempty"`
}

// ProviderInfo represents information about a moderation provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// albumSinkName names the configured album destination, PhotoPrism first.
func albumSinkName(cfg *config.Config) string {
	switch {
	case cfg.PhotoPrism.Enabled():
		return "photoprism"
	case cfg.Album.Dir != "":
		return "dir"
	default:
		return ""
	}
}

// Get returns the available configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{Name: "none", Available: true},
		{Name: "wechat", Available: h.config.WeChat.AppID != "" && h.config.WeChat.Secret != ""},
		{Name: "openai", Available: h.config.OpenAI.Token != ""},
		{Name: "gemini", Available: h.config.Gemini.APIKey != ""},
		{Name: "ollama", Available: true}, // local
	}

	response := ConfigResponse{
		Providers:         providers,
		ActiveProvider:    h.config.Moderation.Provider,
		MaxImages:         h.config.Ingest.MaxCount,
		MaxImageSize:      h.config.Ingest.MaxSize,
		Extensions:        h.config.Ingest.Extensions,
		SubtitleMinHeight: h.config.Subtitle.MinHeight,
		SubtitleMaxHeight: h.config.Subtitle.MaxHeight,
		Backend:           h.config.Compositor.Backend,
		Format:            h.config.Compositor.Format,
		AlbumSink:         albumSinkName(h.config),
	}

	respondJSON(w, http.StatusOK, response)
}
