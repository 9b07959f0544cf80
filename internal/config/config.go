package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Ingest     IngestConfig     `yaml:"ingest"`
	Subtitle   SubtitleConfig   `yaml:"subtitle"`
	Moderation ModerationConfig `yaml:"moderation"`
	Compositor CompositorConfig `yaml:"compositor"`
	Album      AlbumConfig      `yaml:"album"`
	PhotoPrism PhotoPrismConfig `yaml:"-"`
	OpenAI     OpenAIConfig     `yaml:"-"`
	Gemini     GeminiConfig     `yaml:"-"`
	Ollama     OllamaConfig     `yaml:"-"`
	WeChat     WeChatConfig     `yaml:"-"`
	Web        WebConfig        `yaml:"web"`
	WorkDir    string           `yaml:"-"` // uploads and composites, defaults to $TMPDIR/subtitle-stitcher
}

type IngestConfig struct {
	MaxCount   int      `yaml:"max_count"`
	MaxSize    int64    `yaml:"max_size"`
	Extensions []string `yaml:"extensions"`
}

type SubtitleConfig struct {
	MinHeight int `yaml:"min_height"`
	MaxHeight int `yaml:"max_height"`
}

type ModerationConfig struct {
	Provider          string        `yaml:"provider"`
	Timeout           time.Duration `yaml:"timeout"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout"`
	CompressThreshold int64         `yaml:"compress_threshold"`
	CompressQuality   int           `yaml:"compress_quality"`
	CompressMaxWidth  int           `yaml:"compress_max_width"`
	MaxPayload        int           `yaml:"max_payload"`
}

type CompositorConfig struct {
	Backend     string        `yaml:"backend"`
	Format      string        `yaml:"format"`
	Quality     int           `yaml:"quality"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

type AlbumConfig struct {
	Dir   string `yaml:"-"` // local album directory, empty disables
	Title string `yaml:"title"`
}

type PhotoPrismConfig struct {
	URL      string
	Username string
	Password string
	AlbumUID string
}

// Enabled reports whether a PhotoPrism server is configured.
func (c *PhotoPrismConfig) Enabled() bool {
	return c.URL != ""
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type WeChatConfig struct {
	AppID  string
	Secret string
	APIURL string // defaults to https://api.weixin.qq.com
}

type WebConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	AllowedOrigins []string      `yaml:"-"` // localhost is always allowed
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 is envInt for byte sizes.
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration string ("30s", "500ms").
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma separated list.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func Load() *Config {
	var d Config
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	cfg := &Config{
		Ingest: IngestConfig{
			MaxCount:   envInt("INGEST_MAX_COUNT", d.Ingest.MaxCount),
			MaxSize:    envInt64("INGEST_MAX_SIZE", d.Ingest.MaxSize),
			Extensions: envList("INGEST_EXTENSIONS", d.Ingest.Extensions),
		},
		Subtitle: SubtitleConfig{
			MinHeight: envInt("SUBTITLE_MIN_HEIGHT", d.Subtitle.MinHeight),
			MaxHeight: envInt("SUBTITLE_MAX_HEIGHT", d.Subtitle.MaxHeight),
		},
		Moderation: ModerationConfig{
			Provider:          strings.ToLower(envString("MODERATION_PROVIDER", d.Moderation.Provider)),
			Timeout:           envDuration("MODERATION_TIMEOUT", d.Moderation.Timeout),
			RemoteTimeout:     envDuration("MODERATION_REMOTE_TIMEOUT", d.Moderation.RemoteTimeout),
			CompressThreshold: envInt64("MODERATION_COMPRESS_THRESHOLD", d.Moderation.CompressThreshold),
			CompressQuality:   envInt("MODERATION_COMPRESS_QUALITY", d.Moderation.CompressQuality),
			CompressMaxWidth:  envInt("MODERATION_COMPRESS_MAX_WIDTH", d.Moderation.CompressMaxWidth),
			MaxPayload:        envInt("MODERATION_MAX_PAYLOAD", d.Moderation.MaxPayload),
		},
		Compositor: CompositorConfig{
			Backend:     strings.ToLower(envString("COMPOSITOR_BACKEND", d.Compositor.Backend)),
			Format:      strings.ToLower(envString("COMPOSITOR_FORMAT", d.Compositor.Format)),
			Quality:     envInt("COMPOSITOR_QUALITY", d.Compositor.Quality),
			SettleDelay: envDuration("COMPOSITOR_SETTLE_DELAY", d.Compositor.SettleDelay),
		},
		Album: AlbumConfig{
			Dir:   os.Getenv("ALBUM_DIR"),
			Title: envString("ALBUM_TITLE", d.Album.Title),
		},
		PhotoPrism: PhotoPrismConfig{
			URL:      os.Getenv("PHOTOPRISM_URL"),
			Username: os.Getenv("PHOTOPRISM_USERNAME"),
			Password: os.Getenv("PHOTOPRISM_PASSWORD"),
			AlbumUID: os.Getenv("PHOTOPRISM_ALBUM_UID"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		WeChat: WeChatConfig{
			AppID:  os.Getenv("WECHAT_APP_ID"),
			Secret: os.Getenv("WECHAT_APP_SECRET"),
			APIURL: os.Getenv("WECHAT_API_URL"),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", d.Web.Port),
			Host:           envString("WEB_HOST", d.Web.Host),
			SessionTTL:     envDuration("WEB_SESSION_TTL", d.Web.SessionTTL),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", nil),
		},
		WorkDir: envString("WORK_DIR", filepath.Join(os.TempDir(), "subtitle-stitcher")),
	}

	// The local bound must not outlast the remote one.
	cfg.Moderation.Timeout = min(cfg.Moderation.Timeout, cfg.Moderation.RemoteTimeout)
	cfg.Compositor.Quality = min(cfg.Compositor.Quality, 100)

	return cfg
}
