package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Ingest.MaxCount != 9 || cfg.Ingest.MaxSize != 10*1024*1024 {
		t.Errorf("unexpected ingest defaults %+v", cfg.Ingest)
	}
	if diff := cmp.Diff([]string{"jpg", "jpeg", "png"}, cfg.Ingest.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}
	if cfg.Subtitle.MinHeight != 50 || cfg.Subtitle.MaxHeight != 500 {
		t.Errorf("unexpected subtitle limits %+v", cfg.Subtitle)
	}

	want := ModerationConfig{
		Provider:          "none",
		Timeout:           30 * time.Second,
		RemoteTimeout:     60 * time.Second,
		CompressThreshold: 500 * 1024,
		CompressQuality:   70,
		CompressMaxWidth:  1080,
		MaxPayload:        5 * 1024 * 1024,
	}
	if diff := cmp.Diff(want, cfg.Moderation); diff != "" {
		t.Errorf("moderation defaults mismatch (-want +got):\n%s", diff)
	}

	if cfg.Compositor.Backend != "retained" || cfg.Compositor.Format != "jpeg" ||
		cfg.Compositor.Quality != 100 || cfg.Compositor.SettleDelay != 500*time.Millisecond {
		t.Errorf("unexpected compositor defaults %+v", cfg.Compositor)
	}
	if cfg.PhotoPrism.Enabled() {
		t.Error("PhotoPrism should be disabled without a URL")
	}
	if cfg.Web.Port != 8080 || cfg.Web.Host != "0.0.0.0" || cfg.Web.SessionTTL != 24*time.Hour {
		t.Errorf("unexpected web defaults %+v", cfg.Web)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INGEST_MAX_COUNT", "4")
	t.Setenv("INGEST_EXTENSIONS", " png, webp ,")
	t.Setenv("MODERATION_PROVIDER", "WeChat")
	t.Setenv("MODERATION_TIMEOUT", "5s")
	t.Setenv("COMPOSITOR_BACKEND", "immediate")
	t.Setenv("COMPOSITOR_SETTLE_DELAY", "1s")
	t.Setenv("PHOTOPRISM_URL", "http://photos.local")
	t.Setenv("WECHAT_APP_ID", "wx1")
	t.Setenv("WORK_DIR", "/srv/stitch")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://stitch.example.com")

	cfg := Load()
	if cfg.Ingest.MaxCount != 4 {
		t.Errorf("expected max count 4, got %d", cfg.Ingest.MaxCount)
	}
	if diff := cmp.Diff([]string{"png", "webp"}, cfg.Ingest.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}
	if cfg.Moderation.Provider != "wechat" || cfg.Moderation.Timeout != 5*time.Second {
		t.Errorf("unexpected moderation config %+v", cfg.Moderation)
	}
	if cfg.Compositor.Backend != "immediate" || cfg.Compositor.SettleDelay != time.Second {
		t.Errorf("unexpected compositor config %+v", cfg.Compositor)
	}
	if !cfg.PhotoPrism.Enabled() || cfg.WeChat.AppID != "wx1" || cfg.WorkDir != "/srv/stitch" {
		t.Errorf("unexpected service config %+v %+v %s", cfg.PhotoPrism, cfg.WeChat, cfg.WorkDir)
	}
	if cfg.Web.Port != 9090 || len(cfg.Web.AllowedOrigins) != 1 {
		t.Errorf("unexpected web config %+v", cfg.Web)
	}
}

func TestLoad_TimeoutClampedToRemote(t *testing.T) {
	t.Setenv("MODERATION_TIMEOUT", "90s")
	t.Setenv("MODERATION_REMOTE_TIMEOUT", "45s")

	cfg := Load()
	if cfg.Moderation.Timeout != 45*time.Second {
		t.Errorf("expected timeout clamped to 45s, got %s", cfg.Moderation.Timeout)
	}
}

func TestEnvHelpers_InvalidValues(t *testing.T) {
	t.Setenv("TEST_INT", "-3")
	t.Setenv("TEST_DURATION", "soon")
	t.Setenv("TEST_INT64", "big")

	if got := envInt("TEST_INT", 7); got != 7 {
		t.Errorf("expected default for negative int, got %d", got)
	}
	if got := envDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("expected default for invalid duration, got %s", got)
	}
	if got := envInt64("TEST_INT64", 9); got != 9 {
		t.Errorf("expected default for invalid int64, got %d", got)
	}
	if got := envList("TEST_UNSET_LIST", []string{"a"}); len(got) != 1 || got[0] != "a" {
		t.Errorf("expected default list, got %v", got)
	}
}
