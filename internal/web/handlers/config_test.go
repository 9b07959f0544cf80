package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigHandler_Get(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAI.Token = "sk-test"
	cfg.WeChat.AppID = "wx1" // no secret, so unavailable
	cfg.Album.Dir = "/srv/album"

	recorder := httptest.NewRecorder()
	NewConfigHandler(cfg).Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result ConfigResponse
	parseJSONResponse(t, recorder, &result)

	wantProviders := []ProviderInfo{
		{Name: "none", Available: true},
		{Name: "wechat", Available: false},
		{Name: "openai", Available: true},
		{Name: "gemini", Available: false},
		{Name: "ollama", Available: true},
	}
	if diff := cmp.Diff(wantProviders, result.Providers); diff != "" {
		t.Errorf("providers mismatch (-want +got):\n%s", diff)
	}
	if result.MaxImages != 9 || result.SubtitleMaxHeight != 500 || result.AlbumSink != "dir" {
		t.Errorf("unexpected config response %+v", result)
	}
}

func TestAlbumSinkName(t *testing.T) {
	cfg := testConfig()
	if got := albumSinkName(cfg); got != "" {
		t.Errorf("expected no sink, got %q", got)
	}
	cfg.Album.Dir = "/srv/album"
	cfg.PhotoPrism.URL = "http://photos.local"
	if got := albumSinkName(cfg); got != "photoprism" {
		t.Errorf("expected photoprism to win, got %q", got)
	}
}
