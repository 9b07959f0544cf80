package moderation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

func newWeChatServer(t *testing.T, checkCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tokenCalls atomic.Int32
	var checkCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if r.URL.Query().Get("appid") != "wx123" || r.URL.Query().Get("secret") != "s3cret" {
			json.NewEncoder(w).Encode(map[string]any{"errcode": 40013, "errmsg": "invalid appid"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
	})
	mux.HandleFunc("/wxa/img_sec_check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("access_token") != "tok" {
			t.Errorf("unexpected access token %q", r.URL.Query().Get("access_token"))
		}
		file, header, err := r.FormFile("media")
		if err != nil {
			t.Errorf("missing media field: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "image-bytes" {
			t.Errorf("unexpected media content %q", data)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %s", ct)
		}

		n := int(checkCalls.Add(1)) - 1
		code := checkCodes[min(n, len(checkCodes)-1)]
		json.NewEncoder(w).Encode(map[string]any{"errcode": code, "errmsg": "ok"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &tokenCalls
}

func TestWeChatChecker_Check(t *testing.T) {
	server, tokenCalls := newWeChatServer(t, []int{CodeFlagged, CodeClean})
	c := NewWeChatChecker("wx123", "s3cret", server.URL, 5*time.Second)

	code, err := c.Check(context.Background(), []byte("image-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if code != CodeFlagged {
		t.Errorf("expected %d, got %d", CodeFlagged, code)
	}

	code, err = c.Check(context.Background(), []byte("image-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if code != CodeClean {
		t.Errorf("expected 0, got %d", code)
	}

	if tokenCalls.Load() != 1 {
		t.Errorf("expected access token to be cached, fetched %d times", tokenCalls.Load())
	}
}

func TestWeChatChecker_RefreshesExpiredToken(t *testing.T) {
	server, tokenCalls := newWeChatServer(t, []int{wechatTokenExpired, CodeClean})
	c := NewWeChatChecker("wx123", "s3cret", server.URL, 5*time.Second)

	code, err := c.Check(context.Background(), []byte("image-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if code != CodeClean {
		t.Errorf("expected 0 after token refresh, got %d", code)
	}
	if tokenCalls.Load() != 2 {
		t.Errorf("expected token to be fetched twice, got %d", tokenCalls.Load())
	}
}

func TestWeChatChecker_BadCredentials(t *testing.T) {
	server, _ := newWeChatServer(t, []int{CodeClean})
	c := NewWeChatChecker("wrong", "s3cret", server.URL, 5*time.Second)

	_, err := c.Check(context.Background(), []byte("image-bytes"), "image/jpeg")
	if err == nil {
		t.Fatal("expected error for bad credentials")
	}

	// The gate still lets the image through.
	if res := verdict(outcome{err: err}); !res.Passed || res.Reason != ReasonError {
		t.Errorf("expected error pass, got %+v", res)
	}
}

func TestWeChatChecker_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewWeChatChecker("wx123", "s3cret", server.URL, 5*time.Second)
	if _, err := c.Check(context.Background(), []byte("x"), "image/jpeg"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestOllamaChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode int
		wantErr  bool
	}{
		{"flagged", `{"flagged": true}`, CodeFlagged, false},
		{"clean with chatter", `Verdict: {"flagged": false} done`, CodeClean, false},
		{"missing field", `{"safe": true}`, 0, true},
		{"not json", `I cannot help with that`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/chat" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				var req ollamaRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("failed to decode request: %v", err)
				}
				if len(req.Messages) != 2 || len(req.Messages[1].Images) != 1 {
					t.Errorf("expected image in user message, got %+v", req.Messages)
				}
				resp := map[string]any{"model": req.Model, "done": true, "message": map[string]string{"role": "assistant", "content": tt.content}}
				json.NewEncoder(w).Encode(resp)
			}))
			defer server.Close()

			c := NewOllamaChecker(server.URL, "")
			code, err := c.Check(context.Background(), []byte("img"), "image/png")
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("expected code %d, got %d", tt.wantCode, code)
			}
		})
	}
}

func TestOpenAIChecker_Check(t *testing.T) {
	for _, flagged := range []bool{true, false} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/moderations") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "data:image/jpeg;base64,") {
				t.Errorf("expected data URL in request, got %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "modr-1",
				"model":   "omni-moderation-latest",
				"results": []map[string]any{{"flagged": flagged}},
			})
		}))

		c := NewOpenAIChecker("test-key", option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
		code, err := c.Check(context.Background(), []byte("img"), "image/jpeg")
		server.Close()
		if err != nil {
			t.Fatalf("flagged=%v: Check failed: %v", flagged, err)
		}
		want := CodeClean
		if flagged {
			want = CodeFlagged
		}
		if code != want {
			t.Errorf("flagged=%v: expected %d, got %d", flagged, want, code)
		}
	}
}

func TestGeminiVerdict(t *testing.T) {
	textResponse := func(text string) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
			}},
		}
	}

	tests := []struct {
		name     string
		resp     *genai.GenerateContentResponse
		wantCode int
		wantErr  bool
	}{
		{"blocked prompt", &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}, CodeFlagged, false},
		{"safety stop", &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		}, CodeFlagged, false},
		{"flagged verdict", textResponse(`{"flagged": true}`), CodeFlagged, false},
		{"clean verdict", textResponse(`{"flagged": false}`), CodeClean, false},
		{"garbage", textResponse(`maybe`), 0, true},
		{"nil", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := geminiVerdict(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{`text {"a":{"b":2}} trailing`, `{"a":{"b":2}}`},
		{`no json`, `no json`},
		{`{"open":`, `{"open":`},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
