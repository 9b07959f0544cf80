package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/moderation"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/middleware"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Ingest:     config.IngestConfig{MaxCount: 9, MaxSize: 10 << 20, Extensions: []string{"jpg", "jpeg", "png"}},
		Subtitle:   config.SubtitleConfig{MinHeight: 50, MaxHeight: 500},
		Moderation: config.ModerationConfig{Provider: "none"},
		Compositor: config.CompositorConfig{Backend: "retained", Format: "png"},
	}
}

// newTestSessions creates a session manager under a temp dir with one session
func newTestSessions(t *testing.T) (*middleware.SessionManager, *middleware.Session) {
	t.Helper()
	sm := middleware.NewSessionManager(t.TempDir(), workset.Options{
		MaxCount:          9,
		MinSubtitleHeight: 50,
		MaxSubtitleHeight: 500,
	}, time.Hour)
	session, err := sm.CreateSession()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return sm, session
}

// requestWithSession creates a request with a session in context
func requestWithSession(method, path string, body *bytes.Buffer, session *middleware.Session) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	return req.WithContext(middleware.SetSessionInContext(req.Context(), session))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// writePNG writes a solid w x h PNG and returns its path
func writePNG(t *testing.T, dir, name string, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

// addImages puts probed PNGs straight into the session's working set
func addImages(t *testing.T, session *middleware.Session, sizes ...[2]int) {
	t.Helper()
	for i, size := range sizes {
		path := writePNG(t, session.UploadDir(), filepath.Base(t.Name())+string(rune('a'+i))+".png",
			size[0], size[1], color.RGBA{R: uint8(40 * i), G: 100, B: 200, A: 255})
		session.Set.Add(geometry.ImageRecord{Path: path, Width: size[0], Height: size[1]})
	}
}

// multipartBody builds a multipart form carrying the given files under "files"
func multipartBody(t *testing.T, paths ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, p := range paths {
		part, err := writer.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

// keywordModerator flags images whose file name contains keyword
type keywordModerator struct {
	keyword string
	release chan struct{}
}

func (m *keywordModerator) Check(ctx context.Context, rec geometry.ImageRecord) moderation.Result {
	if m.release != nil {
		<-m.release
	}
	if m.keyword != "" && strings.Contains(filepath.Base(rec.Path), m.keyword) {
		return moderation.Result{Passed: false, Reason: moderation.ReasonFlagged, Code: moderation.CodeFlagged}
	}
	return moderation.Result{Passed: true, Reason: moderation.ReasonClean}
}

// waitForJob polls until the job reaches a terminal state
func waitForJob(t *testing.T, job *IngestJob) JobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if isJobTerminal(job.GetStatus()) {
			return job.Snapshot()
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, status %s", job.ID, job.GetStatus())
	return JobView{}
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}
