package album

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/subtitle-stitcher/internal/photoprism"
)

func writeOutput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stitch-abc.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Léto u moře", "leto-u-more"},
		{"  Movie Night!! 2024 ", "movie-night-2024"},
		{"字幕", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirSink_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "album")
	sink := NewDirSink(dir, "Subtitle Stitches")
	sink.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	dest, err := sink.Save(context.Background(), writeOutput(t))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if want := filepath.Join(dir, "subtitle-stitches-20260102-030405.000.jpg"); dest != want {
		t.Errorf("expected %s, got %s", want, dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Errorf("unexpected saved content %q (%v)", data, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the saved file in album dir, found %d entries", len(entries))
	}
}

func TestDirSink_DefaultPrefix(t *testing.T) {
	sink := NewDirSink(t.TempDir(), "")
	dest, err := sink.Save(context.Background(), writeOutput(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(filepath.Base(dest), "subtitle-stitch-") {
		t.Errorf("unexpected file name %s", filepath.Base(dest))
	}
}

func TestDirSink_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	_, err := NewDirSink(dir, "x").Save(context.Background(), writeOutput(t))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestDirSink_StorageFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewDirSink(filepath.Join(blocker, "album"), "x").Save(context.Background(), writeOutput(t))
	if !errors.Is(err, ErrStorageFailure) {
		t.Errorf("expected ErrStorageFailure, got %v", err)
	}

	_, err = NewDirSink(t.TempDir(), "x").Save(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	if !errors.Is(err, ErrStorageFailure) {
		t.Errorf("expected ErrStorageFailure for missing source, got %v", err)
	}
}

type fakeUploader struct {
	uploadErr  error
	processErr error
	albums     []string
}

func (f *fakeUploader) UploadFile(context.Context, string) (string, error) {
	return "tok", f.uploadErr
}

func (f *fakeUploader) ProcessUpload(_ context.Context, _ string, albums []string) error {
	f.albums = albums
	return f.processErr
}

func TestPhotoPrismSink_Save(t *testing.T) {
	up := &fakeUploader{}
	loc, err := NewPhotoPrismSink(up, "at1").Save(context.Background(), "stitch.jpg")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if loc != "at1" || len(up.albums) != 1 || up.albums[0] != "at1" {
		t.Errorf("unexpected location %q albums %v", loc, up.albums)
	}

	loc, err = NewPhotoPrismSink(&fakeUploader{}, "").Save(context.Background(), "stitch.jpg")
	if err != nil || loc != "library" {
		t.Errorf("expected library location, got %q (%v)", loc, err)
	}
}

func TestPhotoPrismSink_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		up   *fakeUploader
		want error
	}{
		{"unauthorized upload", &fakeUploader{uploadErr: &photoprism.StatusError{StatusCode: http.StatusUnauthorized}}, ErrPermissionDenied},
		{"forbidden process", &fakeUploader{processErr: &photoprism.StatusError{StatusCode: http.StatusForbidden}}, ErrPermissionDenied},
		{"server error", &fakeUploader{uploadErr: &photoprism.StatusError{StatusCode: http.StatusInternalServerError}}, ErrStorageFailure},
		{"transport error", &fakeUploader{uploadErr: errors.New("connection refused")}, ErrStorageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPhotoPrismSink(tt.up, "at1").Save(context.Background(), "stitch.jpg")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

type loggingUploader struct {
	fakeUploader
	loggedOut bool
}

func (l *loggingUploader) Logout(context.Context) error {
	l.loggedOut = true
	return nil
}

func TestClose(t *testing.T) {
	up := &loggingUploader{}
	if err := Close(context.Background(), NewPhotoPrismSink(up, "at1")); err != nil || !up.loggedOut {
		t.Errorf("expected PhotoPrism logout, got loggedOut=%v err=%v", up.loggedOut, err)
	}
	if err := Close(context.Background(), NewDirSink(t.TempDir(), "x")); err != nil {
		t.Errorf("DirSink close failed: %v", err)
	}
	if err := Close(context.Background(), nil); err != nil {
		t.Errorf("nil sink close failed: %v", err)
	}
}

func newPhotoPrismServer(t *testing.T) *httptest.Server {
	t.Helper()
	var loggedOut atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"access_token":"tok","user":{"UID":"us1"}}`))
	})
	mux.HandleFunc("/api/v1/session", func(w http.ResponseWriter, _ *http.Request) {
		loggedOut.Store(true)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/v1/albums/at1", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"UID":"at1","Title":"Stills","PhotoCount":2}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		if !loggedOut.Load() {
			t.Error("expected the PhotoPrism session to be closed")
		}
	})
	return server
}

func TestConnectPhotoPrism(t *testing.T) {
	server := newPhotoPrismServer(t)
	sink, err := ConnectPhotoPrism(context.Background(), server.URL, "admin", "secret", "at1")
	if err != nil {
		t.Fatalf("ConnectPhotoPrism failed: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestConnectPhotoPrism_UnknownAlbum(t *testing.T) {
	server := newPhotoPrismServer(t)
	_, err := ConnectPhotoPrism(context.Background(), server.URL, "admin", "secret", "missing")
	if !errors.Is(err, ErrStorageFailure) || !strings.Contains(err.Error(), "no such album missing") {
		t.Errorf("expected no such album error, got %v", err)
	}
}
