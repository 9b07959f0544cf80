package handlers

import (
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/ingest"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/middleware"
)

func uploadImages(t *testing.T, handler *ImagesHandler, jobs *JobManager, session *middleware.Session, paths ...string) *IngestJob {
	t.Helper()
	body, contentType := multipartBody(t, paths...)
	req := requestWithSession(http.MethodPost, "/", body, session)
	req.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	handler.Upload(recorder, req)
	assertStatusCode(t, recorder, http.StatusAccepted)

	var resp struct {
		JobID string `json:"job_id"`
		Total int    `json:"total"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Total != len(paths) {
		t.Errorf("expected total %d, got %d", len(paths), resp.Total)
	}
	job := jobs.GetJob(resp.JobID)
	if job == nil {
		t.Fatalf("job %s not registered", resp.JobID)
	}
	return job
}

func TestImagesHandler_Upload_FiltersFlagged(t *testing.T) {
	_, session := newTestSessions(t)
	src := t.TempDir()
	a := writePNG(t, src, "a.png", 40, 30, color.White)
	b := writePNG(t, src, "b-flagged.png", 40, 50, color.White)
	c := writePNG(t, src, "c.png", 40, 60, color.White)

	jobs := NewJobManager()
	handler := NewImagesHandler(jobs, imaging.FileProber{}, &keywordModerator{keyword: "flagged"}, ingest.Options{MaxCount: 9})

	view := waitForJob(t, uploadImages(t, handler, jobs, session, a, b, c))
	if view.Status != JobStatusCompleted || view.Result == nil {
		t.Fatalf("unexpected job %+v", view)
	}
	if view.Result.AcceptedCount != 2 || view.Result.FilteredCount != 1 || view.Result.Discarded {
		t.Errorf("unexpected result %+v", view.Result)
	}

	snap := session.Set.Snapshot()
	if len(snap.Images) != 2 || snap.Images[0].Height != 30 || snap.Images[1].Height != 60 {
		t.Fatalf("expected [a, c] in order, got %+v", snap.Images)
	}

	entries, _ := os.ReadDir(session.UploadDir())
	if len(entries) != 2 {
		t.Errorf("expected flagged upload to be removed, found %d files", len(entries))
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "flagged") {
			t.Errorf("flagged upload %s kept on disk", e.Name())
		}
	}
}

func TestImagesHandler_Upload_DiscardedAfterClear(t *testing.T) {
	_, session := newTestSessions(t)
	src := t.TempDir()
	a := writePNG(t, src, "a.png", 10, 10, color.White)

	jobs := NewJobManager()
	moderator := &keywordModerator{release: make(chan struct{})}
	handler := NewImagesHandler(jobs, imaging.FileProber{}, moderator, ingest.Options{})

	job := uploadImages(t, handler, jobs, session, a)
	session.Set.Clear()
	close(moderator.release)

	view := waitForJob(t, job)
	if view.Result == nil || !view.Result.Discarded || view.Result.AcceptedCount != 0 {
		t.Errorf("expected discarded batch, got %+v", view.Result)
	}
	if session.Set.Len() != 0 {
		t.Errorf("stale batch leaked into working set: %d images", session.Set.Len())
	}
}

func TestImagesHandler_Upload_CancelledDuringCheck(t *testing.T) {
	_, session := newTestSessions(t)
	src := t.TempDir()
	a := writePNG(t, src, "a.png", 10, 10, color.White)

	jobs := NewJobManager()
	moderator := &keywordModerator{release: make(chan struct{})}
	handler := NewImagesHandler(jobs, imaging.FileProber{}, moderator, ingest.Options{})

	job := uploadImages(t, handler, jobs, session, a)
	if !job.Cancel() {
		t.Fatal("expected running job to cancel")
	}
	close(moderator.release)

	deadline := time.Now().Add(5 * time.Second)
	for job.Snapshot().CompletedAt == nil {
		if time.Now().After(deadline) {
			t.Fatal("ingest did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	view := job.Snapshot()
	if view.Status != JobStatusCancelled || view.Result != nil {
		t.Errorf("expected cancelled job without result, got %+v", view)
	}
	if session.Set.Len() != 0 {
		t.Errorf("cancelled batch added %d images", session.Set.Len())
	}
	if entries, _ := os.ReadDir(session.UploadDir()); len(entries) != 0 {
		t.Errorf("expected uploads removed, found %d files", len(entries))
	}
}

func TestImagesHandler_Upload_Truncated(t *testing.T) {
	_, session := newTestSessions(t)
	for range 8 {
		session.Set.Add(geometry.ImageRecord{Path: "x.png", Width: 10, Height: 10})
	}
	src := t.TempDir()
	a := writePNG(t, src, "a.png", 10, 10, color.White)
	b := writePNG(t, src, "b.png", 10, 10, color.White)

	jobs := NewJobManager()
	handler := NewImagesHandler(jobs, imaging.FileProber{}, &keywordModerator{}, ingest.Options{MaxCount: 9})

	view := waitForJob(t, uploadImages(t, handler, jobs, session, a, b))
	if view.Result.AcceptedCount != 1 || len(view.Result.Truncated) != 1 {
		t.Errorf("expected one accepted and one truncated, got %+v", view.Result)
	}
	if session.Set.Len() != 9 {
		t.Errorf("expected working set at capacity, got %d", session.Set.Len())
	}
}

func TestImagesHandler_Upload_BadRequest(t *testing.T) {
	_, session := newTestSessions(t)
	handler := NewImagesHandler(NewJobManager(), imaging.FileProber{}, &keywordModerator{}, ingest.Options{})

	recorder := httptest.NewRecorder()
	handler.Upload(recorder, requestWithSession(http.MethodPost, "/", nil, session))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "failed to parse multipart form")

	body, contentType := multipartBody(t)
	req := requestWithSession(http.MethodPost, "/", body, session)
	req.Header.Set("Content-Type", contentType)
	recorder = httptest.NewRecorder()
	handler.Upload(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "no files provided")
}

func TestImagesHandler_RemoveAndClear(t *testing.T) {
	_, session := newTestSessions(t)
	session.Set.Add(
		geometry.ImageRecord{Path: "a.jpg", Width: 10, Height: 10},
		geometry.ImageRecord{Path: "b.jpg", Width: 10, Height: 20},
		geometry.ImageRecord{Path: "c.jpg", Width: 10, Height: 30},
	)
	handler := NewImagesHandler(NewJobManager(), imaging.FileProber{}, &keywordModerator{}, ingest.Options{})

	remove := func(index string) *httptest.ResponseRecorder {
		req := requestWithChiParams(requestWithSession(http.MethodDelete, "/", nil, session), map[string]string{"index": index})
		recorder := httptest.NewRecorder()
		handler.Remove(recorder, req)
		return recorder
	}

	recorder := remove("0")
	assertStatusCode(t, recorder, http.StatusOK)
	var resp SessionResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Images) != 2 || resp.Images[0].Path != "b.jpg" {
		t.Errorf("expected b.jpg to become cover, got %+v", resp.Images)
	}
	if resp.SubtitleWindow == nil || resp.SubtitleWindow.Bottom != 30 {
		t.Errorf("expected subtitle window re-defaulted from c.jpg, got %v", resp.SubtitleWindow)
	}

	assertStatusCode(t, remove("7"), http.StatusNotFound)
	assertStatusCode(t, remove("x"), http.StatusBadRequest)

	recorder = httptest.NewRecorder()
	handler.Clear(recorder, requestWithSession(http.MethodDelete, "/", nil, session))
	assertStatusCode(t, recorder, http.StatusOK)
	if session.Set.Len() != 0 {
		t.Errorf("expected empty working set, got %d", session.Set.Len())
	}
}
