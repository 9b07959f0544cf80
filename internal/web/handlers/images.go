package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/ingest"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/middleware"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

// ImagesHandler handles adding and removing session images.
type ImagesHandler struct {
	jobs      *JobManager
	prober    imaging.Prober
	moderator ingest.Moderator
	opts      ingest.Options
}

// NewImagesHandler creates a new images handler. Each upload runs a fresh
// ingest pipeline built from prober, moderator and opts.
func NewImagesHandler(jobs *JobManager, prober imaging.Prober, moderator ingest.Moderator, opts ingest.Options) *ImagesHandler {
	return &ImagesHandler{
		jobs:      jobs,
		prober:    prober,
		moderator: moderator,
		opts:      opts,
	}
}

// saveUploadedFiles saves multipart files to dir and returns their paths.
// Names get a random prefix so repeated uploads never collide.
func saveUploadedFiles(files []*multipart.FileHeader, dir string) ([]string, error) {
	var filePaths []string
	for _, fileHeader := range files {
		if err := func() error {
			file, err := fileHeader.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", fileHeader.Filename)
			}
			defer file.Close()

			safeName := uuid.NewString()[:8] + "-" + filepath.Base(fileHeader.Filename)
			path := filepath.Join(dir, safeName)
			out, err := os.Create(path) //nolint:gosec // filename sanitized via filepath.Base
			if err != nil {
				return errors.New("failed to create upload file")
			}

			if _, err := io.Copy(out, file); err != nil {
				out.Close()
				return errors.New("failed to save file")
			}
			out.Close()

			filePaths = append(filePaths, path)
			return nil
		}(); err != nil {
			removeFiles(filePaths)
			return nil, err
		}
	}
	return filePaths, nil
}

// Upload stores the multipart "files" and starts an ingest job for them.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}

	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	paths, err := saveUploadedFiles(files, session.UploadDir())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	gen := session.Set.Generation()
	existing := session.Set.Len()

	ctx, cancel := context.WithCancel(context.Background())
	job := h.jobs.CreateJob(uuid.NewString(), session.ID, len(paths), cancel)

	go h.runIngest(ctx, job, session, paths, gen, existing)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"total":  len(paths),
	})
}

// runIngest screens paths and adds the accepted images to the session,
// unless the working set changed generation in the meantime.
func (h *ImagesHandler) runIngest(ctx context.Context, job *IngestJob, session *middleware.Session, paths []string, gen uint64, existing int) {
	defer job.cancel()

	job.update(func(j *IngestJob) {
		if j.Status == JobStatusPending {
			j.Status = JobStatusRunning
		}
	})
	job.SendEvent(JobEvent{Type: "started", Data: map[string]int{"total": len(paths)}})

	opts := h.opts
	opts.OnProgress = func(p ingest.ProgressInfo) {
		if p.Phase != ingest.PhaseModerating {
			return
		}
		job.update(func(j *IngestJob) { j.Processed = p.Current })
		job.SendEvent(JobEvent{Type: "progress", Data: map[string]any{
			"current": p.Current,
			"total":   p.Total,
			"file":    filepath.Base(p.Path),
		}})
	}

	result, err := ingest.New(h.prober, h.moderator, opts).Ingest(ctx, paths, existing)
	if err != nil {
		removeFiles(paths)
		h.finish(job, JobStatusFailed, nil, err.Error())
		return
	}
	if !job.commit() {
		removeFiles(paths)
		h.finish(job, JobStatusCancelled, nil, "")
		return
	}

	added, current := session.Set.AddIfCurrent(gen, result.Accepted...)
	accepted := result.Accepted[:added]

	var unused []string
	for _, rec := range result.Accepted[added:] {
		unused = append(unused, rec.Path)
	}
	for _, rec := range result.Rejected {
		unused = append(unused, rec.Path)
	}
	for _, d := range result.Dropped {
		unused = append(unused, d.Path)
	}
	unused = append(unused, result.Truncated...)
	removeFiles(unused)

	summary := &IngestJobResult{
		Accepted:      accepted,
		AcceptedCount: len(accepted),
		FilteredCount: result.RejectedCount(),
		Truncated:     baseNames(result.Truncated),
		Discarded:     !current,
	}
	for _, d := range result.Dropped {
		summary.Dropped = append(summary.Dropped, filepath.Base(d.Path))
	}
	if !current {
		slog.Info("discarding stale ingest batch", "session", session.ID, "job", job.ID)
	}

	h.finish(job, JobStatusCompleted, summary, "")
}

// finish records the outcome. A cancelled job stays cancelled.
func (h *ImagesHandler) finish(job *IngestJob, status JobStatus, result *IngestJobResult, errMsg string) {
	now := time.Now()
	job.update(func(j *IngestJob) {
		if j.Status == JobStatusCancelled {
			status, result, errMsg = JobStatusCancelled, nil, ""
		}
		j.Status = status
		j.Result = result
		j.Error = errMsg
		j.CompletedAt = &now
	})

	switch status {
	case JobStatusCompleted:
		msg := ""
		if result.FilteredCount > 0 {
			msg = fmt.Sprintf("%d image(s) filtered", result.FilteredCount)
		}
		job.SendEvent(JobEvent{Type: "completed", Message: msg, Data: result})
	case JobStatusFailed:
		job.SendEvent(JobEvent{Type: "job_error", Message: errMsg})
	}
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("removing upload", "path", p, "error", err)
		}
	}
}

func baseNames(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

// Remove deletes one image by index.
func (h *ImagesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image index")
		return
	}

	if err := session.Set.Remove(index); err != nil {
		if errors.Is(err, workset.ErrIndexOutOfRange) {
			respondError(w, http.StatusNotFound, "image not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to remove image")
		return
	}

	respondJSON(w, http.StatusOK, newSessionResponse(session))
}

// Clear removes every image. Ingest jobs still running for the session
// finish, but their results are discarded.
func (h *ImagesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}

	session.Set.Clear()
	respondJSON(w, http.StatusOK, newSessionResponse(session))
}
