package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
)

// JobsHandler exposes ingest job status and progress.
type JobsHandler struct {
	jobs      *JobManager
	heartbeat time.Duration
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs *JobManager) *JobsHandler {
	return &JobsHandler{jobs: jobs, heartbeat: constants.SSEHeartbeat}
}

// Get returns the job state.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Events streams job progress as server-sent events.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	streamJob(w, r, job, h.heartbeat)
}

// Cancel stops a running job between images.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.Cancel() {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(JobStatusCancelled)})
}
