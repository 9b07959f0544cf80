package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/middleware"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

// SessionHandler handles session lifecycle and crop editing.
type SessionHandler struct {
	sessions *middleware.SessionManager
	jobs     *JobManager
}

// NewSessionHandler creates a new session handler. Deleting a session
// also forgets its ingest jobs in jobs.
func NewSessionHandler(sm *middleware.SessionManager, jobs *JobManager) *SessionHandler {
	return &SessionHandler{sessions: sm, jobs: jobs}
}

// SessionResponse is the JSON form of a session and its working set.
type SessionResponse struct {
	ID             string                 `json:"id"`
	Images         []geometry.ImageRecord `json:"images"`
	CoverWindow    *geometry.CropWindow   `json:"cover_window,omitempty"`
	SubtitleWindow *geometry.CropWindow   `json:"subtitle_window,omitempty"`
	Remaining      int                    `json:"remaining"`
	Generation     uint64                 `json:"generation"`
	ExpiresAt      time.Time              `json:"expires_at"`
}

func newSessionResponse(s *middleware.Session) SessionResponse {
	snap := s.Set.Snapshot()
	resp := SessionResponse{
		ID:          s.ID,
		Images:      snap.Images,
		CoverWindow: snap.CoverWindow,
		Remaining:   s.Set.Remaining(),
		Generation:  snap.Generation,
		ExpiresAt:   s.ExpiresAt,
	}
	if resp.Images == nil {
		resp.Images = []geometry.ImageRecord{}
	}
	if len(snap.Images) > 1 {
		win := snap.SubtitleWindow
		resp.SubtitleWindow = &win
	}
	return resp
}

// Create starts a session with an empty working set.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondJSON(w, http.StatusCreated, newSessionResponse(session))
}

// Get returns the session state.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(session))
}

// Delete ends a session and removes its files.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sessions.DeleteSession(id) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	h.jobs.DeleteSessionJobs(id)
	w.WriteHeader(http.StatusNoContent)
}

// CropRequest updates the crop windows. Omitted fields keep their value;
// reset_cover restores the full cover height.
type CropRequest struct {
	CoverBottom    *int `json:"cover_bottom"`
	ResetCover     bool `json:"reset_cover"`
	SubtitleTop    *int `json:"subtitle_top"`
	SubtitleBottom *int `json:"subtitle_bottom"`
}

// PlanResponse carries the current windows and, when the working set can
// be composited, the composition plan.
type PlanResponse struct {
	CoverWindow    *geometry.CropWindow `json:"cover_window,omitempty"`
	SubtitleWindow *geometry.CropWindow `json:"subtitle_window,omitempty"`
	Ready          bool                 `json:"ready"`
	Plan           *geometry.Plan       `json:"plan,omitempty"`
}

func newPlanResponse(set *workset.WorkingSet) PlanResponse {
	snap := set.Snapshot()
	resp := PlanResponse{CoverWindow: snap.CoverWindow}
	if len(snap.Images) > 1 {
		win := snap.SubtitleWindow
		resp.SubtitleWindow = &win
	}
	if plan, err := geometry.Compute(snap.Input()); err == nil {
		resp.Ready = true
		resp.Plan = plan
	}
	return resp
}

// Crop applies a crop update and returns the resulting plan. Values are
// clamped to the designated image heights.
func (h *SessionHandler) Crop(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}

	var req CropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if (req.SubtitleTop == nil) != (req.SubtitleBottom == nil) {
		respondError(w, http.StatusBadRequest, "subtitle_top and subtitle_bottom must be set together")
		return
	}

	switch {
	case req.ResetCover:
		session.Set.ResetCover()
	case req.CoverBottom != nil:
		if _, err := session.Set.SetCoverBottom(*req.CoverBottom); err != nil {
			respondCropError(w, err)
			return
		}
	}

	if req.SubtitleTop != nil {
		if _, err := session.Set.SetSubtitleWindow(*req.SubtitleTop, *req.SubtitleBottom); err != nil {
			respondCropError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, newPlanResponse(session.Set))
}

func respondCropError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workset.ErrNoCover):
		respondError(w, http.StatusConflict, "no cover image to crop")
	case errors.Is(err, workset.ErrNoPreview):
		respondError(w, http.StatusConflict, "no subtitle image to crop")
	default:
		respondError(w, http.StatusInternalServerError, "failed to update crop")
	}
}

// Plan returns the composition plan without drawing anything.
func (h *SessionHandler) Plan(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}

	plan, err := session.Set.Plan()
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "cannot generate")
		return
	}
	respondJSON(w, http.StatusOK, plan)
}
