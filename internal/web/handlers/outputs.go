package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/subtitle-stitcher/internal/album"
	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
)

// Output is a composite file produced for a session.
type Output struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Path      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// OutputRegistry maps output IDs to composite files.
type OutputRegistry struct {
	outputs map[string]Output
	mu      sync.RWMutex
}

// NewOutputRegistry creates an empty registry.
func NewOutputRegistry() *OutputRegistry {
	return &OutputRegistry{outputs: make(map[string]Output)}
}

// Register records path and returns its ID, taken from the file name
// when it follows the composite naming scheme.
func (o *OutputRegistry) Register(sessionID, path string) Output {
	base := filepath.Base(path)
	id := strings.TrimSuffix(strings.TrimPrefix(base, constants.OutputPrefix), filepath.Ext(base))
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	out := Output{ID: id, SessionID: sessionID, Path: path, CreatedAt: time.Now()}
	o.mu.Lock()
	o.outputs[id] = out
	o.mu.Unlock()
	return out
}

// Get looks up an output whose file still exists.
func (o *OutputRegistry) Get(id string) (Output, bool) {
	o.mu.RLock()
	out, ok := o.outputs[id]
	o.mu.RUnlock()
	if !ok {
		return Output{}, false
	}
	if _, err := os.Stat(out.Path); err != nil {
		o.mu.Lock()
		delete(o.outputs, id)
		o.mu.Unlock()
		return Output{}, false
	}
	return out, true
}

// OutputHandler serves composites and saves them to the album.
type OutputHandler struct {
	outputs *OutputRegistry
	sink    album.Sink
}

// NewOutputHandler creates a new output handler. A nil sink disables saving.
func NewOutputHandler(outputs *OutputRegistry, sink album.Sink) *OutputHandler {
	return &OutputHandler{outputs: outputs, sink: sink}
}

// Get serves the composite file.
func (h *OutputHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, ok := h.outputs.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "output not found")
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, out.Path)
}

// Save copies the composite into the configured album. Permission
// problems return 403 with open_settings so the client can send the user
// to the album settings.
func (h *OutputHandler) Save(w http.ResponseWriter, r *http.Request) {
	out, ok := h.outputs.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "output not found")
		return
	}
	if h.sink == nil {
		respondError(w, http.StatusNotImplemented, "no album configured")
		return
	}

	location, err := h.sink.Save(r.Context(), out.Path)
	if err != nil {
		slog.Error("saving to album", "output", out.ID, "error", sanitizeForLog(err.Error()))
		if errors.Is(err, album.ErrPermissionDenied) {
			respondJSON(w, http.StatusForbidden, map[string]any{
				"error":         "permission denied, check album settings",
				"open_settings": true,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to save to album")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"saved":    true,
		"location": location,
	})
}
