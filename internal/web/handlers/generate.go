package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/subtitle-stitcher/internal/compositor"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
)

// CompositorFactory builds a compositor writing into outputDir.
type CompositorFactory func(outputDir string) (*compositor.Compositor, error)

// GenerateHandler composites a session's working set.
type GenerateHandler struct {
	newCompositor CompositorFactory
	outputs       *OutputRegistry
}

// NewGenerateHandler creates a new generate handler.
func NewGenerateHandler(factory CompositorFactory, outputs *OutputRegistry) *GenerateHandler {
	return &GenerateHandler{newCompositor: factory, outputs: outputs}
}

// GenerateResponse identifies the produced composite.
type GenerateResponse struct {
	OutputID string `json:"output_id"`
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Generate draws the current plan. The working set is left untouched on
// failure so the user can retry.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	session := mustGetSession(w, r)
	if session == nil {
		return
	}

	plan, err := session.Set.Plan()
	if err != nil {
		if errors.Is(err, geometry.ErrInvalidGeometry) {
			respondError(w, http.StatusUnprocessableEntity, "cannot generate")
			return
		}
		respondError(w, http.StatusInternalServerError, "generation failed, please retry")
		return
	}

	comp, err := h.newCompositor(session.OutputDir())
	if err != nil {
		slog.Error("creating compositor", "error", err)
		respondError(w, http.StatusInternalServerError, "generation failed, please retry")
		return
	}
	defer comp.Close()

	path, err := comp.Composite(r.Context(), plan)
	if err != nil {
		slog.Error("composition failed", "session", session.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "generation failed, please retry")
		return
	}

	out := h.outputs.Register(session.ID, path)
	respondJSON(w, http.StatusCreated, GenerateResponse{
		OutputID: out.ID,
		URL:      "/api/v1/outputs/" + out.ID,
		Width:    plan.CanvasWidth,
		Height:   plan.CanvasHeight,
	})
}
