package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// writeEvent writes one server-sent event and flushes it.
func writeEvent(w io.Writer, flusher http.Flusher, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamJob sends the job snapshot as a "status" event, then relays job
// events until the job reaches a terminal state or the client goes away.
// Idle streams get a comment line every heartbeat so proxies keep them open.
func streamJob(w http.ResponseWriter, r *http.Request, job *IngestJob, heartbeat time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := job.AddListener()
	defer job.RemoveListener(events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeEvent(w, flusher, "status", job.Snapshot()); err != nil {
		slog.Debug("event stream closed", "job", job.ID, "error", err)
		return
	}
	if isJobTerminal(job.GetStatus()) {
		return
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, event.Type, event); err != nil {
				slog.Debug("event stream closed", "job", job.ID, "error", err)
				return
			}
			if isJobTerminal(job.GetStatus()) {
				return
			}
		}
	}
}
