package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func isJobTerminal(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// IngestJob is one batch of uploaded images being screened into a session.
type IngestJob struct {
	EventBroadcaster

	ID          string
	SessionID   string
	Status      JobStatus
	Total       int
	Processed   int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *IngestJobResult

	committed bool // results are being applied, cancel no longer possible
}

// IngestJobResult summarizes a finished batch. Only the number of images
// filtered by moderation is reported, never the reason.
type IngestJobResult struct {
	Accepted      []geometry.ImageRecord `json:"accepted"`
	AcceptedCount int                    `json:"accepted_count"`
	FilteredCount int                    `json:"filtered_count"`
	Dropped       []string               `json:"dropped,omitempty"`
	Truncated     []string               `json:"truncated,omitempty"`
	Discarded     bool                   `json:"discarded"`
}

// GetStatus returns the current job status.
func (j *IngestJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// JobView is the encoded form of an IngestJob.
type JobView struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Status      JobStatus        `json:"status"`
	Total       int              `json:"total"`
	Processed   int              `json:"processed"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      *IngestJobResult `json:"result,omitempty"`
}

// Snapshot returns a copy of the job fields safe to encode.
func (j *IngestJob) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Status:      j.Status,
		Total:       j.Total,
		Processed:   j.Processed,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

func (j *IngestJob) update(fn func(j *IngestJob)) {
	j.mu.Lock()
	fn(j)
	j.mu.Unlock()
}

// Cancel cancels the ingest job. It reports false when the job already
// finished or is applying its results.
func (j *IngestJob) Cancel() bool {
	j.mu.Lock()
	if isJobTerminal(j.Status) || j.committed {
		j.mu.Unlock()
		return false
	}
	j.Status = JobStatusCancelled
	j.mu.Unlock()

	j.EventBroadcaster.Cancel()
	return true
}

// commit marks the job as applying its results unless it was cancelled.
func (j *IngestJob) commit() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == JobStatusCancelled {
		return false
	}
	j.committed = true
	return true
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	if b.cancel != nil {
		b.cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*IngestJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*IngestJob),
	}
}

// CreateJob creates a new pending ingest job. cancel stops the job's
// context and may be nil.
func (m *JobManager) CreateJob(id, sessionID string, total int, cancel context.CancelFunc) *IngestJob {
	job := &IngestJob{
		EventBroadcaster: EventBroadcaster{cancel: cancel},
		ID:               id,
		SessionID:        sessionID,
		Status:           JobStatusPending,
		Total:            total,
		StartedAt:        time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *IngestJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteSessionJobs forgets every job of sessionID and returns how many
// were removed. Running jobs keep going; their results are discarded by
// the working set generation.
func (m *JobManager) DeleteSessionJobs(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, job := range m.jobs {
		if job.SessionID == sessionID {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}

// Prune deletes terminal jobs that finished more than retention ago.
func (m *JobManager) Prune(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if isJobTerminal(snap.Status) && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}
