package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

const defaultSessionDuration = 24 * time.Hour

type contextKey string

const sessionContextKey contextKey = "session"

// Session is one editing session: a working set plus the directory its
// uploads and composites live in.
type Session struct {
	ID        string
	Set       *workset.WorkingSet
	Dir       string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// UploadDir holds the session's uploaded originals.
func (s *Session) UploadDir() string {
	return filepath.Join(s.Dir, "uploads")
}

// OutputDir holds the session's composites.
func (s *Session) OutputDir() string {
	return filepath.Join(s.Dir, "outputs")
}

// SessionManager creates and expires sessions
type SessionManager struct {
	root     string
	setOpts  workset.Options
	duration time.Duration
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionManager keeps session files under root. A zero duration
// defaults to 24 hours.
func NewSessionManager(root string, setOpts workset.Options, duration time.Duration) *SessionManager {
	if duration <= 0 {
		duration = defaultSessionDuration
	}
	return &SessionManager{
		root:     root,
		setOpts:  setOpts,
		duration: duration,
		sessions: make(map[string]*Session),
	}
}

// CreateSession creates a session with an empty working set
func (sm *SessionManager) CreateSession() (*Session, error) {
	id := uuid.NewString()
	session := &Session{
		ID:        id,
		Set:       workset.New(sm.setOpts),
		Dir:       filepath.Join(sm.root, "sessions", id),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(sm.duration),
	}
	for _, dir := range []string{session.UploadDir(), session.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
	}

	sm.mu.Lock()
	sm.sessions[id] = session
	sm.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[sessionID]
	if !ok {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		go sm.DeleteSession(sessionID)
		return nil
	}

	return session
}

// DeleteSession clears the working set so in-flight batches are discarded,
// then removes the session and its files.
func (sm *SessionManager) DeleteSession(sessionID string) bool {
	sm.mu.Lock()
	session, ok := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
	if !ok {
		return false
	}

	session.Set.Clear()
	if err := os.RemoveAll(session.Dir); err != nil {
		slog.Warn("removing session directory", "session", sessionID, "error", err)
	}
	return true
}

// Sweep deletes every expired session and returns how many were removed.
func (sm *SessionManager) Sweep() int {
	now := time.Now()
	var expired []string
	sm.mu.RLock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	sm.mu.RUnlock()

	for _, id := range expired {
		sm.DeleteSession(id)
	}
	return len(expired)
}

// Close deletes every session.
func (sm *SessionManager) Close() {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()

	for _, id := range ids {
		sm.DeleteSession(id)
	}
}

// RequireSession resolves the {id} URL parameter to a session and stores
// it in the request context.
func RequireSession(sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSession(chi.URLParam(r, "id"))
			if session == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"session not found"}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext retrieves the session from the request context
func GetSessionFromContext(ctx context.Context) *Session {
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// SetSessionInContext adds a session to the context.
// This is primarily for testing - use RequireSession middleware in production.
func SetSessionInContext(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
