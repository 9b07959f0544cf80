package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/subtitle-stitcher/internal/album"
	"github.com/kozaktomas/subtitle-stitcher/internal/config"
	"github.com/kozaktomas/subtitle-stitcher/internal/constants"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/ingest"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/handlers"
	"github.com/kozaktomas/subtitle-stitcher/internal/web/middleware"
	"github.com/kozaktomas/subtitle-stitcher/internal/workset"
)

const janitorInterval = time.Minute

// Dependencies are the collaborators the API drives.
type Dependencies struct {
	Prober     imaging.Prober
	Moderator  ingest.Moderator
	Compositor handlers.CompositorFactory
	Sink       album.Sink // nil disables saving
}

// Server represents the web server
type Server struct {
	config         *config.Config
	deps           Dependencies
	router         *chi.Mux
	httpServer     *http.Server
	jobManager     *handlers.JobManager
	sessionManager *middleware.SessionManager
	outputs        *handlers.OutputRegistry
	stop           chan struct{}
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, port int, host string, deps Dependencies) *Server {
	r := chi.NewRouter()

	sessionManager := middleware.NewSessionManager(cfg.WorkDir, workset.Options{
		MaxCount:          cfg.Ingest.MaxCount,
		MinSubtitleHeight: cfg.Subtitle.MinHeight,
		MaxSubtitleHeight: cfg.Subtitle.MaxHeight,
	}, cfg.Web.SessionTTL)

	s := &Server{
		config:         cfg,
		deps:           deps,
		router:         r,
		jobManager:     handlers.NewJobManager(),
		sessionManager: sessionManager,
		outputs:        handlers.NewOutputRegistry(),
		stop:           make(chan struct{}),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(constants.RequestTimeout))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: constants.RequestTimeout, // SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	go s.janitor()

	return s
}

// janitor expires sessions and forgets finished jobs until Shutdown.
func (s *Server) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.sessionManager.Sweep(); n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
			s.jobManager.Prune(constants.JobRetention)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and removes session files
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down web server")
	close(s.stop)

	err := s.httpServer.Shutdown(ctx)
	s.sessionManager.Close()
	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
