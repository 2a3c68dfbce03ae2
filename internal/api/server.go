// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apihandler "github.com/newthinker/scalper/internal/api/handler/api"
	"github.com/newthinker/scalper/internal/api/handler/web"
	"github.com/newthinker/scalper/internal/api/job"
	"github.com/newthinker/scalper/internal/api/middleware"
	"github.com/newthinker/scalper/internal/api/response"
	"github.com/newthinker/scalper/internal/metrics"
	"github.com/newthinker/scalper/internal/session"
	"github.com/newthinker/scalper/internal/storage/archive"
	"github.com/newthinker/scalper/internal/storage/journal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the scalper dashboard
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	deps       Dependencies
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	APIKey         string
	TemplatesDir   string
	MetricsEnabled bool
	MetricsPath    string
}

// Controller is the part of app.App the server drives.
type Controller interface {
	apihandler.Controller
	Stats() map[string]any
}

// Dependencies holds the components the handlers read from.
type Dependencies struct {
	App      Controller
	Session  *session.Session
	Journal  journal.Journal
	Archiver *archive.Archiver
	Live     http.Handler
	Metrics  *metrics.Registry
	// Replayer enables the replay job routes when set.
	Replayer apihandler.Replayer
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.App == nil || deps.Session == nil {
		return nil, fmt.Errorf("app and session are required")
	}
	if deps.Journal == nil {
		deps.Journal = journal.NewNoop()
	}

	mux := http.NewServeMux()
	s := &Server{
		logger: logger,
		mux:    mux,
		deps:   deps,
	}

	// Set up routes
	if err := s.setupRoutes(cfg); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	handler = metrics.LoggingMiddleware(logger)(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) error {
	// Web UI routes
	webHandler, err := web.NewHandler(cfg.TemplatesDir, s.deps.Session, s.deps.App)
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}

	s.mux.HandleFunc("GET /{$}", webHandler.Dashboard)
	s.mux.HandleFunc("GET /history", webHandler.History)
	s.mux.HandleFunc("GET /partials/live", webHandler.Live)
	s.mux.HandleFunc("POST /pair", webHandler.SelectPair)
	s.mux.HandleFunc("POST /interval", webHandler.SetInterval)
	s.mux.HandleFunc("POST /clear", webHandler.Clear)

	if s.deps.Live != nil {
		s.mux.Handle("GET /ws", s.deps.Live)
	}

	// Health check (no auth)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if cfg.MetricsEnabled && s.deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}

	// API v1 routes (auth required when a key is configured)
	dashboard := apihandler.NewDashboardHandler(s.deps.Session, s.deps.App)
	hist := apihandler.NewHistoryHandler(s.deps.Session)
	journalHandler := apihandler.NewJournalHandler(s.deps.Journal)
	archives := apihandler.NewArchiveHandler(s.deps.Archiver)

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /api/v1/snapshot", dashboard.Snapshot)
	v1.HandleFunc("GET /api/v1/pairs", dashboard.Pairs)
	v1.HandleFunc("POST /api/v1/pair", dashboard.SelectPair)
	v1.HandleFunc("POST /api/v1/interval", dashboard.SetInterval)
	v1.HandleFunc("GET /api/v1/history", hist.List)
	v1.HandleFunc("POST /api/v1/history/clear", hist.Clear)
	v1.HandleFunc("GET /api/v1/journal", journalHandler.List)
	v1.HandleFunc("GET /api/v1/archives", archives.List)
	v1.HandleFunc("GET /api/v1/stats", s.handleStats)

	if s.deps.Replayer != nil {
		replays := apihandler.NewReplayHandler(job.NewStore(50, time.Hour), s.deps.Replayer, s.deps.Session)
		v1.HandleFunc("POST /api/v1/replays", replays.Create)
		v1.HandleFunc("GET /api/v1/replays", replays.List)
		v1.HandleFunc("GET /api/v1/replays/{id}", replays.Get)
	}

	s.mux.Handle("/api/v1/", middleware.APIKeyAuth(cfg.APIKey)(v1))

	return nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"feed":   string(s.deps.Session.Status()),
		"pair":   s.deps.Session.Pair().Label,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, s.deps.App.Stats())
}
