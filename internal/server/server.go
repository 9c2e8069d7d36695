package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veilcast/veilcast/internal/domain"
	"github.com/veilcast/veilcast/internal/server/handler"
	"github.com/veilcast/veilcast/internal/server/middleware"
	"github.com/veilcast/veilcast/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Events      *handler.EventHandler
	Submissions *handler.SubmissionHandler
	Finalize    *handler.FinalizeHandler
	Stats       *handler.StatsHandler
}

// Server is the headless HTTP + WebSocket API for the prediction ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. The rate limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Event lifecycle.
	mux.HandleFunc("POST /api/events", handlers.Events.CreateEvent)
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/events/{id}", handlers.Events.GetEvent)
	mux.HandleFunc("POST /api/events/{id}/end", handlers.Events.EndEvent)
	mux.HandleFunc("POST /api/events/{id}/price", handlers.Events.SetReferencePrice)

	// Submissions.
	mux.HandleFunc("POST /api/events/{id}/submissions", handlers.Submissions.Submit)
	mux.HandleFunc("GET /api/events/{id}/submissions/{address}", handlers.Submissions.HasSubmitted)
	mux.HandleFunc("POST /api/submissions/batch", handlers.Submissions.SubmitBatch)

	// Finalization and the oracle callback.
	mux.HandleFunc("POST /api/events/{id}/finalize", handlers.Finalize.Finalize)
	mux.HandleFunc("GET /api/events/{id}/finalize", handlers.Finalize.PendingRequest)
	mux.HandleFunc("GET /api/events/{id}/snapshot", handlers.Finalize.Snapshot)
	mux.HandleFunc("POST /api/oracle/callback", handlers.Finalize.OracleCallback)

	// Read-side queries.
	mux.HandleFunc("GET /api/stats", handlers.Stats.Stats)
	mux.HandleFunc("GET /api/participants/{address}/history", handlers.Stats.History)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the fully wired middleware chain, for use in tests and
// embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
