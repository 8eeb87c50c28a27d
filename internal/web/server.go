// Package web serves the local control surface: the OAuth redirect
// callback, a status page with start/stop controls and a small JSON API
// used by the CLI.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jfmyers9/spotlog/internal/daemon"
	"github.com/rs/zerolog"
)

// DefaultAddr is where the control surface listens. The redirect URI
// registered with Spotify must point at this address.
const DefaultAddr = "127.0.0.1:8501"

// Controller is the part of the poll driver the handlers drive
type Controller interface {
	AuthURL() string
	CodeReceived(ctx context.Context, code, state string) error
	Start() error
	Stop()
	Snapshot() daemon.Status
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr    string
	Metrics http.Handler // Optional: served at /metrics
}

// Server is the HTTP control surface
type Server struct {
	router    chi.Router
	server    *http.Server
	ctl       Controller
	templates *Templates
	logger    zerolog.Logger
}

// NewServer creates a Server around ctl
func NewServer(cfg ServerConfig, ctl Controller, logger zerolog.Logger) (*Server, error) {
	templates, err := NewTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		router:    chi.NewRouter(),
		ctl:       ctl,
		templates: templates,
		logger:    logger.With().Str("component", "web").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.Metrics)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.Get("/", s.home)
	s.router.Get("/login", s.login)
	s.router.Get("/callback", s.callback)
	s.router.Post("/start", s.startForm)
	s.router.Post("/stop", s.stopForm)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.apiStatus)
		r.Post("/start", s.apiStart)
		r.Post("/stop", s.apiStop)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	if metrics != nil {
		s.router.Handle("/metrics", metrics)
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info().Str("addr", "http://"+ln.Addr().String()).Msg("Control surface listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Debug().Msg("Control surface stopped")
	return ctx.Err()
}

// requestLogger logs each request at debug level. Query strings are left
// out since the callback carries the authorization code.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("Request")
		})
	}
}
