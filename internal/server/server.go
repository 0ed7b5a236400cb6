// Package server provides the HTTP API that lets an out-of-process playback
// pipeline resolve seek targets against fragment indexes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/autobrr/go-fragindex/internal/cache"
	"github.com/autobrr/go-fragindex/internal/config"
	"github.com/autobrr/go-fragindex/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
	version    string

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new HTTP server with the given configuration.
// The version parameter is used in the OpenAPI document.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(chimiddleware.Recoverer)

	humaConfig := huma.DefaultConfig("fragindex API", version)
	humaConfig.Info.Description = "Seek indexes for fragmented MP4 files without sidx or mfra"
	api := humachi.New(router, humaConfig)

	return &Server{
		config:  cfg,
		router:  router,
		api:     api,
		logger:  logger,
		version: version,
	}
}

// Mount registers the health and index routes backed by c.
func (s *Server) Mount(c *cache.Cache) error {
	indexHandler, err := NewIndexHandler(c, s.config.MediaRoot, s.logger)
	if err != nil {
		return err
	}
	NewHealthHandler(s.version, c).Register(s.api)
	indexHandler.Register(s.api)
	return nil
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	httpServer, listener, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(httpServer, listener)
}

// Addr returns the address the server listens on, or nil before it started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// listen binds the configured address. The server is registered before
// listen returns so a concurrent Shutdown always sees it.
func (s *Server) listen() (*http.Server, net.Listener, error) {
	addr := s.config.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("starting server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", listener.Addr().String()))
	return httpServer, listener, nil
}

func (s *Server) serve(httpServer *http.Server, listener net.Listener) error {
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server", slog.Duration("timeout", s.config.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe runs the server until ctx is canceled. The listener is bound
// before ListenAndServe waits on ctx, and it is closed by the time
// ListenAndServe returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer, listener, err := s.listen()
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.serve(httpServer, listener)
	}()

	select {
	case <-ctx.Done():
		shutdownErr := s.Shutdown(context.Background())
		// Serve refuses to start after Shutdown, so the listener may never
		// have been tracked.
		_ = listener.Close()
		if err := <-errChan; err != nil && shutdownErr == nil {
			shutdownErr = err
		}
		return shutdownErr
	case err := <-errChan:
		return err
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(slog.String("request_id", chimiddleware.GetReqID(r.Context())))
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(observability.ContextWithLogger(r.Context(), reqLogger)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			reqLogger.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("size", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
