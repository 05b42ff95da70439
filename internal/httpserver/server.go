package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/whiterails/internal/config"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/mw"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/routes"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

// Server wraps the admin HTTP server and its dependencies.
type Server struct {
	http    *http.Server
	logger  logger.Logger
	started time.Time
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	log := loggerClient.Named("http")

	s := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(log, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:    s,
		logger:  log,
		started: d.StartTime,
	}
}

// NewRouter returns the chi router serving the admin API.
func NewRouter(log logger.Logger, d deps.Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)                // X-Request-ID on each request
	r.Use(middleware.Recoverer)                // never crash the daemon on a handler panic
	r.Use(middleware.Timeout(5 * time.Second)) // infra pings redis with its own 2s bound
	r.Use(mw.Log(log))

	routes.RegisterAll(r, d)
	return r
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. http.ErrServerClosed is reported as nil.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("admin API listening", logger.String("addr", ln.Addr().String()))
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("admin API shutting down", logger.Duration("uptime", time.Since(s.started)))
	return s.http.Shutdown(ctx)
}
