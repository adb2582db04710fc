package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stickerbridge/internal/config"
	"stickerbridge/internal/dispatch"
	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/guardian"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/metrics"
	"stickerbridge/internal/sticker"
)

// Resolver resolves assets to deliverable URLs.
type Resolver interface {
	Resolve(ctx context.Context, asset sticker.Asset) (dispatch.Resolution, error)
}

// Deps are the long-lived services the handlers use. Guardian and Latency
// may be nil.
type Deps struct {
	Cache    *gifcache.Store
	Resolver Resolver
	Guardian *guardian.Guardian
	Latency  *metrics.LatencyTracker
}

// Server is the HTTP front end.
type Server struct {
	bind    string
	deps    Deps
	logger  *slog.Logger
	router  *mux.Router
	metrics bool

	listener net.Listener
	server   *http.Server
}

// New builds a Server and its routes.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:    strings.TrimSpace(cfg.Server.Bind),
		deps:    deps,
		logger:  logging.NewComponentLogger(logger, "server"),
		metrics: cfg.Metrics.Enabled,
	}

	rtr := mux.NewRouter()
	rtr.Use(s.requestID, s.instrument)
	rtr.HandleFunc("/gif/{name}", s.handleGIF).Methods(http.MethodGet, http.MethodHead)
	rtr.HandleFunc("/api/resolve", s.handleResolve).Methods(http.MethodPost)
	rtr.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	rtr.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.metrics {
		rtr.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	rtr.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	rtr.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = rtr

	s.server = &http.Server{
		Handler:           rtr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.DownloadTimeout() + cfg.TranscoderTimeout() + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("server: bind address not configured")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(ctx, s.logger, "http server error", "http_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that "+s.bind+" is free"),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}
