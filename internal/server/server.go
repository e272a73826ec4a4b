// Package server exposes the websocket ingestion endpoint and the HTTP
// operational surface (health probes and Prometheus metrics).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sentavox/sentavox/internal/health"
	"github.com/sentavox/sentavox/internal/observe"
	"github.com/sentavox/sentavox/internal/session"
)

// defaultShutdownGrace bounds session draining and HTTP shutdown.
const defaultShutdownGrace = 10 * time.Second

// Config holds the server's dependencies.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g. ":8080").
	ListenAddr string

	// Manager owns the live sessions.
	Manager *session.Manager

	// Metrics instruments the HTTP layer. Nil disables the middleware.
	Metrics *observe.Metrics

	// Health serves /healthz and /readyz. Nil registers no probes.
	Health *health.Handler

	// ShutdownGrace bounds draining on shutdown. Zero takes the default.
	ShutdownGrace time.Duration
}

// Server ties the websocket transport to the session manager and serves
// the operational endpoints.
type Server struct {
	cfg     Config
	manager *session.Manager
	httpSrv *http.Server
}

// New creates a Server. Call Run to start serving.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("server: listen address must not be empty")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("server: session manager is required")
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	s := &Server{cfg: cfg, manager: cfg.Manager}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}

	var handler http.Handler = mux
	if cfg.Metrics != nil {
		handler = observe.Middleware(cfg.Metrics)(mux)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled, then drains sessions and shuts the
// HTTP server down within the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", s.cfg.ListenAddr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		grace, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()

		s.manager.CloseAll(grace, session.ReasonServerShutdown)
		if err := s.httpSrv.Shutdown(grace); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// handleWS upgrades the request and serves the connection until the client
// disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser dashboards connect cross-origin; audio ingest carries no
		// credentials, so origin checks stay permissive.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	slog.Info("client connected", "remote", r.RemoteAddr)
	c := &conn{
		srv:  s,
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
	}
	c.serve(r.Context())
	slog.Info("client disconnected", "remote", r.RemoteAddr)
}
