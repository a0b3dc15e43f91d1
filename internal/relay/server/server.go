// Package server implements the relay's HTTP/WebSocket surface: upgrade
// admission, message routing, heartbeats, health, and metrics
// (spec.md §4.2).
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tfclaw/tfclaw/internal/metrics"
	"github.com/tfclaw/tfclaw/internal/relay/config"
	"github.com/tfclaw/tfclaw/internal/relay/quota"
	"github.com/tfclaw/tfclaw/internal/relay/session"
)

// Server is the relay's HTTP server: it owns the session registry, the
// quota tracker, and the set of currently open sockets.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *session.Registry
	quota    *quota.Tracker

	mu       sync.Mutex
	sockets  map[*socket]struct{}
	draining bool

	httpSrv *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: session.NewRegistry(cfg.MaxSnapshotChars),
		quota:    quota.New(cfg.UpgradeRateWindow(), cfg.MaxUpgradesPerWindowPerIP),
		sockets:  make(map[*socket]struct{}),
	}
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WSPath, s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve runs the HTTP server and heartbeat loop until ctx is canceled,
// then drains: stop admitting new upgrades, close every open socket
// with 1001 ("going away"), and wait for the listener to shut down.
func (s *Server) Serve(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: metrics.HTTPMiddleware(s.buildMux()),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("relay listening", "addr", s.cfg.Addr(), "path", s.cfg.WSPath)
		err := s.httpSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		s.heartbeatLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	s.mu.Lock()
	s.draining = true
	sockets := make([]*socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		sock.Close(1001, "relay shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) trackSocket(sock *socket) {
	s.mu.Lock()
	s.sockets[sock] = struct{}{}
	s.mu.Unlock()
	metrics.RelaySocketsActive.WithLabelValues(roleName(sock.role)).Inc()
}

func (s *Server) untrackSocket(sock *socket) {
	s.mu.Lock()
	delete(s.sockets, sock)
	s.mu.Unlock()
	metrics.RelaySocketsActive.WithLabelValues(roleName(sock.role)).Dec()
}

func (s *Server) isDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

func roleName(r session.Role) string {
	if r == session.RoleAgent {
		return "agent"
	}
	return "client"
}

// handleHealth implements the GET /health contract from spec.md §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("cache-control", "no-store")
	w.Header().Set("x-content-type-options", "nosniff")
	w.Header().Set("content-type", "application/json")

	s.mu.Lock()
	socketCount := len(s.sockets)
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"service": "tfclaw-relay",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"sessions": s.registry.Len(),
		"sockets":  socketCount,
	})
}

// errResponse writes a bare-status admission error, per spec.md §7
// ("No body beyond the status; connection closed").
func errResponse(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}
