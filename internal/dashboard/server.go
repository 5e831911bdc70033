// Package dashboard serves the local web dashboard, JSON API, and
// Prometheus metrics.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/decision"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
)

// Server is the dashboard HTTP server.
type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	ledger  *audit.Ledger
	engine  *decision.Engine
	store   *policy.Store
	tracker *quota.Tracker
	addr    string
}

// NewServer creates a dashboard server.
func NewServer(addr string, ledger *audit.Ledger, engine *decision.Engine, store *policy.Store, tracker *quota.Tracker, logger *slog.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		ledger:  ledger,
		engine:  engine,
		store:   store,
		tracker: tracker,
		addr:    addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /", s.handleOverview)
	s.mux.HandleFunc("GET /incidents", s.handleIncidents)
	s.mux.HandleFunc("GET /incidents/stream", s.handleIncidentStream)
	s.mux.HandleFunc("GET /policy", s.handlePolicy)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleAPIStats)
	s.mux.HandleFunc("GET /api/v1/risk", s.handleAPIRisk)
	s.mux.HandleFunc("GET /api/v1/quota", s.handleAPIQuota)
	s.mux.HandleFunc("POST /api/v1/check", s.handleAPICheck)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// ListenAndServe starts the dashboard HTTP server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	s.logger.Info("starting dashboard", "addr", s.addr)
	return srv.ListenAndServe()
}

// Handler returns the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.mux }
