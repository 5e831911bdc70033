// Package hook is the local HTTP surface the browser extension calls:
// pre-load navigation checks, tab visibility transitions, search
// observations, and the override workflow endpoints.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/decision"
	"github.com/webward/webward/internal/override"
	"github.com/webward/webward/internal/quota"
)

// Server handles extension callbacks. Verdicts are synchronous; all
// slow work (delivery, persistence errors) happens off this path.
type Server struct {
	mux      *http.ServeMux
	engine   *decision.Engine
	tracker  *quota.Tracker
	override *override.Manager
	logger   *slog.Logger
	addr     string
}

// NewServer creates the hook server.
func NewServer(addr string, engine *decision.Engine, tracker *quota.Tracker, ovr *override.Manager, logger *slog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		engine:   engine,
		tracker:  tracker,
		override: ovr,
		logger:   logger,
		addr:     addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/navigation", s.handleNavigation)
	s.mux.HandleFunc("POST /v1/tab", s.handleTab)
	s.mux.HandleFunc("POST /v1/search", s.handleSearch)
	s.mux.HandleFunc("POST /v1/override/open", s.handleOverrideOpen)
	s.mux.HandleFunc("POST /v1/override/start", s.handleOverrideStart)
	s.mux.HandleFunc("POST /v1/override/confirm", s.handleOverrideConfirm)
	s.mux.HandleFunc("POST /v1/override/cancel", s.handleOverrideCancel)
	s.mux.HandleFunc("GET /v1/override/{domain}", s.handleOverrideStatus)
}

// ListenAndServe starts the hook HTTP server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	s.logger.Info("starting navigation hook", "addr", s.addr)
	return srv.ListenAndServe()
}

// Handler returns the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.mux }

type navigationRequest struct {
	URL       string    `json:"url"`
	TabID     string    `json:"tab_id"`
	Timestamp time.Time `json:"timestamp"`
}

type interstitial struct {
	Domain string          `json:"domain"`
	Type   api.BlockReason `json:"type"`
	Reason string          `json:"reason"`
}

type navigationResponse struct {
	Action       string        `json:"action"`
	Interstitial *interstitial `json:"interstitial,omitempty"`
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := api.ParseNavigation(req.URL, req.TabID, req.Timestamp)
	if err != nil || ev.Domain == "" {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	d := s.engine.Decide(r.Context(), ev)
	resp := navigationResponse{Action: "allow"}
	if !d.Allowed() {
		resp.Action = "redirect"
		resp.Interstitial = &interstitial{
			Domain: ev.Domain,
			Type:   d.Reason,
			Reason: d.Message,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	var ev api.TabEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.State != api.TabActive && ev.State != api.TabHidden {
		http.Error(w, "invalid tab state", http.StatusBadRequest)
		return
	}
	s.tracker.Observe(ev)
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	class := s.engine.RecordSearch(req.Query, req.Timestamp)
	writeJSON(w, http.StatusOK, map[string]string{"class": string(class)})
}

type overrideRequest struct {
	Domain string `json:"domain"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleOverrideOpen(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	state := s.override.Open(api.NormalizeDomain(req.Domain))
	writeJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

func (s *Server) handleOverrideStart(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	deadline, err := s.override.Start(api.NormalizeDomain(req.Domain))
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    string(override.StateCountingDown),
		"deadline": deadline,
	})
}

func (s *Server) handleOverrideConfirm(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a, err := s.override.Confirm(api.NormalizeDomain(req.Domain), req.Reason)
	if err != nil {
		var ire *override.InvalidRequestError
		if errors.As(err, &ire) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"granted": false,
				"error":   ire.Msg,
			})
			return
		}
		http.Error(w, "override failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granted":    true,
		"expires_at": a.ExpiresAt,
	})
}

func (s *Server) handleOverrideCancel(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.override.Cancel(api.NormalizeDomain(req.Domain))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOverrideStatus(w http.ResponseWriter, r *http.Request) {
	domain := api.NormalizeDomain(r.PathValue("domain"))
	state, remaining := s.override.Status(domain)
	writeJSON(w, http.StatusOK, map[string]any{
		"state":             string(state),
		"remaining_seconds": int(remaining.Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
