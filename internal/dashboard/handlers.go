package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/webward/webward/api"
)

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := map[string]any{
		"Page":  "overview",
		"Stats": s.ledger.Stats(),
		"Risk":  s.engine.RiskSnapshot(),
	}
	renderPage(w, "overview", data)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	incidents := s.ledger.Query(api.QueryFilter{Limit: 100})

	// Reverse to show newest first
	for i, j := 0, len(incidents)-1; i < j; i, j = i+1, j-1 {
		incidents[i], incidents[j] = incidents[j], incidents[i]
	}
	data := map[string]any{
		"Page":      "incidents",
		"Incidents": incidents,
	}
	renderPage(w, "incidents", data)
}

func (s *Server) handleIncidentStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.ledger.Subscribe()
	defer cancel()

	for {
		select {
		case inc, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(inc)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: incident\ndata: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	pf := s.store.Current()
	policyYAML, _ := yaml.Marshal(pf)
	data := map[string]any{
		"Page":       "policy",
		"PolicyYAML": string(policyYAML),
		"Allowances": s.store.Allowances(),
	}
	renderPage(w, "policy", data)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Stats())
}

func (s *Server) handleAPIRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.RiskSnapshot())
}

func (s *Server) handleAPIQuota(w http.ResponseWriter, r *http.Request) {
	snapshot := s.tracker.Snapshot()
	out := make(map[string]float64, len(snapshot))
	for domain, elapsed := range snapshot {
		out[domain] = elapsed.Minutes()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICheck(w http.ResponseWriter, r *http.Request) {
	var req api.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ev, err := api.ParseNavigation(req.URL, req.TabID, time.Now())
	if err != nil || ev.Domain == "" {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	d := s.engine.Decide(r.Context(), ev)
	writeJSON(w, http.StatusOK, api.CheckResponse{
		Verdict: d.Verdict,
		Reason:  d.Reason,
		Rule:    d.Rule,
		Message: d.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
