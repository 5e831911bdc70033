package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/decision"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
	"github.com/webward/webward/internal/risk"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *audit.Ledger) {
	t.Helper()

	store := policy.NewStore(&policy.PolicyFile{
		Version: 1,
		Blocked: []string{"pornhub.com"},
	})
	ledger := audit.NewLedger(nil, nil, discard())
	tracker := quota.NewTracker(store, nil, discard())
	engine := decision.NewEngine(decision.Config{
		Store:      store,
		Tracker:    tracker,
		Classifier: classify.New(store),
		Scorer:     risk.NewScorer(nil, discard()),
		Ledger:     ledger,
		Logger:     discard(),
	})

	s := NewServer("127.0.0.1:0", ledger, engine, store, tracker, discard())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, ledger
}

func TestDashboard_Pages(t *testing.T) {
	srv, ledger := newTestServer(t)
	ledger.Record(api.IncidentBlocklistHit, "pornhub.com", "this site is blocked", "", time.Now())

	for _, path := range []string{"/", "/incidents", "/policy"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}
			if !strings.Contains(string(body), "Webward") {
				t.Error("expected branded page")
			}
		})
	}
}

func TestDashboard_APIStats(t *testing.T) {
	srv, ledger := newTestServer(t)
	ledger.Record(api.IncidentBlocklistHit, "pornhub.com", "this site is blocked", "", time.Now())
	ledger.Record(api.IncidentQuotaExceeded, "youtube.com", "over limit", "", time.Now())

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats api.IncidentStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 {
		t.Errorf("expected 2 incidents, got %d", stats.Total)
	}
	if stats.ByType[api.IncidentBlocklistHit] != 1 {
		t.Errorf("unexpected breakdown %v", stats.ByType)
	}
}

func TestDashboard_APIRisk(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/risk")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap risk.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Score < 0 || snap.Score > 1 {
		t.Errorf("score out of bounds: %f", snap.Score)
	}
	if snap.Level == "" || snap.Action == "" {
		t.Error("expected level and action populated")
	}
}

func TestDashboard_APICheck(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(api.CheckRequest{URL: "https://sub.pornhub.com/x"})
	resp, err := http.Post(srv.URL+"/api/v1/check", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var check api.CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		t.Fatal(err)
	}
	if check.Verdict != api.VerdictBlock || check.Reason != api.ReasonBlocklist {
		t.Errorf("expected blocklist block, got %s/%s", check.Verdict, check.Reason)
	}
}

func TestDashboard_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "webward_") {
		t.Error("expected webward metrics exposed")
	}
}
