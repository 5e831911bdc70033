package decision

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
	"github.com/webward/webward/internal/risk"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Monday 20:00 local: outside work hours, no time-of-day risk.
var evening = time.Date(2026, 3, 2, 20, 0, 0, 0, time.Local)

type fixture struct {
	engine  *Engine
	store   *policy.Store
	tracker *quota.Tracker
	scorer  *risk.Scorer
	ledger  *audit.Ledger
	clockAt time.Time
}

func newFixture(t *testing.T, strict bool, regoSource string) *fixture {
	t.Helper()

	store := policy.NewStore(&policy.PolicyFile{
		Version:  1,
		Blocked:  []string{"pornhub.com"},
		Moderate: []string{"reddit.com"},
		Categories: map[string]policy.HostRule{
			"reddit.com": {
				ScopePattern: `^/r/([^/]+)`,
				Restricted:   []string{"nsfw"},
				Encouraged:   []string{"golang"},
			},
		},
		Quotas:   map[string]int{"youtube.com": 30},
		Settings: policy.Settings{StrictMode: strict},
	})

	var regoEngine *policy.RegoEngine
	if regoSource != "" {
		var err error
		regoEngine, err = policy.NewRegoEngineFromSource(regoSource)
		if err != nil {
			t.Fatalf("compiling rego: %v", err)
		}
	}

	f := &fixture{store: store, clockAt: evening}
	f.tracker = quota.NewTracker(store, nil, discard())
	f.tracker.SetClock(func() time.Time { return f.clockAt })
	f.scorer = risk.NewScorer(nil, discard())
	f.ledger = audit.NewLedger(nil, nil, discard())
	f.engine = NewEngine(Config{
		Store:      store,
		Tracker:    f.tracker,
		Classifier: classify.New(store),
		Scorer:     f.scorer,
		Rego:       regoEngine,
		Ledger:     f.ledger,
		Logger:     discard(),
	})
	return f
}

func (f *fixture) decide(domain, path string) *api.Decision {
	return f.engine.Decide(context.Background(), &api.NavigationEvent{
		Domain: domain, Path: path, Timestamp: f.clockAt,
	})
}

func TestEngine_AllowNeutral(t *testing.T) {
	f := newFixture(t, false, "")
	d := f.decide("example.com", "/about")
	if !d.Allowed() {
		t.Fatalf("expected allow, got %s (%s)", d.Verdict, d.Reason)
	}
	if f.ledger.Stats().Total != 0 {
		t.Error("allowed navigation must not record an incident")
	}
}

func TestEngine_BlocklistSubdomain(t *testing.T) {
	f := newFixture(t, false, "")
	d := f.decide("cdn.pornhub.com", "/")
	if d.Allowed() {
		t.Fatal("expected block")
	}
	if d.Reason != api.ReasonBlocklist {
		t.Errorf("expected blocklist reason, got %s", d.Reason)
	}
	if d.Rule != "pornhub.com" {
		t.Errorf("expected matched entry pornhub.com, got %s", d.Rule)
	}

	// Exactly one high-severity incident per blocked navigation.
	incs := f.ledger.Query(api.QueryFilter{Type: api.IncidentBlocklistHit})
	if len(incs) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incs))
	}
	if incs[0].Severity != api.SeverityHigh {
		t.Errorf("expected high severity, got %s", incs[0].Severity)
	}
}

func TestEngine_AllowanceOverridesBlocklist(t *testing.T) {
	f := newFixture(t, false, "")
	f.store.Allow("pornhub.com", "granted through the override flow", 5*time.Minute, evening)

	d := f.decide("pornhub.com", "/")
	if !d.Allowed() {
		t.Fatalf("expected allowance to win, got %s (%s)", d.Verdict, d.Reason)
	}
	if f.ledger.Stats().Total != 0 {
		t.Error("allowance-allowed navigation must not record an incident")
	}

	// The allowed visit to a blocklisted site still feeds the risk
	// window as restricted.
	snap := f.scorer.Score(evening)
	if snap.Score == 0 {
		t.Error("expected a nonzero visit component after restricted visit")
	}
}

func TestEngine_QuotaExceeded(t *testing.T) {
	f := newFixture(t, false, "")
	f.tracker.Observe(api.TabEvent{TabID: "t1", Domain: "youtube.com", State: api.TabActive, Timestamp: evening.Add(-31 * time.Minute)})
	f.tracker.Observe(api.TabEvent{TabID: "t1", Domain: "youtube.com", State: api.TabHidden, Timestamp: evening})

	d := f.decide("youtube.com", "/watch")
	if d.Allowed() {
		t.Fatal("expected quota block after 31 minutes of use")
	}
	if d.Reason != api.ReasonQuota {
		t.Errorf("expected quota reason, got %s", d.Reason)
	}

	incs := f.ledger.Query(api.QueryFilter{Type: api.IncidentQuotaExceeded})
	if len(incs) != 1 || incs[0].Severity != api.SeverityMedium {
		t.Errorf("expected one medium-severity quota incident, got %v", incs)
	}
}

func TestEngine_AllowedNavigationRetargetsQuota(t *testing.T) {
	f := newFixture(t, false, "")
	f.tracker.Observe(api.TabEvent{TabID: "t1", Domain: "youtube.com", State: api.TabActive, Timestamp: evening.Add(-20 * time.Minute)})

	// The active tab navigates to another domain; no tab event fires,
	// but the allowed navigation moves the accrual.
	d := f.engine.Decide(context.Background(), &api.NavigationEvent{
		Domain: "example.com", Path: "/", TabID: "t1", Timestamp: evening.Add(-10 * time.Minute),
	})
	if !d.Allowed() {
		t.Fatalf("expected allow, got %s (%s)", d.Verdict, d.Reason)
	}

	if got := f.tracker.Elapsed("youtube.com"); got != 10*time.Minute {
		t.Errorf("youtube: expected accrual to stop at navigation, got %s", got)
	}
	if got := f.tracker.Elapsed("example.com"); got != 10*time.Minute {
		t.Errorf("example: expected accrual since navigation, got %s", got)
	}
}

func TestEngine_CategoryRestricted(t *testing.T) {
	f := newFixture(t, false, "")
	d := f.decide("reddit.com", "/r/nsfw")
	if d.Allowed() {
		t.Fatal("expected category block")
	}
	if d.Reason != api.ReasonCategory {
		t.Errorf("expected category reason, got %s", d.Reason)
	}
	if d.Rule != "nsfw" {
		t.Errorf("expected scope nsfw, got %s", d.Rule)
	}
}

func TestEngine_StrictModeBlocksModerateHost(t *testing.T) {
	// An encouraged scope never blocks at the category layer, but the
	// host is moderate-listed and strict mode still blocks it.
	f := newFixture(t, true, "")
	d := f.decide("reddit.com", "/r/golang")
	if d.Allowed() {
		t.Fatal("strict mode must block the moderate-listed host")
	}
	if d.Reason != api.ReasonModerate {
		t.Errorf("expected moderate reason, got %s", d.Reason)
	}
}

func TestEngine_ModerateOffWithoutStrict(t *testing.T) {
	f := newFixture(t, false, "")
	d := f.decide("reddit.com", "/r/golang")
	if !d.Allowed() {
		t.Fatalf("expected allow without strict mode, got %s (%s)", d.Verdict, d.Reason)
	}
}

func TestEngine_CustomRuleBlock(t *testing.T) {
	src := `package webward

verdict := "block" if {
	input.domain == "example.com"
}

rule_name := "no-example" if {
	verdict == "block"
}
`
	f := newFixture(t, false, src)

	d := f.decide("example.com", "/")
	if d.Allowed() {
		t.Fatal("expected custom rule block")
	}
	if d.Reason != api.ReasonCustomRule {
		t.Errorf("expected custom_rule reason, got %s", d.Reason)
	}
	if d.Rule != "no-example" {
		t.Errorf("expected rule name, got %s", d.Rule)
	}

	if d := f.decide("other.com", "/"); !d.Allowed() {
		t.Errorf("abstaining rules must not block, got %s", d.Reason)
	}
}

func TestEngine_BlocklistOutranksQuota(t *testing.T) {
	f := newFixture(t, false, "")
	f.store.Replace(&policy.PolicyFile{
		Version: 1,
		Blocked: []string{"youtube.com"},
		Quotas:  map[string]int{"youtube.com": 30},
	})
	f.tracker.Observe(api.TabEvent{TabID: "t1", Domain: "youtube.com", State: api.TabActive, Timestamp: evening.Add(-40 * time.Minute)})
	f.tracker.Observe(api.TabEvent{TabID: "t1", Domain: "youtube.com", State: api.TabHidden, Timestamp: evening})

	d := f.decide("youtube.com", "/")
	if d.Reason != api.ReasonBlocklist {
		t.Errorf("blocklist must outrank quota, got %s", d.Reason)
	}
}

func TestEngine_RiskBlockAll(t *testing.T) {
	f := newFixture(t, false, "")

	// Saturate the windows late at night to push the composite over
	// the critical threshold.
	late := time.Date(2026, 3, 3, 2, 0, 0, 0, time.Local)
	for i := 0; i < 10; i++ {
		f.scorer.RecordVisit("bad.example", risk.ClassRestricted, late)
	}
	for i := 0; i < 20; i++ {
		f.scorer.RecordSearch("porn", late)
	}
	for i := 0; i < 6; i++ {
		f.scorer.RecordNavigation(late.Add(-time.Duration(i) * time.Second))
	}

	d := f.engine.Decide(context.Background(), &api.NavigationEvent{
		Domain: "example.com", Path: "/", Timestamp: late,
	})
	if d.Allowed() {
		t.Fatal("expected block-all at critical risk")
	}
	if d.Reason != api.ReasonBehavioral {
		t.Errorf("expected behavioral reason, got %s", d.Reason)
	}
}

func TestEngine_AllowanceOverridesRiskBlockAll(t *testing.T) {
	f := newFixture(t, false, "")
	late := time.Date(2026, 3, 3, 2, 0, 0, 0, time.Local)
	for i := 0; i < 10; i++ {
		f.scorer.RecordVisit("bad.example", risk.ClassRestricted, late)
	}
	for i := 0; i < 20; i++ {
		f.scorer.RecordSearch("porn", late)
	}
	for i := 0; i < 6; i++ {
		f.scorer.RecordNavigation(late.Add(-time.Duration(i) * time.Second))
	}
	f.store.Allow("example.com", "granted through the override flow", 5*time.Minute, late)

	d := f.engine.Decide(context.Background(), &api.NavigationEvent{
		Domain: "example.com", Path: "/", Timestamp: late,
	})
	if !d.Allowed() {
		t.Fatalf("allowance must outrank block-all, got %s (%s)", d.Verdict, d.Reason)
	}
}

func TestEngine_RecordSearchExplicitIncident(t *testing.T) {
	f := newFixture(t, false, "")

	class := f.engine.RecordSearch("free porn videos", evening)
	if class != risk.ClassExplicit {
		t.Fatalf("expected explicit, got %s", class)
	}

	incs := f.ledger.Query(api.QueryFilter{Type: api.IncidentSuspiciousSearch})
	if len(incs) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incs))
	}
	// Only the matched term is recorded, never the raw query.
	if incs[0].Details != "porn" {
		t.Errorf("expected matched term only, got %q", incs[0].Details)
	}

	f.engine.RecordSearch("golang testing patterns", evening)
	if got := len(f.ledger.Query(api.QueryFilter{Type: api.IncidentSuspiciousSearch})); got != 1 {
		t.Errorf("neutral search must not add incidents, got %d", got)
	}
}
