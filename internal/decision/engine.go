package decision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
	"github.com/webward/webward/internal/risk"
)

// Config wires the engine's collaborators.
type Config struct {
	Store      *policy.Store
	Tracker    *quota.Tracker
	Classifier *classify.Classifier
	Scorer     *risk.Scorer
	Rego       *policy.RegoEngine // optional
	Ledger     *audit.Ledger
	Logger     *slog.Logger
}

// Engine turns navigation events into allow/block verdicts. Precedence
// is fixed by the chain order: allowance, blocklist, quota, category,
// custom rules, risk, moderate; the recorder always runs last. One
// mutex serializes Decide and RecordSearch so every evaluation sees a
// consistent joint read of quota, risk, and policy state.
type Engine struct {
	mu     sync.Mutex
	scorer *risk.Scorer
	ledger *audit.Ledger
	chain  *Chain
	logger *slog.Logger
}

// NewEngine builds the engine and its fixed-order decision chain.
func NewEngine(cfg Config) *Engine {
	chain := NewChain(cfg.Logger,
		NewAllowanceCheck(cfg.Store),
		NewBlocklistCheck(cfg.Store),
		NewQuotaCheck(cfg.Tracker),
		NewCategoryCheck(cfg.Classifier),
		NewCustomRuleCheck(cfg.Rego),
		NewRiskCheck(),
		NewModerateCheck(cfg.Store),
		NewRecordCheck(cfg.Store, cfg.Tracker, cfg.Ledger, cfg.Scorer),
	)
	return &Engine{
		scorer: cfg.Scorer,
		ledger: cfg.Ledger,
		chain:  chain,
		logger: cfg.Logger,
	}
}

// Decide evaluates one navigation event. Errors inside the chain never
// surface to the page: they resolve to block-and-log with a generic
// interstitial message.
func (e *Engine) Decide(ctx context.Context, ev *api.NavigationEvent) *api.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	dc := NewContext(ev)
	dc.Risk = e.scorer.Score(ev.Timestamp)

	if err := e.chain.Process(ctx, dc); err != nil {
		e.logger.Error("decision chain failed, blocking", "domain", ev.Domain, "error", err)
		e.ledger.Record(api.IncidentBehavioralBlock, ev.Domain,
			"internal evaluation error", err.Error(), ev.Timestamp)
		return &api.Decision{
			Verdict: api.VerdictBlock,
			Reason:  api.ReasonBehavioral,
			Message: "this page cannot be checked right now",
		}
	}
	return dc.Decision()
}

// RecordSearch classifies and records a search query. An explicit
// classification emits a suspicious-search incident; the raw query
// never leaves the process, only the matched term.
func (e *Engine) RecordSearch(query string, ts time.Time) risk.Class {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ts.IsZero() {
		ts = time.Now()
	}
	class, term := e.scorer.RecordSearch(query, ts)
	if class == risk.ClassExplicit {
		e.ledger.Record(api.IncidentSuspiciousSearch, "", "explicit search term detected", term, ts)
	}
	return class
}

// RiskSnapshot recomputes the current composite score (dashboard use).
func (e *Engine) RiskSnapshot() risk.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scorer.Score(time.Now())
}
