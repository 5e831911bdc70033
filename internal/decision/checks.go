package decision

import (
	"context"
	"fmt"

	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/audit"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/metrics"
	"github.com/webward/webward/internal/policy"
	"github.com/webward/webward/internal/quota"
	"github.com/webward/webward/internal/risk"
)

// AllowanceCheck grants navigation under an active temporary allowance.
// Allowances outrank everything: the verdict is final immediately.
type AllowanceCheck struct {
	store *policy.Store
}

func NewAllowanceCheck(store *policy.Store) *AllowanceCheck {
	return &AllowanceCheck{store: store}
}

func (c *AllowanceCheck) Name() string { return "allowance" }

func (c *AllowanceCheck) Process(_ context.Context, dc *Context) error {
	a, ok := c.store.Allowance(dc.Event.Domain, dc.Event.Timestamp)
	if !ok {
		return nil
	}
	dc.Verdict = api.VerdictAllow
	dc.Rule = "allowance:" + a.ID
	dc.Halted = true
	return nil
}

// BlocklistCheck blocks domains on the static blocklist, matching exact
// or subdomain suffix.
type BlocklistCheck struct {
	store *policy.Store
}

func NewBlocklistCheck(store *policy.Store) *BlocklistCheck {
	return &BlocklistCheck{store: store}
}

func (c *BlocklistCheck) Name() string { return "blocklist" }

func (c *BlocklistCheck) Process(_ context.Context, dc *Context) error {
	if dc.Halted {
		return nil
	}
	entry, ok := c.store.IsBlocked(dc.Event.Domain)
	if !ok {
		return nil
	}
	dc.Block(api.ReasonBlocklist, entry, "this site is blocked", api.IncidentBlocklistHit)
	return nil
}

// QuotaCheck blocks domains over their daily visible-usage limit.
type QuotaCheck struct {
	tracker *quota.Tracker
}

func NewQuotaCheck(tracker *quota.Tracker) *QuotaCheck {
	return &QuotaCheck{tracker: tracker}
}

func (c *QuotaCheck) Name() string { return "quota" }

func (c *QuotaCheck) Process(_ context.Context, dc *Context) error {
	if dc.Halted {
		return nil
	}
	if !c.tracker.Exceeded(dc.Event.Domain) {
		return nil
	}
	dc.Block(api.ReasonQuota, dc.Event.Domain,
		"daily time limit for this site is used up until midnight", api.IncidentQuotaExceeded)
	return nil
}

// CategoryCheck classifies the path scope and blocks restricted scopes
// always, discretionary scopes during work hours or under tightened
// (high-risk) mode.
type CategoryCheck struct {
	classifier *classify.Classifier
}

func NewCategoryCheck(classifier *classify.Classifier) *CategoryCheck {
	return &CategoryCheck{classifier: classifier}
}

func (c *CategoryCheck) Name() string { return "category" }

func (c *CategoryCheck) Process(_ context.Context, dc *Context) error {
	tightened := dc.Risk.Action == risk.ActionEnhanced
	res := c.classifier.Evaluate(dc.Event.Domain, dc.Event.Path, dc.Event.Timestamp, tightened)
	dc.Classification = res
	if dc.Halted || !res.Blocked {
		return nil
	}
	dc.Block(api.ReasonCategory, res.Scope, res.Message, api.IncidentCategoryBlock)
	return nil
}

// CustomRuleCheck consults user-supplied Rego rules. Only block
// verdicts act; allow and abstain both fall through, keeping the
// over-blocking bias of the surrounding layers.
type CustomRuleCheck struct {
	engine *policy.RegoEngine
}

func NewCustomRuleCheck(engine *policy.RegoEngine) *CustomRuleCheck {
	return &CustomRuleCheck{engine: engine}
}

func (c *CustomRuleCheck) Name() string { return "custom_rule" }

func (c *CustomRuleCheck) Process(ctx context.Context, dc *Context) error {
	if dc.Halted || c.engine == nil {
		return nil
	}
	result, err := c.engine.Evaluate(ctx, &policy.RegoInput{
		Domain:  dc.Event.Domain,
		Path:    dc.Event.Path,
		Scope:   dc.Classification.Scope,
		Hour:    dc.Event.Timestamp.Hour(),
		Weekday: dc.Event.Timestamp.Weekday().String(),
	})
	if err != nil {
		return err
	}
	if result == nil || result.Verdict != api.VerdictBlock {
		return nil
	}
	msg := result.Message
	if msg == "" {
		msg = "blocked by a custom rule"
	}
	dc.Block(api.ReasonCustomRule, result.Rule, msg, api.IncidentCustomRuleBlock)
	return nil
}

// RiskCheck blocks everything while the composite risk level is
// critical.
type RiskCheck struct{}

func NewRiskCheck() *RiskCheck { return &RiskCheck{} }

func (c *RiskCheck) Name() string { return "risk" }

func (c *RiskCheck) Process(_ context.Context, dc *Context) error {
	if dc.Halted {
		return nil
	}
	if dc.Risk.Action != risk.ActionBlockAll {
		return nil
	}
	dc.Block(api.ReasonBehavioral, "",
		"browsing is paused for a while; take a break", api.IncidentBehavioralBlock)
	return nil
}

// ModerateCheck blocks moderate-listed domains when strict mode is on.
type ModerateCheck struct {
	store *policy.Store
}

func NewModerateCheck(store *policy.Store) *ModerateCheck {
	return &ModerateCheck{store: store}
}

func (c *ModerateCheck) Name() string { return "moderate" }

func (c *ModerateCheck) Process(_ context.Context, dc *Context) error {
	if dc.Halted || !c.store.StrictMode() {
		return nil
	}
	entry, ok := c.store.IsModerate(dc.Event.Domain)
	if !ok {
		return nil
	}
	dc.Block(api.ReasonModerate, entry, "this site is blocked in strict mode", api.IncidentModerateBlock)
	return nil
}

// RecordCheck always runs last: every block emits exactly one incident,
// every allow silently feeds the risk windows and retargets quota
// accrual when the navigation happened in the active tab.
type RecordCheck struct {
	store   *policy.Store
	tracker *quota.Tracker
	ledger  *audit.Ledger
	scorer  *risk.Scorer
}

func NewRecordCheck(store *policy.Store, tracker *quota.Tracker, ledger *audit.Ledger, scorer *risk.Scorer) *RecordCheck {
	return &RecordCheck{store: store, tracker: tracker, ledger: ledger, scorer: scorer}
}

func (c *RecordCheck) Name() string { return "record" }

func (c *RecordCheck) Process(_ context.Context, dc *Context) error {
	ev := dc.Event
	metrics.DecisionsTotal.WithLabelValues(string(dc.Verdict), string(dc.Reason)).Inc()
	metrics.RiskScore.Set(dc.Risk.Score)

	if dc.Verdict == api.VerdictBlock {
		details := fmt.Sprintf("rule=%s risk=%.2f", dc.Rule, dc.Risk.Score)
		c.ledger.Record(dc.IncidentType, ev.Domain, dc.Message, details, ev.Timestamp)
		return nil
	}

	c.scorer.RecordNavigation(ev.Timestamp)
	c.scorer.RecordVisit(ev.Domain, c.visitClass(dc), ev.Timestamp)
	c.tracker.Retarget(ev.TabID, ev.Domain, ev.Timestamp)
	return nil
}

// visitClass derives the visit sample class for an allowed navigation.
// A visit allowed only by allowance to a blocklisted or restricted
// destination still counts as restricted in the window.
func (c *RecordCheck) visitClass(dc *Context) risk.Class {
	if _, ok := c.store.IsBlocked(dc.Event.Domain); ok {
		return risk.ClassRestricted
	}
	if dc.Classification.Category == classify.CategoryRestricted {
		return risk.ClassRestricted
	}
	if _, ok := c.store.IsModerate(dc.Event.Domain); ok {
		return risk.ClassModerate
	}
	return risk.ClassNeutral
}
