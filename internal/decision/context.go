package decision

import (
	"github.com/webward/webward/api"
	"github.com/webward/webward/internal/classify"
	"github.com/webward/webward/internal/risk"
)

// Context carries one navigation event through the decision chain.
// Precedence lives entirely in the chain order; checks only write their
// own verdict when nothing upstream has halted the pipeline.
type Context struct {
	// Event is the navigation under evaluation.
	Event *api.NavigationEvent

	// Risk is the composite snapshot taken once, before the chain runs,
	// so every check sees the same joint state.
	Risk risk.Snapshot

	// Classification is set by the category check.
	Classification classify.Result

	// Verdict, Reason, Rule, and Message accumulate the outcome.
	Verdict api.Verdict
	Reason  api.BlockReason
	Rule    string
	Message string

	// IncidentType is what the recording check will emit on block.
	IncidentType api.IncidentType

	// Halted indicates the verdict is final; later checks except the
	// recorder skip themselves.
	Halted bool
}

// NewContext creates a context with the default allow verdict.
func NewContext(ev *api.NavigationEvent) *Context {
	return &Context{Event: ev, Verdict: api.VerdictAllow}
}

// Block finalizes a blocking verdict.
func (dc *Context) Block(reason api.BlockReason, rule, message string, typ api.IncidentType) {
	dc.Verdict = api.VerdictBlock
	dc.Reason = reason
	dc.Rule = rule
	dc.Message = message
	dc.IncidentType = typ
	dc.Halted = true
}

// Decision converts the context into the engine's result.
func (dc *Context) Decision() *api.Decision {
	return &api.Decision{
		Verdict: dc.Verdict,
		Reason:  dc.Reason,
		Rule:    dc.Rule,
		Message: dc.Message,
	}
}
