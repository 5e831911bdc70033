package policy

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/webward/webward/api"
)

// RegoInput is the document presented to custom Rego rules.
type RegoInput struct {
	Domain  string `json:"domain"`
	Path    string `json:"path"`
	Scope   string `json:"scope,omitempty"`
	Hour    int    `json:"hour"`
	Weekday string `json:"weekday"`
}

// RegoResult is the outcome of a custom rule evaluation.
type RegoResult struct {
	Verdict api.Verdict
	Rule    string
	Message string
}

// RegoEngine evaluates user-supplied Rego rules against navigations.
//
// The policy must live in package webward and may define:
//
//	verdict: "allow" | "block"
//	rule_name: string (optional)
//	message: string (optional)
//
// An absent or undefined verdict means the custom rules abstain and the
// decision chain continues.
type RegoEngine struct {
	mu    sync.RWMutex
	path  string
	query rego.PreparedEvalQuery
}

// NewRegoEngine creates an engine from a .rego file.
func NewRegoEngine(path string) (*RegoEngine, error) {
	e := &RegoEngine{path: path}
	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRegoEngineFromSource creates an engine from raw Rego source.
func NewRegoEngineFromSource(source string) (*RegoEngine, error) {
	e := &RegoEngine{}
	if err := e.loadSource(source); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads and recompiles the Rego file.
func (e *RegoEngine) Reload(_ context.Context) error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("reading rego policy file: %w", err)
	}
	return e.loadSource(string(data))
}

func (e *RegoEngine) loadSource(source string) error {
	if _, err := ast.ParseModuleWithOpts("rules.rego", source, ast.ParserOptions{RegoVersion: ast.RegoV1}); err != nil {
		return fmt.Errorf("parsing rego policy: %w", err)
	}

	r := rego.New(
		rego.Query("data.webward"),
		rego.Module("rules.rego", source),
	)
	query, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("preparing rego query: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = query
	return nil
}

// Evaluate runs the custom rules. A nil result means abstain.
func (e *RegoEngine) Evaluate(ctx context.Context, input *RegoInput) (*RegoResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inputMap := map[string]any{
		"domain":  input.Domain,
		"path":    input.Path,
		"scope":   input.Scope,
		"hour":    input.Hour,
		"weekday": input.Weekday,
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("rego evaluation failed: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	m, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, nil
	}

	v, ok := m["verdict"].(string)
	if !ok {
		return nil, nil
	}

	result := &RegoResult{}
	switch v {
	case "allow":
		result.Verdict = api.VerdictAllow
	case "block":
		result.Verdict = api.VerdictBlock
	default:
		return nil, nil
	}
	if r, ok := m["rule_name"].(string); ok {
		result.Rule = r
	}
	if msg, ok := m["message"].(string); ok {
		result.Message = msg
	}
	return result, nil
}
