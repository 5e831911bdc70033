package decision

import (
	"context"
	"fmt"
	"log/slog"
)

// Chain executes checks in strict precedence order.
type Chain struct {
	checks []Check
	logger *slog.Logger
}

// NewChain creates a chain over the given checks.
func NewChain(logger *slog.Logger, checks ...Check) *Chain {
	return &Chain{checks: checks, logger: logger}
}

// Process runs all checks in sequence. A halted context short-circuits
// further verdict checks, but every check still gets called so the
// recorder (always last) can run.
func (c *Chain) Process(ctx context.Context, dc *Context) error {
	for _, check := range c.checks {
		if err := check.Process(ctx, dc); err != nil {
			return fmt.Errorf("check %q: %w", check.Name(), err)
		}
		c.logger.Debug("check executed",
			"check", check.Name(),
			"domain", dc.Event.Domain,
			"verdict", dc.Verdict,
			"halted", dc.Halted,
		)
	}
	return nil
}
