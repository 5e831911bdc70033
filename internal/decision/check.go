package decision

import "context"

// Check is a single step in the navigation decision pipeline.
type Check interface {
	// Name returns the check name for logging.
	Name() string

	// Process evaluates the check against the decision context. It may
	// set the verdict and halt the pipeline, or produce side effects
	// (incident recording, sample feeding). Returning an error aborts
	// the chain; the engine resolves that to block-and-log.
	Process(ctx context.Context, dc *Context) error
}
