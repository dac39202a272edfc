package pipeline

import (
	"context"
	"time"
)

// Stage is one node of a pipeline graph. A stage becomes ready once every
// stage in DependsOn has reached a terminal outcome.
type Stage[Req any] struct {
	Name      string
	DependsOn []string
	// Optional stages degrade the result to partial on failure instead of
	// aborting the run.
	Optional bool
	Timeout  time.Duration
	Retry    *RetryPolicy
	Run      func(ctx context.Context, req Req, pc *Context) (any, error)
}
