package pipeline

import (
	"time"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageCancelled StageStatus = "cancelled"
	StageSkipped   StageStatus = "skipped"
)

type StageReport struct {
	Name     string
	Status   StageStatus
	Attempts int
	Err      *contractx.ToolError
	Duration time.Duration
}

// Result is the aggregate outcome of one run. Context keeps every output
// published before the run terminated, whatever the status.
type Result struct {
	RunID    string
	Pipeline string
	Status   Status
	// Partial is set when an optional stage failed and the run continued.
	Partial     bool
	Stages      []StageReport
	FailedStage string
	Err         *contractx.ToolError
	Context     *Context
}

func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Stage returns the report for name.
func (r *Result) Stage(name string) (StageReport, bool) {
	if r == nil {
		return StageReport{}, false
	}
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}
