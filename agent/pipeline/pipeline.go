// Package pipeline sequences stages over a dependency graph with bounded
// retries, per-stage timeouts, cancellation, and partial-result aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

const (
	DefaultStageTimeout = 30 * time.Second

	instrumentationName = "github.com/tanpawarit/marketplace-listing-agent/agent/pipeline"
)

var ErrInvalidPipeline = errors.New("invalid pipeline definition")

type Option func(*options)

type options struct {
	logger         zerolog.Logger
	metrics        Metrics
	tracer         trace.Tracer
	sleep          SleepFunc
	retry          RetryPolicy
	stageTimeout   time.Duration
	maxConcurrency int
	newRunID       func() string
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithSleep replaces the backoff sleeper.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

func WithStageTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stageTimeout = d
		}
	}
}

// WithMaxConcurrency caps stages running at once within a single run.
// n <= 0 means no cap.
func WithMaxConcurrency(n int) Option {
	return func(o *options) { o.maxConcurrency = n }
}

func WithRunID(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newRunID = fn
		}
	}
}

type Pipeline[Req any] struct {
	name   string
	stages []Stage[Req]
	deps   [][]int
	opts   options
}

// New validates the stage graph. Names must be unique and dependencies must
// reference earlier stages, so declaration order is a valid topological order.
func New[Req any](name string, stages []Stage[Req], opts ...Option) (*Pipeline[Req], error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPipeline)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: %s has no stages", ErrInvalidPipeline, name)
	}

	index := make(map[string]int, len(stages))
	deps := make([][]int, len(stages))
	for i, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("%w: stage %d has no name", ErrInvalidPipeline, i)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("%w: stage %s has no run func", ErrInvalidPipeline, s.Name)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %s", ErrInvalidPipeline, s.Name)
		}
		for _, d := range s.DependsOn {
			j, ok := index[d]
			if !ok {
				return nil, fmt.Errorf("%w: stage %s depends on undeclared stage %s", ErrInvalidPipeline, s.Name, d)
			}
			deps[i] = append(deps[i], j)
		}
		index[s.Name] = i
	}

	o := options{
		logger:       log.Logger,
		metrics:      noopMetrics{},
		tracer:       otel.Tracer(instrumentationName),
		sleep:        sleepContext,
		retry:        DefaultRetryPolicy(),
		stageTimeout: DefaultStageTimeout,
		newRunID:     uuid.NewString,
	}
	for _, fn := range opts {
		fn(&o)
	}

	return &Pipeline[Req]{
		name:   name,
		stages: append([]Stage[Req](nil), stages...),
		deps:   deps,
		opts:   o,
	}, nil
}

func (p *Pipeline[Req]) Name() string { return p.name }

// StageNames returns stage names in declaration order.
func (p *Pipeline[Req]) StageNames() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name
	}
	return out
}

type stageOutcome struct {
	index    int
	output   any
	err      *contractx.ToolError
	status   StageStatus
	attempts int
	duration time.Duration
}

type stageState int

const (
	statePending stageState = iota
	stateRunning
	stateDone
)

// Run executes the pipeline once. It never returns a nil result. All state
// transitions and context writes happen on the calling goroutine; stage
// goroutines only report outcomes back.
func (p *Pipeline[Req]) Run(ctx context.Context, req Req) *Result {
	runID := p.opts.newRunID()
	logger := p.opts.logger.With().
		Str("pipeline", p.name).
		Str("run_id", runID).
		Logger()

	ctx, span := p.opts.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.name", p.name),
		attribute.String("pipeline.run_id", runID),
	))
	defer span.End()

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	n := len(p.stages)
	pc := NewContext()
	res := &Result{
		RunID:    runID,
		Pipeline: p.name,
		Stages:   make([]StageReport, n),
		Context:  pc,
	}
	for i, s := range p.stages {
		res.Stages[i] = StageReport{Name: s.Name, Status: StageSkipped}
	}

	var wg sync.WaitGroup
	done := make(chan stageOutcome, n)
	state := make([]stageState, n)

	running := 0
	aborted := false
	cancelled := false

	logger.Debug().Int("stages", n).Msg("pipeline started")

	for {
		if !aborted && !cancelled {
			for i := range p.stages {
				if state[i] != statePending || !p.ready(i, state) {
					continue
				}
				if ctx.Err() != nil {
					cancelled = true
					break
				}
				if p.opts.maxConcurrency > 0 && running >= p.opts.maxConcurrency {
					break
				}
				i := i
				wg.Add(1)
				go func() {
					defer wg.Done()
					done <- p.runStage(runCtx, logger, i, req, pc)
				}()
				state[i] = stateRunning
				running++
			}
		}

		if running == 0 {
			break
		}

		out := <-done
		running--
		state[out.index] = stateDone

		report := &res.Stages[out.index]
		report.Attempts = out.attempts
		report.Duration = out.duration
		report.Status = out.status
		report.Err = out.err

		stage := p.stages[out.index]
		switch out.status {
		case StageSucceeded:
			if err := pc.publish(stage.Name, out.output); err != nil {
				// Unreachable with unique stage names.
				report.Status = StageFailed
				report.Err = contractx.Unknown(err, "publish stage output")
				p.fail(res, stage.Name, report.Err, &aborted, abort)
			}
		case StageFailed:
			if stage.Optional {
				res.Partial = true
				logger.Warn().
					Str("stage", stage.Name).
					Str("kind", string(out.err.Kind)).
					Err(out.err).
					Msg("optional stage failed, continuing with partial context")
				continue
			}
			p.fail(res, stage.Name, out.err, &aborted, abort)
		case StageCancelled:
			if !aborted {
				cancelled = true
			}
		}
	}

	wg.Wait()

	switch {
	case aborted:
		res.Status = StatusFailed
	case cancelled || (ctx.Err() != nil && !allDone(state)):
		res.Status = StatusCancelled
		if res.Err == nil {
			res.Err = contractx.Unknown(ctx.Err(), "pipeline cancelled")
		}
	default:
		res.Status = StatusSucceeded
	}

	p.opts.metrics.ObserveRun(p.name, res.Status)
	span.SetAttributes(
		attribute.String("pipeline.status", string(res.Status)),
		attribute.Bool("pipeline.partial", res.Partial),
	)
	if res.Status != StatusSucceeded {
		span.SetStatus(codes.Error, string(res.Status))
	}

	event := logger.Info()
	if res.Status == StatusFailed {
		event = logger.Error().Str("failed_stage", res.FailedStage).Err(res.Err)
	}
	event.
		Str("status", string(res.Status)).
		Bool("partial", res.Partial).
		Int("published", pc.Len()).
		Msg("pipeline finished")

	return res
}

func (p *Pipeline[Req]) ready(i int, state []stageState) bool {
	for _, j := range p.deps[i] {
		if state[j] != stateDone {
			return false
		}
	}
	return true
}

func (p *Pipeline[Req]) fail(res *Result, stage string, err *contractx.ToolError, aborted *bool, abort context.CancelFunc) {
	if *aborted {
		return
	}
	*aborted = true
	res.FailedStage = stage
	res.Err = err
	abort()
}

func allDone(state []stageState) bool {
	for _, s := range state {
		if s != stateDone {
			return false
		}
	}
	return true
}

func (p *Pipeline[Req]) runStage(runCtx context.Context, logger zerolog.Logger, i int, req Req, pc *Context) stageOutcome {
	stage := p.stages[i]
	policy := p.opts.retry
	if stage.Retry != nil {
		policy = *stage.Retry
	}
	timeout := p.opts.stageTimeout
	if stage.Timeout > 0 {
		timeout = stage.Timeout
	}

	logger = logger.With().Str("stage", stage.Name).Logger()
	started := time.Now()
	out := stageOutcome{index: i}

	for {
		out.attempts++

		value, te := p.attempt(runCtx, stage, timeout, req, pc, out.attempts)
		if te == nil {
			out.output = value
			out.status = StageSucceeded
			break
		}
		out.err = te

		if runCtx.Err() != nil {
			out.status = StageCancelled
			break
		}
		if !te.Kind.Retryable() || out.attempts > policy.MaxRetries {
			out.status = StageFailed
			break
		}

		wait := policy.Backoff(out.attempts)
		logger.Warn().
			Int("attempt", out.attempts).
			Str("kind", string(te.Kind)).
			Dur("backoff", wait).
			Err(te).
			Msg("stage attempt failed, retrying")

		if err := p.opts.sleep(runCtx, wait); err != nil {
			out.status = StageCancelled
			break
		}
	}

	out.duration = time.Since(started)
	logger.Debug().
		Str("status", string(out.status)).
		Int("attempts", out.attempts).
		Dur("duration", out.duration).
		Msg("stage finished")
	return out
}

func (p *Pipeline[Req]) attempt(runCtx context.Context, stage Stage[Req], timeout time.Duration, req Req, pc *Context, n int) (any, *contractx.ToolError) {
	ctx, span := p.opts.tracer.Start(runCtx, "pipeline.stage", trace.WithAttributes(
		attribute.String("pipeline.name", p.name),
		attribute.String("pipeline.stage", stage.Name),
		attribute.Int("pipeline.attempt", n),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	value, te := p.invoke(ctx, runCtx, stage, timeout, req, pc)

	outcome := string(StageSucceeded)
	if te != nil {
		outcome = string(te.Kind)
		span.RecordError(te)
		span.SetStatus(codes.Error, outcome)
	}
	p.opts.metrics.ObserveAttempt(p.name, stage.Name, outcome, time.Since(started))
	return value, te
}

type invokeResult struct {
	value any
	err   error
}

// invoke runs the stage on its own goroutine so a stage that ignores ctx
// cannot hold the run past its timeout. Cancellation is forwarded through ctx
// and the stage gets until its timeout to return; after that it is abandoned
// and any late result is dropped.
func (p *Pipeline[Req]) invoke(ctx, runCtx context.Context, stage Stage[Req], timeout time.Duration, req Req, pc *Context) (any, *contractx.ToolError) {
	results := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- invokeResult{err: contractx.Unknown(fmt.Errorf("panic: %v", r), "stage %s panicked", stage.Name)}
			}
		}()
		v, err := stage.Run(ctx, req, pc)
		results <- invokeResult{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res invokeResult
	timedOut := false
	select {
	case res = <-results:
	case <-timer.C:
		res = invokeResult{err: context.DeadlineExceeded}
		timedOut = true
	}

	// Output produced after the deadline is a timeout, whatever the stage returned.
	if (timedOut || errors.Is(ctx.Err(), context.DeadlineExceeded)) && runCtx.Err() == nil {
		return nil, contractx.Timeout(res.err, "stage %s exceeded %s", stage.Name, timeout)
	}
	if res.err != nil {
		return nil, contractx.Classify(res.err)
	}
	return res.value, nil
}
