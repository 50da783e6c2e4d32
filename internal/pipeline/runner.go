package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

// Stage performs the work of one task. Run returns how many items it
// produced; zero items means the stage failed.
type Stage interface {
	Task() domain.Task
	Run(ctx context.Context) (int, error)
}

// StageFunc is a Stage built from a task and a function.
type StageFunc struct {
	T  domain.Task
	Fn func(ctx context.Context) (int, error)
}

func (s StageFunc) Task() domain.Task { return s.T }

func (s StageFunc) Run(ctx context.Context) (int, error) { return s.Fn(ctx) }

// Checkpoint persists the state after each advance.
type Checkpoint func(ctx context.Context, state domain.PipelineState) error

// Runner drives the pipeline stages. It owns the state it threads
// through RunAll; callers only see returned copies.
type Runner struct {
	decider    Decider
	stages     map[domain.Task]Stage
	sink       trace.Sink
	logger     *slog.Logger
	checkpoint Checkpoint
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDecider sets the decider consulted before each stage.
func WithDecider(d Decider) RunnerOption {
	return func(r *Runner) {
		if d != nil {
			r.decider = d
		}
	}
}

// WithSink sets the trace sink.
func WithSink(sink trace.Sink) RunnerOption {
	return func(r *Runner) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCheckpoint registers a function called with every advanced state.
func WithCheckpoint(cp Checkpoint) RunnerOption {
	return func(r *Runner) {
		r.checkpoint = cp
	}
}

// NewRunner creates a runner. Every one of the four stages must be provided.
func NewRunner(stages []Stage, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		decider: Deterministic,
		stages:  make(map[domain.Task]Stage, len(stages)),
		sink:    trace.Discard,
		logger:  slog.Default(),
	}
	for _, s := range stages {
		if !s.Task().IsStage() {
			return nil, fmt.Errorf("%s is not a pipeline stage", s.Task())
		}
		if _, dup := r.stages[s.Task()]; dup {
			return nil, fmt.Errorf("duplicate stage %s", s.Task())
		}
		r.stages[s.Task()] = s
	}
	for _, task := range domain.StageOrder {
		if _, ok := r.stages[task]; !ok {
			return nil, fmt.Errorf("missing stage %s", task)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunStage attempts one stage. The returned error is non-nil only for a
// contract violation (*domain.InvalidTransitionError), which is fatal to
// the run; skips and stage failures are reported through the bool.
func (r *Runner) RunStage(ctx context.Context, task domain.Task, state domain.PipelineState) (domain.PipelineState, bool, error) {
	ctx, span := otel.Tracer("research-copilot/pipeline").Start(ctx, "stage "+task.String())
	defer span.End()

	decision := r.decider.Decide(ctx, state)
	if decision != task {
		r.sink.Emit(domain.EventStageSkipped, map[string]any{
			"stage":    task.String(),
			"decision": decision.String(),
			"state":    state.Map(),
		})
		r.logger.Info("stage skipped",
			slog.String("stage", task.String()),
			slog.String("decision", decision.String()),
		)
		span.SetAttributes(attribute.Bool("skipped", true))
		return state, false, nil
	}

	stage, ok := r.stages[task]
	if !ok {
		return state, false, &domain.InvalidTransitionError{State: state, Expected: NextTask(state), Got: task}
	}

	r.sink.Emit(domain.EventStageStarted, map[string]any{
		"stage": task.String(),
		"state": state.Map(),
	})

	start := time.Now()
	items, err := r.runWork(ctx, stage)
	elapsed := time.Since(start)

	if err != nil || items <= 0 {
		payload := map[string]any{
			"stage":       task.String(),
			"items":       items,
			"duration_ms": elapsed.Milliseconds(),
		}
		if err != nil {
			payload["error"] = err.Error()
		} else {
			payload["error"] = "stage produced no results"
		}
		r.sink.Emit(domain.EventStageFailed, payload)
		r.logger.Warn("stage failed",
			slog.String("stage", task.String()),
			slog.Int("items", items),
			slog.Any("error", err),
		)
		span.SetStatus(codes.Error, "stage failed")
		return state, false, nil
	}

	next, err := Advance(state, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid transition")
		return state, false, err
	}

	r.sink.Emit(domain.EventAdvance, map[string]any{
		"completed_task": task.String(),
		"items":          items,
		"duration_ms":    elapsed.Milliseconds(),
		"state":          next.Map(),
		"next_task":      NextTask(next).String(),
	})
	r.logger.Info("stage complete",
		slog.String("stage", task.String()),
		slog.Int("items", items),
		slog.Duration("duration", elapsed),
	)

	if r.checkpoint != nil {
		if err := r.checkpoint(ctx, next); err != nil {
			r.logger.Error("failed to checkpoint pipeline state",
				slog.String("stage", task.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	span.SetAttributes(attribute.Int("items", items))
	return next, true, nil
}

// RunAll runs every incomplete stage in order and stops at the first one
// that does not succeed. The error is non-nil for a contract violation or
// when ctx is cancelled between stages.
func (r *Runner) RunAll(ctx context.Context, state domain.PipelineState) (domain.PipelineState, error) {
	for _, task := range domain.StageOrder {
		if state.Done(task) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		next, ok, err := r.RunStage(ctx, task, state)
		if err != nil {
			return state, err
		}
		state = next
		if !ok {
			break
		}
	}
	return state, nil
}

func (r *Runner) runWork(ctx context.Context, stage Stage) (items int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			items, err = 0, fmt.Errorf("stage %s panicked: %v", stage.Task(), rec)
		}
	}()
	return stage.Run(ctx)
}
