package pipeline

import (
	"context"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// NextTask returns the task for the first incomplete stage, or
// domain.TaskComplete when every flag is set. It is pure.
func NextTask(state domain.PipelineState) domain.Task {
	for _, task := range domain.StageOrder {
		if !state.Done(task) {
			return task
		}
	}
	return domain.TaskComplete
}

// Advance marks completed as done. completed must be NextTask(state).
func Advance(state domain.PipelineState, completed domain.Task) (domain.PipelineState, error) {
	expected := NextTask(state)
	if completed != expected || !completed.IsStage() {
		return state, &domain.InvalidTransitionError{
			State:    state,
			Expected: expected,
			Got:      completed,
		}
	}
	return state.With(completed), nil
}

// Decider chooses the next task for a state.
type Decider interface {
	Decide(ctx context.Context, state domain.PipelineState) domain.Task
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, state domain.PipelineState) domain.Task

func (f DeciderFunc) Decide(ctx context.Context, state domain.PipelineState) domain.Task {
	return f(ctx, state)
}

// Deterministic is the Decider backed only by NextTask.
var Deterministic Decider = DeciderFunc(func(_ context.Context, state domain.PipelineState) domain.Task {
	return NextTask(state)
})
