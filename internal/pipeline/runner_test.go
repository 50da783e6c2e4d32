package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

type countingStage struct {
	task  domain.Task
	items int
	err   error
	calls int
}

func (s *countingStage) Task() domain.Task { return s.task }

func (s *countingStage) Run(ctx context.Context) (int, error) {
	s.calls++
	return s.items, s.err
}

func newStages(items ...int) []*countingStage {
	stages := make([]*countingStage, len(domain.StageOrder))
	for i, task := range domain.StageOrder {
		stages[i] = &countingStage{task: task, items: items[i]}
	}
	return stages
}

func asStages(in []*countingStage) []Stage {
	out := make([]Stage, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func TestRunner_RunAllCompletes(t *testing.T) {
	sink := trace.NewMemory()
	stages := newStages(3, 3, 1, 1)
	var checkpoints []domain.PipelineState

	r, err := NewRunner(asStages(stages), WithSink(sink), WithCheckpoint(func(_ context.Context, s domain.PipelineState) error {
		checkpoints = append(checkpoints, s)
		return nil
	}))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	final, err := r.RunAll(context.Background(), domain.PipelineState{})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if !final.Done(domain.TaskComplete) {
		t.Errorf("RunAll() = %+v, want complete", final)
	}
	if got := sink.Count(domain.EventAdvance); got != 4 {
		t.Errorf("advance events = %d, want 4", got)
	}
	if len(checkpoints) != 4 {
		t.Errorf("checkpoints = %d, want 4", len(checkpoints))
	}
	for _, s := range stages {
		if s.calls != 1 {
			t.Errorf("stage %v ran %d times, want 1", s.task, s.calls)
		}
	}
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	sink := trace.NewMemory()
	stages := newStages(2, 2, 0, 1)

	r, err := NewRunner(asStages(stages), WithSink(sink))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	final, err := r.RunAll(context.Background(), domain.PipelineState{})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}

	want := domain.PipelineState{PapersParsed: true, SummariesGenerated: true}
	if final != want {
		t.Errorf("RunAll() = %+v, want %+v", final, want)
	}
	if stages[3].calls != 0 {
		t.Error("survey stage ran after synthesis failed")
	}
	if sink.Count(domain.EventAdvance) != 2 {
		t.Errorf("advance events = %d, want 2", sink.Count(domain.EventAdvance))
	}
	if sink.Count(domain.EventStageFailed) != 1 {
		t.Errorf("stage_failed events = %d, want 1", sink.Count(domain.EventStageFailed))
	}
}

func TestRunner_ResumesFromPartialState(t *testing.T) {
	stages := newStages(1, 1, 1, 1)
	r, err := NewRunner(asStages(stages))
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	start := domain.PipelineState{PapersParsed: true, SummariesGenerated: true}
	final, err := r.RunAll(context.Background(), start)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if !final.Done(domain.TaskComplete) {
		t.Errorf("RunAll() = %+v, want complete", final)
	}
	if stages[0].calls != 0 || stages[1].calls != 0 {
		t.Error("completed stages ran again on resume")
	}
}

func TestRunner_StageErrorIsFailureNotFatal(t *testing.T) {
	stages := newStages(1, 1, 1, 1)
	stages[0].err = errors.New("no sources")

	r, _ := NewRunner(asStages(stages))
	final, ok, err := r.RunStage(context.Background(), domain.TaskParsePapers, domain.PipelineState{})
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if ok {
		t.Error("RunStage() success = true, want false")
	}
	if final != (domain.PipelineState{}) {
		t.Errorf("RunStage() changed state on failure: %+v", final)
	}
}

func TestRunner_PanickingStageIsFailure(t *testing.T) {
	stages := asStages(newStages(1, 1, 1, 1))
	stages[0] = StageFunc{T: domain.TaskParsePapers, Fn: func(context.Context) (int, error) {
		panic("boom")
	}}

	sink := trace.NewMemory()
	r, _ := NewRunner(stages, WithSink(sink))
	_, ok, err := r.RunStage(context.Background(), domain.TaskParsePapers, domain.PipelineState{})
	if err != nil || ok {
		t.Fatalf("RunStage() = ok %v, err %v; want failure without error", ok, err)
	}
	if sink.Count(domain.EventStageFailed) != 1 {
		t.Error("expected stage_failed event")
	}
}

func TestRunner_SkipsWhenDeciderDisagrees(t *testing.T) {
	sink := trace.NewMemory()
	stages := newStages(1, 1, 1, 1)
	r, _ := NewRunner(asStages(stages), WithSink(sink))

	// Prerequisites unmet: the router answers parse_papers.
	final, ok, err := r.RunStage(context.Background(), domain.TaskWriteSurvey, domain.PipelineState{})
	if err != nil {
		t.Fatalf("RunStage() error = %v", err)
	}
	if ok || final != (domain.PipelineState{}) {
		t.Errorf("RunStage() = %+v, %v; want unchanged, false", final, ok)
	}
	if stages[3].calls != 0 {
		t.Error("skipped stage must not run")
	}
	if sink.Count(domain.EventStageSkipped) != 1 {
		t.Error("expected stage_skipped event")
	}
}

func TestRunner_InvalidTransitionIsFatal(t *testing.T) {
	stages := newStages(1, 1, 1, 1)
	wrong := DeciderFunc(func(context.Context, domain.PipelineState) domain.Task {
		return domain.TaskWriteSurvey
	})
	r, _ := NewRunner(asStages(stages), WithDecider(wrong))

	_, ok, err := r.RunStage(context.Background(), domain.TaskWriteSurvey, domain.PipelineState{})
	if !domain.IsInvalidTransition(err) {
		t.Fatalf("RunStage() error = %v, want InvalidTransition", err)
	}
	if ok {
		t.Error("RunStage() success = true on invalid transition")
	}
}

func TestRunner_RunAllStopsOnSkip(t *testing.T) {
	stages := newStages(1, 1, 1, 1)
	never := DeciderFunc(func(context.Context, domain.PipelineState) domain.Task {
		return domain.TaskComplete
	})
	r, _ := NewRunner(asStages(stages), WithDecider(never))

	final, err := r.RunAll(context.Background(), domain.PipelineState{})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if final != (domain.PipelineState{}) {
		t.Errorf("RunAll() = %+v, want unchanged", final)
	}
	for _, s := range stages {
		if s.calls != 0 {
			t.Errorf("stage %v ran", s.task)
		}
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	r, _ := NewRunner(asStages(newStages(1, 1, 1, 1)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.RunAll(ctx, domain.PipelineState{}); !errors.Is(err, context.Canceled) {
		t.Errorf("RunAll() error = %v, want context.Canceled", err)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	stages := asStages(newStages(1, 1, 1, 1))

	if _, err := NewRunner(stages[:3]); err == nil {
		t.Error("NewRunner() with a missing stage should fail")
	}
	if _, err := NewRunner(append(stages, stages[0])); err == nil {
		t.Error("NewRunner() with a duplicate stage should fail")
	}
	bad := append(stages[:3:3], StageFunc{T: domain.TaskComplete})
	if _, err := NewRunner(bad); err == nil {
		t.Error("NewRunner() with a non-stage task should fail")
	}
}
