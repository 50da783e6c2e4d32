package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestPipelineState_JSONRoundTrip(t *testing.T) {
	for _, state := range AllStates() {
		data, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}

		var got PipelineState
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got != state {
			t.Errorf("round trip = %+v, want %+v", got, state)
		}
	}
}

func TestPipelineState_WithAndDone(t *testing.T) {
	var s PipelineState
	for _, task := range StageOrder {
		if s.Done(task) {
			t.Fatalf("Done(%s) = true before With", task)
		}
		s = s.With(task)
		if !s.Done(task) {
			t.Errorf("Done(%s) = false after With", task)
		}
	}
	if !s.Done(TaskComplete) {
		t.Error("Done(complete) = false with all flags set")
	}
	if got := len(s.Completed()); got != 4 {
		t.Errorf("Completed() = %d tasks, want 4", got)
	}
}

func TestAllStates(t *testing.T) {
	seen := make(map[PipelineState]bool)
	for _, s := range AllStates() {
		seen[s] = true
	}
	if len(seen) != 16 {
		t.Errorf("AllStates() produced %d distinct states, want 16", len(seen))
	}
}

func TestTaskForAgent(t *testing.T) {
	tests := []struct {
		id     string
		want   Task
		wantOK bool
	}{
		{"pdf_parser", TaskParsePapers, true},
		{"  Summarizer\n", TaskGenerateSummaries, true},
		{"synthesizer", TaskSynthesizeInsights, true},
		{"survey_writer", TaskWriteSurvey, true},
		{"", "", false},
		{"critic", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := TaskForAgent(tt.id)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("TaskForAgent(%q) = (%v, %v), want (%v, %v)", tt.id, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	for _, id := range Agents {
		task, _ := TaskForAgent(string(id))
		back, ok := AgentForTask(task)
		if !ok || back != id {
			t.Errorf("AgentForTask(%s) = %s, want %s", task, back, id)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	last := &BackendError{Backend: "b", SourceID: "x.pdf", Err: errors.New("boom")}
	exhausted := fmt.Errorf("parse: %w", &ExtractionExhaustedError{SourceID: "x.pdf", LastBackend: "b", Attempts: 2, Err: last})

	if !IsExtractionExhausted(exhausted) {
		t.Error("IsExtractionExhausted() = false, want true")
	}
	if KindOf(exhausted) != ErrorKindExtractionExhausted {
		t.Errorf("KindOf() = %q, want %q", KindOf(exhausted), ErrorKindExtractionExhausted)
	}

	var be *BackendError
	if !errors.As(exhausted, &be) || be.Backend != "b" {
		t.Errorf("last backend error not reachable via errors.As")
	}

	transition := &InvalidTransitionError{Expected: TaskParsePapers, Got: TaskWriteSurvey}
	if !IsInvalidTransition(transition) {
		t.Error("IsInvalidTransition() = false, want true")
	}
	if IsSelectorFailure(transition) {
		t.Error("IsSelectorFailure() = true for a transition error")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain) should be empty")
	}
}
