package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/storage/memory"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

type sampled struct {
	GeneratorFunc
}

func (sampled) Host() string         { return "http://127.0.0.1:11435" }
func (sampled) Temperature() float64 { return 0.2 }
func (sampled) Seed() int            { return 99 }

func TestRecorded_Generate(t *testing.T) {
	sink := trace.NewMemory()
	store := memory.New()
	rec := trace.NewInteractionRecorder(sink, store, nil, "run-1", nil)

	gen := sampled{GeneratorFunc(func(ctx context.Context, model, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})}

	out, err := Record(gen, "SummarizerAgent", rec).Generate(context.Background(), "llama3.1", "hello")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "echo: hello" {
		t.Errorf("Generate() = %q", out)
	}

	events := sink.Events()
	if len(events) != 1 || events[0].EventType != domain.EventLLMInteraction {
		t.Fatalf("events = %+v, want one llm_interaction", events)
	}
	p := events[0].Payload
	if p["agent"] != "SummarizerAgent" || p["seed"] != 99 || p["host"] != "http://127.0.0.1:11435" {
		t.Errorf("payload = %+v", p)
	}

	body, err := store.GetInteraction(context.Background(), p["body_ref"].(string))
	if err != nil {
		t.Fatalf("GetInteraction() error = %v", err)
	}
	if body.Response != "echo: hello" {
		t.Errorf("stored response = %q", body.Response)
	}
}

func TestRecorded_GenerateFailure(t *testing.T) {
	sink := trace.NewMemory()
	rec := trace.NewInteractionRecorder(sink, nil, nil, "run-1", nil)
	boom := errors.New("connection refused")

	gen := GeneratorFunc(func(ctx context.Context, model, prompt string) (string, error) {
		return "", boom
	})

	_, err := Record(gen, "SynthesizerAgent", rec).Generate(context.Background(), "llama3.1", "x")
	if !errors.Is(err, boom) {
		t.Fatalf("Generate() error = %v, want wrapped %v", err, boom)
	}
	if sink.Count(domain.EventLLMFailure) != 1 {
		t.Errorf("llm_failure events = %d, want 1", sink.Count(domain.EventLLMFailure))
	}
	if sink.Count(domain.EventLLMInteraction) != 0 {
		t.Error("failed call must not produce llm_interaction")
	}
}
