// Package llm defines the generative backend capability used by the
// selector and the stage agents.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/research-copilot/internal/trace"
)

// Generator produces text for a prompt. Calls are fallible; callers
// report failures instead of letting them end the run.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, model, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Sampling describes the parameters a generator was configured with.
// Implemented by *ollama.Client.
type Sampling interface {
	Host() string
	Temperature() float64
	Seed() int
}

// Recorded wraps a Generator so every call is recorded as an
// llm_interaction or llm_failure event attributed to Agent.
type Recorded struct {
	Agent    string
	next     Generator
	recorder *trace.InteractionRecorder
}

// Record wraps next for agent.
func Record(next Generator, agent string, recorder *trace.InteractionRecorder) *Recorded {
	return &Recorded{Agent: agent, next: next, recorder: recorder}
}

// Generate calls the wrapped generator and records the outcome.
func (r *Recorded) Generate(ctx context.Context, model, prompt string) (string, error) {
	call := trace.Call{
		Agent:  r.Agent,
		Model:  model,
		Prompt: prompt,
	}
	if s, ok := r.next.(Sampling); ok {
		call.Host = s.Host()
		call.Temperature = s.Temperature()
		call.Seed = s.Seed()
	}

	start := time.Now()
	response, err := r.next.Generate(ctx, model, prompt)
	call.Duration = time.Since(start)

	if err != nil {
		if r.recorder != nil {
			r.recorder.RecordFailure(call, err)
		}
		return "", fmt.Errorf("%s generation: %w", r.Agent, err)
	}

	call.Response = response
	if r.recorder != nil {
		r.recorder.Record(ctx, call)
	}
	return response, nil
}
