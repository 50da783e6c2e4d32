package trace

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/storage"
	"github.com/tjfontaine/research-copilot/internal/tokens"
)

const (
	promptPreviewChars   = 500
	responsePreviewChars = 200
)

// Call describes one completed model call.
type Call struct {
	Agent       string
	Model       string
	Host        string
	Temperature float64
	Seed        int
	Prompt      string
	Response    string
	Duration    time.Duration
}

// InteractionRecorder turns model calls into bounded llm_interaction
// events. The full bodies go to the interaction store and the event
// carries only the reference.
type InteractionRecorder struct {
	sink   Sink
	store  storage.InteractionStore
	tokens *tokens.Registry
	runID  string
	logger *slog.Logger
}

// NewInteractionRecorder creates a recorder. store and counter may be nil.
func NewInteractionRecorder(sink Sink, store storage.InteractionStore, counter *tokens.Registry, runID string, logger *slog.Logger) *InteractionRecorder {
	if sink == nil {
		sink = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InteractionRecorder{
		sink:   sink,
		store:  store,
		tokens: counter,
		runID:  runID,
		logger: logger,
	}
}

// Record persists the body of c and emits its llm_interaction event.
// Storage failures are logged; the event is still emitted without a
// body reference.
func (r *InteractionRecorder) Record(ctx context.Context, c Call) domain.LLMInteraction {
	sum := md5.Sum([]byte(c.Prompt))

	ev := domain.LLMInteraction{
		Agent:           c.Agent,
		Model:           c.Model,
		Host:            c.Host,
		Temperature:     c.Temperature,
		Seed:            c.Seed,
		PromptLength:    len(c.Prompt),
		ResponseLength:  len(c.Response),
		PromptHash:      hex.EncodeToString(sum[:]),
		PromptPreview:   Preview(c.Prompt, promptPreviewChars),
		ResponsePreview: Preview(c.Response, responsePreviewChars),
		Duration:        c.Duration,
	}
	if r.tokens != nil {
		ev.PromptTokens = r.tokens.Tokens(c.Model, c.Prompt)
	}

	if r.store != nil {
		ref, err := r.store.SaveInteraction(ctx, &domain.InteractionRecord{
			RunID:       r.runID,
			Agent:       c.Agent,
			Model:       c.Model,
			Host:        c.Host,
			Temperature: c.Temperature,
			Seed:        c.Seed,
			Prompt:      c.Prompt,
			Response:    c.Response,
		})
		if err != nil {
			r.logger.Error("failed to persist interaction body",
				slog.String("agent", c.Agent),
				slog.String("error", err.Error()),
			)
		} else {
			ev.BodyRef = ref
		}
	}

	r.sink.Emit(domain.EventLLMInteraction, ev.Payload())
	return ev
}

// RecordFailure emits an llm_failure event for a call that returned err.
func (r *InteractionRecorder) RecordFailure(c Call, err error) {
	sum := md5.Sum([]byte(c.Prompt))
	r.sink.Emit(domain.EventLLMFailure, map[string]any{
		"agent":          c.Agent,
		"model":          c.Model,
		"host":           c.Host,
		"prompt_length":  len(c.Prompt),
		"prompt_hash":    hex.EncodeToString(sum[:]),
		"prompt_preview": Preview(c.Prompt, promptPreviewChars),
		"duration_ms":    c.Duration.Milliseconds(),
		"error":          err.Error(),
	})
}

// Preview returns at most n runes of s, marking truncation with "...".
func Preview(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
