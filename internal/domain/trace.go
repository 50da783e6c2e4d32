package domain

import "time"

// Trace event types emitted by the pipeline.
const (
	EventSystemInit          = "system_init"
	EventRouterDecision      = "router_decision"
	EventSelectorFailure     = "selector_failure"
	EventStageStarted        = "stage_started"
	EventStageSkipped        = "stage_skipped"
	EventStageFailed         = "stage_failed"
	EventAdvance             = "advance"
	EventBackendFailure      = "extraction_backend_failed"
	EventExtractionExhausted = "extraction_exhausted"
	EventExtractionComplete  = "extraction_complete"
	EventAgentCall           = "agent_call"
	EventAgentResult         = "agent_result"
	EventArtifactSaved       = "artifact_saved"
	EventLLMInteraction      = "llm_interaction"
	EventLLMFailure          = "llm_failure"
	EventRunComplete         = "run_complete"
)

// TraceEvent is one line of the append-only trace log.
type TraceEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Seq       int64          `json:"seq"`
	RunID     string         `json:"run_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"data"`
}

// LLMInteraction summarises a single model call. The full prompt and
// response are stored out-of-band and referenced by BodyRef.
type LLMInteraction struct {
	Agent           string        `json:"agent"`
	Model           string        `json:"model"`
	Host            string        `json:"host,omitempty"`
	Temperature     float64       `json:"temperature"`
	Seed            int           `json:"seed"`
	PromptLength    int           `json:"prompt_length"`
	ResponseLength  int           `json:"response_length"`
	PromptTokens    int           `json:"prompt_tokens,omitempty"`
	PromptHash      string        `json:"prompt_hash"`
	PromptPreview   string        `json:"prompt_preview"`
	ResponsePreview string        `json:"response_preview"`
	BodyRef         string        `json:"body_ref,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
}

// Payload renders the interaction as a trace payload.
func (i LLMInteraction) Payload() map[string]any {
	p := map[string]any{
		"agent":            i.Agent,
		"model":            i.Model,
		"temperature":      i.Temperature,
		"seed":             i.Seed,
		"prompt_length":    i.PromptLength,
		"response_length":  i.ResponseLength,
		"prompt_hash":      i.PromptHash,
		"prompt_preview":   i.PromptPreview,
		"response_preview": i.ResponsePreview,
		"duration_ms":      i.Duration.Milliseconds(),
	}
	if i.Host != "" {
		p["host"] = i.Host
	}
	if i.PromptTokens > 0 {
		p["prompt_tokens"] = i.PromptTokens
	}
	if i.BodyRef != "" {
		p["body_ref"] = i.BodyRef
	}
	return p
}

// InteractionRecord is the untruncated prompt/response pair persisted by
// the storage collaborator.
type InteractionRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Agent       string    `json:"agent"`
	Model       string    `json:"model"`
	Host        string    `json:"host,omitempty"`
	Temperature float64   `json:"temperature"`
	Seed        int       `json:"seed"`
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	CreatedAt   time.Time `json:"created_at"`
}
