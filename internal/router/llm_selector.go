package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/llm"
)

// AgentDescriptions tells the selector model what each agent is for.
var AgentDescriptions = map[domain.AgentID]string{
	domain.AgentPDFParser:    "Parses PDF research papers and extracts text content, metadata, and structure from research papers in PDF format. Use when you need to read PDFs.",
	domain.AgentSummarizer:   "Generates structured summaries of research papers including methodology, key contributions, results, and limitations. Use when papers have been parsed and need summarization.",
	domain.AgentSynthesizer:  "Synthesizes insights across multiple research papers, identifies common themes, contradictions, and research gaps. Use when you have multiple summaries and need cross-paper analysis.",
	domain.AgentSurveyWriter: "Writes comprehensive mini-surveys with proper academic structure, inline citations, and concise presentation of findings. Use as final step to create survey documents.",
}

// LLMSelector asks a model to name the agent for a query.
type LLMSelector struct {
	gen   llm.Generator
	model string
}

// NewLLMSelector creates a selector backed by gen.
func NewLLMSelector(gen llm.Generator, model string) *LLMSelector {
	return &LLMSelector{gen: gen, model: model}
}

// SelectAgent returns the agent named earliest in the model's reply, or
// the trimmed reply itself when it names none.
func (s *LLMSelector) SelectAgent(ctx context.Context, query string) (string, error) {
	reply, err := s.gen.Generate(ctx, s.model, selectorPrompt(query))
	if err != nil {
		return "", err
	}
	if agent, ok := ParseAgent(reply); ok {
		return string(agent), nil
	}
	return strings.TrimSpace(reply), nil
}

// ParseAgent finds the earliest known agent identifier in text. Spaces
// and hyphens are accepted in place of underscores.
func ParseAgent(text string) (domain.AgentID, bool) {
	norm := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(text))

	best, bestAt := domain.AgentID(""), -1
	for _, id := range domain.Agents {
		at := strings.Index(norm, string(id))
		if at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = id, at
		}
	}
	return best, bestAt >= 0
}

func selectorPrompt(query string) string {
	var sb strings.Builder
	sb.WriteString("You are the orchestrator of a research paper pipeline. Choose the single agent best suited to the request.\n\nAvailable agents:\n")
	for _, id := range domain.Agents {
		fmt.Fprintf(&sb, "- %s: %s\n", id, AgentDescriptions[id])
	}
	sb.WriteString("\nRequest: ")
	sb.WriteString(query)
	sb.WriteString("\n\nRespond with only the agent name.")
	return sb.String()
}
