package agents

import (
	"context"
	"fmt"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// Synthesizer analyses all summaries together.
type Synthesizer struct {
	deps     Deps
	ws       *Workspace
	perPaper int
}

// NewSynthesizer creates the synthesis stage. Each summary field is cut to
// perPaper bytes in the prompt.
func NewSynthesizer(deps Deps, ws *Workspace, perPaper int) *Synthesizer {
	if perPaper <= 0 {
		perPaper = 1000
	}
	return &Synthesizer{deps: deps.withDefaults(), ws: ws, perPaper: perPaper}
}

func (s *Synthesizer) Task() domain.Task { return domain.TaskSynthesizeInsights }

func (s *Synthesizer) Run(ctx context.Context) (int, error) {
	summaries := s.ws.Summaries()
	if len(summaries) == 0 {
		return 0, fmt.Errorf("no summaries to synthesize")
	}

	s.deps.Sink.Emit(domain.EventAgentCall, map[string]any{
		"agent":      NameSynthesizer,
		"action":     "synthesize_insights",
		"num_papers": len(summaries),
	})

	reply, err := s.deps.generator(NameSynthesizer).Generate(ctx, s.deps.Model, synthesisPrompt(summaries, s.perPaper))
	if err != nil {
		s.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
			"agent":   NameSynthesizer,
			"action":  "synthesize_insights",
			"success": false,
			"error":   err.Error(),
		})
		return 0, err
	}

	synthesis := ParseSynthesis(reply, summaries)
	s.deps.saveJSON(ctx, domain.ArtifactSynthesis, "synthesis.json", synthesis)
	s.ws.SetSynthesis(&synthesis)

	s.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
		"agent":   NameSynthesizer,
		"action":  "synthesize_insights",
		"success": true,
	})
	return 1, nil
}

// ParseSynthesis extracts the synthesis sections from a model reply. The
// whole reply is kept as Insights.
func ParseSynthesis(reply string, summaries []domain.Summary) domain.Synthesis {
	sections := extractSections(reply, synthesisSections)

	papers := make([]string, len(summaries))
	for i, s := range summaries {
		papers[i] = s.Title
	}

	return domain.Synthesis{
		Papers:               papers,
		CommonThemes:         sections["common_themes"],
		MethodologicalTrends: sections["methodological_trends"],
		ResearchGaps:         sections["research_gaps"],
		Contradictions:       sections["contradictions"],
		Insights:             reply,
	}
}
