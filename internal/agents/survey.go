package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// SurveyWriter writes the final mini-survey with inline citations.
type SurveyWriter struct {
	deps      Deps
	ws        *Workspace
	wordLimit int
}

// NewSurveyWriter creates the survey stage.
func NewSurveyWriter(deps Deps, ws *Workspace, wordLimit int) *SurveyWriter {
	if wordLimit <= 0 {
		wordLimit = 800
	}
	return &SurveyWriter{deps: deps.withDefaults(), ws: ws, wordLimit: wordLimit}
}

func (s *SurveyWriter) Task() domain.Task { return domain.TaskWriteSurvey }

func (s *SurveyWriter) Run(ctx context.Context) (int, error) {
	summaries := s.ws.Summaries()
	synthesis := s.ws.Synthesis()
	if len(summaries) == 0 || synthesis == nil {
		return 0, fmt.Errorf("survey needs summaries and a synthesis")
	}

	s.deps.Sink.Emit(domain.EventAgentCall, map[string]any{
		"agent":      NameSurveyWriter,
		"action":     "generate_mini_survey",
		"num_papers": len(summaries),
		"word_limit": s.wordLimit,
	})

	body, err := s.deps.generator(NameSurveyWriter).Generate(ctx, s.deps.Model, surveyPrompt(summaries, synthesis, s.wordLimit))
	if err != nil {
		s.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
			"agent":   NameSurveyWriter,
			"action":  "generate_mini_survey",
			"success": false,
			"error":   err.Error(),
		})
		return 0, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, fmt.Errorf("survey writer returned no text")
	}

	papers := make([]string, len(summaries))
	for i, sum := range summaries {
		papers[i] = sum.Title
	}
	survey := domain.Survey{
		Text:      body + references(summaries),
		WordCount: WordCount(body),
		WordLimit: s.wordLimit,
		Papers:    papers,
	}

	s.deps.save(ctx, domain.ArtifactSurvey, "survey.md", "text/markdown", []byte(survey.Text))
	s.deps.saveJSON(ctx, domain.ArtifactSurvey, "survey.json", survey)
	s.ws.SetSurvey(&survey)

	s.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
		"agent":      NameSurveyWriter,
		"action":     "generate_mini_survey",
		"success":    true,
		"word_count": survey.WordCount,
	})
	return 1, nil
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
