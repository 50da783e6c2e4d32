package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// minSectionChars is the shortest section body accepted from a reply.
const minSectionChars = 20

// Summarizer produces a structured summary for each parsed paper.
type Summarizer struct {
	deps       Deps
	ws         *Workspace
	inputChars int
}

// NewSummarizer creates the summary stage. Only the first inputChars
// bytes of each paper are sent to the model.
func NewSummarizer(deps Deps, ws *Workspace, inputChars int) *Summarizer {
	if inputChars <= 0 {
		inputChars = 15000
	}
	return &Summarizer{deps: deps.withDefaults(), ws: ws, inputChars: inputChars}
}

func (s *Summarizer) Task() domain.Task { return domain.TaskGenerateSummaries }

// Run summarises papers one at a time. A paper whose generation fails is
// skipped; the stage fails only when no summary is produced.
func (s *Summarizer) Run(ctx context.Context) (int, error) {
	papers := s.ws.Papers()
	if len(papers) == 0 {
		return 0, fmt.Errorf("no parsed papers to summarize")
	}

	gen := s.deps.generator(NameSummarizer)
	var summaries []domain.Summary

	for _, paper := range papers {
		if err := ctx.Err(); err != nil {
			return len(summaries), err
		}

		s.deps.Sink.Emit(domain.EventAgentCall, map[string]any{
			"agent":  NameSummarizer,
			"action": "summarize_paper",
			"paper":  paper.SourceID,
		})

		reply, err := gen.Generate(ctx, s.deps.Model, summaryPrompt(paper.Title, truncate(paper.Text, s.inputChars)))
		if err != nil {
			s.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
				"agent":   NameSummarizer,
				"action":  "summarize_paper",
				"paper":   paper.SourceID,
				"success": false,
				"error":   err.Error(),
			})
			s.deps.Logger.Warn("summary failed",
				slog.String("paper", paper.SourceID),
				slog.String("error", err.Error()),
			)
			continue
		}

		summary := ParseSummary(reply, paper.SourceID, paper.Title)
		s.deps.saveJSON(ctx, domain.ArtifactSummary, indexedName(len(summaries), paper.Title, ".json"), summary)
		summaries = append(summaries, summary)

		s.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
			"agent":   NameSummarizer,
			"action":  "summarize_paper",
			"paper":   paper.SourceID,
			"success": true,
		})
	}

	s.ws.SetSummaries(summaries)
	return len(summaries), nil
}

// ParseSummary extracts the summary sections from a model reply. When the
// reply has no recognisable main contribution, its sentences are spread
// across the sections instead.
func ParseSummary(reply, sourceID, title string) domain.Summary {
	sections := extractSections(reply, summarySections)
	for k, v := range sections {
		if len(v) <= minSectionChars {
			delete(sections, k)
		}
	}

	if sections["main_contribution"] == "" {
		return generalSummary(reply, sourceID, title)
	}

	return domain.Summary{
		SourceID:         sourceID,
		Title:            title,
		MainContribution: sections["main_contribution"],
		Methodology:      sections["methodology"],
		KeyFindings:      sections["key_findings"],
		Limitations:      sections["limitations"],
		FutureWork:       sections["future_work"],
		Raw:              reply,
	}
}

func generalSummary(reply, sourceID, title string) domain.Summary {
	sentences := splitSentences(reply)
	n := len(sentences)

	s := domain.Summary{
		SourceID:         sourceID,
		Title:            title,
		MainContribution: joinRange(sentences, 0, max(2, n/5)),
		Methodology:      "See main contribution",
		KeyFindings:      "See main contribution",
		Limitations:      "Not stated",
		FutureWork:       "Not stated",
		Raw:              reply,
	}
	if n > 5 {
		s.Methodology = joinRange(sentences, n/5, 2*n/5)
		s.KeyFindings = joinRange(sentences, 2*n/5, 3*n/5)
	}
	if n > 10 {
		s.Limitations = joinRange(sentences, 3*n/5, 4*n/5)
		s.FutureWork = joinRange(sentences, 4*n/5, n)
	}
	if strings.TrimSpace(s.MainContribution) == "" {
		s.MainContribution = strings.TrimSpace(reply)
	}
	return s
}
