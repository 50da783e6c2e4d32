// Package agents implements the work behind each pipeline stage: parsing
// sources, summarising papers, synthesising across papers and writing the
// survey. Stage outputs are carried forward in a Workspace.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/storage"
)

// Workspace holds the outputs of completed stages for one run.
type Workspace struct {
	mu        sync.RWMutex
	sourceDir string
	papers    []domain.ExtractionResult
	summaries []domain.Summary
	synthesis *domain.Synthesis
	survey    *domain.Survey
}

// NewWorkspace creates an empty workspace reading sources from dir.
func NewWorkspace(sourceDir string) *Workspace {
	return &Workspace{sourceDir: sourceDir}
}

func (w *Workspace) SourceDir() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sourceDir
}

func (w *Workspace) Papers() []domain.ExtractionResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]domain.ExtractionResult(nil), w.papers...)
}

func (w *Workspace) SetPapers(p []domain.ExtractionResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.papers = p
}

func (w *Workspace) Summaries() []domain.Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]domain.Summary(nil), w.summaries...)
}

func (w *Workspace) SetSummaries(s []domain.Summary) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.summaries = s
}

func (w *Workspace) Synthesis() *domain.Synthesis {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.synthesis
}

func (w *Workspace) SetSynthesis(s *domain.Synthesis) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.synthesis = s
}

func (w *Workspace) Survey() *domain.Survey {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.survey
}

func (w *Workspace) SetSurvey(s *domain.Survey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.survey = s
}

// Load restores stage outputs saved as JSON artifacts by an earlier
// attempt of the run, so a resumed run can continue where it stopped.
func (w *Workspace) Load(ctx context.Context, store storage.ArtifactStore, runID string) error {
	papers, err := loadJSON[domain.ExtractionResult](ctx, store, runID, domain.ArtifactParsedText)
	if err != nil {
		return err
	}
	summaries, err := loadJSON[domain.Summary](ctx, store, runID, domain.ArtifactSummary)
	if err != nil {
		return err
	}
	syntheses, err := loadJSON[domain.Synthesis](ctx, store, runID, domain.ArtifactSynthesis)
	if err != nil {
		return err
	}
	surveys, err := loadJSON[domain.Survey](ctx, store, runID, domain.ArtifactSurvey)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.papers = papers
	w.summaries = summaries
	if n := len(syntheses); n > 0 {
		w.synthesis = &syntheses[n-1]
	}
	if n := len(surveys); n > 0 {
		w.survey = &surveys[n-1]
	}
	return nil
}

func loadJSON[T any](ctx context.Context, store storage.ArtifactStore, runID string, kind domain.ArtifactKind) ([]T, error) {
	artifacts, err := store.ListArtifacts(ctx, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s artifacts: %w", kind, err)
	}
	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].Name < artifacts[j].Name
	})

	var out []T
	for _, a := range artifacts {
		if a.ContentType != "application/json" {
			continue
		}
		var v T
		if err := json.Unmarshal(a.Content, &v); err != nil {
			return nil, fmt.Errorf("decode %s artifact %s: %w", kind, a.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}
