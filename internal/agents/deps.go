package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/llm"
	"github.com/tjfontaine/research-copilot/internal/storage"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

// Agent names as they appear in trace events and interaction files.
const (
	NameParser       = "PDFParser"
	NameSummarizer   = "SummarizerAgent"
	NameSynthesizer  = "SynthesizerAgent"
	NameSurveyWriter = "SurveyWriterAgent"
)

// Deps are the collaborators shared by every agent of a run.
type Deps struct {
	RunID     string
	Model     string
	Generator llm.Generator
	Recorder  *trace.InteractionRecorder
	Artifacts storage.ArtifactStore
	Sink      trace.Sink
	Logger    *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = trace.Discard
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

func (d Deps) generator(agent string) llm.Generator {
	return llm.Record(d.Generator, agent, d.Recorder)
}

// saveJSON persists v as an artifact. Failures are logged; the stage
// result does not depend on persistence.
func (d Deps) saveJSON(ctx context.Context, kind domain.ArtifactKind, name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		d.Logger.Error("failed to encode artifact", slog.String("name", name), slog.String("error", err.Error()))
		return
	}
	d.save(ctx, kind, name, "application/json", data)
}

func (d Deps) save(ctx context.Context, kind domain.ArtifactKind, name, contentType string, content []byte) {
	if d.Artifacts == nil {
		return
	}
	ref, err := d.Artifacts.SaveArtifact(ctx, &domain.Artifact{
		RunID:       d.RunID,
		Kind:        kind,
		Name:        name,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		d.Logger.Error("failed to save artifact",
			slog.String("kind", string(kind)),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}
	d.Sink.Emit(domain.EventArtifactSaved, map[string]any{
		"kind": string(kind),
		"name": name,
		"ref":  ref,
		"size": len(content),
	})
}

// slug turns a title into a file-name friendly token.
func slug(s string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore && sb.Len() > 0 {
			sb.WriteByte('_')
			lastUnderscore = true
		}
		if sb.Len() >= 60 {
			break
		}
	}
	out := strings.TrimSuffix(sb.String(), "_")
	if out == "" {
		return "untitled"
	}
	return out
}

func indexedName(i int, title, ext string) string {
	return fmt.Sprintf("%02d_%s%s", i+1, slug(title), ext)
}
