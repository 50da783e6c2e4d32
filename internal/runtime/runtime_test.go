package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/research-copilot/internal/config"
	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/router"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

// scriptedModel answers each agent prompt with a canned reply. Synthesis
// fails while failSynthesis is set.
type scriptedModel struct {
	calls         atomic.Int32
	summaries     atomic.Int32
	failSynthesis atomic.Bool
}

func (m *scriptedModel) Generate(ctx context.Context, model, prompt string) (string, error) {
	m.calls.Add(1)
	switch {
	case strings.Contains(prompt, "research paper analysis expert"):
		m.summaries.Add(1)
		return "1. Main Contribution: A method that reads papers quickly and well.\n2. Methodology: Careful reading of many papers.", nil
	case strings.Contains(prompt, "research synthesis expert"):
		if m.failSynthesis.Load() {
			return "", errors.New("model unavailable")
		}
		return "1. Common Themes: Reading.\n3. Research Gaps: Writing.", nil
	case strings.Contains(prompt, "mini-survey"):
		return "Papers read quickly [1] and well [2].", nil
	}
	return "", errors.New("unexpected prompt")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func writeSources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range map[string]string{
		"a.txt": "# Fast Reading\n\nWe read fast.",
		"b.md":  "# Good Reading\n\nWe read well.",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newCopilot(t *testing.T, model *scriptedModel, opts ...Option) *Copilot {
	t.Helper()
	cfg := testConfig(t)
	c, err := New(append([]Option{
		WithConfig(cfg),
		WithFileStorage(cfg.Output.Dir),
		WithGenerator(model),
		WithoutSelector(),
	}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "postgres"
	if _, err := New(WithConfig(cfg)); err == nil {
		t.Error("New() expected error for invalid config")
	}
}

func TestNewRun_CreatesFolder(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	c := newCopilot(t, &scriptedModel{}, WithClock(func() time.Time { return fixed }))

	r1, err := c.NewRun(context.Background())
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	r2, err := c.NewRun(context.Background())
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}

	if r1.ID != "run_20250301_123000" {
		t.Errorf("NewRun() id = %v, want run_20250301_123000", r1.ID)
	}
	if r2.ID != "run_20250301_123000_2" {
		t.Errorf("NewRun() second id = %v, want run_20250301_123000_2", r2.ID)
	}

	if _, err := os.Stat(filepath.Join(r1.Dir, "config.json")); err != nil {
		t.Errorf("config.json missing: %v", err)
	}
	events, err := trace.ReadEvents(r1.TracePath())
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].EventType != domain.EventSystemInit {
		t.Fatalf("events = %+v, want one system_init", events)
	}
	if events[0].Payload["model"] != "llama3.1" {
		t.Errorf("system_init model = %v", events[0].Payload["model"])
	}
}

func TestExecute_CompletesRun(t *testing.T) {
	model := &scriptedModel{}
	c := newCopilot(t, model)
	ctx := context.Background()

	r, err := c.NewRun(ctx)
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	res, err := r.Execute(ctx, writeSources(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !res.Complete() {
		t.Fatalf("Execute() state = %+v, want complete", res.State)
	}
	if len(res.Summaries) != 2 {
		t.Errorf("summaries = %d, want 2", len(res.Summaries))
	}
	if res.Survey == nil || !strings.Contains(res.Survey.Text, "## References") {
		t.Errorf("survey = %+v, want references", res.Survey)
	}
	if got := model.calls.Load(); got != 4 {
		t.Errorf("model calls = %d, want 4", got)
	}

	if _, err := os.Stat(filepath.Join(r.Dir, "survey", "survey.md")); err != nil {
		t.Errorf("survey.md missing: %v", err)
	}
	responses, _ := filepath.Glob(filepath.Join(r.Dir, "llm_response_*.json"))
	if len(responses) != 4 {
		t.Errorf("llm_response files = %d, want 4", len(responses))
	}

	events, err := trace.ReadEvents(r.TracePath())
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if n := len(trace.Filter(events, domain.EventAdvance)); n != 4 {
		t.Errorf("advance events = %d, want 4", n)
	}
	last := events[len(events)-1]
	if last.EventType != domain.EventRunComplete || last.Payload["complete"] != true {
		t.Errorf("last event = %+v, want complete run_complete", last)
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Fatalf("event %d seq = %d", i, e.Seq)
		}
	}

	info, err := c.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if info.Status != StatusCompleted {
		t.Errorf("GetRun() status = %v, want completed", info.Status)
	}
}

func TestResume_ContinuesFromCheckpoint(t *testing.T) {
	model := &scriptedModel{}
	model.failSynthesis.Store(true)
	c := newCopilot(t, model)
	ctx := context.Background()
	sources := writeSources(t)

	r, err := c.NewRun(ctx)
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	res, err := r.Execute(ctx, sources)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Complete() || !res.State.SummariesGenerated || res.State.SynthesisDone {
		t.Fatalf("Execute() state = %+v, want stopped before synthesis", res.State)
	}
	if info := r.Info(); info.Status != StatusIncomplete {
		t.Errorf("Info() status = %v, want incomplete", info.Status)
	}
	r.Close()

	model.failSynthesis.Store(false)
	res, err = c.Resume(ctx, r.ID, "")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !res.Complete() {
		t.Fatalf("Resume() state = %+v, want complete", res.State)
	}
	if got := model.summaries.Load(); got != 2 {
		t.Errorf("summary calls = %d, want 2 (no re-summarization)", got)
	}
	if len(res.Summaries) != 2 {
		t.Errorf("restored summaries = %d, want 2", len(res.Summaries))
	}

	events, err := trace.ReadEvents(filepath.Join(r.Dir, "trace.jsonl"))
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if n := len(trace.Filter(events, domain.EventSystemInit)); n != 2 {
		t.Errorf("system_init events = %d, want 2", n)
	}
	if n := len(trace.Filter(events, domain.EventExtractionComplete)); n != 2 {
		t.Errorf("extraction_complete events = %d, want 2", n)
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Fatalf("event %d seq = %d, want continuous sequence", i, e.Seq)
		}
	}
}

func TestExecute_SelectorFailureFallsBack(t *testing.T) {
	sel := router.SelectorFunc(func(ctx context.Context, query string) (string, error) {
		return "", errors.New("orchestrator offline")
	})
	c := newCopilot(t, &scriptedModel{}, WithSelector(sel))
	ctx := context.Background()

	r, err := c.NewRun(ctx)
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	res, err := r.Execute(ctx, writeSources(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Complete() {
		t.Fatalf("Execute() state = %+v, want complete", res.State)
	}

	events, _ := trace.ReadEvents(r.TracePath())
	if n := len(trace.Filter(events, domain.EventSelectorFailure)); n != 4 {
		t.Errorf("selector_failure events = %d, want 4", n)
	}
}

func TestExecute_RequiresSourceFolder(t *testing.T) {
	c := newCopilot(t, &scriptedModel{})
	r, err := c.NewRun(context.Background())
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	if _, err := r.Execute(context.Background(), ""); err == nil {
		t.Error("Execute() expected error without a source folder")
	}
}

func TestStartRun_Background(t *testing.T) {
	c := newCopilot(t, &scriptedModel{})
	ctx := context.Background()

	info, err := c.StartRun(ctx, writeSources(t))
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	c.wg.Wait()

	got, err := c.GetRun(ctx, info.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("GetRun() status = %v, want completed", got.Status)
	}

	runs, err := c.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != info.ID {
		t.Errorf("ListRuns() = %+v", runs)
	}

	if _, err := c.StartRun(ctx, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("StartRun() expected error for missing folder")
	}
}

func TestGetRun_Unknown(t *testing.T) {
	c := newCopilot(t, &scriptedModel{})
	for _, id := range []string{"run_missing", "../etc", ""} {
		if _, err := c.GetRun(context.Background(), id); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetRun(%q) error = %v, want ErrRunNotFound", id, err)
		}
	}
	if _, err := c.TracePath("../x"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("TracePath() error = %v, want ErrRunNotFound", err)
	}
}

func TestExecuteOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "memory"

	res, err := ExecuteOnce(context.Background(), cfg, writeSources(t),
		WithGenerator(&scriptedModel{}),
		WithoutSelector(),
	)
	if err != nil {
		t.Fatalf("ExecuteOnce() error = %v", err)
	}
	if !res.Complete() {
		t.Errorf("ExecuteOnce() state = %+v, want complete", res.State)
	}
	if !strings.HasPrefix(filepath.Base(res.Dir), "run_") {
		t.Errorf("ExecuteOnce() dir = %v", res.Dir)
	}
}
