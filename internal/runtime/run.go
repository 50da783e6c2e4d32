package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tjfontaine/research-copilot/internal/agents"
	"github.com/tjfontaine/research-copilot/internal/config"
	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/extract"
	"github.com/tjfontaine/research-copilot/internal/llm"
	"github.com/tjfontaine/research-copilot/internal/pipeline"
	"github.com/tjfontaine/research-copilot/internal/router"
	"github.com/tjfontaine/research-copilot/internal/storage"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

const snapshotFile = "config.json"

// orchestratorAgent attributes selector calls in the trace.
const orchestratorAgent = "Orchestrator"

// Status is the lifecycle position of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
)

// RunInfo describes a run for listing and status queries.
type RunInfo struct {
	ID         string               `json:"id"`
	Dir        string               `json:"dir"`
	SourceDir  string               `json:"source_dir,omitempty"`
	Status     Status               `json:"status"`
	State      domain.PipelineState `json:"state"`
	StartedAt  time.Time            `json:"started_at,omitzero"`
	FinishedAt time.Time            `json:"finished_at,omitzero"`
	Error      string               `json:"error,omitempty"`
}

// Result is the outcome of one Execute call.
type Result struct {
	RunID     string                    `json:"run_id"`
	Dir       string                    `json:"dir"`
	State     domain.PipelineState      `json:"state"`
	Papers    []domain.ExtractionResult `json:"-"`
	Summaries []domain.Summary          `json:"summaries"`
	Synthesis *domain.Synthesis         `json:"synthesis,omitempty"`
	Survey    *domain.Survey            `json:"survey,omitempty"`
	Duration  time.Duration             `json:"duration"`
}

// Complete reports whether every stage has finished.
func (r *Result) Complete() bool {
	return r.State.Done(domain.TaskComplete)
}

// runSnapshot is written to config.json in the run folder.
type runSnapshot struct {
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	SourceDir string         `json:"source_dir,omitempty"`
	Config    *config.Config `json:"config"`
}

// Run is one research run: a folder, its trace and its pipeline state.
type Run struct {
	ID  string
	Dir string

	c      *Copilot
	log    *trace.Log
	logger *slog.Logger

	mu         sync.Mutex
	status     Status
	state      domain.PipelineState
	sourceDir  string
	startedAt  time.Time
	finishedAt time.Time
	err        error
	closed     bool
}

// NewRun creates the run folder, writes config.json, opens trace.jsonl and
// records system_init.
func (c *Copilot) NewRun(ctx context.Context) (*Run, error) {
	id, dir, err := c.createRunDir()
	if err != nil {
		return nil, err
	}

	r, err := c.openRun(id, dir)
	if err != nil {
		return nil, err
	}
	r.startedAt = c.now()
	if err := r.writeSnapshot(); err != nil {
		r.Close()
		return nil, err
	}

	r.log.Emit(domain.EventSystemInit, c.initPayload(false, r.state))
	r.logger.Info("run created", slog.String("dir", dir))
	c.track(r)
	return r, nil
}

// OpenRun reattaches to an existing run folder, continuing its trace and
// restoring its checkpointed state.
func (c *Copilot) OpenRun(ctx context.Context, runID string) (*Run, error) {
	if r, ok := c.tracked(runID); ok {
		r.mu.Lock()
		closed, running := r.closed, r.status == StatusRunning
		r.mu.Unlock()
		if running {
			return nil, fmt.Errorf("%w: %s", ErrRunInProgress, runID)
		}
		if !closed {
			return r, nil
		}
	}

	dir, err := c.runDir(runID)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	state, err := c.store.LoadState(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load state: %w", err)
	}

	r, err := c.openRun(runID, dir)
	if err != nil {
		return nil, err
	}
	r.state = state
	if snap, err := readSnapshot(dir); err == nil {
		r.sourceDir = snap.SourceDir
		r.startedAt = snap.Timestamp
	}

	r.log.Emit(domain.EventSystemInit, c.initPayload(true, state))
	r.logger.Info("run resumed", slog.Any("completed", state.Completed()))
	c.track(r)
	return r, nil
}

func (c *Copilot) openRun(id, dir string) (*Run, error) {
	log, err := trace.Open(filepath.Join(dir, c.cfg.Trace.File),
		trace.WithRunID(id),
		trace.WithLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:     id,
		Dir:    dir,
		c:      c,
		log:    log,
		logger: c.logger.With(slog.String("run_id", id)),
		status: StatusPending,
	}, nil
}

func (c *Copilot) initPayload(resumed bool, state domain.PipelineState) map[string]any {
	cfg := c.cfg
	return map[string]any{
		"model":             cfg.Model.Name,
		"backend":           cfg.Model.Backend,
		"temperature":       cfg.Model.Temperature,
		"seed":              cfg.Model.Seed,
		"orchestrator_host": cfg.Orchestrator.Host,
		"agent_host":        cfg.Agents.Host,
		"selector":          c.selectorEnabled(),
		"max_papers":        cfg.Pipeline.MaxPapers,
		"survey_word_limit": cfg.Pipeline.SurveyWordLimit,
		"backends":          backendNames(c.backends),
		"storage":           cfg.Storage.Type,
		"resumed":           resumed,
		"state":             state.Map(),
	}
}

func backendNames(backends []extract.Backend) []string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// TracePath returns the run's trace file.
func (r *Run) TracePath() string {
	return r.log.Path()
}

// State returns the current pipeline state.
func (r *Run) State() domain.PipelineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Info describes the run.
func (r *Run) Info() RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := RunInfo{
		ID:         r.ID,
		Dir:        r.Dir,
		SourceDir:  r.sourceDir,
		Status:     r.status,
		State:      r.state,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	if r.err != nil {
		info.Error = r.err.Error()
	}
	return info
}

// Execute runs every incomplete stage over the sources in sourceDir,
// checkpointing state after each completed stage. A stage that fails
// leaves the run incomplete without an error; the error is reserved for
// cancellation and contract violations.
func (r *Run) Execute(ctx context.Context, sourceDir string) (*Result, error) {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s is closed", r.ID)
	case r.status == StatusRunning:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, r.ID)
	}
	if sourceDir == "" {
		sourceDir = r.sourceDir
	}
	if sourceDir == "" && !r.state.PapersParsed {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %s needs a source folder", r.ID)
	}
	r.sourceDir = sourceDir
	r.status = StatusRunning
	r.err = nil
	state := r.state
	r.mu.Unlock()

	if err := r.writeSnapshot(); err != nil {
		r.logger.Warn("failed to update run snapshot", slog.String("error", err.Error()))
	}

	start := time.Now()
	ws := agents.NewWorkspace(sourceDir)
	if len(state.Completed()) > 0 {
		if err := ws.Load(ctx, r.c.store, r.ID); err != nil {
			return nil, r.fail(fmt.Errorf("restore workspace: %w", err))
		}
	}

	runner, err := r.pipeline(ws)
	if err != nil {
		return nil, r.fail(err)
	}

	r.logger.Info("run started",
		slog.String("source_dir", sourceDir),
		slog.Any("completed", state.Completed()),
	)

	final, runErr := runner.RunAll(ctx, state)
	elapsed := time.Since(start)

	result := &Result{
		RunID:     r.ID,
		Dir:       r.Dir,
		State:     final,
		Papers:    ws.Papers(),
		Summaries: ws.Summaries(),
		Synthesis: ws.Synthesis(),
		Survey:    ws.Survey(),
		Duration:  elapsed,
	}

	payload := map[string]any{
		"complete":    result.Complete(),
		"state":       final.Map(),
		"next_task":   pipeline.NextTask(final).String(),
		"papers":      len(result.Papers),
		"summaries":   len(result.Summaries),
		"duration_ms": elapsed.Milliseconds(),
	}
	if result.Survey != nil {
		payload["word_count"] = result.Survey.WordCount
	}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}
	r.log.Emit(domain.EventRunComplete, payload)

	r.mu.Lock()
	r.state = final
	r.finishedAt = r.c.now()
	r.err = runErr
	switch {
	case runErr != nil:
		r.status = StatusFailed
	case result.Complete():
		r.status = StatusCompleted
	default:
		r.status = StatusIncomplete
	}
	r.mu.Unlock()

	r.logger.Info("run finished",
		slog.Bool("complete", result.Complete()),
		slog.Int("papers", len(result.Papers)),
		slog.Int("summaries", len(result.Summaries)),
		slog.Duration("duration", elapsed),
	)
	return result, runErr
}

func (r *Run) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusFailed
	r.err = err
	r.finishedAt = r.c.now()
	return err
}

// pipeline assembles the stage agents, router and runner for this run.
func (r *Run) pipeline(ws *agents.Workspace) (*pipeline.Runner, error) {
	c := r.c
	cfg := c.cfg

	recorder := trace.NewInteractionRecorder(r.log, c.store, c.counter, r.ID, r.logger)
	deps := agents.Deps{
		RunID:     r.ID,
		Model:     cfg.Model.Name,
		Generator: c.generator,
		Recorder:  recorder,
		Artifacts: c.store,
		Sink:      r.log,
		Logger:    r.logger,
	}

	chain, err := extract.NewChain(c.backends,
		extract.WithSink(r.log),
		extract.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}

	routerOpts := []router.Option{
		router.WithSink(r.log),
		router.WithLogger(r.logger),
		router.WithTimeout(cfg.SelectorTimeout()),
	}
	switch {
	case c.selector != nil:
		routerOpts = append(routerOpts, router.WithSelector(c.selector))
	case c.orchestrator != nil:
		gen := llm.Record(c.orchestrator, orchestratorAgent, recorder)
		routerOpts = append(routerOpts, router.WithSelector(router.NewLLMSelector(gen, cfg.Model.Name)))
	}

	stages := []pipeline.Stage{
		agents.NewParser(deps, chain, ws, cfg.Pipeline.MaxPapers, cfg.Pipeline.Parallelism),
		agents.NewSummarizer(deps, ws, cfg.Pipeline.SummaryInputChars),
		agents.NewSynthesizer(deps, ws, cfg.Pipeline.SynthesisChars),
		agents.NewSurveyWriter(deps, ws, cfg.Pipeline.SurveyWordLimit),
	}

	return pipeline.NewRunner(stages,
		pipeline.WithDecider(router.New(routerOpts...)),
		pipeline.WithSink(r.log),
		pipeline.WithLogger(r.logger),
		pipeline.WithCheckpoint(r.checkpoint),
	)
}

func (r *Run) checkpoint(ctx context.Context, state domain.PipelineState) error {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	return r.c.store.SaveState(ctx, r.ID, state)
}

func (r *Run) writeSnapshot() error {
	r.mu.Lock()
	snap := runSnapshot{
		RunID:     r.ID,
		Timestamp: r.startedAt,
		SourceDir: r.sourceDir,
		Config:    r.c.cfg,
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, snapshotFile), data, 0o644); err != nil {
		return fmt.Errorf("write run snapshot: %w", err)
	}
	return nil
}

func readSnapshot(dir string) (runSnapshot, error) {
	var snap runSnapshot
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode run snapshot: %w", err)
	}
	return snap, nil
}

// Close releases the run's trace file. A closed run cannot execute again;
// reopen it with OpenRun.
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.log.Close()
}
