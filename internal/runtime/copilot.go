// Package runtime wires configuration, storage, model backends and the
// stage pipeline into research runs and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/research-copilot/internal/api/ollama"
	"github.com/tjfontaine/research-copilot/internal/config"
	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/extract"
	"github.com/tjfontaine/research-copilot/internal/llm"
	"github.com/tjfontaine/research-copilot/internal/router"
	"github.com/tjfontaine/research-copilot/internal/storage"
	"github.com/tjfontaine/research-copilot/internal/storage/file"
	"github.com/tjfontaine/research-copilot/internal/storage/memory"
	"github.com/tjfontaine/research-copilot/internal/storage/sqlite"
	"github.com/tjfontaine/research-copilot/internal/tokens"
)

const runPrefix = "run_"

var (
	// ErrRunNotFound is returned for an unknown run identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunInProgress is returned when a run is already executing.
	ErrRunInProgress = errors.New("run already in progress")
)

// Copilot creates and executes research runs. It is safe for concurrent
// use; each run has its own trace and workspace.
type Copilot struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     storage.Store
	ownsStore bool

	generator    llm.Generator
	orchestrator llm.Generator
	selector     router.Selector
	noSelector   bool
	backends     []extract.Backend
	counter      *tokens.Registry
	now          func() time.Time

	// Background runs started with StartRun.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*Run
}

// New creates a Copilot. Unset collaborators are built from the
// configuration: Ollama clients for both hosts, the configured store and
// extraction backends.
func New(opts ...Option) (*Copilot, error) {
	c := &Copilot{
		logger: slog.Default(),
		now:    time.Now,
		runs:   make(map[string]*Run),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.cfg == nil {
		c.cfg = config.Default()
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if c.store == nil {
		store, err := openStore(c.cfg)
		if err != nil {
			return nil, err
		}
		c.store, c.ownsStore = store, true
	}
	if c.counter == nil {
		c.counter = tokens.Default()
	}
	if c.generator == nil {
		c.generator = newOllama(c.cfg, c.cfg.Agents.Host)
	}
	if c.selector == nil && c.orchestrator == nil && !c.noSelector && c.cfg.Orchestrator.Selector {
		c.orchestrator = newOllama(c.cfg, c.cfg.Orchestrator.Host)
	}
	if c.backends == nil {
		backends, err := extract.Backends(c.cfg.Extraction.Backends)
		if err != nil {
			return nil, fmt.Errorf("extraction backends: %w", err)
		}
		c.backends = backends
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.logger.Debug("copilot initialized",
		slog.String("model", c.cfg.Model.Name),
		slog.String("agents_host", c.cfg.Agents.Host),
		slog.Bool("selector", c.selectorEnabled()),
		slog.String("output_dir", c.OutputDir()),
	)
	return c, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		store, err := file.New(cfg.Output.Dir)
		if err != nil {
			return nil, fmt.Errorf("create file storage: %w", err)
		}
		return store, nil
	}
}

func newOllama(cfg *config.Config, host string) *ollama.Client {
	return ollama.NewClient(host,
		ollama.WithTemperature(cfg.Model.Temperature),
		ollama.WithSeed(cfg.Model.Seed),
		ollama.WithContextWindow(cfg.Model.ContextWindow),
		ollama.WithTimeout(cfg.ModelTimeout()),
	)
}

// Config returns the configuration in use.
func (c *Copilot) Config() *config.Config {
	return c.cfg
}

// Store returns the persistence collaborator.
func (c *Copilot) Store() storage.Store {
	return c.store
}

// OutputDir is the folder that holds one sub-folder per run. With file
// storage it is the store root so traces and artifacts share a folder.
func (c *Copilot) OutputDir() string {
	if fs, ok := c.store.(*file.Store); ok {
		return fs.Root
	}
	return c.cfg.Output.Dir
}

func (c *Copilot) selectorEnabled() bool {
	return c.selector != nil || c.orchestrator != nil
}

// runDir validates a run identifier and returns its folder.
func (c *Copilot) runDir(runID string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || strings.HasPrefix(runID, ".") {
		return "", fmt.Errorf("%w: invalid run id %q", ErrRunNotFound, runID)
	}
	return filepath.Join(c.OutputDir(), runID), nil
}

// createRunDir makes a new run_<timestamp> folder. Runs created within the
// same second get a numeric suffix.
func (c *Copilot) createRunDir() (string, string, error) {
	if err := os.MkdirAll(c.OutputDir(), 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	base := runPrefix + c.now().Format("20060102_150405")
	id := base
	for i := 2; ; i++ {
		dir := filepath.Join(c.OutputDir(), id)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("create run dir: %w", err)
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

func (c *Copilot) track(r *Run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[r.ID] = r
}

func (c *Copilot) tracked(runID string) (*Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.runs[runID]
	return r, ok
}

// StartRun creates a run and executes it in the background. The run
// outlives ctx; it is cancelled by Close.
func (c *Copilot) StartRun(ctx context.Context, sourceDir string) (RunInfo, error) {
	if _, err := os.Stat(sourceDir); err != nil {
		return RunInfo{}, fmt.Errorf("source folder: %w", err)
	}
	r, err := c.NewRun(ctx)
	if err != nil {
		return RunInfo{}, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer r.Close()
		if _, err := r.Execute(c.ctx, sourceDir); err != nil {
			c.logger.Error("background run failed",
				slog.String("run_id", r.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return r.Info(), nil
}

// Resume continues an earlier run from its last checkpoint. An empty
// sourceDir reuses the folder the run was started with.
func (c *Copilot) Resume(ctx context.Context, runID, sourceDir string) (*Result, error) {
	r, err := c.OpenRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Execute(ctx, sourceDir)
}

// GetRun describes a run known in memory or on disk.
func (c *Copilot) GetRun(ctx context.Context, runID string) (RunInfo, error) {
	if r, ok := c.tracked(runID); ok {
		return r.Info(), nil
	}

	dir, err := c.runDir(runID)
	if err != nil {
		return RunInfo{}, err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	info := RunInfo{ID: runID, Dir: dir, Status: StatusIncomplete}
	if snap, err := readSnapshot(dir); err == nil {
		info.SourceDir = snap.SourceDir
		info.StartedAt = snap.Timestamp
	}
	state, err := c.store.LoadState(ctx, runID)
	switch {
	case err == nil:
		info.State = state
		if state.Done(domain.TaskComplete) {
			info.Status = StatusCompleted
		}
	case !errors.Is(err, storage.ErrNotFound):
		return RunInfo{}, fmt.Errorf("load state: %w", err)
	}
	return info, nil
}

// ListRuns describes every run folder beneath OutputDir, newest first.
func (c *Copilot) ListRuns(ctx context.Context) ([]RunInfo, error) {
	entries, err := os.ReadDir(c.OutputDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []RunInfo{}, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	runs := make([]RunInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		info, err := c.GetRun(ctx, e.Name())
		if err != nil {
			c.logger.Warn("skipping unreadable run", slog.String("run_id", e.Name()), slog.String("error", err.Error()))
			continue
		}
		runs = append(runs, info)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	return runs, nil
}

// TracePath returns the trace file of a run.
func (c *Copilot) TracePath(runID string) (string, error) {
	dir, err := c.runDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.cfg.Trace.File), nil
}

// Close cancels background runs, waits for them and releases the store
// when the Copilot created it.
func (c *Copilot) Close() error {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	for _, r := range c.runs {
		r.Close()
	}
	c.runs = make(map[string]*Run)
	c.mu.Unlock()

	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}

// ExecuteOnce runs the whole pipeline over sourceDir with cfg in a fresh
// Copilot and releases it afterwards.
func ExecuteOnce(ctx context.Context, cfg *config.Config, sourceDir string, opts ...Option) (*Result, error) {
	c, err := New(append([]Option{WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	r, err := c.NewRun(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Execute(ctx, sourceDir)
}
