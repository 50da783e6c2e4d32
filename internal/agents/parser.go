package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/extract"
)

// Parser extracts text from every source in the workspace folder.
type Parser struct {
	deps        Deps
	chain       *extract.Chain
	ws          *Workspace
	maxPapers   int
	parallelism int
}

// NewParser creates the parse stage. maxPapers <= 0 means no cap;
// parallelism <= 0 means one source at a time.
func NewParser(deps Deps, chain *extract.Chain, ws *Workspace, maxPapers, parallelism int) *Parser {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Parser{
		deps:        deps.withDefaults(),
		chain:       chain,
		ws:          ws,
		maxPapers:   maxPapers,
		parallelism: parallelism,
	}
}

func (p *Parser) Task() domain.Task { return domain.TaskParsePapers }

// Run extracts all sources concurrently, keeping source order in the
// result. Sources whose chain is exhausted are skipped; the stage fails
// only when none succeed.
func (p *Parser) Run(ctx context.Context) (int, error) {
	sources, err := ListSources(p.ws.SourceDir(), p.maxPapers)
	if err != nil {
		return 0, err
	}
	if len(sources) == 0 {
		return 0, fmt.Errorf("no supported sources in %s", p.ws.SourceDir())
	}

	p.deps.Sink.Emit(domain.EventAgentCall, map[string]any{
		"agent":    NameParser,
		"action":   "parse_papers",
		"sources":  len(sources),
		"backends": p.chain.Backends(),
	})

	results := make([]*domain.ExtractionResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	for i, src := range sources {
		g.Go(func() error {
			res, err := p.chain.Extract(gctx, src)
			if err != nil {
				p.deps.Sink.Emit(domain.EventExtractionExhausted, map[string]any{
					"source_id": src,
					"error":     err.Error(),
					"kind":      string(domain.KindOf(err)),
				})
				p.deps.Logger.Warn("skipping source",
					slog.String("source_id", src),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = res
			p.deps.Sink.Emit(domain.EventExtractionComplete, map[string]any{
				"source_id":    src,
				"title":        res.Title,
				"backend_used": res.BackendUsed,
				"page_count":   res.PageCount,
				"text_length":  res.TextLength,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	papers := make([]domain.ExtractionResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			papers = append(papers, *r)
		}
	}
	for i, paper := range papers {
		p.deps.saveJSON(ctx, domain.ArtifactParsedText, indexedName(i, paper.Title, ".json"), paper)
	}
	p.ws.SetPapers(papers)

	p.deps.Sink.Emit(domain.EventAgentResult, map[string]any{
		"agent":     NameParser,
		"action":    "parse_papers",
		"succeeded": len(papers),
		"failed":    len(sources) - len(papers),
		"success":   len(papers) > 0,
	})
	return len(papers), nil
}

// ListSources returns the supported files in dir sorted by name, capped at
// max when max > 0.
func ListSources(dir string, max int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source folder: %w", err)
	}

	var sources []string
	for _, e := range entries {
		if e.IsDir() || !extract.SupportedExtension(filepath.Ext(e.Name())) {
			continue
		}
		sources = append(sources, filepath.Join(dir, e.Name()))
	}
	sort.Strings(sources)

	if max > 0 && len(sources) > max {
		sources = sources[:max]
	}
	return sources, nil
}
