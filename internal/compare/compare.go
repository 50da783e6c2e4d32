// Package compare runs the pipeline under several sampling parameter sets
// and recommends the one whose survey cites the most papers.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

var citationPattern = regexp.MustCompile(`\[\d+\]`)

// Params is one sampling configuration.
type Params struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`
}

func (p Params) String() string {
	return fmt.Sprintf("temperature=%g seed=%d", p.Temperature, p.Seed)
}

// Outcome is what a single pipeline execution produced.
type Outcome struct {
	RunID     string
	Complete  bool
	Survey    *domain.Survey
	Summaries []domain.Summary
}

// RunFunc executes the pipeline with p.
type RunFunc func(ctx context.Context, p Params) (*Outcome, error)

// Metrics summarises one execution.
type Metrics struct {
	Params
	RunID            string        `json:"run_id,omitempty"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	WordCount        int           `json:"word_count"`
	Citations        int           `json:"citation_count"`
	AvgSummaryLength float64       `json:"avg_summary_length"`
	Papers           int           `json:"num_papers"`
	Duration         time.Duration `json:"duration"`
}

// Report holds every execution and the recommended parameters.
type Report struct {
	WordLimit int       `json:"word_limit"`
	Runs      []Metrics `json:"results"`
	Best      *Metrics  `json:"recommended,omitempty"`
}

// Option configures Compare.
type Option func(*comparer)

type comparer struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the progress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *comparer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Grid returns every combination of temperatures and seeds.
func Grid(temperatures []float64, seeds []int) []Params {
	out := make([]Params, 0, len(temperatures)*len(seeds))
	for _, t := range temperatures {
		for _, s := range seeds {
			out = append(out, Params{Temperature: t, Seed: s})
		}
	}
	return out
}

// Compare executes run for each parameter set in order. A failing
// execution is recorded and does not stop the sweep; ctx cancellation
// does.
func Compare(ctx context.Context, params []Params, wordLimit int, run RunFunc, opts ...Option) (*Report, error) {
	c := &comparer{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	report := &Report{WordLimit: wordLimit, Runs: make([]Metrics, 0, len(params))}
	for i, p := range params {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c.logger.Info("running configuration",
			slog.Int("index", i+1),
			slog.Int("total", len(params)),
			slog.Float64("temperature", p.Temperature),
			slog.Int("seed", p.Seed),
		)

		start := c.now()
		outcome, err := run(ctx, p)
		elapsed := c.now().Sub(start)

		m := Metrics{Params: p, Duration: elapsed}
		switch {
		case err != nil:
			m.Error = err.Error()
		case outcome == nil || !outcome.Complete || outcome.Survey == nil:
			m.Error = "pipeline did not complete"
			if outcome != nil {
				m.RunID = outcome.RunID
			}
		default:
			m = Measure(p, outcome)
			m.Duration = elapsed
		}
		if m.Error != "" {
			c.logger.Warn("configuration failed", slog.String("params", p.String()), slog.String("error", m.Error))
		}
		report.Runs = append(report.Runs, m)
	}

	report.Best = Best(report.Runs, wordLimit)
	return report, nil
}

// Measure computes the metrics of a completed outcome.
func Measure(p Params, o *Outcome) Metrics {
	m := Metrics{Params: p, RunID: o.RunID, Success: true, Papers: len(o.Summaries)}
	if o.Survey != nil {
		m.WordCount = len(strings.Fields(o.Survey.Text))
		m.Citations = len(citationPattern.FindAllString(o.Survey.Text, -1))
	}
	if len(o.Summaries) > 0 {
		total := 0
		for _, s := range o.Summaries {
			total += len(strings.Fields(s.MainContribution))
		}
		m.AvgSummaryLength = float64(total) / float64(len(o.Summaries))
	}
	return m
}

// Best picks the successful run with the most citations, breaking ties by
// the word count closest to wordLimit and then by order.
func Best(runs []Metrics, wordLimit int) *Metrics {
	var best *Metrics
	for i := range runs {
		m := &runs[i]
		if !m.Success {
			continue
		}
		if best == nil || better(m, best, wordLimit) {
			best = m
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func better(a, b *Metrics, wordLimit int) bool {
	if a.Citations != b.Citations {
		return a.Citations > b.Citations
	}
	return distance(a.WordCount, wordLimit) < distance(b.WordCount, wordLimit)
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
