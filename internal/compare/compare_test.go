package compare

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

func TestGrid(t *testing.T) {
	got := Grid([]float64{0.2, 0.7}, []int{1, 42})
	want := []Params{{0.2, 1}, {0.2, 42}, {0.7, 1}, {0.7, 42}}
	if len(got) != len(want) {
		t.Fatalf("Grid() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Grid()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMeasure(t *testing.T) {
	o := &Outcome{
		RunID:  "run_1",
		Survey: &domain.Survey{Text: "Attention [1] helps retrieval [2]. Both [1][2].\n\n## References\n\n[1] A\n[2] B\n"},
		Summaries: []domain.Summary{
			{MainContribution: "one two three"},
			{MainContribution: "one"},
		},
	}

	m := Measure(Params{Temperature: 0.3, Seed: 7}, o)

	if !m.Success {
		t.Error("Measure() success = false")
	}
	if m.Citations != 6 {
		t.Errorf("Measure() citations = %d, want 6", m.Citations)
	}
	if m.AvgSummaryLength != 2 {
		t.Errorf("Measure() avg summary length = %v, want 2", m.AvgSummaryLength)
	}
	if m.Papers != 2 {
		t.Errorf("Measure() papers = %d, want 2", m.Papers)
	}
	if m.WordCount != len(strings.Fields(o.Survey.Text)) {
		t.Errorf("Measure() word count = %d", m.WordCount)
	}
}

func TestBest(t *testing.T) {
	tests := []struct {
		name string
		runs []Metrics
		want int
	}{
		{
			name: "most citations wins",
			runs: []Metrics{
				{Params: Params{Seed: 1}, Success: true, Citations: 3, WordCount: 800},
				{Params: Params{Seed: 2}, Success: true, Citations: 5, WordCount: 200},
			},
			want: 2,
		},
		{
			name: "tie broken by closeness to limit",
			runs: []Metrics{
				{Params: Params{Seed: 1}, Success: true, Citations: 4, WordCount: 1200},
				{Params: Params{Seed: 2}, Success: true, Citations: 4, WordCount: 790},
			},
			want: 2,
		},
		{
			name: "failures ignored",
			runs: []Metrics{
				{Params: Params{Seed: 1}, Success: false, Citations: 9},
				{Params: Params{Seed: 2}, Success: true, Citations: 1},
			},
			want: 2,
		},
		{
			name: "first of equals",
			runs: []Metrics{
				{Params: Params{Seed: 1}, Success: true, Citations: 2, WordCount: 700},
				{Params: Params{Seed: 2}, Success: true, Citations: 2, WordCount: 900},
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best := Best(tt.runs, 800)
			if best == nil {
				t.Fatal("Best() = nil")
			}
			if best.Seed != tt.want {
				t.Errorf("Best() seed = %d, want %d", best.Seed, tt.want)
			}
		})
	}

	if Best([]Metrics{{Success: false}}, 800) != nil {
		t.Error("Best() with no successes should be nil")
	}
}

func TestCompare(t *testing.T) {
	run := func(ctx context.Context, p Params) (*Outcome, error) {
		switch p.Seed {
		case 1:
			return nil, errors.New("model unavailable")
		case 2:
			return &Outcome{RunID: "run_2", Complete: false}, nil
		}
		return &Outcome{
			RunID:     "run_3",
			Complete:  true,
			Survey:    &domain.Survey{Text: "A [1] B [2]"},
			Summaries: []domain.Summary{{MainContribution: "x"}},
		}, nil
	}

	report, err := Compare(context.Background(), Grid([]float64{0.7}, []int{1, 2, 3}), 800, run)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(report.Runs) != 3 {
		t.Fatalf("Compare() runs = %d, want 3", len(report.Runs))
	}
	if report.Runs[0].Success || report.Runs[0].Error != "model unavailable" {
		t.Errorf("run 1 = %+v", report.Runs[0])
	}
	if report.Runs[1].Success || report.Runs[1].RunID != "run_2" {
		t.Errorf("run 2 = %+v", report.Runs[1])
	}
	if report.Best == nil || report.Best.RunID != "run_3" || report.Best.Citations != 2 {
		t.Errorf("Compare() best = %+v", report.Best)
	}
}

func TestCompare_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Compare(ctx, Grid([]float64{0.1}, []int{1}), 800, func(ctx context.Context, p Params) (*Outcome, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Compare() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("run called %d times after cancellation", calls)
	}
}
