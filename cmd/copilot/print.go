package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tjfontaine/research-copilot/internal/compare"
	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/runtime"
)

func printResult(w io.Writer, res *runtime.Result) {
	fmt.Fprintf(w, "run:       %s\n", res.RunID)
	fmt.Fprintf(w, "folder:    %s\n", res.Dir)
	fmt.Fprintf(w, "papers:    %d\n", len(res.Papers))
	fmt.Fprintf(w, "summaries: %d\n", len(res.Summaries))
	fmt.Fprintf(w, "duration:  %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "stages:    parse=%t summarize=%t synthesize=%t survey=%t\n",
		res.State.PapersParsed, res.State.SummariesGenerated, res.State.SynthesisDone, res.State.SurveyWritten)
	if res.Survey != nil {
		fmt.Fprintf(w, "survey:    %d/%d words\n\n", res.Survey.WordCount, res.Survey.WordLimit)
		fmt.Fprintln(w, res.Survey.Text)
	}
}

// llmPreviewKeys are shown on their own lines with --previews.
var llmPreviewKeys = []string{"prompt_preview", "response_preview"}

func printEvents(w io.Writer, events []domain.TraceEvent, previews bool) {
	for _, ev := range events {
		fmt.Fprintf(w, "%5d %s %-26s %s\n",
			ev.Seq, ev.Timestamp.Format(time.RFC3339), ev.EventType, summarize(ev.Payload))
		if !previews {
			continue
		}
		for _, k := range llmPreviewKeys {
			if v, ok := ev.Payload[k]; ok {
				fmt.Fprintf(w, "      %s: %s\n", k, oneLine(fmt.Sprint(v)))
			}
		}
	}
}

// summarize renders scalar payload fields as sorted key=value pairs.
func summarize(payload map[string]any) string {
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(payload)) {
		if slices.Contains(llmPreviewKeys, k) {
			continue
		}
		switch v := payload[k].(type) {
		case map[string]any, []any:
			continue
		case string:
			parts = append(parts, fmt.Sprintf("%s=%q", k, oneLine(v)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func printReport(w io.Writer, report *compare.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMS\tSUCCESS\tWORDS\tCITATIONS\tAVG SUMMARY\tPAPERS\tDURATION")
	for _, m := range report.Runs {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%.1f\t%d\t%s\n",
			m.Params, m.Success, m.WordCount, m.Citations, m.AvgSummaryLength, m.Papers, m.Duration.Round(time.Second))
	}
	tw.Flush()

	if report.Best != nil {
		fmt.Fprintf(w, "\nrecommended: %s (run %s, %d citations, %d/%d words)\n",
			report.Best.Params, report.Best.RunID, report.Best.Citations, report.Best.WordCount, report.WordLimit)
	}
}
