package agents

import (
	"regexp"
	"sort"
	"strings"
)

type sectionSpec struct {
	key     string
	heading *regexp.Regexp
}

// heading matches a section title at the start of a line, allowing list
// numbering and Markdown emphasis around it.
func heading(names string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*(?:#+[ \t]*)?(?:\*\*)?(?:\d+[.)][ \t]*)?(?:\*\*)?(?:` + names +
		`)\b(?:[^\n:]{0,40}?(?:\*\*)?[ \t]*:)?(?:\*\*)?[ \t]*-?`)
}

var summarySections = []sectionSpec{
	{"main_contribution", heading(`main contributions?|key contributions?|primary contributions?`)},
	{"methodology", heading(`methodology|methods?|approach`)},
	{"key_findings", heading(`key findings|main findings|findings|main results|results`)},
	{"limitations", heading(`limitations?`)},
	{"future_work", heading(`future work|future directions?|future research`)},
}

var synthesisSections = []sectionSpec{
	{"common_themes", heading(`common themes?`)},
	{"methodological_trends", heading(`methodological trends?|key methodologies|methodolog(?:y|ies)`)},
	{"research_gaps", heading(`research gaps?|gaps`)},
	{"contradictions", heading(`contradictions?|conflicting`)},
}

var (
	reWS        = regexp.MustCompile(`\s+`)
	reSentences = regexp.MustCompile(`[.!?]+\s+`)
)

// extractSections splits text at the first heading of each section. A
// section's body runs until the next recognised heading.
func extractSections(text string, specs []sectionSpec) map[string]string {
	type hit struct {
		key        string
		start, end int
	}

	var hits []hit
	for _, s := range specs {
		if loc := s.heading.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{key: s.key, start: loc[0], end: loc[1]})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	out := make(map[string]string, len(specs))
	for i, h := range hits {
		// A later heading matched inside an earlier heading's line.
		if i > 0 && h.start < hits[i-1].end {
			continue
		}
		stop := len(text)
		for _, next := range hits[i+1:] {
			if next.start >= h.end {
				stop = next.start
				break
			}
		}
		body := strings.Trim(reWS.ReplaceAllString(text[h.end:stop], " "), " :-*#")
		if body != "" {
			out[h.key] = body
		}
	}
	return out
}

// splitSentences breaks text after sentence punctuation.
func splitSentences(text string) []string {
	text = strings.TrimSpace(reWS.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range reSentences.FindAllStringIndex(text, -1) {
		out = append(out, strings.TrimSpace(text[last:loc[1]]))
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, strings.TrimSpace(text[last:]))
	}
	return out
}

func joinRange(s []string, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(s) {
		to = len(s)
	}
	if from >= to {
		return ""
	}
	return strings.Join(s[from:to], " ")
}
