package agents

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

func summaryPrompt(title, text string) string {
	return fmt.Sprintf(`You are a research paper analysis expert. Analyze this paper and provide a detailed summary.

Title: %s

Paper Content:
%s

Provide:
1. Main Contribution - Primary research contribution
2. Methodology - Methods/approaches used
3. Key Findings - Main results
4. Limitations - Limitations or challenges
5. Future Work - Future directions suggested

Be specific and extract from the paper.`, title, text)
}

func synthesisPrompt(summaries []domain.Summary, perPaper int) string {
	var papers strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&papers, "\n=== Paper %d: %s ===\n", i+1, s.Title)
		fmt.Fprintf(&papers, "Contribution: %s\n", truncate(orNA(s.MainContribution), perPaper))
		fmt.Fprintf(&papers, "Methodology: %s\n", truncate(orNA(s.Methodology), perPaper))
		fmt.Fprintf(&papers, "Findings: %s\n", truncate(orNA(s.KeyFindings), perPaper))
	}

	return fmt.Sprintf(`You are a research synthesis expert. Analyze these %d papers and synthesize:
%s
Provide:
1. Common Themes - Themes across papers
2. Methodological Trends - Methodological patterns
3. Research Gaps - Unexplored areas
4. Contradictions - Conflicting findings`, len(summaries), papers.String())
}

func surveyPrompt(summaries []domain.Summary, synthesis *domain.Synthesis, wordLimit int) string {
	var papers strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&papers, "[%d] %s\n    %s\n\n", i+1, s.Title, truncate(orNA(s.MainContribution), 200))
	}

	themes := "N/A"
	gaps := "N/A"
	if synthesis != nil {
		themes = truncate(orNA(synthesis.CommonThemes), 2000)
		gaps = truncate(orNA(synthesis.ResearchGaps), 1000)
	}

	return fmt.Sprintf(`You are a technical writer creating a mini-survey paper. Write a comprehensive survey (maximum %d words) based on the following research papers.

Synthesis:
%s

Research gaps:
%s

Individual Papers:
%s
Requirements:
1. Start with an introduction to the topic
2. Discuss key themes and methodologies
3. Present main findings across papers
4. Identify research gaps
5. Conclude with future directions
6. Use inline citations like [1], [2], etc. when referencing papers
7. Keep it under %d words
8. Write in academic style

Write the mini-survey now:`, wordLimit, themes, gaps, papers.String(), wordLimit)
}

func references(summaries []domain.Summary) string {
	var sb strings.Builder
	sb.WriteString("\n\n## References\n\n")
	for i, s := range summaries {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, s.Title)
	}
	return sb.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
