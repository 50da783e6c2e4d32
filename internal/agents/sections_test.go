package agents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

func TestParseSummary_NumberedHeadings(t *testing.T) {
	reply := `1. Main Contribution - The paper introduces a transformer that uses only attention.
2. Methodology: Multi-head self-attention with positional encodings across stacked layers.
3. **Key Findings**: State of the art BLEU on WMT14 English-German translation.
4. Limitations - Quadratic memory in the sequence length limits long inputs.
5. Future Work: Extending attention to images, audio and video modalities.`

	s := ParseSummary(reply, "a.pdf", "Attention")

	assert.Equal(t, "The paper introduces a transformer that uses only attention.", s.MainContribution)
	assert.Equal(t, "Multi-head self-attention with positional encodings across stacked layers.", s.Methodology)
	assert.Equal(t, "State of the art BLEU on WMT14 English-German translation.", s.KeyFindings)
	assert.Equal(t, "Quadratic memory in the sequence length limits long inputs.", s.Limitations)
	assert.Equal(t, "Extending attention to images, audio and video modalities.", s.FutureWork)
	assert.Equal(t, reply, s.Raw)
	assert.Equal(t, "a.pdf", s.SourceID)
}

func TestParseSummary_MarkdownHeadings(t *testing.T) {
	reply := `## Main Contribution
A retrieval augmented model for open domain question answering.

## Methodology
Dense passage retrieval combined with a sequence to sequence generator.

## Key Findings
Outperforms parametric only baselines on three benchmarks.`

	s := ParseSummary(reply, "b.pdf", "RAG")

	assert.Equal(t, "A retrieval augmented model for open domain question answering.", s.MainContribution)
	assert.Equal(t, "Dense passage retrieval combined with a sequence to sequence generator.", s.Methodology)
	assert.Equal(t, "Outperforms parametric only baselines on three benchmarks.", s.KeyFindings)
	assert.Empty(t, s.Limitations)
}

func TestParseSummary_FallsBackToSentences(t *testing.T) {
	sentences := make([]string, 12)
	for i := range sentences {
		sentences[i] = "Sentence number " + string(rune('a'+i)) + " of the reply."
	}
	reply := strings.Join(sentences, " ")

	s := ParseSummary(reply, "c.pdf", "Untitled")

	assert.Equal(t, strings.Join(sentences[0:2], " "), s.MainContribution)
	assert.Equal(t, strings.Join(sentences[2:4], " "), s.Methodology)
	assert.Equal(t, strings.Join(sentences[4:7], " "), s.KeyFindings)
	assert.Equal(t, strings.Join(sentences[7:9], " "), s.Limitations)
	assert.Equal(t, strings.Join(sentences[9:12], " "), s.FutureWork)
}

func TestParseSummary_ShortReply(t *testing.T) {
	s := ParseSummary("Too short.", "d.pdf", "Short")

	assert.Equal(t, "Too short.", s.MainContribution)
	assert.Equal(t, "See main contribution", s.Methodology)
	assert.Equal(t, "Not stated", s.FutureWork)
}

func TestParseSynthesis(t *testing.T) {
	reply := `**1. Common Themes:** All papers rely on attention.
**2. Methodological Trends:** Pretraining at scale followed by fine-tuning.
**3. Research Gaps:** Evaluation on low-resource languages.
**4. Contradictions:** Papers disagree on the value of retrieval.`

	syn := ParseSynthesis(reply, []domain.Summary{{Title: "A"}, {Title: "B"}})

	assert.Equal(t, []string{"A", "B"}, syn.Papers)
	assert.Equal(t, "All papers rely on attention.", syn.CommonThemes)
	assert.Equal(t, "Pretraining at scale followed by fine-tuning.", syn.MethodologicalTrends)
	assert.Equal(t, "Evaluation on low-resource languages.", syn.ResearchGaps)
	assert.Equal(t, "Papers disagree on the value of retrieval.", syn.Contradictions)
	assert.Equal(t, reply, syn.Insights)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Attention Is All You Need", "attention_is_all_you_need"},
		{"  --BERT: Pre-training--  ", "bert_pre_training"},
		{"???", "untitled"},
	}
	for _, tt := range tests {
		if got := slug(tt.in); got != tt.want {
			t.Errorf("slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := len(slug(strings.Repeat("word ", 40))); got > 60 {
		t.Errorf("slug length = %d, want <= 60", got)
	}
	assert.Equal(t, "03_attention.json", indexedName(2, "Attention", ".json"))
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	s := "héllo"
	got := truncate(s, 2)
	assert.Equal(t, "h", got)
	assert.Equal(t, s, truncate(s, 100))
}
