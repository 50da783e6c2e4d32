package domain

import "time"

// ExtractionResult is the normalised text extracted from one source.
type ExtractionResult struct {
	SourceID    string `json:"source_id"`
	Title       string `json:"title"`
	PageCount   int    `json:"page_count"`
	Text        string `json:"text"`
	TextLength  int    `json:"text_length"`
	BackendUsed string `json:"backend_used"`
}

// Summary is the structured summary of a single paper.
type Summary struct {
	SourceID         string `json:"source_id"`
	Title            string `json:"title"`
	MainContribution string `json:"main_contribution"`
	Methodology      string `json:"methodology"`
	KeyFindings      string `json:"key_findings"`
	Limitations      string `json:"limitations"`
	FutureWork       string `json:"future_work"`
	Raw              string `json:"raw"`
}

// Synthesis is the cross-paper analysis over all summaries.
type Synthesis struct {
	Papers               []string `json:"papers"`
	CommonThemes         string   `json:"common_themes"`
	MethodologicalTrends string   `json:"methodological_trends"`
	ResearchGaps         string   `json:"research_gaps"`
	Contradictions       string   `json:"contradictions"`
	Insights             string   `json:"insights"`
}

// Survey is the final mini-survey document.
type Survey struct {
	Text      string   `json:"text"`
	WordCount int      `json:"word_count"`
	WordLimit int      `json:"word_limit"`
	Papers    []string `json:"papers"`
}

// ArtifactKind classifies stage outputs handed to the storage collaborator.
type ArtifactKind string

const (
	ArtifactParsedText ArtifactKind = "parsed"
	ArtifactSummary    ArtifactKind = "summary"
	ArtifactSynthesis  ArtifactKind = "synthesis"
	ArtifactSurvey     ArtifactKind = "survey"
	ArtifactConfig     ArtifactKind = "config"
)

// Artifact is a named stage output.
type Artifact struct {
	RunID       string       `json:"run_id"`
	Kind        ArtifactKind `json:"kind"`
	Name        string       `json:"name"`
	ContentType string       `json:"content_type"`
	Content     []byte       `json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
}
