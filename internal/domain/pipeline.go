// Package domain holds the shared types of the research pipeline: the
// pipeline state flags, tasks, trace events, model interactions and the
// error taxonomy used across the control core.
package domain

import "strings"

// Task identifies a unit of pipeline work.
type Task string

const (
	TaskParsePapers        Task = "parse_papers"
	TaskGenerateSummaries  Task = "generate_summaries"
	TaskSynthesizeInsights Task = "synthesize_insights"
	TaskWriteSurvey        Task = "write_survey"
	TaskComplete           Task = "complete"
)

// StageOrder is the fixed dependency order of the pipeline stages.
var StageOrder = []Task{
	TaskParsePapers,
	TaskGenerateSummaries,
	TaskSynthesizeInsights,
	TaskWriteSurvey,
}

// IsStage reports whether t names one of the four pipeline stages.
func (t Task) IsStage() bool {
	switch t {
	case TaskParsePapers, TaskGenerateSummaries, TaskSynthesizeInsights, TaskWriteSurvey:
		return true
	default:
		return false
	}
}

func (t Task) String() string {
	return string(t)
}

// AgentID is the identifier an intelligent selector returns for a task.
type AgentID string

const (
	AgentPDFParser    AgentID = "pdf_parser"
	AgentSummarizer   AgentID = "summarizer"
	AgentSynthesizer  AgentID = "synthesizer"
	AgentSurveyWriter AgentID = "survey_writer"
)

var agentTasks = map[AgentID]Task{
	AgentPDFParser:    TaskParsePapers,
	AgentSummarizer:   TaskGenerateSummaries,
	AgentSynthesizer:  TaskSynthesizeInsights,
	AgentSurveyWriter: TaskWriteSurvey,
}

// Agents lists the known agent identifiers in stage order.
var Agents = []AgentID{AgentPDFParser, AgentSummarizer, AgentSynthesizer, AgentSurveyWriter}

// TaskForAgent maps an agent identifier to its task. Matching ignores case
// and surrounding whitespace.
func TaskForAgent(id string) (Task, bool) {
	t, ok := agentTasks[AgentID(strings.ToLower(strings.TrimSpace(id)))]
	return t, ok
}

// AgentForTask is the inverse of TaskForAgent.
func AgentForTask(t Task) (AgentID, bool) {
	for id, task := range agentTasks {
		if task == t {
			return id, true
		}
	}
	return "", false
}

// PipelineState records which stages of a run have completed.
// Flags are monotone: once set they are never cleared within a run.
type PipelineState struct {
	PapersParsed       bool `json:"papers_parsed"`
	SummariesGenerated bool `json:"summaries_generated"`
	SynthesisDone      bool `json:"synthesis_done"`
	SurveyWritten      bool `json:"survey_written"`
}

// Done reports whether the flag for the given stage is set.
// The Complete task is done only when every stage is.
func (s PipelineState) Done(t Task) bool {
	switch t {
	case TaskParsePapers:
		return s.PapersParsed
	case TaskGenerateSummaries:
		return s.SummariesGenerated
	case TaskSynthesizeInsights:
		return s.SynthesisDone
	case TaskWriteSurvey:
		return s.SurveyWritten
	case TaskComplete:
		return s.PapersParsed && s.SummariesGenerated && s.SynthesisDone && s.SurveyWritten
	default:
		return false
	}
}

// With returns a copy of s with the flag for t set.
func (s PipelineState) With(t Task) PipelineState {
	switch t {
	case TaskParsePapers:
		s.PapersParsed = true
	case TaskGenerateSummaries:
		s.SummariesGenerated = true
	case TaskSynthesizeInsights:
		s.SynthesisDone = true
	case TaskWriteSurvey:
		s.SurveyWritten = true
	}
	return s
}

// Completed lists the finished stages in stage order.
func (s PipelineState) Completed() []Task {
	var out []Task
	for _, t := range StageOrder {
		if s.Done(t) {
			out = append(out, t)
		}
	}
	return out
}

// Map renders the state as a trace payload value.
func (s PipelineState) Map() map[string]any {
	return map[string]any{
		"papers_parsed":       s.PapersParsed,
		"summaries_generated": s.SummariesGenerated,
		"synthesis_done":      s.SynthesisDone,
		"survey_written":      s.SurveyWritten,
	}
}

// AllStates enumerates the sixteen combinations of the four flags.
func AllStates() []PipelineState {
	states := make([]PipelineState, 0, 16)
	for i := 0; i < 16; i++ {
		states = append(states, PipelineState{
			PapersParsed:       i&1 != 0,
			SummariesGenerated: i&2 != 0,
			SynthesisDone:      i&4 != 0,
			SurveyWritten:      i&8 != 0,
		})
	}
	return states
}
