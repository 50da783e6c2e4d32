// Package router decides which pipeline task runs next. An optional
// intelligent selector is asked first; any failure of it falls back to
// the deterministic resolver, which is the ground truth.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/pipeline"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

const maxOutputChars = 500

// Path names which tier produced a decision.
type Path string

const (
	PathIntelligent Path = "intelligent"
	PathFallback    Path = "fallback"
)

// Selector picks an agent for a query. It may be backed by a model, a
// classifier or anything else; the router treats it as opaque.
type Selector interface {
	SelectAgent(ctx context.Context, query string) (string, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, query string) (string, error)

func (f SelectorFunc) SelectAgent(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Decision is the outcome of one routing call.
type Decision struct {
	Task   domain.Task
	Path   Path
	Query  string
	Output string
	Err    error
}

// Router is the two-tier task router.
type Router struct {
	selector Selector
	timeout  time.Duration
	sink     trace.Sink
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithSelector sets the intelligent selector. A nil selector means every
// decision comes from the deterministic resolver.
func WithSelector(s Selector) Option {
	return func(r *Router) {
		r.selector = s
	}
}

// WithTimeout bounds each selector call. Expiry is a selector failure.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		r.timeout = d
	}
}

// WithSink sets the trace sink.
func WithSink(sink trace.Sink) Option {
	return func(r *Router) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a router.
func New(opts ...Option) *Router {
	r := &Router{
		sink:   trace.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide returns the next task. It never fails.
func (r *Router) Decide(ctx context.Context, state domain.PipelineState) domain.Task {
	return r.Route(ctx, state).Task
}

// Route returns the full decision and records it in the trace.
func (r *Router) Route(ctx context.Context, state domain.PipelineState) Decision {
	ctx, span := otel.Tracer("research-copilot/router").Start(ctx, "route")
	defer span.End()

	d := Decision{Query: BuildQuery(state)}

	if r.selector == nil {
		d.Task = pipeline.NextTask(state)
		d.Path = PathFallback
		d.Err = &domain.SelectorError{Reason: "no_selector"}
	} else {
		d.Output, d.Err = r.selectTask(ctx, d.Query, &d.Task)
		if d.Err == nil {
			d.Path = PathIntelligent
		} else {
			r.sink.Emit(domain.EventSelectorFailure, map[string]any{
				"reason":   selectorReason(d.Err),
				"error":    d.Err.Error(),
				"output":   trace.Preview(d.Output, maxOutputChars),
				"fallback": "rule_based",
			})
			r.logger.Warn("selector failed, using rule-based decision",
				slog.String("reason", selectorReason(d.Err)),
				slog.String("error", d.Err.Error()),
			)
			d.Task = pipeline.NextTask(state)
			d.Path = PathFallback
		}
	}

	payload := map[string]any{
		"task":  d.Task.String(),
		"path":  string(d.Path),
		"state": state.Map(),
		"query": d.Query,
	}
	if d.Output != "" {
		payload["selector_output"] = trace.Preview(d.Output, maxOutputChars)
	}
	r.sink.Emit(domain.EventRouterDecision, payload)

	span.SetAttributes(
		attribute.String("task", d.Task.String()),
		attribute.String("path", string(d.Path)),
	)
	return d
}

// selectTask asks the selector and maps its answer. Every failure mode
// comes back as a *domain.SelectorError.
func (r *Router) selectTask(ctx context.Context, query string, task *domain.Task) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &domain.SelectorError{Reason: "panic", Err: fmt.Errorf("selector panic: %v", rec)}
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output, err = r.selector.SelectAgent(ctx, query)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		return output, &domain.SelectorError{Reason: reason, Output: output, Err: err}
	}

	agent := strings.TrimSpace(output)
	if agent == "" {
		return output, &domain.SelectorError{Reason: "empty", Output: output}
	}

	// Only the four stage agents map to a task, so a reply can never select
	// complete. A mapped reply is taken even when that stage is already done;
	// anything else falls back to the deterministic resolver.
	t, ok := domain.TaskForAgent(agent)
	if !ok {
		return output, &domain.SelectorError{Reason: "unmapped", Output: output}
	}

	*task = t
	return output, nil
}

func selectorReason(err error) string {
	var se *domain.SelectorError
	if errors.As(err, &se) {
		return se.Reason
	}
	return "error"
}

// BuildQuery describes the state for the selector.
func BuildQuery(state domain.PipelineState) string {
	var done []string
	if state.PapersParsed {
		done = append(done, "parsed PDF papers")
	}
	if state.SummariesGenerated {
		done = append(done, "generated summaries")
	}
	if state.SynthesisDone {
		done = append(done, "synthesized insights")
	}
	if state.SurveyWritten {
		done = append(done, "written survey")
	}

	completed := "none"
	if len(done) > 0 {
		completed = strings.Join(done, ", ")
	}
	prefix := "Completed: " + completed + ". "

	switch pipeline.NextTask(state) {
	case domain.TaskParsePapers:
		return prefix + "I need to parse PDF research papers from a folder and extract their content. Which agent should handle this?"
	case domain.TaskGenerateSummaries:
		return prefix + "I have parsed research papers and need to generate structured summaries for each paper. Which agent should handle this?"
	case domain.TaskSynthesizeInsights:
		return prefix + "I have summaries of multiple papers and need to synthesize cross-paper insights and identify research gaps. Which agent should handle this?"
	case domain.TaskWriteSurvey:
		return prefix + "I have paper summaries and synthesis, and need to write a comprehensive mini-survey with inline citations. Which agent should handle this?"
	default:
		return prefix + "All tasks are complete."
	}
}

var _ pipeline.Decider = (*Router)(nil)
