// Package pipeline provides the control core of a research run.
//
// # State machine
//
// A run is described by four completion flags (domain.PipelineState).
// NextTask evaluates them in the fixed order papers parsed, summaries
// generated, synthesis done, survey written and returns the task of the
// first flag that is false, or Complete. Advance sets exactly the flag of
// the task NextTask returned and rejects anything else with
// *domain.InvalidTransitionError.
//
// # Runner
//
// The Runner drives the four stages in order. Before each stage it asks
// its Decider (normally the two-tier router) which task comes next:
//
//	decide(state) != stage  -> stage_skipped, state unchanged, success=false
//	work returns 0 items    -> stage_failed,  state unchanged, success=false
//	work returns n > 0      -> Advance, one advance event,     success=true
//
// RunAll stops at the first stage that does not succeed. Flags already set
// stay set, so a later RunAll over the returned state resumes from the
// first incomplete stage.
package pipeline
