// Package copilot provides the public API for embedding the research
// copilot. This is the stable API for external consumers.
package copilot

import (
	"github.com/tjfontaine/research-copilot/internal/config"
	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/llm"
	"github.com/tjfontaine/research-copilot/internal/runtime"
)

// Copilot creates and executes research runs.
// See internal/runtime.Copilot for full documentation.
type Copilot = runtime.Copilot

// Run is one research run.
type Run = runtime.Run

// Result is the outcome of executing a run.
type Result = runtime.Result

// RunInfo describes a run for status queries.
type RunInfo = runtime.RunInfo

// Option is a functional option for configuring a Copilot.
type Option = runtime.Option

// Config is the full configuration.
type Config = config.Config

// Generator is the model backend capability.
type Generator = llm.Generator

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc = llm.GeneratorFunc

// PipelineState records which stages have completed.
type PipelineState = domain.PipelineState

// New creates a new Copilot with the given options.
// Example:
//
//	c, err := copilot.New(
//	    copilot.WithFileConfig("config.yaml"),
//	    copilot.WithFileStorage("./outputs"),
//	)
//	run, err := c.NewRun(ctx)
//	res, err := run.Execute(ctx, "./papers")
var New = runtime.New

// Configuration
var (
	LoadConfig    = config.Load
	DefaultConfig = config.Default
	ExecuteOnce   = runtime.ExecuteOnce
)

// Options
var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithFileConfig = runtime.WithFileConfig

	// Storage
	WithSQLite        = runtime.WithSQLite
	WithFileStorage   = runtime.WithFileStorage
	WithMemoryStorage = runtime.WithMemoryStorage
	WithStore         = runtime.WithStore

	// Models and routing
	WithGenerator    = runtime.WithGenerator
	WithOrchestrator = runtime.WithOrchestrator
	WithSelector     = runtime.WithSelector
	WithoutSelector  = runtime.WithoutSelector

	// Advanced options
	WithBackends     = runtime.WithBackends
	WithTokenCounter = runtime.WithTokenCounter
	WithLogger       = runtime.WithLogger
	WithClock        = runtime.WithClock
)

// Errors
var (
	ErrRunNotFound   = runtime.ErrRunNotFound
	ErrRunInProgress = runtime.ErrRunInProgress
)
