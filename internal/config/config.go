// Package config loads the research copilot configuration from an
// optional YAML file and COPILOT_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use "__",
// e.g. COPILOT_MODEL__TEMPERATURE=0.2.
const EnvPrefix = "COPILOT_"

type Config struct {
	Model        ModelConfig        `koanf:"model" json:"model"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator" json:"orchestrator"`
	Agents       AgentsConfig       `koanf:"agents" json:"agents"`
	Pipeline     PipelineConfig     `koanf:"pipeline" json:"pipeline"`
	Extraction   ExtractionConfig   `koanf:"extraction" json:"extraction"`
	Trace        TraceConfig        `koanf:"trace" json:"trace"`
	Storage      StorageConfig      `koanf:"storage" json:"storage"`
	Output       OutputConfig       `koanf:"output" json:"output"`
	Server       ServerConfig       `koanf:"server" json:"server"`
	Telemetry    TelemetryConfig    `koanf:"telemetry" json:"telemetry"`
	Log          LogConfig          `koanf:"log" json:"log"`
}

type ModelConfig struct {
	Name          string  `koanf:"name" json:"name"`
	Backend       string  `koanf:"backend" json:"backend"`
	Temperature   float64 `koanf:"temperature" json:"temperature"`
	Seed          int     `koanf:"seed" json:"seed"`
	ContextWindow int     `koanf:"context_window" json:"context_window,omitempty"`
	Timeout       string  `koanf:"timeout" json:"timeout"` // Duration string like "300s"
}

// OrchestratorConfig configures the model that selects the next agent.
type OrchestratorConfig struct {
	Host            string `koanf:"host" json:"host"`
	Selector        bool   `koanf:"selector" json:"selector"` // false: always use the deterministic order
	SelectorTimeout string `koanf:"selector_timeout" json:"selector_timeout"`
}

// AgentsConfig configures the model that does the stage work.
type AgentsConfig struct {
	Host string `koanf:"host" json:"host"`
}

type PipelineConfig struct {
	MaxPapers         int `koanf:"max_papers" json:"max_papers"`
	SurveyWordLimit   int `koanf:"survey_word_limit" json:"survey_word_limit"`
	SummaryInputChars int `koanf:"summary_input_chars" json:"summary_input_chars"`
	SynthesisChars    int `koanf:"synthesis_chars" json:"synthesis_chars"`
	Parallelism       int `koanf:"parallelism" json:"parallelism"`
}

type ExtractionConfig struct {
	Backends []string `koanf:"backends" json:"backends"` // priority order
}

type TraceConfig struct {
	File string `koanf:"file" json:"file"`
}

type StorageConfig struct {
	Type   string       `koanf:"type" json:"type"` // file, sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite" json:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path" json:"path"`
}

type OutputConfig struct {
	Dir string `koanf:"dir" json:"dir"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" json:"addr"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled" json:"enabled"`
	ServiceName string `koanf:"service_name" json:"service_name"`
}

type LogConfig struct {
	Level string `koanf:"level" json:"level"`
}

var defaults = map[string]any{
	"model.name":                    "llama3.1",
	"model.backend":                 "ollama",
	"model.temperature":             0.7,
	"model.seed":                    42,
	"model.timeout":                 "300s",
	"orchestrator.host":             "http://127.0.0.1:11434",
	"orchestrator.selector":         true,
	"orchestrator.selector_timeout": "60s",
	"agents.host":                   "http://127.0.0.1:11435",
	"pipeline.max_papers":           6,
	"pipeline.survey_word_limit":    800,
	"pipeline.summary_input_chars":  15000,
	"pipeline.synthesis_chars":      1000,
	"pipeline.parallelism":          4,
	"extraction.backends":           []string{"pdf", "pdfcontent", "text"},
	"trace.file":                    "trace.jsonl",
	"storage.type":                  "file",
	"storage.sqlite.path":           "copilot.db",
	"output.dir":                    "outputs",
	"server.addr":                   ":8080",
	"telemetry.enabled":             false,
	"telemetry.service_name":        "research-copilot",
	"log.level":                     "info",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns the configuration with every default applied and no
// file or environment overrides.
func Default() *Config {
	k := koanf.New(".")
	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load reads path when it is non-empty, or config.yaml in the working
// directory when it exists, then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Orchestrator.Host = substituteEnvVars(cfg.Orchestrator.Host)
	cfg.Agents.Host = substituteEnvVars(cfg.Agents.Host)
	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)
	cfg.Output.Dir = substituteEnvVars(cfg.Output.Dir)

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature %v out of range [0, 2]", c.Model.Temperature))
	}
	if _, err := time.ParseDuration(c.Model.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("model.timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Orchestrator.SelectorTimeout); err != nil {
		errs = append(errs, fmt.Errorf("orchestrator.selector_timeout: %w", err))
	}
	if c.Orchestrator.Host == "" || c.Agents.Host == "" {
		errs = append(errs, errors.New("orchestrator.host and agents.host are required"))
	}
	if c.Pipeline.SurveyWordLimit <= 0 {
		errs = append(errs, errors.New("pipeline.survey_word_limit must be positive"))
	}
	if c.Pipeline.Parallelism <= 0 {
		errs = append(errs, errors.New("pipeline.parallelism must be positive"))
	}
	if len(c.Extraction.Backends) == 0 {
		errs = append(errs, errors.New("extraction.backends must name at least one backend"))
	}
	switch c.Storage.Type {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q must be file, sqlite or memory", c.Storage.Type))
	}
	return errors.Join(errs...)
}

// ModelTimeout is the parsed model.timeout.
func (c *Config) ModelTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Model.Timeout)
	return d
}

// SelectorTimeout is the parsed orchestrator.selector_timeout.
func (c *Config) SelectorTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Orchestrator.SelectorTimeout)
	return d
}

func applyDefaults(k *koanf.Koanf) {
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
