package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/research-copilot/internal/config"
	"github.com/tjfontaine/research-copilot/internal/extract"
	"github.com/tjfontaine/research-copilot/internal/llm"
	"github.com/tjfontaine/research-copilot/internal/router"
	"github.com/tjfontaine/research-copilot/internal/storage"
	"github.com/tjfontaine/research-copilot/internal/storage/file"
	"github.com/tjfontaine/research-copilot/internal/storage/memory"
	"github.com/tjfontaine/research-copilot/internal/storage/sqlite"
	"github.com/tjfontaine/research-copilot/internal/tokens"
)

// Option is a functional option for configuring a Copilot.
type Option func(*Copilot) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Copilot) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		c.cfg = cfg
		return nil
	}
}

// WithFileConfig loads configuration from a YAML file plus COPILOT_
// environment overrides.
func WithFileConfig(path string) Option {
	return func(c *Copilot) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		c.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Copilot) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithSQLite stores interactions, artifacts and state in a SQLite database.
func WithSQLite(path string) Option {
	return func(c *Copilot) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		c.store, c.ownsStore = store, true
		return nil
	}
}

// WithFileStorage writes everything beneath dir, one folder per run.
func WithFileStorage(dir string) Option {
	return func(c *Copilot) error {
		store, err := file.New(dir)
		if err != nil {
			return fmt.Errorf("create file storage: %w", err)
		}
		c.store, c.ownsStore = store, true
		return nil
	}
}

// WithMemoryStorage keeps run data in process memory only.
func WithMemoryStorage() Option {
	return func(c *Copilot) error {
		c.store, c.ownsStore = memory.New(), true
		return nil
	}
}

// WithStore sets a custom store. The caller keeps ownership of it.
func WithStore(store storage.Store) Option {
	return func(c *Copilot) error {
		c.store, c.ownsStore = store, false
		return nil
	}
}

// WithGenerator sets the backend used by the stage agents.
func WithGenerator(gen llm.Generator) Option {
	return func(c *Copilot) error {
		c.generator = gen
		return nil
	}
}

// WithOrchestrator sets the backend the default selector consults.
func WithOrchestrator(gen llm.Generator) Option {
	return func(c *Copilot) error {
		c.orchestrator = gen
		return nil
	}
}

// WithSelector sets a custom next-agent selector.
func WithSelector(sel router.Selector) Option {
	return func(c *Copilot) error {
		c.selector = sel
		c.noSelector = false
		return nil
	}
}

// WithoutSelector always follows the fixed stage order.
func WithoutSelector() Option {
	return func(c *Copilot) error {
		c.selector = nil
		c.noSelector = true
		return nil
	}
}

// WithBackends sets the extraction backends in priority order.
func WithBackends(backends ...extract.Backend) Option {
	return func(c *Copilot) error {
		if len(backends) == 0 {
			return fmt.Errorf("at least one extraction backend is required")
		}
		c.backends = backends
		return nil
	}
}

// WithTokenCounter sets the registry used for prompt token counts.
func WithTokenCounter(counter *tokens.Registry) Option {
	return func(c *Copilot) error {
		c.counter = counter
		return nil
	}
}

// WithClock overrides the wall clock used for run identifiers.
func WithClock(now func() time.Time) Option {
	return func(c *Copilot) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}
