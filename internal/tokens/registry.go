// Package tokens counts prompt tokens for the models the pipeline calls.
package tokens

import (
	"fmt"
	"strings"
)

// Count is the result of counting a text.
type Count struct {
	Tokens    int
	Model     string
	Estimated bool
}

// Counter counts the tokens of a text for a model.
type Counter interface {
	CountText(model, text string) (Count, error)
	SupportsModel(model string) bool
}

// Registry manages token counters for different models.
// Registered counters are consulted in order; the fallback estimator
// handles any model no counter supports, or any counter failure.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a new token counter registry.
func NewRegistry() *Registry {
	return &Registry{
		fallback: NewEstimator(),
	}
}

// Default returns a registry with the tiktoken counter registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// CountText counts tokens using the first counter that supports the model.
func (r *Registry) CountText(model, text string) (Count, error) {
	for _, counter := range r.counters {
		if !counter.SupportsModel(model) {
			continue
		}
		if c, err := counter.CountText(model, text); err == nil {
			return c, nil
		}
		break
	}

	if r.fallback != nil {
		return r.fallback.CountText(model, text)
	}

	return Count{}, fmt.Errorf("no token counter available for model: %s", model)
}

// Tokens is CountText without the error; failures count as zero.
func (r *Registry) Tokens(model, text string) int {
	c, err := r.CountText(model, text)
	if err != nil {
		return 0
	}
	return c.Tokens
}

// Estimator provides token count estimation based on character counts.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// CountText estimates the token count.
func (e *Estimator) CountText(model, text string) (Count, error) {
	return Count{
		Tokens:    int(float64(len(text)) / e.CharsPerToken),
		Model:     model,
		Estimated: true,
	}, nil
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher helps match model names to patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	model = strings.ToLower(model)
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
