// Package extract turns source documents into normalised text by trying
// an ordered list of extraction backends until one produces text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/trace"
)

// ErrUnsupportedSource is returned when no configured backend accepts a
// source's format.
var ErrUnsupportedSource = errors.New("no backend accepts this source")

// Document is the raw output of one backend.
type Document struct {
	Text      string
	PageCount int
	Title     string
}

// Backend extracts text from a source.
type Backend interface {
	Name() string
	Extract(ctx context.Context, sourceID string) (Document, error)
}

// Acceptor is implemented by backends that only handle some formats.
// A backend that does not accept a source is not attempted for it.
type Acceptor interface {
	Accepts(sourceID string) bool
}

// Chain tries its backends in priority order. It holds no per-call state
// and is safe for concurrent use across sources.
type Chain struct {
	backends []Backend
	sink     trace.Sink
	logger   *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithSink reports backend failures to sink.
func WithSink(sink trace.Sink) ChainOption {
	return func(c *Chain) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChain creates a chain over backends, highest priority first.
func NewChain(backends []Backend, opts ...ChainOption) (*Chain, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("extraction chain needs at least one backend")
	}
	c := &Chain{
		backends: append([]Backend(nil), backends...),
		sink:     trace.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Backends returns the backend names in priority order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Extract returns the first non-empty result, normalised. When every
// backend fails it returns an *domain.ExtractionExhaustedError wrapping
// the last backend's error.
func (c *Chain) Extract(ctx context.Context, sourceID string) (*domain.ExtractionResult, error) {
	ctx, span := otel.Tracer("research-copilot/extract").Start(ctx, "extract")
	defer span.End()
	span.SetAttributes(attribute.String("source_id", sourceID))

	var (
		lastErr     error
		lastBackend string
		attempts    int
	)

	for _, b := range c.backends {
		if a, ok := b.(Acceptor); ok && !a.Accepts(sourceID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			lastErr, lastBackend = err, b.Name()
			break
		}

		attempts++
		doc, err := c.try(ctx, b, sourceID)
		if err == nil && doc.Text == "" {
			err = domain.ErrEmptyText
		}
		if err != nil {
			lastErr = &domain.BackendError{Backend: b.Name(), SourceID: sourceID, Err: err}
			lastBackend = b.Name()
			c.sink.Emit(domain.EventBackendFailure, map[string]any{
				"source_id": sourceID,
				"backend":   b.Name(),
				"attempt":   attempts,
				"error":     err.Error(),
			})
			c.logger.Debug("extraction backend failed",
				slog.String("source_id", sourceID),
				slog.String("backend", b.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		text := Normalize(doc.Text)
		if text == "" {
			// Whitespace-only output is still empty.
			lastErr = &domain.BackendError{Backend: b.Name(), SourceID: sourceID, Err: domain.ErrEmptyText}
			lastBackend = b.Name()
			c.sink.Emit(domain.EventBackendFailure, map[string]any{
				"source_id": sourceID,
				"backend":   b.Name(),
				"attempt":   attempts,
				"error":     domain.ErrEmptyText.Error(),
			})
			continue
		}

		title := strings.TrimSpace(doc.Title)
		if title == "" {
			title = stem(sourceID)
		}
		span.SetAttributes(attribute.String("backend", b.Name()), attribute.Int("attempts", attempts))

		return &domain.ExtractionResult{
			SourceID:    sourceID,
			Title:       title,
			PageCount:   doc.PageCount,
			Text:        text,
			TextLength:  len(text),
			BackendUsed: b.Name(),
		}, nil
	}

	if lastErr == nil {
		lastErr = ErrUnsupportedSource
	}
	err := &domain.ExtractionExhaustedError{
		SourceID:    sourceID,
		LastBackend: lastBackend,
		Attempts:    attempts,
		Err:         lastErr,
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "extraction exhausted")
	return nil, err
}

func (c *Chain) try(ctx context.Context, b Backend, sourceID string) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return b.Extract(ctx, sourceID)
}

func stem(sourceID string) string {
	base := filepath.Base(sourceID)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
