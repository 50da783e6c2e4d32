// Package storage defines the persistence collaborator of a run: full
// model interaction bodies, stage artifacts and pipeline state checkpoints.
package storage

import (
	"context"
	"errors"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// InteractionStore persists untruncated prompt/response pairs.
type InteractionStore interface {
	// SaveInteraction stores the record and returns its identifier.
	SaveInteraction(ctx context.Context, rec *domain.InteractionRecord) (string, error)

	// GetInteraction retrieves a record by identifier.
	GetInteraction(ctx context.Context, id string) (*domain.InteractionRecord, error)
}

// ArtifactStore persists stage outputs.
type ArtifactStore interface {
	// SaveArtifact stores the artifact and returns its identifier.
	SaveArtifact(ctx context.Context, a *domain.Artifact) (string, error)

	// ListArtifacts lists the artifacts of a run, optionally filtered by kind.
	ListArtifacts(ctx context.Context, runID string, kind domain.ArtifactKind) ([]*domain.Artifact, error)
}

// StateStore checkpoints pipeline state so a run can be resumed.
type StateStore interface {
	SaveState(ctx context.Context, runID string, state domain.PipelineState) error
	LoadState(ctx context.Context, runID string) (domain.PipelineState, error)
}

// Store combines every persistence concern of a run.
type Store interface {
	InteractionStore
	ArtifactStore
	StateStore

	// Close releases the underlying resources.
	Close() error
}
