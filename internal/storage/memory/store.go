package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/storage"
)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu           sync.RWMutex
	interactions map[string]*domain.InteractionRecord
	artifacts    map[string][]*domain.Artifact
	states       map[string]domain.PipelineState
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		interactions: make(map[string]*domain.InteractionRecord),
		artifacts:    make(map[string][]*domain.Artifact),
		states:       make(map[string]domain.PipelineState),
	}
}

func (s *Store) SaveInteraction(ctx context.Context, rec *domain.InteractionRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = "int_" + uuid.New().String()
	}
	if _, exists := s.interactions[rec.ID]; exists {
		return "", fmt.Errorf("interaction %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	cp := *rec
	s.interactions[rec.ID] = &cp
	return rec.ID, nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*domain.InteractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.interactions[id]
	if !exists {
		return nil, fmt.Errorf("interaction %s: %w", id, storage.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) SaveArtifact(ctx context.Context, a *domain.Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	cp.Content = append([]byte(nil), a.Content...)
	s.artifacts[a.RunID] = append(s.artifacts[a.RunID], &cp)
	return fmt.Sprintf("%s/%s/%s", a.RunID, a.Kind, a.Name), nil
}

func (s *Store) ListArtifacts(ctx context.Context, runID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Artifact
	for _, a := range s.artifacts[runID] {
		if kind != "" && a.Kind != kind {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

func (s *Store) SaveState(ctx context.Context, runID string, state domain.PipelineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[runID] = state
	return nil
}

func (s *Store) LoadState(ctx context.Context, runID string) (domain.PipelineState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.states[runID]
	if !exists {
		return domain.PipelineState{}, fmt.Errorf("state for run %s: %w", runID, storage.ErrNotFound)
	}
	return state, nil
}

func (s *Store) Close() error {
	return nil
}
