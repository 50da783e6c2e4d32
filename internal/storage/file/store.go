// Package file stores run output as plain files under a base directory,
// one folder per run.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/storage"
)

const stateFile = "state.json"

// Store writes interactions, artifacts and state checkpoints beneath Root.
// Interaction identifiers are paths relative to Root.
type Store struct {
	Root string
	now  func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a file store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{Root: dir, now: time.Now}, nil
}

// RunDir returns the folder holding a run's output.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.Root, runID)
}

func (s *Store) SaveInteraction(ctx context.Context, rec *domain.InteractionRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.RunID == "" {
		return "", fmt.Errorf("interaction run id is empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	dir := s.RunDir(rec.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	stamp := rec.CreatedAt.Format("20060102_150405.000000")
	base := fmt.Sprintf("llm_response_%s_%s", sanitize(rec.Agent), stamp)

	for attempt := 0; ; attempt++ {
		name := base + ".json"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.json", base, attempt)
		}
		rel := filepath.Join(rec.RunID, name)
		rec.ID = filepath.ToSlash(rel)

		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal interaction: %w", err)
		}
		data = append(data, '\n')

		f, err := os.OpenFile(filepath.Join(s.Root, rel), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create interaction file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write interaction file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close interaction file: %w", err)
		}
		return rec.ID, nil
	}
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*domain.InteractionRecord, error) {
	path, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("interaction %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read interaction: %w", err)
	}

	var rec domain.InteractionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse interaction %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) SaveArtifact(ctx context.Context, a *domain.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.RunID == "" || a.Kind == "" || a.Name == "" {
		return "", fmt.Errorf("artifact requires run id, kind and name")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	rel := filepath.Join(a.RunID, string(a.Kind), sanitize(a.Name))
	if err := writeAtomic(filepath.Join(s.Root, rel), a.Content); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (s *Store) ListArtifacts(ctx context.Context, runID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	var kinds []domain.ArtifactKind
	if kind != "" {
		kinds = []domain.ArtifactKind{kind}
	} else {
		entries, err := os.ReadDir(s.RunDir(runID))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list run dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				kinds = append(kinds, domain.ArtifactKind(e.Name()))
			}
		}
	}

	var result []*domain.Artifact
	for _, k := range kinds {
		dir := filepath.Join(s.RunDir(runID), string(k))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read artifact: %w", err)
			}
			info, err := e.Info()
			if err != nil {
				return nil, fmt.Errorf("stat artifact: %w", err)
			}
			result = append(result, &domain.Artifact{
				RunID:       runID,
				Kind:        k,
				Name:        e.Name(),
				ContentType: contentType(e.Name()),
				Content:     content,
				CreatedAt:   info.ModTime(),
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) SaveState(ctx context.Context, runID string, state domain.PipelineState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeAtomic(filepath.Join(s.RunDir(runID), stateFile), append(data, '\n'))
}

func (s *Store) LoadState(ctx context.Context, runID string) (domain.PipelineState, error) {
	var state domain.PipelineState

	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), stateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return state, fmt.Errorf("state for run %s: %w", runID, storage.ErrNotFound)
	}
	if err != nil {
		return state, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state: %w", err)
	}
	return state, nil
}

func (s *Store) Close() error {
	return nil
}

// resolve maps an identifier to a path, refusing anything outside Root.
func (s *Store) resolve(id string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(id))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid interaction id %q", id)
	}
	return filepath.Join(s.Root, clean), nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}
