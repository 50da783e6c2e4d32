package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/research-copilot/internal/domain"
	"github.com/tjfontaine/research-copilot/internal/storage"
)

// Store is a SQLite implementation of InteractionStore, ArtifactStore and StateStore
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			agent TEXT NOT NULL,
			model TEXT NOT NULL,
			host TEXT,
			temperature REAL,
			seed INTEGER,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			content_type TEXT,
			content BLOB,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_state (
			run_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_run ON interactions(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id, kind)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) SaveInteraction(ctx context.Context, rec *domain.InteractionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = "int_" + uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO interactions (id, run_id, agent, model, host, temperature, seed, prompt, response, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.Agent, rec.Model, rec.Host, rec.Temperature, rec.Seed,
		rec.Prompt, rec.Response, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save interaction: %w", err)
	}

	return rec.ID, nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*domain.InteractionRecord, error) {
	query := `SELECT id, run_id, agent, model, host, temperature, seed, prompt, response, created_at
	          FROM interactions WHERE id = ?`

	var rec domain.InteractionRecord
	var host sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.RunID, &rec.Agent, &rec.Model, &host, &rec.Temperature, &rec.Seed,
		&rec.Prompt, &rec.Response, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("interaction %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}
	rec.Host = host.String

	return &rec, nil
}

func (s *Store) SaveArtifact(ctx context.Context, a *domain.Artifact) (string, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	id := "art_" + uuid.New().String()

	query := `INSERT INTO artifacts (id, run_id, kind, name, content_type, content, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		id, a.RunID, string(a.Kind), a.Name, a.ContentType, a.Content, a.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}

	return id, nil
}

func (s *Store) ListArtifacts(ctx context.Context, runID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	query := `SELECT run_id, kind, name, content_type, content, created_at
	          FROM artifacts WHERE run_id = ? AND (? = '' OR kind = ?)
	          ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, runID, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var kindStr string
		var contentType sql.NullString

		if err := rows.Scan(&a.RunID, &kindStr, &a.Name, &contentType, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Kind = domain.ArtifactKind(kindStr)
		a.ContentType = contentType.String
		artifacts = append(artifacts, &a)
	}

	return artifacts, rows.Err()
}

func (s *Store) SaveState(ctx context.Context, runID string, state domain.PipelineState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `INSERT INTO run_state (run_id, state, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT(run_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, runID, string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

func (s *Store) LoadState(ctx context.Context, runID string) (domain.PipelineState, error) {
	var state domain.PipelineState
	var data string

	err := s.db.QueryRowContext(ctx, `SELECT state FROM run_state WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("state for run %s: %w", runID, storage.ErrNotFound)
	}
	if err != nil {
		return state, fmt.Errorf("failed to load state: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return state, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
