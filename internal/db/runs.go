package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resume-orchestrator/internal/store"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// RunStore implements store.Store on PostgreSQL. Row locks serialise updates
// of a single run; other runs are unaffected.
type RunStore struct {
	db  *DB
	now func() time.Time
}

var _ store.Store = (*RunStore)(nil)

// NewRunStore creates a store over db.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new pending run.
func (s *RunStore) Create(ctx context.Context, cfg types.RunConfig) (*types.Run, error) {
	run := types.NewRun(uuid.NewString(), cfg, s.now())
	record, err := encodeRun(run)
	if err != nil {
		return nil, err
	}
	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO orchestrator_runs (id, status, record, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Status), record, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// Get returns the run with id or store.ErrNotFound.
func (s *RunStore) Get(ctx context.Context, id string) (*types.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	var record []byte
	err := s.db.pool.QueryRow(ctx,
		`SELECT record FROM orchestrator_runs WHERE id = $1`, id,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return decodeRun(record)
}

// List returns runs in creation order, optionally filtered by status.
func (s *RunStore) List(ctx context.Context, filter store.Filter) ([]*types.Run, error) {
	var limit *int
	if l := store.ClampLimit(filter.Limit); l > 0 {
		limit = &l
	}
	rows, err := s.db.pool.Query(ctx,
		`SELECT record FROM orchestrator_runs
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY seq
		 LIMIT $2`,
		string(filter.Status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*types.Run{}
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decodeRun(record)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Update locks the row, applies mutate and writes the result in one transaction.
func (s *RunStore) Update(ctx context.Context, id string, mutate store.Mutator) (*types.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var record []byte
	err = tx.QueryRow(ctx,
		`SELECT record FROM orchestrator_runs WHERE id = $1 FOR UPDATE`, id,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock run %s: %w", id, err)
	}
	current, err := decodeRun(record)
	if err != nil {
		return nil, err
	}

	next, err := store.Apply(current, mutate, s.now())
	if err != nil {
		return nil, fmt.Errorf("update run %s: %w", id, err)
	}
	if record, err = encodeRun(next); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE orchestrator_runs SET status = $2, record = $3, updated_at = $4 WHERE id = $1`,
		id, string(next.Status), record, next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit run %s: %w", id, err)
	}
	return next, nil
}

// Ping verifies the database is reachable.
func (s *RunStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying pool.
func (s *RunStore) Close() {
	s.db.Close()
}

func encodeRun(run *types.Run) ([]byte, error) {
	b, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}
	return b, nil
}

// decodeRun restores a run and guarantees non-nil collections.
func decodeRun(record []byte) (*types.Run, error) {
	var run types.Run
	if err := json.Unmarshal(record, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	if run.Results == nil {
		run.Results = map[types.Stage]json.RawMessage{}
	}
	if run.Artifacts == nil {
		run.Artifacts = []types.ArtifactRef{}
	}
	if run.Providers == nil {
		run.Providers = types.ProviderMap{}
	}
	return &run, nil
}
