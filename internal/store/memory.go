package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

// entry holds one run. mu serialises updates to this run only.
type entry struct {
	mu  sync.RWMutex
	run *types.Run
}

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex // protects runs and order, never held during a mutation
	runs  map[string]*entry
	order []string
	now   func() time.Time
	newID func() string
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithIDGenerator overrides run identifier allocation.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(s *MemoryStore) { s.newID = fn }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		runs:  make(map[string]*entry),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new pending run.
func (s *MemoryStore) Create(ctx context.Context, cfg types.RunConfig) (*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	run := types.NewRun(s.newID(), cfg, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return nil, fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = &entry{run: run}
	s.order = append(s.order, run.ID)
	return run.Clone(), nil
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return e, nil
}

// Get returns a snapshot of the run.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.run.Clone(), nil
}

// List returns snapshots in creation order.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.runs[id])
	}
	s.mu.RUnlock()

	limit := ClampLimit(filter.Limit)
	out := make([]*types.Run, 0)
	for _, e := range entries {
		e.mu.RLock()
		match := filter.Status == "" || e.run.Status == filter.Status
		var snap *types.Run
		if match {
			snap = e.run.Clone()
		}
		e.mu.RUnlock()

		if !match {
			continue
		}
		out = append(out, snap)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Update applies mutate under the run's own lock. A failed mutation leaves the
// stored run untouched.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate Mutator) (*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := Apply(e.run, mutate, s.now())
	if err != nil {
		return nil, fmt.Errorf("update run %s: %w", id, err)
	}
	e.run = next
	return next.Clone(), nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *MemoryStore) Close() {}
