// Package store defines the Run State Store and its in-memory implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

var (
	// ErrNotFound is returned when no run has the requested identifier.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidTransition is returned when a mutation would break the run lifecycle.
	ErrInvalidTransition = errors.New("invalid run transition")

	// ErrStageOrder is returned when a stage result would be recorded before its predecessors.
	ErrStageOrder = errors.New("stage result out of pipeline order")
)

// MaxListLimit bounds the number of runs returned by List.
const MaxListLimit = 100

// Filter narrows List results. A zero Status matches every run and a zero
// Limit returns all matches.
type Filter struct {
	Status types.RunStatus
	Limit  int
}

// Mutator changes a run in place. Returning an error aborts the update.
type Mutator func(run *types.Run) error

// Store is the Run State Store. Implementations serialise updates per run
// and never block updates of unrelated runs on each other.
type Store interface {
	// Create stores a new pending run built from an already defaulted config.
	Create(ctx context.Context, cfg types.RunConfig) (*types.Run, error)
	// Get returns a copy of the run or ErrNotFound.
	Get(ctx context.Context, id string) (*types.Run, error)
	// List returns runs in creation order after filtering.
	List(ctx context.Context, filter Filter) ([]*types.Run, error)
	// Update applies mutate atomically and returns the committed run.
	Update(ctx context.Context, id string, mutate Mutator) (*types.Run, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
	Close()
}

// Apply runs mutate against a copy of current, checks the lifecycle rules and
// returns the new record with UpdatedAt refreshed. current is never modified.
func Apply(current *types.Run, mutate Mutator, now time.Time) (*types.Run, error) {
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, current.ID, current.Status)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := checkUpdate(current, next); err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	return next, nil
}

func checkUpdate(cur, next *types.Run) error {
	if next.ID != cur.ID || next.JobDescription != cur.JobDescription ||
		next.DryRun != cur.DryRun || !next.CreatedAt.Equal(cur.CreatedAt) {
		return fmt.Errorf("%w: immutable field changed", ErrInvalidTransition)
	}
	if len(next.Providers) != len(cur.Providers) {
		return fmt.Errorf("%w: providers changed", ErrInvalidTransition)
	}
	for st, p := range cur.Providers {
		if next.Providers[st] != p {
			return fmt.Errorf("%w: providers changed", ErrInvalidTransition)
		}
	}

	if next.Status != cur.Status && !cur.Status.CanTransition(next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next.Status)
	}

	for st := range cur.Results {
		if _, ok := next.Results[st]; !ok {
			return fmt.Errorf("%w: result %s removed", ErrInvalidTransition, st)
		}
	}
	for st := range next.Results {
		if !next.CanRecord(st) {
			return fmt.Errorf("%w: %s", ErrStageOrder, st)
		}
	}

	if len(next.Artifacts) < len(cur.Artifacts) {
		return fmt.Errorf("%w: artifacts are append-only", ErrInvalidTransition)
	}
	for i := range cur.Artifacts {
		if next.Artifacts[i] != cur.Artifacts[i] {
			return fmt.Errorf("%w: artifacts are append-only", ErrInvalidTransition)
		}
	}
	if len(next.Artifacts) > 0 && (next.DryRun || next.Status != types.StatusCompleted) {
		return fmt.Errorf("%w: artifacts require a completed non-dry run", ErrInvalidTransition)
	}

	if next.Error != nil && next.Status != types.StatusFailed {
		return fmt.Errorf("%w: error set on %s run", ErrInvalidTransition, next.Status)
	}
	if next.Status == types.StatusFailed && next.Error == nil {
		return fmt.Errorf("%w: failed run without error", ErrInvalidTransition)
	}
	return nil
}

// Chain applies mutators in order, stopping at the first error.
func Chain(mutators ...Mutator) Mutator {
	return func(run *types.Run) error {
		for _, m := range mutators {
			if err := m(run); err != nil {
				return err
			}
		}
		return nil
	}
}

// SetStatus moves the run to status.
func SetStatus(status types.RunStatus) Mutator {
	return func(run *types.Run) error {
		run.Status = status
		return nil
	}
}

// MergeResult records one stage output. Existing entries for the same stage
// are replaced, which only happens on revision rounds.
func MergeResult(stage types.Stage, output []byte) Mutator {
	return func(run *types.Run) error {
		if !run.CanRecord(stage) {
			return fmt.Errorf("%w: %s", ErrStageOrder, stage)
		}
		buf := make([]byte, len(output))
		copy(buf, output)
		run.Results[stage] = buf
		return nil
	}
}

// AppendArtifact adds an artifact reference.
func AppendArtifact(ref types.ArtifactRef) Mutator {
	return func(run *types.Run) error {
		run.Artifacts = append(run.Artifacts, ref)
		return nil
	}
}

// Fail moves the run to failed with the given attribution.
func Fail(stage types.Stage, message, log string) Mutator {
	return func(run *types.Run) error {
		run.Status = types.StatusFailed
		run.Error = &types.RunError{Stage: stage, Message: message, Log: log}
		return nil
	}
}

// RequestCancel flags the run for cancellation at the next stage boundary.
func RequestCancel() Mutator {
	return func(run *types.Run) error {
		run.CancelRequested = true
		return nil
	}
}

// SetRevisions records the number of automatic revision rounds.
func SetRevisions(n int) Mutator {
	return func(run *types.Run) error {
		run.Revisions = n
		return nil
	}
}

// SetDiffSummary records the human-readable summary of applied refiner diffs.
func SetDiffSummary(summary string) Mutator {
	return func(run *types.Run) error {
		run.DiffSummary = summary
		return nil
	}
}

// ClampLimit normalises a caller-supplied limit. Non-positive means no limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
