// Package types provides type definitions for structured data used throughout the resume orchestrator.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Stage names one step of the pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageReviewer  Stage = "reviewer"
	StageSwot      Stage = "swot"
	StageRefiner   Stage = "refiner"
	StageJudge     Stage = "judge"
	StageFinalizer Stage = "finalizer"
)

// BoundaryPublish is the failure attribution used when the finalized document
// cannot be turned into an artifact.
const BoundaryPublish Stage = "publish"

// Stages returns the canonical pipeline order.
func Stages() []Stage {
	return []Stage{StageReviewer, StageSwot, StageRefiner, StageJudge, StageFinalizer}
}

// Index returns the position of the stage in pipeline order, or -1.
func (s Stage) Index() int {
	for i, st := range Stages() {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the five canonical stages.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

// Run lifecycle states.
const (
	StatusPending     RunStatus = "pending"
	StatusRunning     RunStatus = "running"
	StatusNeedsReview RunStatus = "needs_review"
	StatusFailed      RunStatus = "failed"
	StatusCompleted   RunStatus = "completed"
)

// Valid reports whether the status is a known lifecycle state.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusNeedsReview, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether the pipeline can no longer mutate a run in this state.
func (s RunStatus) Terminal() bool {
	return s == StatusFailed || s == StatusCompleted
}

// CanTransition reports whether moving from s to next is permitted.
// Transitions only move forward; needs_review may return to running on resubmission
// and may be failed by cancellation.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusNeedsReview || next == StatusFailed || next == StatusCompleted
	case StatusNeedsReview:
		return next == StatusRunning || next == StatusFailed
	}
	return false
}

// RunError records which stage or boundary a run failed at.
type RunError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Log     string `json:"log,omitempty"`
}

// ArtifactRef points at a published artifact.
type ArtifactRef struct {
	Kind        string    `json:"kind"`
	Path        string    `json:"path"`
	LogPath     string    `json:"logPath,omitempty"`
	DownloadURL string    `json:"downloadUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Run is one end-to-end execution of the pipeline for a job description.
type Run struct {
	ID              string                    `json:"id"`
	Status          RunStatus                 `json:"status"`
	JobDescription  string                    `json:"jobDescription"`
	DryRun          bool                      `json:"dryRun"`
	Providers       ProviderMap               `json:"providers"`
	Results         map[Stage]json.RawMessage `json:"results"`
	Artifacts       []ArtifactRef             `json:"artifacts"`
	Error           *RunError                 `json:"error,omitempty"`
	Revisions       int                       `json:"revisions"`
	DiffSummary     string                    `json:"diffSummary,omitempty"`
	CancelRequested bool                      `json:"cancelRequested,omitempty"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

// NewRun builds a pending run from an already defaulted config.
func NewRun(id string, cfg RunConfig, now time.Time) *Run {
	return &Run{
		ID:             id,
		Status:         StatusPending,
		JobDescription: cfg.JobDescription,
		DryRun:         cfg.DryRun,
		Providers:      cfg.Providers.Clone(),
		Results:        make(map[Stage]json.RawMessage),
		Artifacts:      []ArtifactRef{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Providers = r.Providers.Clone()
	out.Results = make(map[Stage]json.RawMessage, len(r.Results))
	for k, v := range r.Results {
		buf := make(json.RawMessage, len(v))
		copy(buf, v)
		out.Results[k] = buf
	}
	out.Artifacts = make([]ArtifactRef, len(r.Artifacts))
	copy(out.Artifacts, r.Artifacts)
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return &out
}

// HasResult reports whether the stage has a recorded output.
func (r *Run) HasResult(stage Stage) bool {
	_, ok := r.Results[stage]
	return ok
}

// CanRecord reports whether stage output may be merged now: every earlier stage
// must already have a result.
func (r *Run) CanRecord(stage Stage) bool {
	idx := stage.Index()
	if idx < 0 {
		return false
	}
	for _, prior := range Stages()[:idx] {
		if !r.HasResult(prior) {
			return false
		}
	}
	return true
}

// Result decodes a recorded stage output into dst. It returns false when the
// stage has no result.
func (r *Run) Result(stage Stage, dst any) (bool, error) {
	raw, ok := r.Results[stage]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// Summary is the lightweight listing view of a run.
type Summary struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	DryRun      bool      `json:"dryRun"`
	JobHeadline string    `json:"jobHeadline"`
	Stages      []Stage   `json:"completedStages"`
	ArtifactURL string    `json:"artifactUrl,omitempty"`
	ErrorStage  Stage     `json:"errorStage,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summarize builds the listing view for a run.
func (r *Run) Summarize() Summary {
	s := Summary{
		ID:          r.ID,
		Status:      r.Status,
		DryRun:      r.DryRun,
		Stages:      []Stage{},
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		JobHeadline: headline(r.JobDescription, 80),
	}
	for _, st := range Stages() {
		if r.HasResult(st) {
			s.Stages = append(s.Stages, st)
		}
	}
	if n := len(r.Artifacts); n > 0 {
		s.ArtifactURL = r.Artifacts[n-1].DownloadURL
	}
	if r.Error != nil {
		s.ErrorStage = r.Error.Stage
	}
	return s
}

// headline returns the first non-empty line of text, truncated to limit runes.
func headline(text string, limit int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if len(runes) > limit {
			return string(runes[:limit-3]) + "..."
		}
		return line
	}
	return ""
}
