//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Index(t *testing.T) {
	assert.Equal(t, 0, StageReviewer.Index())
	assert.Equal(t, 4, StageFinalizer.Index())
	assert.Equal(t, -1, BoundaryPublish.Index())
	assert.False(t, Stage("other").Valid())
}

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusNeedsReview, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusPending, false},
		{StatusNeedsReview, StatusRunning, true},
		{StatusNeedsReview, StatusCompleted, false},
		{StatusFailed, StatusRunning, false},
		{StatusCompleted, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestNewRun(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg := RunConfig{JobDescription: "Senior Go engineer", DryRun: true, Providers: DefaultProviders()}

	run := NewRun("run-1", cfg, now)

	assert.Equal(t, StatusPending, run.Status)
	assert.Empty(t, run.Results)
	assert.NotNil(t, run.Artifacts)
	assert.Empty(t, run.Artifacts)
	assert.True(t, run.Providers.Complete())
	assert.Equal(t, now, run.UpdatedAt)

	// The run must not alias the config's map.
	cfg.Providers[StageJudge] = "groq"
	assert.Equal(t, DefaultProvider, run.Providers[StageJudge])
}

func TestRun_Clone(t *testing.T) {
	run := NewRun("run-1", RunConfig{JobDescription: "job", Providers: DefaultProviders()}, time.Now())
	run.Results[StageReviewer] = json.RawMessage(`{"a":1}`)
	run.Error = &RunError{Stage: StageSwot, Message: "boom"}

	clone := run.Clone()
	clone.Results[StageReviewer][2] = 'b'
	clone.Results[StageSwot] = json.RawMessage(`{}`)
	clone.Error.Message = "changed"
	clone.Artifacts = append(clone.Artifacts, ArtifactRef{Kind: "pdf"})

	assert.JSONEq(t, `{"a":1}`, string(run.Results[StageReviewer]))
	assert.False(t, run.HasResult(StageSwot))
	assert.Equal(t, "boom", run.Error.Message)
	assert.Empty(t, run.Artifacts)
	assert.Nil(t, (*Run)(nil).Clone())
}

func TestRun_CanRecord(t *testing.T) {
	run := NewRun("r", RunConfig{JobDescription: "job", Providers: DefaultProviders()}, time.Now())

	assert.True(t, run.CanRecord(StageReviewer))
	assert.False(t, run.CanRecord(StageSwot))
	assert.False(t, run.CanRecord(BoundaryPublish))

	run.Results[StageReviewer] = json.RawMessage(`{}`)
	run.Results[StageSwot] = json.RawMessage(`{}`)
	assert.True(t, run.CanRecord(StageRefiner))
	assert.False(t, run.CanRecord(StageJudge))
}

func TestRun_Result(t *testing.T) {
	run := NewRun("r", RunConfig{JobDescription: "job"}, time.Now())
	run.Results[StageJudge] = json.RawMessage(`{"status":"PASS","reasons":[],"numeric_scores":{"clarity":8,"brevity":7,"impact":9,"ats_fit":8},"flagged":[]}`)

	var judge JudgeOutput
	ok, err := run.Result(StageJudge, &judge)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, VerdictPass, judge.Status)

	ok, err = run.Result(StageFinalizer, &FinalizerOutput{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_Summarize(t *testing.T) {
	run := NewRun("r", RunConfig{JobDescription: "\n  Staff Engineer, Platform\nWe build things.", Providers: DefaultProviders()}, time.Now())
	run.Results[StageReviewer] = json.RawMessage(`{}`)
	run.Artifacts = append(run.Artifacts, ArtifactRef{DownloadURL: "/runs/r/pdf/file"})

	s := run.Summarize()
	assert.Equal(t, "Staff Engineer, Platform", s.JobHeadline)
	assert.Equal(t, []Stage{StageReviewer}, s.Stages)
	assert.Equal(t, "/runs/r/pdf/file", s.ArtifactURL)
}

func TestHeadline_Truncates(t *testing.T) {
	got := headline(strings.Repeat("x", 200), 20)
	assert.Len(t, got, 20)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "", headline("  \n\n", 20))
}
