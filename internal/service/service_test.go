package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/pipeline/pipelinetest"
	"github.com/jonathan/resume-orchestrator/internal/resume"
	"github.com/jonathan/resume-orchestrator/internal/store"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func newService(t *testing.T, opts Options) (*Service, *pipelinetest.Fixture) {
	t.Helper()
	fx := pipelinetest.New(t, nil)
	if opts.Getenv == nil {
		opts.Getenv = env(nil)
	}
	return New(fx.Coordinator, opts), fx
}

func TestService_Health(t *testing.T) {
	okCompiler := checkerFunc(func(context.Context) error { return nil })

	t.Run("healthy", func(t *testing.T) {
		svc, _ := newService(t, Options{Compiler: okCompiler, LoadDocument: pipelinetest.Document})
		report := svc.Health(context.Background())

		assert.Equal(t, StatusHealthy, report.Status)
		assert.Len(t, report.Components, 4)
		for name, c := range report.Components {
			assert.Equal(t, "ok", c.Status, name)
		}
	})

	t.Run("compiler down degrades", func(t *testing.T) {
		svc, _ := newService(t, Options{
			Compiler: checkerFunc(func(context.Context) error { return errors.New("pdflatex not found") }),
		})
		report := svc.Health(context.Background())

		assert.Equal(t, StatusDegraded, report.Status)
		assert.Equal(t, "unavailable", report.Components[ComponentCompiler].Status)
		assert.Equal(t, "pdflatex not found", report.Components[ComponentCompiler].Message)
		assert.Equal(t, "ok", report.Components[ComponentStore].Status)
		assert.NotContains(t, report.Components, ComponentDocument)
	})

	t.Run("missing document degrades", func(t *testing.T) {
		svc, _ := newService(t, Options{
			Compiler:     okCompiler,
			LoadDocument: func() (*resume.Document, error) { return nil, resume.ErrMissingMain },
		})
		report := svc.Health(context.Background())

		assert.Equal(t, StatusDegraded, report.Status)
		assert.Contains(t, report.Components[ComponentDocument].Message, "cv.tex")
	})

	t.Run("no compiler configured", func(t *testing.T) {
		svc, _ := newService(t, Options{})
		report := svc.Health(context.Background())
		assert.Equal(t, StatusDegraded, report.Status)
	})
}

func TestService_Providers(t *testing.T) {
	svc, _ := newService(t, Options{
		Getenv: env(map[string]string{"GEMINI_API_KEY": "key"}),
		Models: map[string]string{"groq": "llama-3.1-8b-instant"},
	})

	catalog := svc.Providers()

	assert.Equal(t, 4, catalog.TotalCount)
	assert.Equal(t, 2, catalog.AvailableCount)
	assert.True(t, catalog.Providers["gemini"].Available)
	assert.Equal(t, "GOOGLE_API_KEY", catalog.Providers["gemini"].RequiredCredential)
	assert.False(t, catalog.Providers["claude"].Available)
	assert.Equal(t, "ANTHROPIC_API_KEY", catalog.Providers["claude"].RequiredCredential)
	assert.Equal(t, "llama-3.1-8b-instant", catalog.Providers["groq"].Model)
	assert.True(t, catalog.Providers[pipelinetest.ProviderName].Available)
}

func TestService_ListRuns(t *testing.T) {
	svc, fx := newService(t, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := fx.Coordinator.Create(ctx, types.RunConfig{JobDescription: pipelinetest.JobDescription, DryRun: true})
		require.NoError(t, err)
	}

	list, err := svc.ListRuns(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, types.StatusPending, list.Runs[0].Status)

	list, err = svc.ListRuns(ctx, ListQuery{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Runs)

	for _, q := range []ListQuery{{Limit: 101}, {Limit: -1}, {Status: "done"}} {
		_, err = svc.ListRuns(ctx, q)
		var verr *types.ValidationError
		assert.True(t, errors.As(err, &verr), "%+v", q)
	}
}

func TestService_RunSyncAndArtifact(t *testing.T) {
	svc, _ := newService(t, Options{})
	ctx := context.Background()

	run, err := svc.RunSync(ctx, types.RunConfig{JobDescription: pipelinetest.JobDescription})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)

	ref, err := svc.Artifact(ctx, run.ID)
	require.NoError(t, err)
	assert.Contains(t, ref.DownloadURL, run.ID)

	dry, err := svc.RunSync(ctx, types.RunConfig{JobDescription: pipelinetest.JobDescription, DryRun: true})
	require.NoError(t, err)
	_, err = svc.Artifact(ctx, dry.ID)
	assert.ErrorIs(t, err, ErrNoArtifact)

	_, err = svc.Artifact(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_CreateRunRunsInBackground(t *testing.T) {
	svc, fx := newService(t, Options{})

	run, err := svc.CreateRun(context.Background(), types.RunConfig{JobDescription: pipelinetest.JobDescription, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, run.Status)

	done := fx.WaitForStatus(t, run.ID, types.StatusCompleted)
	assert.Empty(t, done.Artifacts)
}

func TestService_ResubmitAndCancel(t *testing.T) {
	svc, fx := newService(t, Options{})
	fx.Provider.SetOutput(types.StageJudge, pipelinetest.JudgeRevise)
	ctx := context.Background()

	run, err := svc.RunSync(ctx, types.RunConfig{JobDescription: pipelinetest.JobDescription, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, types.StatusNeedsReview, run.Status)

	resumed, err := svc.ResubmitRun(ctx, run.ID, pipeline.ResubmitRequest{Approve: true})
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, resumed.Status)
	fx.WaitForStatus(t, run.ID, types.StatusCompleted)

	again, err := svc.RunSync(ctx, types.RunConfig{JobDescription: pipelinetest.JobDescription, DryRun: true})
	require.NoError(t, err)
	cancelled, err := svc.CancelRun(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, cancelled.Status)
	assert.Equal(t, types.StageFinalizer, cancelled.Error.Stage)
}

func TestService_ResumeInfo(t *testing.T) {
	svc, _ := newService(t, Options{LoadDocument: func() (*resume.Document, error) {
		return &resume.Document{Main: "main", Includes: map[string]string{"skills.tex": "", "experience.tex": ""}}, nil
	}})
	info, err := svc.ResumeInfo()
	require.NoError(t, err)
	assert.Equal(t, "cv.tex", info.MainFile)
	assert.Equal(t, []string{"experience.tex", "skills.tex"}, info.Sections)
	assert.Equal(t, 4, info.MainBytes)

	bare, _ := newService(t, Options{})
	_, err = bare.ResumeInfo()
	assert.ErrorIs(t, err, ErrNoDocument)
}
