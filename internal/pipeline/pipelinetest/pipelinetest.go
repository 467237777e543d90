// Package pipelinetest provides a coordinator wired to canned providers for
// tests of the gateway packages.
package pipelinetest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/provider"
	"github.com/jonathan/resume-orchestrator/internal/resume"
	"github.com/jonathan/resume-orchestrator/internal/store"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// ProviderName is the name of the canned provider.
const ProviderName = "canned"

// JobDescription is a job description that passes validation.
const JobDescription = "Senior Go engineer to build payment services on PostgreSQL."

// Canned stage outputs that satisfy the stage schemas.
var (
	ReviewerOutput  = `{"ats_keywords":["go"],"coverage":{"must_have_pct":80,"nice_to_have_pct":40},"section_issues":[],"bullet_suggestions":[],"match_score":70}`
	SwotOutput      = `{"strengths":["go"],"weaknesses":[],"opportunities":[],"threats":[],"positioning_statement":"Backend engineer"}`
	RefinerOutput   = `{"diffs":[{"target_file":"cv.tex","patch_type":"replace","anchor":"line:2","content":"Go engineer.","rationale":"match"}]}`
	JudgePass       = `{"status":"PASS","reasons":["clear"],"numeric_scores":{"clarity":8,"brevity":8,"impact":8,"ats_fit":8},"flagged":[]}`
	JudgeRevise     = `{"status":"REVISE","reasons":["vague"],"numeric_scores":{"clarity":4,"brevity":4,"impact":4,"ats_fit":4},"flagged":[]}`
	FinalizerOutput = `{"document":"\\documentclass{article}\\begin{document}Go engineer.\\end{document}","applied":1,"skipped":0,"notes":[]}`
)

// Provider answers every stage with a fixed output. Outputs and errors may be
// changed between runs.
type Provider struct {
	mu      sync.Mutex
	outputs map[types.Stage]string
	errs    map[types.Stage]error
}

// NewProvider returns a provider whose judge always passes.
func NewProvider() *Provider {
	return &Provider{
		outputs: map[types.Stage]string{
			types.StageReviewer:  ReviewerOutput,
			types.StageSwot:      SwotOutput,
			types.StageRefiner:   RefinerOutput,
			types.StageJudge:     JudgePass,
			types.StageFinalizer: FinalizerOutput,
		},
		errs: map[types.Stage]error{},
	}
}

// SetOutput replaces the output of stage.
func (p *Provider) SetOutput(stage types.Stage, out string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs[stage] = out
}

// SetError makes stage fail with err.
func (p *Provider) SetError(stage types.Stage, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[stage] = err
}

// Capability returns the provider as a registered capability.
func (p *Provider) Capability() provider.Capability {
	return provider.Func{ID: ProviderName, Fn: func(_ context.Context, stage types.Stage, _ types.StageInput) (json.RawMessage, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.errs[stage]; err != nil {
			return nil, err
		}
		return json.RawMessage(p.outputs[stage]), nil
	}}
}

// PDF is the content written by Publisher when Dir is set.
const PDF = "%PDF-1.4\n% test artifact\n"

// Publisher returns a fixed artifact. When Dir is set it also writes a PDF
// under Dir/<runID>/final.pdf.
type Publisher struct {
	mu    sync.Mutex
	Dir   string
	Err   error
	Calls int
}

// Publish implements pipeline.Publisher.
func (p *Publisher) Publish(_ context.Context, runID, _ string) (types.ArtifactRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return types.ArtifactRef{}, p.Err
	}
	path := filepath.Join(os.TempDir(), "pipelinetest", runID, "final.pdf")
	if p.Dir != "" {
		path = filepath.Join(p.Dir, runID, "final.pdf")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return types.ArtifactRef{}, err
		}
		if err := os.WriteFile(path, []byte(PDF), 0o644); err != nil {
			return types.ArtifactRef{}, err
		}
	}
	return types.ArtifactRef{
		Kind:        "pdf",
		Path:        path,
		DownloadURL: "http://localhost:8080/runs/" + runID + "/pdf/file",
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Fixture bundles a coordinator with its fakes.
type Fixture struct {
	Coordinator *pipeline.Coordinator
	Store       *store.MemoryStore
	Provider    *Provider
	Publisher   *Publisher
}

// Document is the base resume served by the fixture.
func Document() (*resume.Document, error) {
	return &resume.Document{Main: "\\documentclass{article}\nBackend engineer.\n", Includes: map[string]string{}}, nil
}

// New builds a fixture. mutate may adjust coordinator options before
// construction. The coordinator is shut down when the test ends.
func New(t testing.TB, mutate func(*pipeline.Options)) *Fixture {
	t.Helper()
	f := &Fixture{Store: store.NewMemoryStore(), Provider: NewProvider(), Publisher: &Publisher{}}
	registry := provider.NewRegistry(f.Provider.Capability())
	executor := pipeline.NewExecutor(registry, pipeline.ExecutorOptions{StageTimeout: time.Second, Backoff: time.Millisecond})
	opts := pipeline.Options{
		Defaults: types.ProviderMap{
			types.StageReviewer:  ProviderName,
			types.StageSwot:      ProviderName,
			types.StageRefiner:   ProviderName,
			types.StageJudge:     ProviderName,
			types.StageFinalizer: ProviderName,
		},
		Publisher:    f.Publisher,
		LoadDocument: Document,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.Coordinator = pipeline.NewCoordinator(f.Store, executor, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.Coordinator.Shutdown(ctx)
	})
	return f
}

// WaitForStatus polls until the run reaches one of statuses or the timeout expires.
func (f *Fixture) WaitForStatus(t testing.TB, id string, statuses ...types.RunStatus) *types.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		run, err := f.Store.Get(context.Background(), id)
		if err == nil {
			for _, s := range statuses {
				if run.Status == s {
					return run
				}
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s did not reach %v", id, statuses)
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}
