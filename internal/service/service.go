// Package service holds the gateway operations shared by the HTTP and MCP
// façades: run creation and queries, health and the provider catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-orchestrator/internal/llm"
	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/provider"
	"github.com/jonathan/resume-orchestrator/internal/resume"
	"github.com/jonathan/resume-orchestrator/internal/store"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Health component names.
const (
	ComponentStore     = "store"
	ComponentCompiler  = "compiler"
	ComponentDocument  = "resume_document"
	ComponentProviders = "providers"
)

// DefaultProbeTimeout bounds each health probe.
const DefaultProbeTimeout = 5 * time.Second

// Checker is anything that can report its own availability.
type Checker interface {
	Check(ctx context.Context) error
}

// ComponentHealth is the probe outcome for one component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthReport is returned by Health.
type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// ProviderStatus describes one catalog provider.
type ProviderStatus struct {
	Available          bool   `json:"available"`
	RequiredCredential string `json:"requiredCredential"`
	Model              string `json:"model,omitempty"`
}

// ProviderCatalog is returned by Providers.
type ProviderCatalog struct {
	Providers      map[string]ProviderStatus `json:"providers"`
	AvailableCount int                       `json:"availableCount"`
	TotalCount     int                       `json:"totalCount"`
}

// ListQuery is the caller-supplied run listing filter.
type ListQuery struct {
	Status string `json:"status" validate:"omitempty,oneof=pending running needs_review failed completed"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// RunList is the listing response.
type RunList struct {
	Runs  []types.Summary `json:"runs"`
	Count int             `json:"count"`
}

// Options configures a Service.
type Options struct {
	// Compiler is probed by Health; nil reports the compiler as unavailable.
	Compiler Checker
	// LoadDocument is probed by Health; nil skips the document probe.
	LoadDocument pipeline.DocumentLoader
	// Models overrides catalog default models in the provider listing.
	Models map[string]string
	// Getenv reads provider credentials; nil uses the process environment.
	Getenv       func(string) string
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Service adapts external requests onto the coordinator and store.
type Service struct {
	coordinator *pipeline.Coordinator
	opts        Options
	logger      *slog.Logger
}

var validate = validator.New()

// New creates a Service.
func New(coordinator *pipeline.Coordinator, opts Options) *Service {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{coordinator: coordinator, opts: opts, logger: logger}
}

// Coordinator returns the underlying coordinator.
func (s *Service) Coordinator() *pipeline.Coordinator { return s.coordinator }

// CreateRun stores a pending run and starts it in the background.
func (s *Service) CreateRun(ctx context.Context, cfg types.RunConfig) (*types.Run, error) {
	run, err := s.coordinator.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.coordinator.Submit(run.ID)
	return run, nil
}

// RunSync creates a run and executes it to a resting state under the
// pipeline timeout.
func (s *Service) RunSync(ctx context.Context, cfg types.RunConfig) (*types.Run, error) {
	return s.coordinator.Run(ctx, cfg)
}

// GetRun returns one run.
func (s *Service) GetRun(ctx context.Context, id string) (*types.Run, error) {
	return s.coordinator.Store().Get(ctx, id)
}

// ListRuns validates q and returns run summaries in creation order.
func (s *Service) ListRuns(ctx context.Context, q ListQuery) (*RunList, error) {
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &types.ValidationError{Field: verrs[0].Field(), Message: verrs[0].Tag(), Cause: err}
		}
		return nil, &types.ValidationError{Message: "invalid query", Cause: err}
	}
	runs, err := s.coordinator.Store().List(ctx, store.Filter{Status: types.RunStatus(q.Status), Limit: q.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := &RunList{Runs: make([]types.Summary, 0, len(runs))}
	for _, run := range runs {
		out.Runs = append(out.Runs, run.Summarize())
	}
	out.Count = len(out.Runs)
	return out, nil
}

// CancelRun marks a run for cancellation.
func (s *Service) CancelRun(ctx context.Context, id string) (*types.Run, error) {
	return s.coordinator.Cancel(ctx, id)
}

// ResubmitRun reopens a run waiting for review.
func (s *Service) ResubmitRun(ctx context.Context, id string, req pipeline.ResubmitRequest) (*types.Run, error) {
	return s.coordinator.Resubmit(ctx, id, req)
}

// ErrNoArtifact is returned when a run has no published artifact.
var ErrNoArtifact = errors.New("no artifact available for run")

// Artifact returns the latest artifact of a run.
func (s *Service) Artifact(ctx context.Context, id string) (types.ArtifactRef, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return types.ArtifactRef{}, err
	}
	if len(run.Artifacts) == 0 {
		return types.ArtifactRef{}, ErrNoArtifact
	}
	return run.Artifacts[len(run.Artifacts)-1], nil
}

// Health probes every component concurrently. Any failing probe degrades
// the overall status; probes never return an error themselves.
func (s *Service) Health(ctx context.Context) *HealthReport {
	probes := map[string]func(context.Context) error{
		ComponentStore:     s.coordinator.Store().Ping,
		ComponentCompiler:  s.checkCompiler,
		ComponentProviders: s.checkProviders,
	}
	if s.opts.LoadDocument != nil {
		probes[ComponentDocument] = s.checkDocument
	}

	results := make(map[string]ComponentHealth, len(probes))
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)
	outcomes := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		probe := probes[name]
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.opts.ProbeTimeout)
			defer cancel()
			outcomes[i] = probe(pctx)
			return nil
		})
	}
	_ = g.Wait()

	report := &HealthReport{Status: StatusHealthy, Components: results}
	for i, name := range names {
		if err := outcomes[i]; err != nil {
			s.logger.Warn("health probe failed", "component", name, "error", err)
			results[name] = ComponentHealth{Status: "unavailable", Message: err.Error()}
			report.Status = StatusDegraded
			continue
		}
		results[name] = ComponentHealth{Status: "ok"}
	}
	return report
}

func (s *Service) checkCompiler(ctx context.Context) error {
	if s.opts.Compiler == nil {
		return errors.New("no compiler configured")
	}
	return s.opts.Compiler.Check(ctx)
}

func (s *Service) checkProviders(context.Context) error {
	if len(s.coordinator.Registry().Names()) == 0 {
		return errors.New("no provider credentials configured")
	}
	return nil
}

func (s *Service) checkDocument(context.Context) error {
	doc, err := s.opts.LoadDocument()
	if err != nil {
		return err
	}
	if doc.Main == "" {
		return fmt.Errorf("%s is empty", resume.MainFile)
	}
	return nil
}

// ResumeInfo describes the base resume.
type ResumeInfo struct {
	MainFile  string   `json:"mainFile"`
	Sections  []string `json:"sections"`
	MainBytes int      `json:"mainBytes"`
}

// ErrNoDocument is returned when no base resume loader is configured.
var ErrNoDocument = errors.New("no resume document configured")

// ResumeInfo loads the base resume and lists its include sections.
func (s *Service) ResumeInfo() (*ResumeInfo, error) {
	if s.opts.LoadDocument == nil {
		return nil, ErrNoDocument
	}
	doc, err := s.opts.LoadDocument()
	if err != nil {
		return nil, err
	}
	return &ResumeInfo{MainFile: resume.MainFile, Sections: doc.IncludeNames(), MainBytes: len(doc.Main)}, nil
}

// Providers lists the catalog with availability. A provider is available when
// it is registered or its credential is present.
func (s *Service) Providers() *ProviderCatalog {
	reg := s.coordinator.Registry()
	out := &ProviderCatalog{Providers: make(map[string]ProviderStatus)}
	for _, info := range llm.Catalog() {
		name := string(info.Name)
		model := info.DefaultModel
		if m := s.opts.Models[name]; m != "" {
			model = m
		}
		st := ProviderStatus{
			Available:          registered(reg, name) || info.Credential(s.opts.Getenv) != "",
			RequiredCredential: info.RequiredCredential(),
			Model:              model,
		}
		out.Providers[name] = st
		if st.Available {
			out.AvailableCount++
		}
	}
	// Registered capabilities outside the catalog, e.g. local test providers.
	if reg != nil {
		for _, name := range reg.Names() {
			if _, ok := out.Providers[name]; ok {
				continue
			}
			out.Providers[name] = ProviderStatus{Available: true}
			out.AvailableCount++
		}
	}
	out.TotalCount = len(out.Providers)
	return out
}

func registered(reg *provider.Registry, name string) bool {
	return reg != nil && reg.Has(name)
}
