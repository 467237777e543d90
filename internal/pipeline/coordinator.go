// Package pipeline drives runs through the reviewer, swot, refiner, judge and
// finalizer stages and publishes the finalized resume.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/llm"
	"github.com/jonathan/resume-orchestrator/internal/provider"
	"github.com/jonathan/resume-orchestrator/internal/publish"
	"github.com/jonathan/resume-orchestrator/internal/resume"
	"github.com/jonathan/resume-orchestrator/internal/store"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Review policy defaults.
const (
	DefaultMinAverageScore = 6.0
	DefaultMaxRevisions    = 1
	DefaultPipelineTimeout = 5 * time.Minute
)

// CancelledMessage is the error message recorded on cancelled runs.
const CancelledMessage = "cancelled"

// ErrRunActive is returned when a run is already being executed.
var ErrRunActive = errors.New("run is already executing")

// Publisher turns a finalized document into an artifact.
type Publisher interface {
	Publish(ctx context.Context, runID, source string) (types.ArtifactRef, error)
}

// DocumentLoader returns the current base resume.
type DocumentLoader func() (*resume.Document, error)

// Options configures a Coordinator.
type Options struct {
	// Defaults fills providers missing from a request.
	Defaults types.ProviderMap
	// MinAverageScore is the judge score floor for accepting a refinement.
	MinAverageScore float64
	// MaxRevisions bounds automatic refiner/judge rounds before needs_review.
	// Zero disables automatic revision.
	MaxRevisions int
	// PipelineTimeout bounds background executions.
	PipelineTimeout time.Duration

	Publisher    Publisher
	LoadDocument DocumentLoader
	Events       *Broadcaster
	OnProgress   ProgressCallback
	Logger       *slog.Logger
}

// ResubmitRequest reopens a run waiting for review.
type ResubmitRequest struct {
	// Approve accepts the current refinement and proceeds to the finalizer.
	Approve bool `json:"approve"`
	// Notes are passed to the refiner and judge when not approving.
	Notes string `json:"notes"`
}

// plan describes where an execution starts.
type plan struct {
	from    types.Stage
	notes   string
	resumed bool
}

// Coordinator is the run state machine. It is the only writer of run state
// while a run executes.
type Coordinator struct {
	store    store.Store
	executor *Executor
	opts     Options
	logger   *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	seq    uint64
	active map[string]uint64
}

// execution is one driver's hold on a run. The claim token guards release so
// a driver never drops a claim that a later resubmission took over.
type execution struct {
	id    string
	token uint64
	log   *slog.Logger
}

// NewCoordinator creates a coordinator over st and executor.
func NewCoordinator(st store.Store, executor *Executor, opts Options) *Coordinator {
	if opts.Defaults == nil {
		opts.Defaults = types.DefaultProviders()
	}
	if opts.MinAverageScore <= 0 {
		opts.MinAverageScore = DefaultMinAverageScore
	}
	if opts.MaxRevisions < 0 {
		opts.MaxRevisions = 0
	}
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = DefaultPipelineTimeout
	}
	if opts.Events == nil {
		opts.Events = NewBroadcaster()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    st,
		executor: executor,
		opts:     opts,
		logger:   logger,
		baseCtx:  ctx,
		stop:     cancel,
		active:   make(map[string]uint64),
	}
}

// Store returns the run store.
func (c *Coordinator) Store() store.Store { return c.store }

// Events returns the progress broadcaster.
func (c *Coordinator) Events() *Broadcaster { return c.opts.Events }

// Registry returns the provider registry used by the executor.
func (c *Coordinator) Registry() *provider.Registry { return c.executor.Registry() }

// PipelineTimeout returns the ceiling applied to background executions.
func (c *Coordinator) PipelineTimeout() time.Duration { return c.opts.PipelineTimeout }

// Create validates cfg, fills provider defaults and stores a pending run.
// Nothing is stored when validation fails.
func (c *Coordinator) Create(ctx context.Context, cfg types.RunConfig) (*types.Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Providers = cfg.Providers.WithDefaults(c.opts.Defaults)
	for _, st := range types.Stages() {
		name := cfg.Providers[st]
		if _, known := llm.Lookup(name); !known && !c.executor.Registry().Has(name) {
			return nil, &types.ValidationError{Field: "providers." + string(st), Message: fmt.Sprintf("unknown provider %q", name)}
		}
	}

	run, err := c.store.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	c.logger.Info("run created", "run_id", run.ID, "dry_run", run.DryRun)
	return run, nil
}

// Run creates a run and executes it synchronously under the pipeline timeout.
func (c *Coordinator) Run(ctx context.Context, cfg types.RunConfig) (*types.Run, error) {
	run, err := c.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.PipelineTimeout)
	defer cancel()
	return c.Execute(ctx, run.ID)
}

// Execute drives a pending run to needs_review, failed or completed and
// returns the final record. Stage failures are recorded on the run, not
// returned; the error is reserved for store and lifecycle problems.
func (c *Coordinator) Execute(ctx context.Context, id string) (*types.Run, error) {
	token, ok := c.claim(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	run, err := c.drive(ctx, c.newExecution(id, token), plan{from: types.StageReviewer})
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) && !errors.Is(err, store.ErrNotFound) {
		c.abandon(id, types.StageReviewer, err)
	}
	return run, err
}

// Submit executes a pending run in the background.
func (c *Coordinator) Submit(id string) {
	token, ok := c.claim(id)
	if !ok {
		c.logger.Warn("run already executing, submit ignored", "run_id", id)
		return
	}
	c.launch(c.newExecution(id, token), plan{from: types.StageReviewer})
}

// Resubmit reopens a needs_review run. The run is running when Resubmit
// returns and continues in the background.
func (c *Coordinator) Resubmit(ctx context.Context, id string, req ResubmitRequest) (*types.Run, error) {
	token, ok := c.claim(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	run, err := c.store.Update(ctx, id, func(r *types.Run) error {
		if r.Status != types.StatusNeedsReview {
			return fmt.Errorf("%w: run %s is %s, not %s", store.ErrInvalidTransition, r.ID, r.Status, types.StatusNeedsReview)
		}
		r.Status = types.StatusRunning
		r.CancelRequested = false
		return nil
	})
	if err != nil {
		c.release(id, token)
		return nil, err
	}
	c.emitStatus(run, "resubmitted")

	p := plan{from: types.StageRefiner, notes: req.Notes, resumed: true}
	if req.Approve {
		p = plan{from: types.StageFinalizer, resumed: true}
	}
	c.logger.Info("run resubmitted", "run_id", id, "approve", req.Approve)
	c.launch(c.newExecution(id, token), p)
	return run, nil
}

// Cancel stops a run. Pending and needs_review runs fail immediately; running
// runs are flagged and fail at the next stage boundary. In-flight stage calls
// are never interrupted.
func (c *Coordinator) Cancel(ctx context.Context, id string) (*types.Run, error) {
	run, err := c.store.Update(ctx, id, func(r *types.Run) error {
		switch r.Status {
		case types.StatusPending:
			return store.Fail(types.StageReviewer, CancelledMessage, "")(r)
		case types.StatusNeedsReview:
			return store.Fail(types.StageFinalizer, CancelledMessage, "")(r)
		default:
			return store.RequestCancel()(r)
		}
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("run cancel requested", "run_id", id, "status", run.Status)
	if run.Status == types.StatusFailed {
		c.emitStatus(run, CancelledMessage)
	}
	return run, nil
}

// Wait blocks until every background execution has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown cancels background executions and waits for them, or for ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch drives ex in the background. The caller hands over its claim.
func (c *Coordinator) launch(ex *execution, p plan) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.opts.PipelineTimeout)
		defer cancel()
		if _, err := c.drive(ctx, ex, p); err != nil {
			ex.log.Error("run execution aborted", "error", err)
			c.abandon(ex.id, p.from, err)
		}
	}()
}

// abandon fails a run left in running with no driver.
func (c *Coordinator) abandon(id string, stage types.Stage, cause error) {
	token, ok := c.claim(id)
	if !ok {
		return
	}
	defer c.release(id, token)
	run, err := c.store.Update(context.Background(), id, func(r *types.Run) error {
		if r.Status != types.StatusRunning {
			return errNotRunning
		}
		return store.Fail(stage, "execution aborted: "+cause.Error(), "")(r)
	})
	switch {
	case errors.Is(err, errNotRunning):
	case err != nil:
		c.logger.Error("failed to record aborted run", "run_id", id, "error", err)
	default:
		c.emitStatus(run, run.Error.Message)
	}
}

var errNotRunning = errors.New("run is not running")

func (c *Coordinator) newExecution(id string, token uint64) *execution {
	return &execution{id: id, token: token, log: c.logger.With("run_id", id)}
}

func (c *Coordinator) claim(id string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[id]; ok {
		return 0, false
	}
	c.seq++
	c.active[id] = c.seq
	return c.seq, true
}

// release drops the claim only while token still owns it.
func (c *Coordinator) release(id string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[id] == token {
		delete(c.active, id)
	}
}

// commit writes to the store even after ctx expired so failures are never lost.
func (c *Coordinator) commit(ctx context.Context, id string, m store.Mutator) (*types.Run, error) {
	return c.store.Update(context.WithoutCancel(ctx), id, m)
}

// drive runs the stages for a claimed run. The claim is released before the
// resting status is committed, so observers of that status may resubmit.
func (c *Coordinator) drive(ctx context.Context, ex *execution, p plan) (*types.Run, error) {
	defer c.release(ex.id, ex.token)
	id := ex.id

	run, err := c.commit(ctx, id, func(r *types.Run) error {
		switch {
		case r.Status == types.StatusPending && !p.resumed:
			r.Status = types.StatusRunning
			return nil
		case r.Status == types.StatusRunning && p.resumed:
			return nil
		}
		return fmt.Errorf("%w: cannot execute %s run %s", store.ErrInvalidTransition, r.Status, r.ID)
	})
	if err != nil {
		return nil, err
	}
	c.emitStatus(run, "")
	log := ex.log

	doc, err := c.loadDocument()
	if err != nil {
		return c.fail(ctx, ex, p.from, fmt.Sprintf("failed to load resume: %v", err), "")
	}

	revision := 0
	stage := p.from
	for {
		if run, err = c.store.Get(context.WithoutCancel(ctx), id); err != nil {
			return nil, err
		}
		if run.CancelRequested {
			return c.fail(ctx, ex, stage, CancelledMessage, "")
		}

		providerName := run.Providers[stage]
		input, err := c.stageInput(run, stage, doc, revision, p.notes)
		if err != nil {
			return c.fail(ctx, ex, stage, err.Error(), "")
		}

		c.emit(ProgressEvent{RunID: id, Type: EventStageStarted, Stage: stage, Provider: providerName, Revision: revision})
		log.Info("stage dispatched", "stage", stage, "provider", providerName, "revision", revision)
		start := time.Now()

		output, err := c.executor.Execute(ctx, stage, providerName, input)
		if err != nil {
			log.Warn("stage failed", "stage", stage, "provider", providerName, "error", err)
			c.emit(ProgressEvent{RunID: id, Type: EventStageFailed, Stage: stage, Provider: providerName, Message: err.Error()})
			return c.fail(ctx, ex, stage, err.Error(), "")
		}

		mutate := store.MergeResult(stage, output)
		if stage == types.StageRefiner {
			summary, err := diffSummary(doc, output)
			if err != nil {
				return c.fail(ctx, ex, stage, err.Error(), "")
			}
			mutate = store.Chain(mutate, store.SetDiffSummary(summary))
		}
		if run, err = c.commit(ctx, id, mutate); err != nil {
			return nil, err
		}
		log.Info("stage completed", "stage", stage, "provider", providerName, "duration", time.Since(start))
		c.emit(ProgressEvent{RunID: id, Type: EventStageCompleted, Stage: stage, Provider: providerName, Revision: revision, Content: output})

		switch stage {
		case types.StageJudge:
			var verdict types.JudgeOutput
			if err := json.Unmarshal(output, &verdict); err != nil {
				return c.fail(ctx, ex, stage, fmt.Sprintf("failed to decode judge output: %v", err), "")
			}
			if verdict.Accepted(c.opts.MinAverageScore) {
				stage = types.StageFinalizer
				continue
			}
			if revision < c.opts.MaxRevisions {
				revision++
				if run, err = c.commit(ctx, id, store.SetRevisions(run.Revisions+1)); err != nil {
					return nil, err
				}
				log.Info("judge rejected refinement, revising", "status", verdict.Status,
					"average", verdict.NumericScores.Average(), "revision", revision)
				stage = types.StageRefiner
				continue
			}
			log.Info("judge rejected refinement, awaiting review", "status", verdict.Status,
				"average", verdict.NumericScores.Average())
			return c.finish(ctx, ex, store.SetStatus(types.StatusNeedsReview))

		case types.StageFinalizer:
			return c.complete(ctx, ex, run, output)

		default:
			stage = types.Stages()[stage.Index()+1]
		}
	}
}

func (c *Coordinator) complete(ctx context.Context, ex *execution, run *types.Run, output json.RawMessage) (*types.Run, error) {
	if run.DryRun {
		return c.finish(ctx, ex, store.SetStatus(types.StatusCompleted))
	}
	if run.CancelRequested {
		return c.fail(ctx, ex, types.BoundaryPublish, CancelledMessage, "")
	}
	if c.opts.Publisher == nil {
		return c.fail(ctx, ex, types.BoundaryPublish, "no artifact publisher configured", "")
	}

	var final types.FinalizerOutput
	if err := json.Unmarshal(output, &final); err != nil {
		return c.fail(ctx, ex, types.BoundaryPublish, fmt.Sprintf("failed to decode finalizer output: %v", err), "")
	}

	ref, err := c.opts.Publisher.Publish(ctx, ex.id, final.Document)
	if err != nil {
		var ce *publish.CompilationError
		buildLog := ""
		if errors.As(err, &ce) {
			buildLog = ce.Log
		}
		return c.fail(ctx, ex, types.BoundaryPublish, err.Error(), buildLog)
	}
	return c.finish(ctx, ex, store.Chain(store.SetStatus(types.StatusCompleted), store.AppendArtifact(ref)))
}

func (c *Coordinator) finish(ctx context.Context, ex *execution, m store.Mutator) (*types.Run, error) {
	c.release(ex.id, ex.token)
	run, err := c.commit(ctx, ex.id, m)
	if err != nil {
		return nil, err
	}
	ex.log.Info("run finished", "status", run.Status)
	c.emitStatus(run, "")
	return run, nil
}

func (c *Coordinator) fail(ctx context.Context, ex *execution, stage types.Stage, message, buildLog string) (*types.Run, error) {
	c.release(ex.id, ex.token)
	run, err := c.commit(ctx, ex.id, store.Fail(stage, message, buildLog))
	if err != nil {
		return nil, err
	}
	ex.log.Warn("run failed", "stage", stage, "error", message)
	c.emitStatus(run, message)
	return run, nil
}

func (c *Coordinator) loadDocument() (*resume.Document, error) {
	if c.opts.LoadDocument == nil {
		return &resume.Document{Includes: map[string]string{}}, nil
	}
	return c.opts.LoadDocument()
}

// stageInput collects every recorded result except the stage's own. The
// finalizer additionally receives the draft with refiner diffs applied.
func (c *Coordinator) stageInput(run *types.Run, stage types.Stage, doc *resume.Document, revision int, notes string) (types.StageInput, error) {
	input := types.StageInput{
		Stage:          stage,
		JobDescription: run.JobDescription,
		Document:       doc.Render(),
		Context:        make(map[types.Stage]json.RawMessage, len(run.Results)),
		Revision:       revision,
	}
	for st, raw := range run.Results {
		if st != stage {
			input.Context[st] = raw
		}
	}
	if stage == types.StageRefiner || stage == types.StageJudge {
		input.ReviewerNotes = notes
	}
	if stage == types.StageFinalizer {
		var refined types.RefinerOutput
		if _, err := run.Result(types.StageRefiner, &refined); err != nil {
			return input, fmt.Errorf("failed to decode refiner output: %w", err)
		}
		input.Draft = resume.ApplyDiffs(doc, refined.Diffs).Document.Flatten()
	}
	return input, nil
}

func diffSummary(doc *resume.Document, output json.RawMessage) (string, error) {
	var refined types.RefinerOutput
	if err := json.Unmarshal(output, &refined); err != nil {
		return "", fmt.Errorf("failed to decode refiner output: %w", err)
	}
	return resume.ApplyDiffs(doc, refined.Diffs).Summary(), nil
}

func (c *Coordinator) emitStatus(run *types.Run, message string) {
	c.emit(ProgressEvent{RunID: run.ID, Type: EventStatus, Status: run.Status, Message: message, Revision: run.Revisions})
}

func (c *Coordinator) emit(ev ProgressEvent) {
	ev.Time = time.Now().UTC()
	c.opts.Events.Publish(ev)
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(ev)
	}
}
