package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/llm"
	"github.com/jonathan/resume-orchestrator/internal/provider"
	"github.com/jonathan/resume-orchestrator/internal/schemas"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Executor defaults.
const (
	DefaultStageTimeout = 60 * time.Second
	DefaultMaxAttempts  = 1
	DefaultBackoff      = 500 * time.Millisecond
)

// ExecutorOptions configures stage execution.
type ExecutorOptions struct {
	// StageTimeout bounds each attempt. The caller's deadline always wins.
	StageTimeout time.Duration
	// MaxAttempts is the number of provider calls per stage.
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles afterwards.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Executor runs a single stage against a provider and normalises the output.
// It never touches run state.
type Executor struct {
	registry *provider.Registry
	opts     ExecutorOptions
	logger   *slog.Logger
}

// NewExecutor creates an executor resolving providers from registry.
func NewExecutor(registry *provider.Registry, opts ExecutorOptions) *Executor {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = DefaultStageTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, opts: opts, logger: logger}
}

// Registry returns the provider registry.
func (e *Executor) Registry() *provider.Registry {
	return e.registry
}

// Execute invokes stage on providerName and returns schema-valid compact JSON.
// Every error is a *provider.Failure. Only call failures are retried;
// malformed output is returned immediately.
func (e *Executor) Execute(ctx context.Context, stage types.Stage, providerName string, input types.StageInput) (json.RawMessage, error) {
	capability, err := e.registry.Get(providerName, stage)
	if err != nil {
		return nil, err
	}
	input.Stage = stage

	var raw json.RawMessage
	for attempt := 1; ; attempt++ {
		raw, err = e.invoke(ctx, capability, stage, input)
		if err == nil {
			break
		}
		if attempt >= e.opts.MaxAttempts || ctx.Err() != nil {
			return nil, asFailure(providerName, stage, err)
		}
		delay := e.opts.Backoff << (attempt - 1)
		e.logger.Warn("stage attempt failed, retrying",
			"stage", stage, "provider", providerName, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, asFailure(providerName, stage, ctx.Err())
		case <-time.After(delay):
		}
	}

	return normalize(providerName, stage, raw)
}

func (e *Executor) invoke(ctx context.Context, c provider.Capability, stage types.Stage, input types.StageInput) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
	defer cancel()
	return c.Invoke(callCtx, stage, input)
}

// normalize strips fences and prose around the JSON, validates it against the
// stage schema and compacts it.
func normalize(providerName string, stage types.Stage, raw json.RawMessage) (json.RawMessage, error) {
	cleaned := []byte(llm.CleanJSONBlock(string(raw)))
	if !json.Valid(cleaned) {
		return nil, &provider.Failure{Provider: providerName, Stage: stage, Message: "malformed response: not valid JSON"}
	}
	if err := schemas.ValidateStageOutput(stage, cleaned); err != nil {
		return nil, &provider.Failure{Provider: providerName, Stage: stage, Message: "malformed response: schema mismatch", Cause: err}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, cleaned); err != nil {
		return nil, &provider.Failure{Provider: providerName, Stage: stage, Message: "malformed response", Cause: err}
	}
	return buf.Bytes(), nil
}

func asFailure(providerName string, stage types.Stage, err error) error {
	var f *provider.Failure
	if errors.As(err, &f) {
		return err
	}
	return &provider.Failure{Provider: providerName, Stage: stage, Message: "call failed", Cause: err}
}
