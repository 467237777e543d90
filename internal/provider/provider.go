// Package provider wraps language-model backends as stage capabilities.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/resume-orchestrator/internal/llm"
	"github.com/jonathan/resume-orchestrator/internal/prompts"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Capability executes one stage: given stage input it returns the raw stage
// output. Implementations hold no per-run state.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, stage types.Stage, input types.StageInput) (json.RawMessage, error)
}

// Failure is the single error type a capability reports.
type Failure struct {
	Provider string
	Stage    types.Stage
	Message  string
	Cause    error
}

func (e *Failure) Error() string {
	msg := fmt.Sprintf("provider %s failed on %s: %s", e.Provider, e.Stage, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Failure) Unwrap() error {
	return e.Cause
}

// Func adapts a function to Capability.
type Func struct {
	ID string
	Fn func(ctx context.Context, stage types.Stage, input types.StageInput) (json.RawMessage, error)
}

// Name returns the provider identifier.
func (f Func) Name() string { return f.ID }

// Invoke calls the wrapped function.
func (f Func) Invoke(ctx context.Context, stage types.Stage, input types.StageInput) (json.RawMessage, error) {
	return f.Fn(ctx, stage, input)
}

// LLMCapability runs stages through an llm.Client.
type LLMCapability struct {
	client llm.Client
}

// NewLLMCapability wraps a client.
func NewLLMCapability(client llm.Client) *LLMCapability {
	return &LLMCapability{client: client}
}

// Name returns the backend provider name.
func (c *LLMCapability) Name() string {
	return string(c.client.Provider())
}

// Invoke renders the stage prompt and returns the model's JSON text.
func (c *LLMCapability) Invoke(ctx context.Context, stage types.Stage, input types.StageInput) (json.RawMessage, error) {
	prompt, err := BuildPrompt(stage, input)
	if err != nil {
		return nil, &Failure{Provider: c.Name(), Stage: stage, Message: "prompt unavailable", Cause: err}
	}
	text, err := c.client.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, &Failure{Provider: c.Name(), Stage: stage, Message: "completion failed", Cause: err}
	}
	return json.RawMessage(text), nil
}

// Close releases the underlying client.
func (c *LLMCapability) Close() error {
	return c.client.Close()
}

// BuildPrompt renders the system and user prompt for a stage.
func BuildPrompt(stage types.Stage, input types.StageInput) (llm.Prompt, error) {
	contextJSON := "{}"
	if len(input.Context) > 0 {
		b, err := json.MarshalIndent(input.Context, "", "  ")
		if err != nil {
			return llm.Prompt{}, fmt.Errorf("encode stage context: %w", err)
		}
		contextJSON = string(b)
	}

	var feedback strings.Builder
	if input.Revision > 0 {
		feedback.WriteString(fmt.Sprintf("\nRevision %d: the judge output in the prior stage context rejected the previous diffs. Address every reason.\n", input.Revision))
	}
	if input.ReviewerNotes != "" {
		feedback.WriteString("\nHuman reviewer notes:\n")
		feedback.WriteString(strings.TrimSpace(input.ReviewerNotes))
		feedback.WriteString("\n")
	}

	system, user, err := prompts.Render(stage, map[string]string{
		"Base":     fmt.Sprintf("Job Description:\n%s\n\n%s", strings.TrimSpace(input.JobDescription), strings.TrimSpace(input.Document)),
		"Context":  contextJSON,
		"Draft":    input.Draft,
		"Feedback": feedback.String(),
	})
	if err != nil {
		return llm.Prompt{}, err
	}
	return llm.Prompt{System: system, User: user}, nil
}

// Registry resolves provider identifiers to capabilities.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates a registry holding caps.
func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: make(map[string]Capability)}
	for _, c := range caps {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a capability under its name.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[strings.ToLower(c.Name())] = c
}

// Get returns the capability for name, or a Failure when none is configured.
func (r *Registry) Get(name string, stage types.Stage) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[strings.ToLower(name)]
	if !ok {
		return nil, &Failure{Provider: name, Stage: stage, Message: "provider not configured"}
	}
	return c, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.caps[strings.ToLower(name)]
	return ok
}

// Names returns registered provider names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.caps))
	for name := range r.caps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close closes every capability that holds resources.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.caps {
		if closer, ok := c.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}

// RegistryOptions configures NewRegistryFromEnv.
type RegistryOptions struct {
	// Models overrides the default model per provider.
	Models map[string]string
	// Getenv reads credentials; nil uses the process environment.
	Getenv func(string) string
}

// NewRegistryFromEnv registers an LLM capability for every catalog provider
// whose credential is present. Providers without credentials are skipped.
func NewRegistryFromEnv(ctx context.Context, opts RegistryOptions) (*Registry, error) {
	reg := NewRegistry()
	for _, info := range llm.Catalog() {
		key := info.Credential(opts.Getenv)
		if key == "" {
			continue
		}
		cfg := llm.DefaultConfig(info.Name).WithAPIKey(key).WithModel(opts.Models[string(info.Name)])
		client, err := llm.NewClient(ctx, cfg)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("init %s client: %w", info.Name, err)
		}
		reg.Register(NewLLMCapability(client))
	}
	return reg, nil
}
