package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/llm"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

type fakeClient struct {
	provider llm.Provider
	response string
	err      error
	prompts  []llm.Prompt
	closed   bool
}

func (f *fakeClient) GenerateJSON(_ context.Context, p llm.Prompt) (string, error) {
	f.prompts = append(f.prompts, p)
	return f.response, f.err
}
func (f *fakeClient) Provider() llm.Provider { return f.provider }
func (f *fakeClient) Model() string          { return "fake-model" }
func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func sampleInput() types.StageInput {
	return types.StageInput{
		Stage:          types.StageJudge,
		JobDescription: "Senior Go engineer for payments platform",
		Document:       "Main Resume (cv.tex):\n\\documentclass{article}",
		Context: map[types.Stage]json.RawMessage{
			types.StageReviewer: json.RawMessage(`{"ats_keywords":["go"]}`),
		},
	}
}

func TestLLMCapability_Invoke(t *testing.T) {
	client := &fakeClient{provider: llm.ProviderClaude, response: `{"status":"PASS"}`}
	capability := NewLLMCapability(client)

	out, err := capability.Invoke(context.Background(), types.StageJudge, sampleInput())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"PASS"}`, string(out))
	assert.Equal(t, "claude", capability.Name())

	require.Len(t, client.prompts, 1)
	p := client.prompts[0]
	assert.Contains(t, p.System, "Follow the schema strictly")
	assert.Contains(t, p.User, "Senior Go engineer")
	assert.Contains(t, p.User, "ats_keywords")
	assert.Contains(t, p.User, "\\documentclass{article}")
}

func TestLLMCapability_InvokeFailure(t *testing.T) {
	cause := errors.New("connection reset")
	capability := NewLLMCapability(&fakeClient{provider: llm.ProviderGroq, err: cause})

	_, err := capability.Invoke(context.Background(), types.StageSwot, sampleInput())
	require.Error(t, err)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "groq", failure.Provider)
	assert.Equal(t, types.StageSwot, failure.Stage)
	assert.ErrorIs(t, err, cause)
}

func TestBuildPrompt_RevisionFeedback(t *testing.T) {
	input := sampleInput()
	input.Revision = 2
	input.ReviewerNotes = "Keep the publications section."

	p, err := BuildPrompt(types.StageRefiner, input)
	require.NoError(t, err)
	assert.Contains(t, p.User, "Revision 2")
	assert.Contains(t, p.User, "Keep the publications section.")
}

func TestBuildPrompt_FinalizerDraft(t *testing.T) {
	input := sampleInput()
	input.Draft = "% [agent:finalizer]\n\\item New bullet"

	p, err := BuildPrompt(types.StageFinalizer, input)
	require.NoError(t, err)
	assert.Contains(t, p.User, "\\item New bullet")
	assert.NotContains(t, p.User, "{{.")
}

func TestBuildPrompt_UnknownStage(t *testing.T) {
	_, err := BuildPrompt(types.BoundaryPublish, sampleInput())
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	claude := &fakeClient{provider: llm.ProviderClaude}
	reg := NewRegistry(NewLLMCapability(claude), Func{ID: "Echo"})

	assert.Equal(t, []string{"claude", "echo"}, reg.Names())
	assert.True(t, reg.Has("ECHO"))

	c, err := reg.Get("claude", types.StageReviewer)
	require.NoError(t, err)
	assert.Equal(t, "claude", c.Name())

	_, err = reg.Get("gemini", types.StageSwot)
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "provider not configured", failure.Message)
	assert.Equal(t, types.StageSwot, failure.Stage)

	reg.Close()
	assert.True(t, claude.closed)
}

func TestNewRegistryFromEnv(t *testing.T) {
	env := map[string]string{
		"ANTHROPIC_API_KEY": "a-key",
		"GROQ_API_KEY":      "g-key",
	}
	reg, err := NewRegistryFromEnv(context.Background(), RegistryOptions{
		Models: map[string]string{"groq": "llama-test"},
		Getenv: func(k string) string { return env[k] },
	})
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, []string{"claude", "groq"}, reg.Names())
	assert.False(t, reg.Has("gemini"))
}

func TestFunc(t *testing.T) {
	f := Func{ID: "static", Fn: func(_ context.Context, stage types.Stage, _ types.StageInput) (json.RawMessage, error) {
		return json.RawMessage(`{"stage":"` + string(stage) + `"}`), nil
	}}
	out, err := f.Invoke(context.Background(), types.StageSwot, types.StageInput{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"swot"}`, string(out))
}
