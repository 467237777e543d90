package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Prompt is the system and user text sent to a model.
type Prompt struct {
	System string
	User   string
}

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateJSON returns the model's response text, expected to hold a JSON object
	GenerateJSON(ctx context.Context, prompt Prompt) (string, error)
	// Provider identifies the backend
	Provider() Provider
	// Model returns the model name in use
	Model() string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a client for the configured provider.
func NewClient(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("llm config is required")
	}
	if config.APIKey == "" {
		info := catalog[config.Provider]
		return nil, &APIError{
			Provider: config.Provider,
			Message:  fmt.Sprintf("missing credential %s", info.RequiredCredential()),
		}
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config)
	case ProviderClaude:
		return NewClaudeClient(config), nil
	case ProviderGroq:
		return NewGroqClient(config), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateJSON asks Gemini for a JSON response
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt Prompt) (string, error) {
	if c.config.Model == "" {
		return "", fmt.Errorf("no model configured for gemini")
	}

	model := c.client.GenerativeModel(c.config.Model)
	model.SetTemperature(c.config.Temperature)
	if c.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.config.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", &APIError{Provider: ProviderGemini, Message: "generate content failed", Cause: err}
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", &APIError{Provider: ProviderGemini, Message: err.Error()}
	}
	return CleanJSONBlock(text), nil
}

// Provider returns ProviderGemini
func (c *GeminiClient) Provider() Provider { return ProviderGemini }

// Model returns the configured model name
func (c *GeminiClient) Model() string { return c.config.Model }

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
