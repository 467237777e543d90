package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient implements Client for Groq's OpenAI-compatible chat completions API.
type GroqClient struct {
	client *openai.Client
	config *Config
}

// NewGroqClient creates a Groq client.
func NewGroqClient(config *Config) *GroqClient {
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = groqBaseURL
	if config.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(config.BaseURL, "/") + "/v1"
	}
	cfg.HTTPClient = config.httpClient()
	return &GroqClient{client: openai.NewClientWithConfig(cfg), config: config}
}

// GenerateJSON requests a JSON-object completion.
func (c *GroqClient) GenerateJSON(ctx context.Context, prompt Prompt) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    msgs,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", groqError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &APIError{Provider: ProviderGroq, Message: "response missing content"}
	}
	return CleanJSONBlock(resp.Choices[0].Message.Content), nil
}

// groqError maps SDK errors onto APIError, keeping the status code.
func groqError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: ProviderGroq, StatusCode: apiErr.HTTPStatusCode, Message: "request rejected", Body: truncate(apiErr.Message, 2048), Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: ProviderGroq, StatusCode: reqErr.HTTPStatusCode, Message: "request rejected", Body: truncate(strings.TrimSpace(string(reqErr.Body)), 2048), Cause: err}
	}
	return &APIError{Provider: ProviderGroq, Message: "request failed", Cause: err}
}

// Provider returns ProviderGroq.
func (c *GroqClient) Provider() Provider { return ProviderGroq }

// Model returns the configured model name.
func (c *GroqClient) Model() string { return c.config.Model }

// Close is a no-op.
func (c *GroqClient) Close() error { return nil }
