package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeClient implements Client for the Anthropic Messages API.
type ClaudeClient struct {
	client anthropic.Client
	config *Config
}

// NewClaudeClient creates a Claude client. Retries are left to the stage
// executor, so the SDK's own retry loop is disabled.
func NewClaudeClient(config *Config) *ClaudeClient {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(config.APIKey),
		anthropicoption.WithHTTPClient(config.httpClient()),
		anthropicoption.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(config.BaseURL))
	}
	return &ClaudeClient{client: anthropic.NewClient(opts...), config: config}
}

// GenerateJSON sends one message and returns the concatenated text blocks.
func (c *ClaudeClient) GenerateJSON(ctx context.Context, prompt Prompt) (string, error) {
	maxTokens := c.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(c.config.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var sdkErr *anthropic.Error
		if errors.As(err, &sdkErr) {
			return "", &APIError{
				Provider:   ProviderClaude,
				StatusCode: sdkErr.StatusCode,
				Message:    "request rejected",
				Body:       truncate(strings.TrimSpace(sdkErr.RawJSON()), 2048),
				Cause:      err,
			}
		}
		return "", &APIError{Provider: ProviderClaude, Message: "request failed", Cause: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &APIError{Provider: ProviderClaude, Message: "response missing content"}
	}
	return CleanJSONBlock(text), nil
}

// Provider returns ProviderClaude.
func (c *ClaudeClient) Provider() Provider { return ProviderClaude }

// Model returns the configured model name.
func (c *ClaudeClient) Model() string { return c.config.Model }

// Close is a no-op.
func (c *ClaudeClient) Close() error { return nil }
