// Package llm provides language-model backends behind a single client abstraction.
// Each backend turns a system/user prompt pair into a JSON text response.
package llm

import (
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

// Supported providers.
const (
	// ProviderGroq is the Groq OpenAI-compatible chat API
	ProviderGroq Provider = "groq"
	// ProviderClaude is the Anthropic Messages API
	ProviderClaude Provider = "claude"
	// ProviderGemini is the Google Gemini API
	ProviderGemini Provider = "gemini"
)

// Generation defaults shared by every backend.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 2048
	DefaultHTTPTimeout = 60 * time.Second
)

// ProviderInfo describes a provider in the catalog.
type ProviderInfo struct {
	Name Provider
	// CredentialEnv lists environment variables holding the API key, in lookup order.
	CredentialEnv []string
	DefaultModel  string
}

var catalog = map[Provider]ProviderInfo{
	ProviderGroq: {
		Name:          ProviderGroq,
		CredentialEnv: []string{"GROQ_API_KEY"},
		DefaultModel:  "llama-3.3-70b-versatile",
	},
	ProviderClaude: {
		Name:          ProviderClaude,
		CredentialEnv: []string{"ANTHROPIC_API_KEY"},
		DefaultModel:  "claude-3-5-sonnet-latest",
	},
	ProviderGemini: {
		Name:          ProviderGemini,
		CredentialEnv: []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"},
		DefaultModel:  "gemini-2.5-flash",
	},
}

// Catalog returns every known provider sorted by name.
func Catalog() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(catalog))
	for _, info := range catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the catalog entry for a provider name.
func Lookup(name string) (ProviderInfo, bool) {
	info, ok := catalog[Provider(strings.ToLower(strings.TrimSpace(name)))]
	return info, ok
}

// Credential returns the first non-empty credential found through getenv.
// A nil getenv reads the process environment.
func (p ProviderInfo) Credential(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range p.CredentialEnv {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// RequiredCredential is the primary credential variable name.
func (p ProviderInfo) RequiredCredential() string {
	if len(p.CredentialEnv) == 0 {
		return ""
	}
	return p.CredentialEnv[0]
}

// Config holds the settings for one backend client.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// DefaultConfig returns the configuration for a provider with catalog defaults.
func DefaultConfig(provider Provider) *Config {
	cfg := &Config{
		Provider:    provider,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if info, ok := catalog[provider]; ok {
		cfg.Model = info.DefaultModel
	}
	return cfg
}

// WithModel returns a copy of the config using model. An empty model keeps the current one.
func (c *Config) WithModel(model string) *Config {
	next := *c
	if model != "" {
		next.Model = model
	}
	return &next
}

// WithAPIKey returns a copy of the config using key.
func (c *Config) WithAPIKey(key string) *Config {
	next := *c
	next.APIKey = key
	return &next
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}
