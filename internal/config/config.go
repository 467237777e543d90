// Package config provides configuration loading and validation for the
// orchestrator service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Defaults.
const (
	DefaultPort            = 8080
	DefaultDataDir         = "data/runs"
	DefaultResumeDir       = "resume"
	DefaultCompiler        = "pdflatex"
	DefaultStageTimeout    = 60 * time.Second
	DefaultPipelineTimeout = 5 * time.Minute
	DefaultMaxAttempts     = 1
	DefaultMinAverageScore = 6.0
	DefaultMaxRevisions    = 1
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultJWTExpiration   = 24
)

// Duration is a time.Duration written as a Go duration string ("90s") or as
// integer seconds in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1m30s" or 90.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalYAML accepts "1m30s" or 90.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if secs, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Review holds the judge acceptance policy.
type Review struct {
	MinAverageScore float64 `json:"min_average_score,omitempty" yaml:"min_average_score,omitempty"`
	MaxRevisions    *int    `json:"max_revisions,omitempty" yaml:"max_revisions,omitempty"`
}

// Config represents the service configuration that can be loaded from a JSON
// or YAML file. All fields are optional; missing values use defaults.
type Config struct {
	Port          int    `json:"port,omitempty" yaml:"port,omitempty"`
	DatabaseURL   string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL; empty uses the in-memory store
	DataDir       string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`         // Artifact output root
	ResumeDir     string `json:"resume_dir,omitempty" yaml:"resume_dir,omitempty"`     // Directory holding cv.tex and includes/
	PublicBaseURL string `json:"public_base_url,omitempty" yaml:"public_base_url,omitempty"`

	Compiler    string `json:"compiler,omitempty" yaml:"compiler,omitempty"` // pdflatex, latexmk or remote
	CompilerURL string `json:"compiler_url,omitempty" yaml:"compiler_url,omitempty"`

	DefaultProviders types.ProviderMap `json:"default_providers,omitempty" yaml:"default_providers,omitempty"`
	ProviderModels   map[string]string `json:"provider_models,omitempty" yaml:"provider_models,omitempty"`

	StageTimeout    Duration `json:"stage_timeout,omitempty" yaml:"stage_timeout,omitempty"`
	PipelineTimeout Duration `json:"pipeline_timeout,omitempty" yaml:"pipeline_timeout,omitempty"`
	MaxAttempts     int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Review          Review   `json:"review,omitempty" yaml:"review,omitempty"`

	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"`

	JWTSecret          string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	JWTExpirationHours int    `json:"jwt_expiration_hours,omitempty" yaml:"jwt_expiration_hours,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	revisions := DefaultMaxRevisions
	return Config{
		Port:               DefaultPort,
		DataDir:            DefaultDataDir,
		ResumeDir:          DefaultResumeDir,
		Compiler:           DefaultCompiler,
		DefaultProviders:   types.DefaultProviders(),
		StageTimeout:       Duration(DefaultStageTimeout),
		PipelineTimeout:    Duration(DefaultPipelineTimeout),
		MaxAttempts:        DefaultMaxAttempts,
		Review:             Review{MinAverageScore: DefaultMinAverageScore, MaxRevisions: &revisions},
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		JWTExpirationHours: DefaultJWTExpiration,
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	switch c.Compiler {
	case "", "pdflatex", "latexmk":
	case "remote":
		if c.CompilerURL == "" {
			return fmt.Errorf("config error: 'compiler_url' is required when compiler is remote")
		}
	default:
		return fmt.Errorf("config error: unknown compiler %q", c.Compiler)
	}
	for st := range c.DefaultProviders {
		if !st.Valid() {
			return fmt.Errorf("config error: 'default_providers' has unknown stage %q", st)
		}
	}
	if c.StageTimeout < 0 || c.PipelineTimeout < 0 {
		return fmt.Errorf("config error: timeouts must be non-negative")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("config error: 'max_attempts' must be non-negative")
	}
	if s := c.Review.MinAverageScore; s < 0 || s > 10 {
		return fmt.Errorf("config error: 'review.min_average_score' must be between 0 and 10")
	}
	if c.Review.MaxRevisions != nil && *c.Review.MaxRevisions < 0 {
		return fmt.Errorf("config error: 'review.max_revisions' must be non-negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config error: unknown log level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config error: unknown log format %q", c.LogFormat)
	}
	if c.JWTExpirationHours < 0 {
		return fmt.Errorf("config error: 'jwt_expiration_hours' must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.DataDir == "" {
		result.DataDir = defaults.DataDir
	}
	if result.ResumeDir == "" {
		result.ResumeDir = defaults.ResumeDir
	}
	if result.PublicBaseURL == "" {
		result.PublicBaseURL = defaults.PublicBaseURL
	}
	if result.Compiler == "" {
		result.Compiler = defaults.Compiler
	}
	if result.CompilerURL == "" {
		result.CompilerURL = defaults.CompilerURL
	}
	result.DefaultProviders = result.DefaultProviders.WithDefaults(defaults.DefaultProviders)
	if result.ProviderModels == nil {
		result.ProviderModels = defaults.ProviderModels
	}
	if result.StageTimeout == 0 {
		result.StageTimeout = defaults.StageTimeout
	}
	if result.PipelineTimeout == 0 {
		result.PipelineTimeout = defaults.PipelineTimeout
	}
	if result.MaxAttempts == 0 {
		result.MaxAttempts = defaults.MaxAttempts
	}
	if result.Review.MinAverageScore == 0 {
		result.Review.MinAverageScore = defaults.Review.MinAverageScore
	}
	if result.Review.MaxRevisions == nil {
		result.Review.MaxRevisions = defaults.Review.MaxRevisions
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}
	if result.JWTSecret == "" {
		result.JWTSecret = defaults.JWTSecret
	}
	if result.JWTExpirationHours == 0 {
		result.JWTExpirationHours = defaults.JWTExpirationHours
	}
	return result
}

// ApplyEnv overrides fields from environment variables. A nil getenv reads
// the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = port
	}
	if v := getenv("JWT_EXPIRATION_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %w", err)
		}
		c.JWTExpirationHours = hours
	}
	for env, field := range map[string]*string{
		"DATABASE_URL":              &c.DatabaseURL,
		"ORCHESTRATOR_DATA_DIR":     &c.DataDir,
		"ORCHESTRATOR_RESUME_DIR":   &c.ResumeDir,
		"ORCHESTRATOR_COMPILER":     &c.Compiler,
		"ORCHESTRATOR_COMPILER_URL": &c.CompilerURL,
		"ORCHESTRATOR_LOG_LEVEL":    &c.LogLevel,
		"ORCHESTRATOR_LOG_FORMAT":   &c.LogFormat,
		"ORCHESTRATOR_PUBLIC_URL":   &c.PublicBaseURL,
		"JWT_SECRET":                &c.JWTSecret,
	} {
		if v := getenv(env); v != "" {
			*field = v
		}
	}
	return nil
}

// Load reads path (when non-empty), applies environment overrides, fills
// defaults and validates the result.
func Load(path string, getenv func(string) string) (Config, error) {
	var cfg Config
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = *loaded
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return Config{}, err
	}
	cfg = cfg.MergeWithDefaults(Default())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MaxRevisions returns the configured automatic revision budget.
func (c *Config) MaxRevisions() int {
	if c.Review.MaxRevisions == nil {
		return DefaultMaxRevisions
	}
	return *c.Review.MaxRevisions
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
