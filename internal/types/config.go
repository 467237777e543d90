//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultProvider is the provider assigned to any stage left unmapped.
const DefaultProvider = "claude"

// ProviderMap assigns a provider identifier to each pipeline stage.
type ProviderMap map[Stage]string

// DefaultProviders returns a complete map assigning DefaultProvider to every stage.
func DefaultProviders() ProviderMap {
	m := make(ProviderMap, len(Stages()))
	for _, st := range Stages() {
		m[st] = DefaultProvider
	}
	return m
}

// Clone returns an independent copy of the map.
func (m ProviderMap) Clone() ProviderMap {
	if m == nil {
		return nil
	}
	out := make(ProviderMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithDefaults returns a complete map: entries in m win, gaps are filled from
// defaults, and anything still missing falls back to DefaultProvider.
// Provider names are lower-cased and trimmed.
func (m ProviderMap) WithDefaults(defaults ProviderMap) ProviderMap {
	out := make(ProviderMap, len(Stages()))
	for _, st := range Stages() {
		name := strings.ToLower(strings.TrimSpace(m[st]))
		if name == "" {
			name = strings.ToLower(strings.TrimSpace(defaults[st]))
		}
		if name == "" {
			name = DefaultProvider
		}
		out[st] = name
	}
	return out
}

// Complete reports whether every canonical stage has a non-empty provider and
// no unknown stage keys are present.
func (m ProviderMap) Complete() bool {
	if len(m) != len(Stages()) {
		return false
	}
	for _, st := range Stages() {
		if m[st] == "" {
			return false
		}
	}
	return true
}

// RunConfig is the validated request that creates a Run.
type RunConfig struct {
	JobDescription string      `json:"jobDescription" validate:"required,min=10,max=100000"`
	DryRun         bool        `json:"dryRun"`
	Providers      ProviderMap `json:"providers,omitempty"`
}

// ValidationError is returned when a request is rejected before any Run exists.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
	}
	return "validation error: " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

var validate = validator.New()

// Validate checks required fields and that every provider key names a canonical stage.
// Provider values are not checked against a catalog here.
func (c *RunConfig) Validate() error {
	c.JobDescription = strings.TrimSpace(c.JobDescription)
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Message: fe.Tag(), Cause: err}
		}
		return &ValidationError{Message: "invalid request", Cause: err}
	}
	for st := range c.Providers {
		if !st.Valid() {
			return &ValidationError{Field: "providers", Message: fmt.Sprintf("unknown stage %q", st)}
		}
	}
	return nil
}

// StageInput is the payload handed to a provider for one stage.
// Context holds every previously completed stage output.
type StageInput struct {
	Stage          Stage                     `json:"stage"`
	JobDescription string                    `json:"jobDescription"`
	Document       string                    `json:"document"`
	Draft          string                    `json:"draft,omitempty"`
	Context        map[Stage]json.RawMessage `json:"context"`
	Revision       int                       `json:"revision"`
	ReviewerNotes  string                    `json:"reviewerNotes,omitempty"`
}
