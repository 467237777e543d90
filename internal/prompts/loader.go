// Package prompts provides the stage prompt templates.
// Templates are stored as JSON and embedded at compile time.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

//go:embed stages.json
var stagesFile []byte

// Template is the system and user prompt pair for one stage.
type Template struct {
	System string `json:"system"`
	User   string `json:"user"`
}

var (
	loadOnce  sync.Once
	templates map[types.Stage]Template
	loadErr   error
)

func load() (map[types.Stage]Template, error) {
	loadOnce.Do(func() {
		var parsed map[types.Stage]Template
		if err := json.Unmarshal(stagesFile, &parsed); err != nil {
			loadErr = fmt.Errorf("failed to parse stage prompts: %w", err)
			return
		}
		templates = parsed
	})
	return templates, loadErr
}

// ForStage returns the template for a stage.
func ForStage(stage types.Stage) (Template, error) {
	all, err := load()
	if err != nil {
		return Template{}, err
	}
	tmpl, ok := all[stage]
	if !ok {
		return Template{}, fmt.Errorf("prompt for stage %q not found", stage)
	}
	return tmpl, nil
}

// MustForStage returns the template for a stage, panicking if it is missing.
func MustForStage(stage types.Stage) Template {
	tmpl, err := ForStage(stage)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return tmpl
}

// Stages lists the stages that have templates, sorted by name.
func Stages() ([]types.Stage, error) {
	all, err := load()
	if err != nil {
		return nil, err
	}
	out := make([]types.Stage, 0, len(all))
	for st := range all {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Format replaces template placeholders in the form {{.Key}} with values from data.
// Unknown placeholders are removed.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}
	for {
		start := strings.Index(result, "{{.")
		if start < 0 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end < 0 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

// Render fills a stage template and appends the schema reminder to the system prompt.
func Render(stage types.Stage, data map[string]string) (system, user string, err error) {
	tmpl, err := ForStage(stage)
	if err != nil {
		return "", "", err
	}
	system = strings.TrimSpace(Format(tmpl.System, data)) + "\n\nFollow the schema strictly. Respond with JSON only."
	user = strings.TrimSpace(Format(tmpl.User, data))
	return system, user, nil
}
