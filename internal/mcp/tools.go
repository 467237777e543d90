package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/service"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

type toolHandler func(ctx context.Context, args json.RawMessage) (any, error)

var stageNames = func() []string {
	out := make([]string, 0, len(types.Stages()))
	for _, st := range types.Stages() {
		out = append(out, string(st))
	}
	return out
}()

var runIDSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"run_id": map[string]any{"type": "string", "description": "Run identifier"}},
	"required":   []string{"run_id"},
}

var emptySchema = map[string]any{"type": "object", "properties": map[string]any{}}

var toolDescriptors = []Tool{
	{
		Name:        "list_runs",
		Description: "List resume runs in creation order, optionally filtered by status.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{"type": "string", "enum": []any{"pending", "running", "needs_review", "failed", "completed"}},
				"limit":  map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
			},
		},
	},
	{Name: "get_run", Description: "Get the full record of one run.", InputSchema: runIDSchema},
	{
		Name:        "create_run",
		Description: "Start a resume run for a job description. The run executes in the background unless wait is true.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"job_description": map[string]any{"type": "string"},
				"dry_run":         map[string]any{"type": "boolean", "description": "Skip compiling the final PDF"},
				"providers": map[string]any{
					"type":                 "object",
					"description":          "Provider per stage: " + strings.Join(stageNames, ", "),
					"propertyNames":        map[string]any{"enum": stageNames},
					"additionalProperties": map[string]any{"type": "string"},
				},
				"wait": map[string]any{"type": "boolean", "description": "Block until the run stops"},
			},
			"required": []string{"job_description"},
		},
	},
	{Name: "check_health", Description: "Report the health of the store, compiler, resume and providers.", InputSchema: emptySchema},
	{Name: "get_available_providers", Description: "List providers and whether their credentials are configured.", InputSchema: emptySchema},
	{Name: "get_resume_info", Description: "Describe the base resume and its sections.", InputSchema: emptySchema},
	{Name: "cancel_run", Description: "Cancel a run. Running runs stop before their next stage.", InputSchema: runIDSchema},
	{
		Name:        "resubmit_run",
		Description: "Reopen a run waiting for review, approving it or sending notes back to the refiner.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"run_id":  map[string]any{"type": "string"},
				"approve": map[string]any{"type": "boolean"},
				"notes":   map[string]any{"type": "string"},
			},
			"required": []string{"run_id"},
		},
	},
}

type listRunsArgs struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
}

type runIDArgs struct {
	RunID string `json:"run_id"`
}

type createRunArgs struct {
	JobDescription string            `json:"job_description"`
	DryRun         bool              `json:"dry_run"`
	Providers      types.ProviderMap `json:"providers"`
	Wait           bool              `json:"wait"`
}

type resubmitArgs struct {
	RunID   string `json:"run_id"`
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

func (s *Server) toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		"list_runs": func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args listRunsArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			list, err := s.service.ListRuns(ctx, service.ListQuery{Status: args.Status, Limit: args.Limit})
			if err != nil {
				return nil, err
			}
			return map[string]any{"runs": list.Runs, "count": list.Count, "message": fmt.Sprintf("Found %d runs", list.Count)}, nil
		},
		"get_run": func(ctx context.Context, raw json.RawMessage) (any, error) {
			id, err := runID(raw)
			if err != nil {
				return nil, err
			}
			run, err := s.service.GetRun(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"run": run}, nil
		},
		"create_run": func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args createRunArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			cfg := types.RunConfig{JobDescription: args.JobDescription, DryRun: args.DryRun, Providers: args.Providers}
			var (
				run *types.Run
				err error
			)
			if args.Wait {
				run, err = s.service.RunSync(ctx, cfg)
			} else {
				run, err = s.service.CreateRun(ctx, cfg)
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": run.ID, "run": run, "message": "Created run " + run.ID}, nil
		},
		"check_health": func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.service.Health(ctx), nil
		},
		"get_available_providers": func(context.Context, json.RawMessage) (any, error) {
			return s.service.Providers(), nil
		},
		"get_resume_info": func(context.Context, json.RawMessage) (any, error) {
			return s.service.ResumeInfo()
		},
		"cancel_run": func(ctx context.Context, raw json.RawMessage) (any, error) {
			id, err := runID(raw)
			if err != nil {
				return nil, err
			}
			run, err := s.service.CancelRun(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"run": run}, nil
		},
		"resubmit_run": func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args resubmitArgs
			if err := decodeArgs(raw, &args); err != nil {
				return nil, err
			}
			if args.RunID == "" {
				return nil, &types.ValidationError{Field: "run_id", Message: "required"}
			}
			run, err := s.service.ResubmitRun(ctx, args.RunID, pipeline.ResubmitRequest{Approve: args.Approve, Notes: args.Notes})
			if err != nil {
				return nil, err
			}
			return map[string]any{"run": run}, nil
		},
	}
}

// decodeArgs rejects unknown argument names.
func decodeArgs(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &types.ValidationError{Field: "arguments", Message: err.Error(), Cause: err}
	}
	return nil
}

func runID(raw json.RawMessage) (string, error) {
	var args runIDArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.RunID) == "" {
		return "", &types.ValidationError{Field: "run_id", Message: "required"}
	}
	return args.RunID, nil
}
