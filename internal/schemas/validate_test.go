package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

func TestStageSchema_AllStagesPresent(t *testing.T) {
	for _, stage := range types.Stages() {
		t.Run(string(stage), func(t *testing.T) {
			data, err := StageSchema(stage)
			require.NoError(t, err)

			var v map[string]any
			require.NoError(t, json.Unmarshal(data, &v), "schema should be valid JSON")
			assert.Equal(t, "object", v["type"])

			// Compiles as a JSON Schema.
			_, err = stageSchema(stage)
			assert.NoError(t, err)
		})
	}
}

func TestStageSchema_UnknownStage(t *testing.T) {
	_, err := StageSchema(types.BoundaryPublish)
	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
}

func TestValidateStageOutput(t *testing.T) {
	tests := []struct {
		name    string
		stage   types.Stage
		output  string
		wantErr bool
	}{
		{
			name:  "reviewer valid",
			stage: types.StageReviewer,
			output: `{"ats_keywords":["go","kubernetes"],"coverage":{"must_have_pct":80,"nice_to_have_pct":40},
				"section_issues":[{"section":"experience","issue":"vague","evidence":"worked on stuff"}],
				"bullet_suggestions":[]}`,
		},
		{
			name:    "reviewer coverage out of range",
			stage:   types.StageReviewer,
			output:  `{"ats_keywords":[],"coverage":{"must_have_pct":180,"nice_to_have_pct":40},"section_issues":[],"bullet_suggestions":[]}`,
			wantErr: true,
		},
		{
			name:  "swot valid",
			stage: types.StageSwot,
			output: `{"strengths":["a"],"weaknesses":[],"opportunities":[],"threats":[],
				"positioning_statement":"Backend engineer focused on reliability"}`,
		},
		{
			name:    "swot missing positioning",
			stage:   types.StageSwot,
			output:  `{"strengths":[],"weaknesses":[],"opportunities":[],"threats":[]}`,
			wantErr: true,
		},
		{
			name:  "refiner valid",
			stage: types.StageRefiner,
			output: `{"diffs":[{"target_file":"includes/experience.tex","patch_type":"replace","anchor":"line:3",
				"content":"\\item Led migration","rationale":"impact"}]}`,
		},
		{
			name:    "refiner bad patch type",
			stage:   types.StageRefiner,
			output:  `{"diffs":[{"target_file":"cv.tex","patch_type":"rewrite","anchor":"line:1","content":"x","rationale":"y"}]}`,
			wantErr: true,
		},
		{
			name:  "judge valid",
			stage: types.StageJudge,
			output: `{"status":"PASS","reasons":["clear"],"numeric_scores":{"clarity":8,"brevity":7,"impact":8,"ats_fit":9},
				"flagged":[]}`,
		},
		{
			name:    "judge score above ten",
			stage:   types.StageJudge,
			output:  `{"status":"PASS","reasons":[],"numeric_scores":{"clarity":11,"brevity":7,"impact":8,"ats_fit":9},"flagged":[]}`,
			wantErr: true,
		},
		{
			name:    "judge unknown verdict",
			stage:   types.StageJudge,
			output:  `{"status":"MAYBE","reasons":[],"numeric_scores":{"clarity":1,"brevity":1,"impact":1,"ats_fit":1},"flagged":[]}`,
			wantErr: true,
		},
		{
			name:   "finalizer valid",
			stage:  types.StageFinalizer,
			output: `{"document":"\\documentclass{article}","applied":3,"skipped":1,"notes":[]}`,
		},
		{
			name:    "finalizer negative applied",
			stage:   types.StageFinalizer,
			output:  `{"document":"x","applied":-1,"skipped":0}`,
			wantErr: true,
		},
		{
			name:    "not json",
			stage:   types.StageSwot,
			output:  `Sure! Here is the analysis`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStageOutput(tt.stage, []byte(tt.output))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.stage, ve.Stage)
			assert.NotEmpty(t, ve.Errors)
			assert.Contains(t, err.Error(), string(tt.stage))
		})
	}
}

func TestValidateJSONString_Valid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	jsonContent := `{"name": "test"}`

	err := ValidateJSONString(schemaContent, jsonContent)
	assert.NoError(t, err)
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["person"],
		"properties": {
			"person": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"}
				}
			}
		}
	}`

	err := ValidateJSONString(schemaContent, `{"person": {}}`)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	require.NotEmpty(t, validationErr.Errors)
	assert.Equal(t, "person", validationErr.Errors[0].Field)
}

func TestValidateJSONString_BadSchema(t *testing.T) {
	err := ValidateJSONString(`{"type": 12}`, `{}`)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "name")
	assert.Contains(t, errorMsg, "age")
}
