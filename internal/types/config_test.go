//nolint:revive // types is a standard Go package name pattern
package types

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderMap_WithDefaults(t *testing.T) {
	defaults := ProviderMap{StageJudge: "gemini"}

	got := ProviderMap{StageReviewer: " Groq "}.WithDefaults(defaults)

	assert.True(t, got.Complete())
	assert.Equal(t, "groq", got[StageReviewer])
	assert.Equal(t, "gemini", got[StageJudge])
	assert.Equal(t, DefaultProvider, got[StageFinalizer])
}

func TestProviderMap_WithDefaults_NilInput(t *testing.T) {
	var m ProviderMap
	got := m.WithDefaults(nil)
	assert.Equal(t, DefaultProviders(), got)
}

func TestProviderMap_Complete(t *testing.T) {
	assert.True(t, DefaultProviders().Complete())
	assert.False(t, ProviderMap{StageReviewer: "claude"}.Complete())

	extra := DefaultProviders()
	extra["publish"] = "claude"
	assert.False(t, extra.Complete())
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    RunConfig
		wantErr   bool
		wantField string
	}{
		{
			name:   "valid",
			config: RunConfig{JobDescription: "Backend engineer with Go experience"},
		},
		{
			name:      "missing job description",
			config:    RunConfig{},
			wantErr:   true,
			wantField: "JobDescription",
		},
		{
			name:      "whitespace only",
			config:    RunConfig{JobDescription: "     \n\t  "},
			wantErr:   true,
			wantField: "JobDescription",
		},
		{
			name:      "too short",
			config:    RunConfig{JobDescription: "Go dev"},
			wantErr:   true,
			wantField: "JobDescription",
		},
		{
			name:      "too long",
			config:    RunConfig{JobDescription: strings.Repeat("a", 100001)},
			wantErr:   true,
			wantField: "JobDescription",
		},
		{
			name: "unknown stage key",
			config: RunConfig{
				JobDescription: "Backend engineer with Go experience",
				Providers:      ProviderMap{"writer": "claude"},
			},
			wantErr:   true,
			wantField: "providers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Contains(t, err.Error(), "validation error")
		})
	}
}

func TestJudgeOutput_Accepted(t *testing.T) {
	scores := NumericScores{Clarity: 8, Brevity: 6, Impact: 7, ATSFit: 7}
	assert.InDelta(t, 7.0, scores.Average(), 0.001)

	assert.True(t, JudgeOutput{Status: VerdictPass, NumericScores: scores}.Accepted(6))
	assert.False(t, JudgeOutput{Status: VerdictPass, NumericScores: scores}.Accepted(7.5))
	assert.False(t, JudgeOutput{Status: VerdictRevise, NumericScores: scores}.Accepted(0))
}
