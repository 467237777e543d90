package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

func TestEncodeDecodeRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := types.NewRun("3f1b1a9e-3c39-4b8e-9d61-1f2c0f4c7d10", types.RunConfig{
		JobDescription: "Go engineer",
		Providers:      types.DefaultProviders(),
	}, now)
	run.Results[types.StageReviewer] = json.RawMessage(`{"ats_keywords":["go"]}`)

	record, err := encodeRun(run)
	require.NoError(t, err)
	decoded, err := decodeRun(record)
	require.NoError(t, err)

	assert.Equal(t, run.ID, decoded.ID)
	assert.True(t, decoded.CreatedAt.Equal(now))
	assert.JSONEq(t, `{"ats_keywords":["go"]}`, string(decoded.Results[types.StageReviewer]))
	assert.Equal(t, run.Providers, decoded.Providers)
}

func TestDecodeRun_FillsCollections(t *testing.T) {
	run, err := decodeRun([]byte(`{"id":"x","status":"pending"}`))
	require.NoError(t, err)
	assert.NotNil(t, run.Results)
	assert.NotNil(t, run.Artifacts)
	assert.NotNil(t, run.Providers)

	_, err = decodeRun([]byte(`{`))
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	sql, err := migrations.ReadFile("migrations/001_runs.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "CREATE TABLE IF NOT EXISTS orchestrator_runs")
}
