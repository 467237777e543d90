package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/config"
	"github.com/jonathan/resume-orchestrator/internal/server"
	"github.com/jonathan/resume-orchestrator/internal/service"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

const testSecret = "cli-test-secret-0123456789"

// isolateEnv clears settings a developer .env could leak into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "JWT_SECRET", "GROQ_API_KEY", "ANTHROPIC_API_KEY",
		"GOOGLE_API_KEY", "GEMINI_API_KEY", "ORCHESTRATOR_COMPILER", "ORCHESTRATOR_COMPILER_URL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("ORCHESTRATOR_DATA_DIR", t.TempDir())
	t.Setenv("ORCHESTRATOR_RESUME_DIR", t.TempDir())
	t.Setenv("ORCHESTRATOR_LOG_LEVEL", "error")
	configPath = ""
	verbose = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBuildProviderMap(t *testing.T) {
	t.Run("nothing set keeps defaults", func(t *testing.T) {
		m, err := buildProviderMap("", nil)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("all stages then per stage override", func(t *testing.T) {
		m, err := buildProviderMap("gemini", map[string]string{"Judge": " claude "})
		require.NoError(t, err)
		assert.Len(t, m, len(types.Stages()))
		assert.Equal(t, "gemini", m[types.StageReviewer])
		assert.Equal(t, "claude", m[types.StageJudge])
	})

	t.Run("per stage only", func(t *testing.T) {
		m, err := buildProviderMap("", map[string]string{"swot": "groq"})
		require.NoError(t, err)
		assert.Equal(t, types.ProviderMap{types.StageSwot: "groq"}, m)
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := buildProviderMap("", map[string]string{"publish": "groq"})
		assert.ErrorContains(t, err, `unknown stage "publish"`)
	})

	t.Run("empty provider", func(t *testing.T) {
		_, err := buildProviderMap("", map[string]string{"judge": " "})
		assert.ErrorContains(t, err, "empty provider for stage judge")
	})
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.txt")
	require.NoError(t, os.WriteFile(path, []byte("Senior Go engineer"), 0o644))

	got, err := readInput(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Senior Go engineer", got)

	got, err = readInput("-", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readInput(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.ErrorContains(t, err, "failed to read job description")
}

func TestTokenCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JWT_SECRET", testSecret)

	out, err := execute(t, "token", "--subject", "reviewer-bot")
	require.NoError(t, err)

	cfg := &config.JWTConfig{Secret: testSecret, ExpirationHours: config.DefaultJWTExpiration}
	claims, err := server.NewJWTService(cfg).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "reviewer-bot", claims.Subject)
}

func TestTokenCommand_NoSecret(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "token")
	assert.ErrorContains(t, err, "JWT_SECRET is not configured")
}

func TestProvidersCommand(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "providers")
	require.NoError(t, err)

	var catalog service.ProviderCatalog
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Equal(t, 3, catalog.TotalCount)
	assert.Equal(t, 0, catalog.AvailableCount)
}

func TestRunsListCommand(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "runs", "list")
	require.NoError(t, err)

	var list service.RunList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Zero(t, list.Count)
}

func TestRunsGetCommand_NotFound(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "runs", "get", "does-not-exist")
	assert.ErrorContains(t, err, "run not found")
}

func TestRunCommand_RequiresJob(t *testing.T) {
	isolateEnv(t)
	runJobFile, runJobURL = "", ""

	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "either --job or --job-url is required")
}
