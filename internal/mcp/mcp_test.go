package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-orchestrator/internal/pipeline/pipelinetest"
	"github.com/jonathan/resume-orchestrator/internal/service"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

func newTestServer(t *testing.T) (*Server, *pipelinetest.Fixture) {
	t.Helper()
	fx := pipelinetest.New(t, nil)
	svc := service.New(fx.Coordinator, service.Options{
		LoadDocument: pipelinetest.Document,
		Getenv:       func(string) string { return "" },
	})
	return NewServer(svc, "test", nil), fx
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func call(t *testing.T, s *Server, method string, params any) response {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	raw := s.Handle(context.Background(), payload)
	require.NotNil(t, raw)
	var resp response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// callTool invokes a tool and decodes its single text block.
func callTool(t *testing.T, s *Server, name string, args any) (map[string]any, bool) {
	t.Helper()
	resp := call(t, s, "tools/call", map[string]any{"name": name, "arguments": args})
	require.Nil(t, resp.Error)

	var result ToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &body))
	return body, result.IsError
}

func TestHandle_Protocol(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, "initialize", map[string]any{"protocolVersion": ProtocolVersion})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, "1", string(resp.ID))
	var init struct {
		ProtocolVersion string            `json:"protocolVersion"`
		ServerInfo      map[string]string `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, ServerName, init.ServerInfo["name"])

	resp = call(t, s, "ping", nil)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, "{}", string(resp.Result))

	resp = call(t, s, "tools/list", nil)
	var list struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_runs", "get_run", "create_run", "check_health", "get_available_providers",
		"get_resume_info", "cancel_run", "resubmit_run",
	}, names)
	assert.Len(t, s.tools, len(toolDescriptors), "every descriptor has a handler")

	resp = call(t, s, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)

	resp = call(t, s, "tools/call", map[string]any{"name": "rm_rf"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestHandle_ParseErrorAndNotifications(t *testing.T) {
	s, _ := newTestServer(t)

	var resp response
	require.NoError(t, json.Unmarshal(s.Handle(context.Background(), []byte("{not json")), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))

	assert.Nil(t, s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	assert.Nil(t, s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping"}`)))

	require.NoError(t, json.Unmarshal(s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":"a"}`)), &resp))
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestTools_RunLifecycle(t *testing.T) {
	s, fx := newTestServer(t)

	body, isErr := callTool(t, s, "create_run", map[string]any{
		"job_description": pipelinetest.JobDescription,
		"dry_run":         true,
		"wait":            true,
	})
	require.False(t, isErr, body)
	id := body["run_id"].(string)
	assert.Equal(t, "completed", body["run"].(map[string]any)["status"])

	body, isErr = callTool(t, s, "get_run", map[string]any{"run_id": id})
	require.False(t, isErr)
	assert.Equal(t, id, body["run"].(map[string]any)["id"])

	body, isErr = callTool(t, s, "create_run", map[string]any{"job_description": pipelinetest.JobDescription, "dry_run": true})
	require.False(t, isErr)
	fx.WaitForStatus(t, body["run_id"].(string), types.StatusCompleted)

	body, isErr = callTool(t, s, "list_runs", map[string]any{"status": "completed", "limit": 1})
	require.False(t, isErr)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, id, body["runs"].([]any)[0].(map[string]any)["id"])
}

func TestTools_ReviewFlow(t *testing.T) {
	s, fx := newTestServer(t)
	fx.Provider.SetOutput(types.StageJudge, pipelinetest.JudgeRevise)

	body, _ := callTool(t, s, "create_run", map[string]any{"job_description": pipelinetest.JobDescription, "dry_run": true, "wait": true})
	id := body["run_id"].(string)
	require.Equal(t, "needs_review", body["run"].(map[string]any)["status"])

	body, isErr := callTool(t, s, "resubmit_run", map[string]any{"run_id": id, "approve": true})
	require.False(t, isErr, body)
	fx.WaitForStatus(t, id, types.StatusCompleted)

	body, _ = callTool(t, s, "create_run", map[string]any{"job_description": pipelinetest.JobDescription, "dry_run": true, "wait": true})
	other := body["run_id"].(string)
	body, isErr = callTool(t, s, "cancel_run", map[string]any{"run_id": other})
	require.False(t, isErr)
	assert.Equal(t, "failed", body["run"].(map[string]any)["status"])
}

func TestTools_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		name    string
		tool    string
		args    any
		message string
	}{
		{"missing job description", "create_run", map[string]any{"dry_run": true}, "JobDescription"},
		{"unknown provider", "create_run", map[string]any{"job_description": pipelinetest.JobDescription, "providers": map[string]string{"swot": "gpt"}}, "providers.swot"},
		{"unknown argument", "create_run", map[string]any{"job": "x"}, "unknown field"},
		{"limit too large", "list_runs", map[string]any{"limit": 101}, "Limit"},
		{"missing run", "get_run", map[string]any{"run_id": "missing"}, "run not found"},
		{"missing run id", "cancel_run", map[string]any{}, "run_id"},
		{"resubmit without run id", "resubmit_run", map[string]any{"approve": true}, "run_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, isErr := callTool(t, s, tt.tool, tt.args)
			assert.True(t, isErr)
			assert.Len(t, body, 1)
			assert.Contains(t, body["error"], tt.message)
		})
	}
}

func TestTools_Introspection(t *testing.T) {
	s, _ := newTestServer(t)

	body, isErr := callTool(t, s, "get_available_providers", nil)
	require.False(t, isErr)
	assert.EqualValues(t, 4, body["totalCount"])
	assert.EqualValues(t, 1, body["availableCount"])

	body, isErr = callTool(t, s, "check_health", map[string]any{})
	require.False(t, isErr)
	assert.Equal(t, service.StatusDegraded, body["status"], "no compiler is configured")

	body, isErr = callTool(t, s, "get_resume_info", nil)
	require.False(t, isErr)
	assert.Equal(t, "cv.tex", body["mainFile"])
}

func TestServe_Framing(t *testing.T) {
	s, _ := newTestServer(t)
	ping := `{"jsonrpc":"2.0","id":7,"method":"ping"}`
	input := ping + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
		fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(ping), ping)

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(input), &out))

	want := `{"jsonrpc":"2.0","id":7,"result":{}}`
	assert.Equal(t, want+"\n"+fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(want), want), out.String())
}

func TestServe_BadFraming(t *testing.T) {
	s, _ := newTestServer(t)
	err := s.Serve(context.Background(), strings.NewReader("Content-Type: json\r\n\r\n{}"), &bytes.Buffer{})
	assert.ErrorContains(t, err, "missing Content-Length")

	err = s.Serve(context.Background(), strings.NewReader("Content-Length: 9999999999\r\n\r\n{}"), &bytes.Buffer{})
	assert.ErrorContains(t, err, "exceeds 1048576 bytes")
}

func TestHandler(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"create_run"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
