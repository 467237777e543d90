// Package publish compiles finalized resumes and records the resulting
// artifacts.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Compiler backends.
const (
	CompilerPDFLaTeX = "pdflatex"
	CompilerLatexmk  = "latexmk"
	CompilerRemote   = "remote"
)

// DefaultCompileTimeout bounds a single build.
const DefaultCompileTimeout = 60 * time.Second

// Compiler turns LaTeX source into a PDF.
type Compiler interface {
	Name() string
	// Compile returns the PDF bytes and the build log. On failure the error is
	// a *CompilationError carrying the log.
	Compile(ctx context.Context, runID, source string) ([]byte, string, error)
	// Check reports whether the backend is usable.
	Check(ctx context.Context) error
}

// NewCompiler returns the backend named by kind.
func NewCompiler(kind, remoteURL string, timeout time.Duration) (Compiler, error) {
	switch kind {
	case CompilerPDFLaTeX, CompilerLatexmk, "":
		if kind == "" {
			kind = CompilerPDFLaTeX
		}
		return &LocalCompiler{Command: kind, Timeout: timeout}, nil
	case CompilerRemote:
		if remoteURL == "" {
			return nil, fmt.Errorf("remote compiler requires a URL")
		}
		return &RemoteCompiler{URL: remoteURL, Timeout: timeout}, nil
	}
	return nil, fmt.Errorf("unknown compiler %q", kind)
}

// LocalCompiler runs pdflatex or latexmk in a scratch directory.
type LocalCompiler struct {
	Command string
	Timeout time.Duration
}

// Name returns the command name.
func (c *LocalCompiler) Name() string { return c.Command }

// Check verifies the command is on PATH.
func (c *LocalCompiler) Check(context.Context) error {
	if _, err := exec.LookPath(c.Command); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", c.Command, err)
	}
	return nil
}

func (c *LocalCompiler) args(workDir, texPath string) []string {
	if c.Command == CompilerLatexmk {
		return []string{"-pdf", "-interaction=nonstopmode", "-halt-on-error", "-output-directory=" + workDir, texPath}
	}
	return []string{"-interaction=nonstopmode", "-halt-on-error", "-output-directory", workDir, texPath}
}

// Compile writes source to a temporary directory and builds it.
func (c *LocalCompiler) Compile(ctx context.Context, runID, source string) ([]byte, string, error) {
	if err := c.Check(ctx); err != nil {
		return nil, "", &CompilationError{Message: "compiler unavailable", Cause: err}
	}

	workDir, err := os.MkdirTemp("", "resume-compile-*")
	if err != nil {
		return nil, "", &CompilationError{Message: "failed to create working directory", Cause: err}
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	texPath := filepath.Join(workDir, "final.tex")
	if err := os.WriteFile(texPath, []byte(source), 0o644); err != nil {
		return nil, "", &CompilationError{Message: "failed to write source", Cause: err}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Command, c.args(workDir, texPath)...)
	cmd.Dir = workDir
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output
	runErr := cmd.Run()
	log := output.String()

	pdf, err := os.ReadFile(filepath.Join(workDir, "final.pdf"))
	if err != nil {
		return nil, log, &CompilationError{Message: "PDF was not generated", Log: log, Cause: runErr}
	}
	if runErr != nil {
		return nil, log, &CompilationError{Message: fmt.Sprintf("%s exited with errors", c.Command), Log: log, Cause: runErr}
	}
	return pdf, log, nil
}

// RemoteCompiler posts source to a TeX build service.
type RemoteCompiler struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type buildRequest struct {
	RunID    string `json:"runId"`
	Document string `json:"document"`
}

type buildFailure struct {
	Status string `json:"status"`
	Log    string `json:"log"`
	Error  string `json:"error"`
}

// Name returns "remote".
func (c *RemoteCompiler) Name() string { return CompilerRemote }

func (c *RemoteCompiler) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c *RemoteCompiler) endpoint(path string) string {
	return strings.TrimRight(c.URL, "/") + path
}

// Check calls the service health endpoint.
func (c *RemoteCompiler) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("compiler service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("compiler service returned %d", resp.StatusCode)
	}
	return nil
}

// Compile sends POST /build. A 200 response body is the PDF; anything else is
// a failure whose JSON body carries the build log.
func (c *RemoteCompiler) Compile(ctx context.Context, runID, source string) ([]byte, string, error) {
	body, err := json.Marshal(buildRequest{RunID: runID, Document: source})
	if err != nil {
		return nil, "", &CompilationError{Message: "failed to encode build request", Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/build"), bytes.NewReader(body))
	if err != nil {
		return nil, "", &CompilationError{Message: "failed to create build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, "", &CompilationError{Message: "compiler service unreachable", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &CompilationError{Message: "failed to read build response", Cause: err}
	}
	if resp.StatusCode == http.StatusOK {
		return payload, resp.Header.Get("X-Build-Log"), nil
	}

	var failure buildFailure
	if err := json.Unmarshal(payload, &failure); err != nil {
		return nil, string(payload), &CompilationError{Message: fmt.Sprintf("compiler service returned %d", resp.StatusCode), Log: string(payload)}
	}
	msg := failure.Error
	if msg == "" {
		msg = fmt.Sprintf("build %s", strings.ToLower(failure.Status))
	}
	return nil, failure.Log, &CompilationError{Message: msg, Log: failure.Log}
}
