package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompiler struct {
	pdf   []byte
	log   string
	err   error
	calls int
}

func (f *fakeCompiler) Name() string                { return "fake" }
func (f *fakeCompiler) Check(context.Context) error { return nil }
func (f *fakeCompiler) Compile(_ context.Context, _, _ string) ([]byte, string, error) {
	f.calls++
	return f.pdf, f.log, f.err
}

func TestPublisher_Publish(t *testing.T) {
	dir := t.TempDir()
	compiler := &fakeCompiler{pdf: []byte("%PDF-1.5"), log: "Output written on final.pdf"}
	p := NewPublisher(compiler, dir, "http://localhost:8080", nil)

	ref, err := p.Publish(context.Background(), "run-1", "\\documentclass{article}")
	require.NoError(t, err)

	assert.Equal(t, KindPDF, ref.Kind)
	assert.Equal(t, filepath.Join(dir, "run-1", PDFFile), ref.Path)
	assert.Equal(t, "http://localhost:8080/runs/run-1/pdf/file", ref.DownloadURL)
	assert.False(t, ref.CreatedAt.IsZero())

	pdf, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5", string(pdf))
	src, err := os.ReadFile(filepath.Join(dir, "run-1", SourceFile))
	require.NoError(t, err)
	assert.Equal(t, "\\documentclass{article}", string(src))
}

func TestPublisher_CompileFailureKeepsLog(t *testing.T) {
	dir := t.TempDir()
	compiler := &fakeCompiler{log: "! Undefined control sequence.", err: &CompilationError{Message: "PDF was not generated", Log: "! Undefined control sequence."}}
	p := NewPublisher(compiler, dir, "", nil)

	_, err := p.Publish(context.Background(), "run-2", "\\bad")
	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "! Undefined control sequence.", ce.Log)
	assert.Equal(t, 1, compiler.calls, "failures are not retried")

	log, err := os.ReadFile(filepath.Join(dir, "run-2", LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(log), "Undefined control sequence")
	assert.NoFileExists(t, filepath.Join(dir, "run-2", PDFFile))
}

func TestPublisher_WrapsForeignErrors(t *testing.T) {
	p := NewPublisher(&fakeCompiler{log: "partial", err: errors.New("boom")}, t.TempDir(), "", nil)
	_, err := p.Publish(context.Background(), "run-3", "x")
	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "partial", ce.Log)
}

func TestRemoteCompiler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/build":
			var req buildRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Document == "bad" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_ = json.NewEncoder(w).Encode(buildFailure{Status: "FAILED", Log: "LaTeX Error"})
				return
			}
			assert.Equal(t, "run-9", req.RunID)
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		}
	}))
	defer srv.Close()

	c := &RemoteCompiler{URL: srv.URL + "/"}
	require.NoError(t, c.Check(context.Background()))

	pdf, _, err := c.Compile(context.Background(), "run-9", "good")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf))

	_, log, err := c.Compile(context.Background(), "run-9", "bad")
	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "LaTeX Error", log)
	assert.Equal(t, "build failed", ce.Message)
}

func TestNewCompiler(t *testing.T) {
	c, err := NewCompiler("", "", 0)
	require.NoError(t, err)
	assert.Equal(t, CompilerPDFLaTeX, c.Name())

	c, err = NewCompiler(CompilerLatexmk, "", 0)
	require.NoError(t, err)
	assert.Equal(t, CompilerLatexmk, c.Name())

	_, err = NewCompiler(CompilerRemote, "", 0)
	assert.Error(t, err)

	_, err = NewCompiler("xelatex", "", 0)
	assert.Error(t, err)
}

func TestLocalCompiler_Compile(t *testing.T) {
	if _, err := exec.LookPath("pdflatex"); err != nil {
		t.Skip("pdflatex not installed")
	}
	c := &LocalCompiler{Command: CompilerPDFLaTeX}
	pdf, _, err := c.Compile(context.Background(), "run", "\\documentclass{article}\\begin{document}Hi\\end{document}")
	require.NoError(t, err)
	assert.True(t, len(pdf) > 4)

	_, log, err := c.Compile(context.Background(), "run", "\\documentclass{article}\\begin{document}\\undefinedmacro\\end{document}")
	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	assert.NotEmpty(t, log)
}
