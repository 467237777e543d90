package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Artifact file names under a run directory.
const (
	SourceFile = "final.tex"
	PDFFile    = "final.pdf"
	LogFile    = "build.log"
)

// KindPDF is the artifact kind for compiled resumes.
const KindPDF = "pdf"

// Publisher compiles finalized documents and stores the results under DataDir.
type Publisher struct {
	compiler Compiler
	dataDir  string
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

// NewPublisher creates a publisher. baseURL prefixes download URLs and may be empty.
func NewPublisher(compiler Compiler, dataDir, baseURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{compiler: compiler, dataDir: dataDir, baseURL: baseURL, logger: logger, now: time.Now}
}

// Compiler returns the backend used for builds.
func (p *Publisher) Compiler() Compiler { return p.compiler }

// RunDir returns the directory holding a run's artifacts.
func (p *Publisher) RunDir(runID string) string {
	return filepath.Join(p.dataDir, runID)
}

// PDFPath returns where a run's PDF is stored.
func (p *Publisher) PDFPath(runID string) string {
	return filepath.Join(p.RunDir(runID), PDFFile)
}

// DownloadURL returns the public location of a run's PDF.
func (p *Publisher) DownloadURL(runID string) string {
	return fmt.Sprintf("%s/runs/%s/pdf/file", p.baseURL, runID)
}

// Publish compiles source once and records the artifact. The source and build
// log are written even when compilation fails. Failures are never retried.
func (p *Publisher) Publish(ctx context.Context, runID, source string) (types.ArtifactRef, error) {
	dir := p.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.ArtifactRef{}, &StorageError{Path: dir, Cause: err}
	}
	if err := writeFile(filepath.Join(dir, SourceFile), []byte(source)); err != nil {
		return types.ArtifactRef{}, err
	}

	start := time.Now()
	pdf, log, compileErr := p.compiler.Compile(ctx, runID, source)
	logPath := filepath.Join(dir, LogFile)
	if err := writeFile(logPath, []byte(log)); err != nil {
		return types.ArtifactRef{}, err
	}
	if compileErr != nil {
		p.logger.Warn("compilation failed", "run_id", runID, "compiler", p.compiler.Name(), "error", compileErr)
		var ce *CompilationError
		if !errors.As(compileErr, &ce) {
			compileErr = &CompilationError{Message: "compilation failed", Log: log, Cause: compileErr}
		}
		return types.ArtifactRef{}, compileErr
	}

	pdfPath := filepath.Join(dir, PDFFile)
	if err := writeFile(pdfPath, pdf); err != nil {
		return types.ArtifactRef{}, err
	}
	p.logger.Info("artifact published", "run_id", runID, "bytes", len(pdf), "duration", time.Since(start))

	return types.ArtifactRef{
		Kind:        KindPDF,
		Path:        pdfPath,
		LogPath:     logPath,
		DownloadURL: p.DownloadURL(runID),
		CreatedAt:   p.now().UTC(),
	}, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &StorageError{Path: path, Cause: err}
	}
	return nil
}
