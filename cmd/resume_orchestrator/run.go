package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-orchestrator/internal/ingestion"
	"github.com/jonathan/resume-orchestrator/internal/observability"
	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

var (
	runJobFile        string
	runJobURL         string
	runUseBrowser     bool
	runDryRun         bool
	runProvider       string
	runStageProviders map[string]string
	runJSON           bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for a job description",
	Long: `Run reviewer, swot, refiner, judge and finalizer against the configured
resume and wait for the outcome.

The job description is read from a file (--job, "-" for stdin) or fetched from
a posting URL (--job-url). HTML input is reduced to plain text.`,
	Example: `  resume_orchestrator run --job posting.txt
  resume_orchestrator run --job-url https://example.com/jobs/42 --use-browser
  resume_orchestrator run --job - --provider gemini --stage-provider judge=claude`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runJobFile, "job", "j", "", "Job description file, or - for stdin")
	runCmd.Flags().StringVarP(&runJobURL, "job-url", "u", "", "Job posting URL to fetch")
	runCmd.Flags().BoolVar(&runUseBrowser, "use-browser", false, "Render the posting in headless Chrome when plain fetch yields too little text")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Skip PDF compilation")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "Provider for every stage")
	runCmd.Flags().StringToStringVar(&runStageProviders, "stage-provider", nil, "Per-stage provider, e.g. judge=claude")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final run as JSON")
	runCmd.MarkFlagsMutuallyExclusive("job", "job-url")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)

	var onProgress pipeline.ProgressCallback
	if verbose && !runJSON {
		onProgress = func(ev pipeline.ProgressEvent) {
			if ev.Type != pipeline.EventStageCompleted {
				return
			}
			if raw, ok := ev.Content.(json.RawMessage); ok {
				printer.PrintStage(ev.Stage, raw)
			}
		}
	}

	a, err := newApp(ctx, appOptions{logOut: cmd.ErrOrStderr(), onProgress: onProgress})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	job, err := readJobDescription(ctx, cmd.InOrStdin(), a)
	if err != nil {
		return err
	}
	providers, err := buildProviderMap(runProvider, runStageProviders)
	if err != nil {
		return err
	}

	run, err := a.service.RunSync(ctx, types.RunConfig{
		JobDescription: job,
		DryRun:         runDryRun,
		Providers:      providers,
	})
	if err != nil {
		return err
	}

	if runJSON {
		if err := writeJSON(out, run); err != nil {
			return err
		}
	} else {
		printer.PrintRun(run)
	}
	if run.Status == types.StatusFailed {
		return fmt.Errorf("run %s failed", run.ID)
	}
	return nil
}

// readJobDescription loads the job text from --job or --job-url.
func readJobDescription(ctx context.Context, stdin io.Reader, a *app) (string, error) {
	switch {
	case runJobURL != "":
		return ingestion.FetchJobDescription(ctx, runJobURL, ingestion.FetchOptions{
			UseBrowser: runUseBrowser,
			Logger:     a.logger,
		})
	case runJobFile != "":
		content, err := readInput(runJobFile, stdin)
		if err != nil {
			return "", err
		}
		return ingestion.Normalize(content)
	}
	return "", errors.New("either --job or --job-url is required")
}

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read job description: %w", err)
	}
	return string(data), nil
}

// buildProviderMap combines --provider and --stage-provider. Stages left
// unset take the configured defaults when the run is created.
func buildProviderMap(all string, perStage map[string]string) (types.ProviderMap, error) {
	if all == "" && len(perStage) == 0 {
		return nil, nil
	}
	m := make(types.ProviderMap, len(types.Stages()))
	if all != "" {
		for _, st := range types.Stages() {
			m[st] = all
		}
	}
	for name, providerName := range perStage {
		st := types.Stage(strings.ToLower(strings.TrimSpace(name)))
		if !st.Valid() {
			return nil, fmt.Errorf("unknown stage %q in --stage-provider", name)
		}
		if strings.TrimSpace(providerName) == "" {
			return nil, fmt.Errorf("empty provider for stage %s", st)
		}
		m[st] = strings.TrimSpace(providerName)
	}
	return m, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
