// Package observability provides logging and formatted output utilities for
// verbose CLI mode.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if runes := []rune(line); len(runes) > boxWidth-4 {
			line = string(runes[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func writeList(sb *strings.Builder, heading string, items []string, limit int) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading + ":\n")
	for _, item := range items[:min(len(items), limit)] {
		sb.WriteString(fmt.Sprintf("  • %s\n", item))
	}
	if len(items) > limit {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-limit))
	}
}

// PrintStage decodes raw stage output and prints the matching summary.
// Output that does not decode is printed as-is.
func (p *Printer) PrintStage(stage types.Stage, raw json.RawMessage) {
	var err error
	switch stage {
	case types.StageReviewer:
		var out types.ReviewerOutput
		if err = json.Unmarshal(raw, &out); err == nil {
			p.PrintReviewer(&out)
		}
	case types.StageSwot:
		var out types.SwotOutput
		if err = json.Unmarshal(raw, &out); err == nil {
			p.PrintSwot(&out)
		}
	case types.StageRefiner:
		var out types.RefinerOutput
		if err = json.Unmarshal(raw, &out); err == nil {
			p.PrintRefiner(&out)
		}
	case types.StageJudge:
		var out types.JudgeOutput
		if err = json.Unmarshal(raw, &out); err == nil {
			p.PrintJudge(&out)
		}
	case types.StageFinalizer:
		var out types.FinalizerOutput
		if err = json.Unmarshal(raw, &out); err == nil {
			p.PrintFinalizer(&out)
		}
	default:
		err = fmt.Errorf("unknown stage")
	}
	if err != nil {
		p.printBox(strings.ToUpper(string(stage)), string(raw))
	}
}

// PrintReviewer outputs keywords, coverage and issues from the reviewer.
func (p *Printer) PrintReviewer(out *types.ReviewerOutput) {
	if out == nil {
		return
	}
	var sb strings.Builder
	if out.MatchScore != nil {
		sb.WriteString(fmt.Sprintf("Match score:  %.0f\n", *out.MatchScore))
	}
	sb.WriteString(fmt.Sprintf("Coverage:     must-have %.0f%%, nice-to-have %.0f%%\n\n",
		out.Coverage.MustHavePct, out.Coverage.NiceToHavePct))
	writeList(&sb, "ATS keywords", out.ATSKeywords, maxItemsToShow)

	issues := make([]string, 0, len(out.SectionIssues))
	for _, issue := range out.SectionIssues {
		issues = append(issues, fmt.Sprintf("[%s] %s", issue.Section, issue.Issue))
	}
	writeList(&sb, "Section issues", issues, 3)
	if n := len(out.BulletSuggestions); n > 0 {
		sb.WriteString(fmt.Sprintf("Bullet suggestions: %d\n", n))
	}
	p.printBox("REVIEWER", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSwot outputs the SWOT quadrants.
func (p *Printer) PrintSwot(out *types.SwotOutput) {
	if out == nil {
		return
	}
	var sb strings.Builder
	writeList(&sb, "Strengths", out.Strengths, 3)
	writeList(&sb, "Weaknesses", out.Weaknesses, 3)
	writeList(&sb, "Opportunities", out.Opportunities, 3)
	writeList(&sb, "Threats", out.Threats, 3)
	if out.PositioningStatement != "" {
		sb.WriteString("\n" + out.PositioningStatement)
	}
	p.printBox("SWOT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRefiner outputs the proposed diffs.
func (p *Printer) PrintRefiner(out *types.RefinerOutput) {
	if out == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Proposed diffs: %d\n\n", len(out.Diffs)))
	count := min(len(out.Diffs), maxItemsToShow)
	for i := 0; i < count; i++ {
		d := out.Diffs[i]
		sb.WriteString(fmt.Sprintf("%d. %s %s @ %s\n", i+1, d.PatchType, d.TargetFile, d.Anchor))
		if d.Rationale != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", d.Rationale))
		}
	}
	if len(out.Diffs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(out.Diffs)-maxItemsToShow))
	}
	p.printBox("REFINER", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJudge outputs the verdict and scores.
func (p *Printer) PrintJudge(out *types.JudgeOutput) {
	if out == nil {
		return
	}
	s := out.NumericScores
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Verdict:  %s (avg %.1f)\n", out.Status, s.Average()))
	sb.WriteString(fmt.Sprintf("Scores:   clarity %.0f, brevity %.0f, impact %.0f, ats %.0f\n\n",
		s.Clarity, s.Brevity, s.Impact, s.ATSFit))
	writeList(&sb, "Reasons", out.Reasons, 3)
	flagged := make([]string, 0, len(out.Flagged))
	for _, f := range out.Flagged {
		flagged = append(flagged, fmt.Sprintf("%s: %s", f.File, f.Reason))
	}
	writeList(&sb, "Flagged", flagged, 3)
	p.printBox("JUDGE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFinalizer outputs the finalizer's bookkeeping.
func (p *Printer) PrintFinalizer(out *types.FinalizerOutput) {
	if out == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Applied: %d  Skipped: %d\n", out.Applied, out.Skipped))
	sb.WriteString(fmt.Sprintf("Document: %d lines\n", strings.Count(out.Document, "\n")+1))
	if len(out.Notes) > 0 {
		sb.WriteString("\n")
	}
	writeList(&sb, "Notes", out.Notes, 3)
	p.printBox("FINALIZER", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRun outputs the run status, error and artifacts.
func (p *Printer) PrintRun(run *types.Run) {
	if run == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:        %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("Dry run:   %t\n", run.DryRun))
	stages := run.Summarize().Stages
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = string(st)
	}
	sb.WriteString(fmt.Sprintf("Stages:    %s\n", strings.Join(names, ", ")))
	if run.Revisions > 0 {
		sb.WriteString(fmt.Sprintf("Revisions: %d\n", run.Revisions))
	}
	if run.Error != nil {
		sb.WriteString(fmt.Sprintf("Error:     [%s] %s\n", run.Error.Stage, run.Error.Message))
	}
	for _, a := range run.Artifacts {
		sb.WriteString(fmt.Sprintf("Artifact:  %s\n", a.DownloadURL))
	}
	p.printBox("RUN", strings.TrimSuffix(sb.String(), "\n"))
}
