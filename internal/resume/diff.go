package resume

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

// Marker tags every line block written by an automated edit.
const Marker = "% [agent:finalizer]"

// Anchor prefixes understood by ApplyDiffs.
const (
	AnchorLine    = "line:"
	AnchorRegex   = "regex:"
	AnchorSection = "SECTION:"
)

// DiffError explains why one diff could not be applied.
type DiffError struct {
	Target  string
	Anchor  string
	Message string
}

func (e *DiffError) Error() string {
	return fmt.Sprintf("failed to apply %s (%s): %s", e.Target, e.Anchor, e.Message)
}

// ApplyResult reports the outcome of ApplyDiffs.
type ApplyResult struct {
	Document *Document
	Applied  int
	Skipped  int
	Previews []string
	Errors   []error
}

// Summary joins the per-diff previews into a human-readable block.
func (r *ApplyResult) Summary() string {
	return strings.Join(r.Previews, "\n\n")
}

// location is a half-open line range [start, end).
type location struct {
	start, end int
}

// ApplyDiffs applies diffs in order to a copy of doc. A diff that cannot be
// applied is skipped and reported; it never aborts the remaining diffs.
func ApplyDiffs(doc *Document, diffs []types.RefinerDiff) *ApplyResult {
	res := &ApplyResult{Document: doc.Clone()}
	for _, diff := range diffs {
		preview, err := applyOne(res.Document, diff)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, err)
			res.Previews = append(res.Previews, err.Error())
			continue
		}
		res.Applied++
		res.Previews = append(res.Previews, preview)
	}
	return res
}

func applyOne(doc *Document, diff types.RefinerDiff) (string, error) {
	fail := func(msg string) error {
		return &DiffError{Target: diff.TargetFile, Anchor: diff.Anchor, Message: msg}
	}

	name, ok := doc.resolveTarget(diff.TargetFile)
	if !ok {
		return "", fail("unknown target file")
	}
	original := doc.file(name)
	lines := strings.Split(original, "\n")

	loc, err := findAnchor(lines, diff.Anchor)
	if err != nil {
		return "", fail(err.Error())
	}
	preview := buildPreview(lines, diff, loc)

	switch diff.PatchType {
	case types.PatchInsert:
		lines = splice(lines, loc.end, loc.end, annotate(diff.Content))
	case types.PatchReplace:
		lines = splice(lines, loc.start, loc.end, annotate(diff.Content))
	case types.PatchDelete:
		lines = splice(lines, loc.start, loc.end, nil)
	default:
		return "", fail(fmt.Sprintf("unknown patch type %q", diff.PatchType))
	}

	next := strings.Join(lines, "\n")
	if !strings.HasSuffix(next, "\n") {
		next += "\n"
	}
	doc.setFile(name, next)
	return preview, nil
}

// findAnchor resolves an anchor to a line range. Line anchors are 1-based and
// clamped to the file; section anchors point just after the marker line.
func findAnchor(lines []string, anchor string) (location, error) {
	switch {
	case strings.HasPrefix(anchor, AnchorLine):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(anchor, AnchorLine)))
		if err != nil {
			return location{}, fmt.Errorf("invalid line anchor %q", anchor)
		}
		idx := clamp(n-1, 0, len(lines))
		return location{start: idx, end: clamp(idx+1, 0, len(lines))}, nil

	case strings.HasPrefix(anchor, AnchorRegex):
		pattern := strings.TrimPrefix(anchor, AnchorRegex)
		re, err := regexp.Compile("(?m)" + pattern)
		if err != nil {
			return location{}, fmt.Errorf("invalid regex anchor: %v", err)
		}
		text := strings.Join(lines, "\n")
		m := re.FindStringIndex(text)
		if m == nil {
			return location{}, fmt.Errorf("regex anchor not found: %s", pattern)
		}
		start := strings.Count(text[:m[0]], "\n")
		span := strings.Count(text[m[0]:m[1]], "\n") + 1
		return location{start: start, end: clamp(start+span, 0, len(lines))}, nil

	case strings.HasPrefix(anchor, AnchorSection):
		key := strings.TrimSpace(strings.TrimPrefix(anchor, AnchorSection))
		needle := AnchorSection + key
		for i, line := range lines {
			if strings.Contains(line, needle) {
				return location{start: i + 1, end: i + 1}, nil
			}
		}
		return location{}, fmt.Errorf("section anchor not found: %s", key)
	}
	return location{}, fmt.Errorf("unsupported anchor format %q", anchor)
}

func annotate(content string) []string {
	trimmed := strings.TrimSpace(normalizeLineEndings(content))
	if !strings.HasPrefix(trimmed, Marker) {
		trimmed = Marker + "\n" + trimmed
	}
	return strings.Split(trimmed, "\n")
}

func splice(lines []string, start, end int, insert []string) []string {
	out := make([]string, 0, len(lines)-(end-start)+len(insert))
	out = append(out, lines[:start]...)
	out = append(out, insert...)
	out = append(out, lines[end:]...)
	return out
}

func buildPreview(lines []string, diff types.RefinerDiff, loc location) string {
	header := fmt.Sprintf("# Diff for %s (%s @ %s)", diff.TargetFile, diff.PatchType, diff.Anchor)
	from := clamp(loc.start-3, 0, len(lines))
	to := clamp(loc.end+3, from, len(lines))
	return fmt.Sprintf("%s\n%s\n---\n%s", header, strings.Join(lines[from:to], "\n"), diff.Content)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
