//nolint:revive // types is a standard Go package name pattern
package types

// Coverage reports how much of the job's requirements the resume addresses.
type Coverage struct {
	MustHavePct   float64 `json:"must_have_pct"`
	NiceToHavePct float64 `json:"nice_to_have_pct"`
}

// SectionIssue is a problem the reviewer found in one resume section.
type SectionIssue struct {
	Section  string `json:"section"`
	Issue    string `json:"issue"`
	Evidence string `json:"evidence"`
}

// BulletSuggestion is a LaTeX fragment the reviewer proposes for a section.
type BulletSuggestion struct {
	Section       string `json:"section"`
	LatexFragment string `json:"latex_fragment"`
	Rationale     string `json:"rationale"`
}

// ReviewerOutput is the reviewer stage result.
type ReviewerOutput struct {
	ATSKeywords       []string           `json:"ats_keywords"`
	Coverage          Coverage           `json:"coverage"`
	SectionIssues     []SectionIssue     `json:"section_issues"`
	BulletSuggestions []BulletSuggestion `json:"bullet_suggestions"`
	MatchScore        *float64           `json:"match_score,omitempty"`
}

// SwotOutput is the SWOT stage result.
type SwotOutput struct {
	Strengths            []string `json:"strengths"`
	Weaknesses           []string `json:"weaknesses"`
	Opportunities        []string `json:"opportunities"`
	Threats              []string `json:"threats"`
	PositioningStatement string   `json:"positioning_statement"`
}

// Patch types a refiner diff may use.
const (
	PatchInsert  = "insert"
	PatchReplace = "replace"
	PatchDelete  = "delete"
)

// RefinerDiff is one proposed edit to a resume source file.
type RefinerDiff struct {
	TargetFile string `json:"target_file"`
	PatchType  string `json:"patch_type"`
	Anchor     string `json:"anchor"`
	Content    string `json:"content"`
	Rationale  string `json:"rationale"`
}

// RefinerOutput is the refiner stage result.
type RefinerOutput struct {
	Diffs []RefinerDiff `json:"diffs"`
}

// Judge verdicts.
const (
	VerdictPass   = "PASS"
	VerdictRevise = "REVISE"
)

// NumericScores are the judge's 0-10 ratings.
type NumericScores struct {
	Clarity float64 `json:"clarity"`
	Brevity float64 `json:"brevity"`
	Impact  float64 `json:"impact"`
	ATSFit  float64 `json:"ats_fit"`
}

// Average returns the mean of the four scores.
func (s NumericScores) Average() float64 {
	return (s.Clarity + s.Brevity + s.Impact + s.ATSFit) / 4
}

// Flag marks a file the judge wants a human to look at.
type Flag struct {
	File       string `json:"file"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// JudgeOutput is the judge stage result.
type JudgeOutput struct {
	Status        string        `json:"status"`
	Reasons       []string      `json:"reasons"`
	NumericScores NumericScores `json:"numeric_scores"`
	Flagged       []Flag        `json:"flagged"`
}

// Accepted reports whether the verdict passes the given average-score floor.
func (j JudgeOutput) Accepted(minAverage float64) bool {
	return j.Status == VerdictPass && j.NumericScores.Average() >= minAverage
}

// FinalizerOutput is the finalizer stage result.
type FinalizerOutput struct {
	Document string   `json:"document"`
	Applied  int      `json:"applied"`
	Skipped  int      `json:"skipped"`
	Notes    []string `json:"notes"`
}
