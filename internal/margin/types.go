package margin

import (
	"fmt"
	"strings"
)

// Record represents one (center, header, date) margin observation.
// PctChange and ZScore are nil when undefined: pct_change has no value
// when the prior-period applied is zero, and z_score has no value when
// the peer cohort is smaller than two rows or has zero spread.
type Record struct {
	Center    string   `json:"center"`
	Date      string   `json:"date,omitempty"`
	Header    string   `json:"header"`
	AppliedT1 float64  `json:"applied_t1"`
	AppliedT  float64  `json:"applied_t"`
	Delta     float64  `json:"delta"`
	PctChange *float64 `json:"pct_change,omitempty"`
	ZScore    *float64 `json:"z_score,omitempty"`
	Flag      bool     `json:"flag"`
}

// CohortKey identifies the peer population a record is scored against.
func (r Record) CohortKey() string {
	return r.Center + "\x00" + r.Date
}

// Thresholds holds the three rule magnitudes. All are compared against
// absolute values, so negative thresholds are invalid.
type Thresholds struct {
	Abs float64 `json:"abs_threshold"`
	Pct float64 `json:"pct_threshold"`
	Z   float64 `json:"z_threshold"`
}

// Validate checks that all thresholds are non-negative magnitudes.
func (t Thresholds) Validate() error {
	switch {
	case t.Abs < 0:
		return fmt.Errorf("abs_threshold must be non-negative, got %g", t.Abs)
	case t.Pct < 0:
		return fmt.Errorf("pct_threshold must be non-negative, got %g", t.Pct)
	case t.Z < 0:
		return fmt.Errorf("z_threshold must be non-negative, got %g", t.Z)
	}
	return nil
}

// EvaluationResult is the outcome of one evaluation run. TopOutliers is
// the ranked, truncated view; FlaggedCount and TotalCount always reflect
// the full untruncated evaluation. The result is authoritative: the
// written artifact is a side effect and is never parsed back to rebuild
// a response.
type EvaluationResult struct {
	TopOutliers   []Record `json:"top_outliers"`
	FlaggedCount  int      `json:"flagged_count"`
	TotalCount    int      `json:"total_count"`
	DatesAnalyzed string   `json:"dates_analyzed"`
	OutputFile    string   `json:"output_file"`
}

// RuleFinding records how a single rule judged a record.
type RuleFinding struct {
	Rule      string   `json:"rule"`
	Value     *float64 `json:"value,omitempty"`
	Threshold float64  `json:"threshold"`
	Triggered bool     `json:"triggered"`
}

// Explanation is the rationale for a single account's flag outcome. Its
// Flag is the OR of the findings and always matches what Evaluate would
// produce for the same row and thresholds.
type Explanation struct {
	Record   Record        `json:"record"`
	Findings []RuleFinding `json:"findings"`
	Flag     bool          `json:"flag"`
	Summary  string        `json:"summary"`
}

// describeValue formats an optional metric for the rationale text.
func describeValue(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%g", *v)
}

// buildSummary renders the findings as one human-readable rationale.
func buildSummary(header string, findings []RuleFinding, flag bool) string {
	var b strings.Builder
	if flag {
		fmt.Fprintf(&b, "Account %s is flagged as an outlier.", header)
	} else {
		fmt.Fprintf(&b, "Account %s is not flagged.", header)
	}
	for _, f := range findings {
		verdict := "below threshold"
		if f.Triggered {
			verdict = "exceeds threshold"
		}
		if f.Value == nil {
			verdict = "not applicable"
		}
		fmt.Fprintf(&b, " %s: value %s vs threshold %g (%s).",
			f.Rule, describeValue(f.Value), f.Threshold, verdict)
	}
	return b.String()
}
