package margin

import "math"

// Rule is one outlier criterion: a named metric extractor paired with the
// threshold it is compared against. A rule triggers when the metric is
// defined and its absolute value reaches the threshold; an undefined
// metric never triggers and never suppresses the other rules.
type Rule struct {
	Name      string
	value     func(Record) *float64
	threshold func(Thresholds) float64
}

// Finding evaluates the rule against one record.
func (r Rule) Finding(rec Record, th Thresholds) RuleFinding {
	v := r.value(rec)
	limit := r.threshold(th)
	triggered := v != nil && math.Abs(*v) >= limit
	return RuleFinding{
		Rule:      r.Name,
		Value:     v,
		Threshold: limit,
		Triggered: triggered,
	}
}

// defaultRules is the ordered criterion list shared by the evaluator and
// the explainer. Both components must judge a record through this one
// list so their flag outcomes can never diverge.
func defaultRules() []Rule {
	return []Rule{
		{
			Name:      "absolute_delta",
			value:     func(r Record) *float64 { d := r.Delta; return &d },
			threshold: func(t Thresholds) float64 { return t.Abs },
		},
		{
			Name:      "percent_change",
			value:     func(r Record) *float64 { return r.PctChange },
			threshold: func(t Thresholds) float64 { return t.Pct },
		},
		{
			Name:      "z_score",
			value:     func(r Record) *float64 { return r.ZScore },
			threshold: func(t Thresholds) float64 { return t.Z },
		},
	}
}

// judge runs every rule against a record. The flag is the OR of the
// individual findings.
func judge(rec Record, th Thresholds, rules []Rule) ([]RuleFinding, bool) {
	findings := make([]RuleFinding, 0, len(rules))
	flagged := false
	for _, rule := range rules {
		f := rule.Finding(rec, th)
		findings = append(findings, f)
		flagged = flagged || f.Triggered
	}
	return findings, flagged
}
