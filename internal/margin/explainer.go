package margin

import (
	"context"
	"log/slog"

	apperrors "marginwatch/internal/errors"
)

// Explainer derives the rationale for a single account's flag outcome.
// It shares the evaluator's rule list and annotation pass, so for the
// same rows and thresholds its flag always matches Evaluate's.
type Explainer struct {
	logger *slog.Logger
	rules  []Rule
}

// NewExplainer creates an explainer with the default rule set.
func NewExplainer(logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{
		logger: logger.With(slog.String("component", "explainer")),
		rules:  defaultRules(),
	}
}

// Explain locates the unique row matching (center, header), recomputes
// its metrics against the full center+date cohort and reports how each
// rule judged it. Zero matches or more than one match is a NotFoundError;
// an ambiguous account is a data-quality problem, not something to
// resolve by picking a row.
func (ex *Explainer) Explain(ctx context.Context, rows []Record, center, header string, th Thresholds) (*Explanation, error) {
	if err := th.Validate(); err != nil {
		return nil, apperrors.NewInvalidParameter("thresholds", th, err.Error())
	}

	cohort := filterCenter(rows, center)
	annotate(cohort)

	matches := 0
	var target Record
	for _, r := range cohort {
		if r.Header == header {
			matches++
			target = r
		}
	}
	if matches != 1 {
		return nil, &apperrors.NotFoundError{Center: center, Header: header, Matches: matches}
	}

	findings, flagged := judge(target, th, ex.rules)
	target.Flag = flagged

	ex.logger.InfoContext(ctx, "explanation generated",
		slog.String("center", center),
		slog.String("header", header),
		slog.Bool("flag", flagged),
	)

	return &Explanation{
		Record:   target,
		Findings: findings,
		Flag:     flagged,
		Summary:  buildSummary(header, findings, flagged),
	}, nil
}
