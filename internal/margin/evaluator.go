package margin

import (
	"context"
	"log/slog"
	"math"
	"sort"

	apperrors "marginwatch/internal/errors"
)

// Evaluator applies the threshold rules to a loaded row set, ranks the
// flagged rows and persists the full evaluation as a CSV artifact.
type Evaluator struct {
	logger *slog.Logger
	rules  []Rule
}

// NewEvaluator creates an evaluator with the default rule set.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		logger: logger.With(slog.String("component", "evaluator")),
		rules:  defaultRules(),
	}
}

// Evaluate filters rows to the requested center, recomputes every
// derived field against the center+date cohorts, flags rows whose
// metrics cross any configured threshold, and writes the full evaluated
// set to outPath. The returned result holds the ranked top-N view;
// FlaggedCount and TotalCount always cover the full evaluation.
//
// Parameter validation happens before any row is touched. An empty
// center filter is not an error: it yields zero flagged rows.
func (e *Evaluator) Evaluate(ctx context.Context, rows []Record, center string, th Thresholds, topN int, outPath string) (*EvaluationResult, error) {
	if topN <= 0 {
		return nil, apperrors.NewInvalidParameter("top_n", topN, "must be positive")
	}
	if err := th.Validate(); err != nil {
		return nil, apperrors.NewInvalidParameter("thresholds", th, err.Error())
	}

	evaluated := filterCenter(rows, center)
	annotate(evaluated)

	flagged := 0
	for i := range evaluated {
		_, hit := judge(evaluated[i], th, e.rules)
		evaluated[i].Flag = hit
		if hit {
			flagged++
		}
	}

	top := rankFlagged(evaluated)
	if len(top) > topN {
		top = top[:topN]
	}

	result := &EvaluationResult{
		TopOutliers:   top,
		FlaggedCount:  flagged,
		TotalCount:    len(evaluated),
		DatesAnalyzed: datesAnalyzed(evaluated),
		OutputFile:    outPath,
	}

	if err := writeArtifact(outPath, evaluated); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "evaluation complete",
		slog.String("center", center),
		slog.Int("total", result.TotalCount),
		slog.Int("flagged", result.FlaggedCount),
		slog.Int("top_n", topN),
		slog.String("artifact", outPath),
	)
	return result, nil
}

func filterCenter(rows []Record, center string) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if r.Center == center {
			out = append(out, r)
		}
	}
	return out
}

// rankFlagged orders flagged rows by descending |z_score| with undefined
// z-scores last, ties broken by descending |delta|, stable beyond that.
func rankFlagged(rows []Record) []Record {
	flagged := make([]Record, 0, len(rows))
	for _, r := range rows {
		if r.Flag {
			flagged = append(flagged, r)
		}
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		zi, zj := flagged[i].ZScore, flagged[j].ZScore
		switch {
		case zi != nil && zj == nil:
			return true
		case zi == nil && zj != nil:
			return false
		case zi != nil && zj != nil:
			if math.Abs(*zi) != math.Abs(*zj) {
				return math.Abs(*zi) > math.Abs(*zj)
			}
		}
		return math.Abs(flagged[i].Delta) > math.Abs(flagged[j].Delta)
	})
	return flagged
}
