// Package margin implements the margin outlier detection and explanation
// engine.
//
// The engine takes a tabular extract of margin figures keyed by reporting
// center and account, and flags rows whose period-over-period change is
// anomalous under three configurable criteria: absolute delta, percentage
// change, and statistical deviation (z-score) against the row's
// center+date peer cohort.
//
// # Components
//
//   - loader.go: reads CSV or Excel sources and resolves heterogeneous
//     column aliases through one alias table into a canonical row model
//   - stats.go: two-phase cohort pipeline (group, aggregate, annotate)
//     that recomputes every derived field from the applied values
//   - rules.go: the ordered criterion list shared by the evaluator and
//     the explainer
//   - evaluator.go: flagging, ranking, truncation and artifact output
//   - explainer.go: per-account rationale generation
//   - persist.go: the round-trippable CSV artifact writer
//
// Each invocation is stateless and synchronous. The only shared mutable
// resource is the artifact path: concurrent evaluations targeting the
// same output path race on the overwrite, and callers must serialize
// such writes themselves.
//
// # Usage
//
//	loader := margin.NewLoader(logger)
//	rows, err := loader.Load(ctx, "data/sample_summary.csv")
//	if err != nil {
//	    return err
//	}
//
//	eval := margin.NewEvaluator(logger)
//	result, err := eval.Evaluate(ctx, rows, "NPM", margin.Thresholds{
//	    Abs: 5_000_000,
//	    Pct: 0.25,
//	    Z:   3.0,
//	}, 20, "out/outliers_rules.csv")
package margin
