package margin

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marginwatch/internal/errors"
)

func defaultThresholds() Thresholds {
	return Thresholds{Abs: 5_000_000, Pct: 0.25, Z: 3.0}
}

func artifactPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "outliers_rules.csv")
}

func TestEvaluateParameterValidation(t *testing.T) {
	eval := NewEvaluator(nil)
	rows := []Record{{Center: "NPM", Header: "ACC-1", AppliedT1: 100, AppliedT: 200}}

	tests := []struct {
		name string
		th   Thresholds
		topN int
	}{
		{"zero top_n", defaultThresholds(), 0},
		{"negative top_n", defaultThresholds(), -5},
		{"negative abs threshold", Thresholds{Abs: -1, Pct: 0.25, Z: 3}, 20},
		{"negative pct threshold", Thresholds{Abs: 1, Pct: -0.25, Z: 3}, 20},
		{"negative z threshold", Thresholds{Abs: 1, Pct: 0.25, Z: -3}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.Evaluate(context.Background(), rows, "NPM", tt.th, tt.topN, artifactPath(t))
			var invalid *apperrors.InvalidParameterError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestEvaluateAbsThresholdScenario(t *testing.T) {
	rows := []Record{
		{Center: "NPM", Header: "ACC-A", AppliedT1: 1_000_000, AppliedT: 7_000_000},
		{Center: "NPM", Header: "ACC-B", AppliedT1: 1_000_000, AppliedT: 1_050_000},
	}

	eval := NewEvaluator(nil)
	result, err := eval.Evaluate(context.Background(), rows, "NPM", defaultThresholds(), 20, artifactPath(t))
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 1, result.FlaggedCount)
	require.Len(t, result.TopOutliers, 1)

	a := result.TopOutliers[0]
	assert.Equal(t, "ACC-A", a.Header)
	assert.Equal(t, 6_000_000.0, a.Delta)
	assert.True(t, a.Flag, "delta exceeds abs_threshold regardless of pct and z")

	// In a two-row cohort each delta sits one population stddev from the
	// mean, so ACC-B stays below every threshold.
	require.NotNil(t, a.ZScore)
	assert.InDelta(t, 1.0, math.Abs(*a.ZScore), 1e-9)
}

func TestEvaluateCenterFilter(t *testing.T) {
	rows := []Record{
		{Center: "NPM", Header: "ACC-A", AppliedT1: 100, AppliedT: 10_000_000},
		{Center: "OTH", Header: "ACC-B", AppliedT1: 100, AppliedT: 10_000_000},
	}
	eval := NewEvaluator(nil)

	t.Run("case sensitive exact match", func(t *testing.T) {
		result, err := eval.Evaluate(context.Background(), rows, "npm", defaultThresholds(), 20, artifactPath(t))
		require.NoError(t, err)
		assert.Equal(t, 0, result.TotalCount)
		assert.Equal(t, 0, result.FlaggedCount)
		assert.Empty(t, result.TopOutliers)
	})

	t.Run("only matching center evaluated", func(t *testing.T) {
		result, err := eval.Evaluate(context.Background(), rows, "NPM", defaultThresholds(), 20, artifactPath(t))
		require.NoError(t, err)
		assert.Equal(t, 1, result.TotalCount)
		require.Len(t, result.TopOutliers, 1)
		assert.Equal(t, "ACC-A", result.TopOutliers[0].Header)
	})
}

func TestEvaluateZeroPriorApplied(t *testing.T) {
	rows := []Record{
		{Center: "NPM", Header: "ACC-A", AppliedT1: 0, AppliedT: 6_000_000},
		{Center: "NPM", Header: "ACC-B", AppliedT1: 100, AppliedT: 200},
	}
	eval := NewEvaluator(nil)
	result, err := eval.Evaluate(context.Background(), rows, "NPM", defaultThresholds(), 20, artifactPath(t))
	require.NoError(t, err)

	require.Len(t, result.TopOutliers, 1)
	a := result.TopOutliers[0]
	assert.Equal(t, "ACC-A", a.Header)
	assert.Nil(t, a.PctChange, "pct_change undefined when applied_t1 is zero")
	assert.True(t, a.Flag, "abs rule still flags the row")
}

func TestEvaluateTruncation(t *testing.T) {
	// Four-row cohort with spread deltas; abs threshold low enough to
	// flag the two largest movers.
	rows := []Record{
		{Center: "NPM", Header: "ACC-A", AppliedT1: 0, AppliedT: 1000},
		{Center: "NPM", Header: "ACC-B", AppliedT1: 0, AppliedT: 400},
		{Center: "NPM", Header: "ACC-C", AppliedT1: 0, AppliedT: 10},
		{Center: "NPM", Header: "ACC-D", AppliedT1: 0, AppliedT: 20},
	}
	eval := NewEvaluator(nil)
	result, err := eval.Evaluate(context.Background(), rows, "NPM", Thresholds{Abs: 300, Pct: 1000, Z: 1000}, 1, artifactPath(t))
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalCount)
	assert.Equal(t, 2, result.FlaggedCount, "counts reflect the untruncated evaluation")
	require.Len(t, result.TopOutliers, 1)
	assert.Equal(t, "ACC-A", result.TopOutliers[0].Header, "largest |z| ranks first")
}

func TestEvaluateRankingStableForTies(t *testing.T) {
	// Identical deltas across the cohort: stddev is zero, z undefined,
	// ties everywhere. Original order must survive.
	rows := []Record{
		{Center: "NPM", Header: "ACC-A", AppliedT1: 0, AppliedT: 500},
		{Center: "NPM", Header: "ACC-B", AppliedT1: 0, AppliedT: 500},
		{Center: "NPM", Header: "ACC-C", AppliedT1: 0, AppliedT: 500},
	}
	eval := NewEvaluator(nil)
	result, err := eval.Evaluate(context.Background(), rows, "NPM", Thresholds{Abs: 100, Pct: 1000, Z: 1000}, 20, artifactPath(t))
	require.NoError(t, err)

	require.Len(t, result.TopOutliers, 3)
	assert.Equal(t, "ACC-A", result.TopOutliers[0].Header)
	assert.Equal(t, "ACC-B", result.TopOutliers[1].Header)
	assert.Equal(t, "ACC-C", result.TopOutliers[2].Header)
	for _, r := range result.TopOutliers {
		assert.Nil(t, r.ZScore, "zero spread leaves z undefined")
	}
}

func TestEvaluateUndefinedZSortsLast(t *testing.T) {
	// Two date cohorts: one with spread (defined z), one single-row
	// cohort (undefined z). Defined z must rank ahead.
	rows := []Record{
		{Center: "NPM", Date: "2025-05", Header: "ACC-SOLO", AppliedT1: 0, AppliedT: 9_000},
		{Center: "NPM", Date: "2025-06", Header: "ACC-A", AppliedT1: 0, AppliedT: 1_000},
		{Center: "NPM", Date: "2025-06", Header: "ACC-B", AppliedT1: 0, AppliedT: 100},
	}
	eval := NewEvaluator(nil)
	result, err := eval.Evaluate(context.Background(), rows, "NPM", Thresholds{Abs: 500, Pct: 1000, Z: 1000}, 20, artifactPath(t))
	require.NoError(t, err)

	require.Len(t, result.TopOutliers, 2)
	assert.Equal(t, "ACC-A", result.TopOutliers[0].Header)
	assert.Equal(t, "ACC-SOLO", result.TopOutliers[1].Header)
	assert.Equal(t, "2025-05, 2025-06", result.DatesAnalyzed)
}

func TestEvaluateIgnoresUpstreamDerivedFields(t *testing.T) {
	staleZ := 99.0
	stalePct := 42.0
	rows := []Record{
		{Center: "NPM", Header: "ACC-A", AppliedT1: 100, AppliedT: 110,
			Delta: 123456, PctChange: &stalePct, ZScore: &staleZ, Flag: true},
	}
	eval := NewEvaluator(nil)
	result, err := eval.Evaluate(context.Background(), rows, "NPM", defaultThresholds(), 20, artifactPath(t))
	require.NoError(t, err)

	assert.Equal(t, 0, result.FlaggedCount, "stale upstream metrics are recomputed, not trusted")
	assert.Empty(t, result.TopOutliers)
}

func TestEvaluatePersistenceError(t *testing.T) {
	rows := []Record{{Center: "NPM", Header: "ACC-A", AppliedT1: 100, AppliedT: 200}}
	eval := NewEvaluator(nil)

	badPath := filepath.Join(t.TempDir(), "no-such-dir", "out.csv")
	_, err := eval.Evaluate(context.Background(), rows, "NPM", defaultThresholds(), 20, badPath)
	var persist *apperrors.PersistenceError
	require.ErrorAs(t, err, &persist)
	assert.Equal(t, badPath, persist.Path)
}

func TestEvaluateArtifactRoundTrip(t *testing.T) {
	rows := []Record{
		{Center: "NPM", Date: "2025-06", Header: "ACC-A", AppliedT1: 1_000_000, AppliedT: 7_000_000},
		{Center: "NPM", Date: "2025-06", Header: "ACC-B", AppliedT1: 1_000_000, AppliedT: 1_050_000},
		{Center: "NPM", Date: "2025-06", Header: "ACC-C", AppliedT1: 0, AppliedT: 300_000},
	}
	out := artifactPath(t)
	eval := NewEvaluator(nil)
	first, err := eval.Evaluate(context.Background(), rows, "NPM", defaultThresholds(), 20, out)
	require.NoError(t, err)

	loader := NewLoader(nil)
	reloaded, err := loader.Load(context.Background(), out)
	require.NoError(t, err)
	require.Len(t, reloaded, 3)

	for i, r := range reloaded {
		assert.Equal(t, rows[i].Header, r.Header)
		assert.Equal(t, rows[i].AppliedT1, r.AppliedT1)
		assert.Equal(t, rows[i].AppliedT, r.AppliedT)
		assert.Equal(t, rows[i].AppliedT-rows[i].AppliedT1, r.Delta)
	}

	second, err := eval.Evaluate(context.Background(), reloaded, "NPM", defaultThresholds(), 20,
		filepath.Join(t.TempDir(), "again.csv"))
	require.NoError(t, err)

	assert.Equal(t, first.FlaggedCount, second.FlaggedCount)
	assert.Equal(t, first.TotalCount, second.TotalCount)
	require.Equal(t, len(first.TopOutliers), len(second.TopOutliers))
	for i := range first.TopOutliers {
		assert.Equal(t, first.TopOutliers[i].Header, second.TopOutliers[i].Header)
		assert.Equal(t, first.TopOutliers[i].Flag, second.TopOutliers[i].Flag)
	}
}
