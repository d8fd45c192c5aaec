package margin

import (
	"math"
	"sort"
	"strings"
)

// cohortStats holds the delta distribution of one center+date cohort.
type cohortStats struct {
	count  int
	mean   float64
	stddev float64
}

// annotate recomputes every derived field in place. Upstream values for
// delta, pct_change and z_score are discarded: the derived fields are
// always rebuilt from applied_t1/applied_t and the cohort so stale or
// inconsistent source columns cannot leak through.
//
// Two phases: a grouping pass accumulates per-cohort delta statistics,
// then a second pass annotates each record with its z-score.
func annotate(rows []Record) {
	for i := range rows {
		rows[i].Delta = rows[i].AppliedT - rows[i].AppliedT1
		if rows[i].AppliedT1 != 0 {
			pct := rows[i].Delta / rows[i].AppliedT1
			rows[i].PctChange = &pct
		} else {
			rows[i].PctChange = nil
		}
		rows[i].ZScore = nil
		rows[i].Flag = false
	}

	stats := groupCohorts(rows)

	for i := range rows {
		cs, ok := stats[rows[i].CohortKey()]
		if !ok || cs.count < 2 || cs.stddev == 0 {
			continue
		}
		z := (rows[i].Delta - cs.mean) / cs.stddev
		rows[i].ZScore = &z
	}
}

// groupCohorts aggregates mean and population stddev of delta per cohort.
func groupCohorts(rows []Record) map[string]cohortStats {
	sums := make(map[string]*cohortStats)
	for _, r := range rows {
		cs, ok := sums[r.CohortKey()]
		if !ok {
			cs = &cohortStats{}
			sums[r.CohortKey()] = cs
		}
		cs.count++
		cs.mean += r.Delta
	}
	for _, cs := range sums {
		cs.mean /= float64(cs.count)
	}
	for _, r := range rows {
		cs := sums[r.CohortKey()]
		d := r.Delta - cs.mean
		cs.stddev += d * d
	}

	out := make(map[string]cohortStats, len(sums))
	for key, cs := range sums {
		cs.stddev = math.Sqrt(cs.stddev / float64(cs.count))
		out[key] = *cs
	}
	return out
}

// datesAnalyzed collects the distinct date labels of the given rows,
// sorted, as one comma-separated descriptor. Sources without a date
// column yield an empty descriptor.
func datesAnalyzed(rows []Record) string {
	seen := make(map[string]struct{})
	var dates []string
	for _, r := range rows {
		if r.Date == "" {
			continue
		}
		if _, ok := seen[r.Date]; ok {
			continue
		}
		seen[r.Date] = struct{}{}
		dates = append(dates, r.Date)
	}
	sort.Strings(dates)
	return strings.Join(dates, ", ")
}
