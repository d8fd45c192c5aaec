package margin

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	apperrors "marginwatch/internal/errors"
)

// artifactHeader is the canonical column order of a written evaluation.
// CENTER and DATE precede the metric columns so the artifact carries the
// full cohort key and re-loads through the Loader without loss.
var artifactHeader = []string{
	"CENTER", "DATE", "HEADER", "APPLIED_t1", "APPLIED_t", "Δ", "%Δ", "Z", "FLAG",
}

// writeArtifact persists the full evaluated row set (flagged and
// unflagged) to path, overwriting any existing file. Rows are written in
// evaluation order. Any failure surfaces as a PersistenceError.
func writeArtifact(path string, rows []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return &apperrors.PersistenceError{Path: path, Err: err}
	}

	w := csv.NewWriter(f)
	if err := w.Write(artifactHeader); err != nil {
		f.Close()
		return &apperrors.PersistenceError{Path: path, Err: fmt.Errorf("write header: %w", err)}
	}
	for _, r := range rows {
		if err := w.Write(artifactRow(r)); err != nil {
			f.Close()
			return &apperrors.PersistenceError{Path: path, Err: fmt.Errorf("write row %s: %w", r.Header, err)}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return &apperrors.PersistenceError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &apperrors.PersistenceError{Path: path, Err: err}
	}
	return nil
}

func artifactRow(r Record) []string {
	flag := FalsyToken
	if r.Flag {
		flag = TruthyToken
	}
	return []string{
		r.Center,
		r.Date,
		r.Header,
		formatFloat(r.AppliedT1),
		formatFloat(r.AppliedT),
		formatFloat(r.Delta),
		formatOptional(r.PctChange),
		formatOptional(r.ZScore),
		flag,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatOptional renders an undefined metric as an empty cell so the
// loader reads it back as undefined.
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
