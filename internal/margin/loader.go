package margin

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "marginwatch/internal/errors"
)

// Canonical field names resolved by the alias table.
const (
	fieldCenter    = "center"
	fieldDate      = "date"
	fieldHeader    = "header"
	fieldAppliedT1 = "applied_t1"
	fieldAppliedT  = "applied_t"
	fieldDelta     = "delta"
	fieldPctChange = "pct_change"
	fieldZScore    = "z_score"
	fieldFlag      = "flag"
)

// fieldAliases maps each canonical field to the raw column names it may
// appear under. Matching is case- and whitespace-insensitive; the alias
// resolution happens once per source, so downstream code only ever sees
// canonical fields.
var fieldAliases = map[string][]string{
	fieldCenter:    {"center"},
	fieldDate:      {"date", "as_of_date"},
	fieldHeader:    {"header", "header_account_id", "account"},
	fieldAppliedT1: {"applied_t1", "applied_t-1"},
	fieldAppliedT:  {"applied_t"},
	fieldDelta:     {"δ", "delta"},
	fieldPctChange: {"%δ", "pct_change"},
	fieldZScore:    {"z", "z_score"},
	fieldFlag:      {"flag"},
}

// truthyTokens are the accepted spellings of a set flag, matched
// case-insensitively. Anything else reads as false.
var truthyTokens = map[string]struct{}{
	"true": {}, "1": {}, "yes": {}, "✓": {},
}

// TruthyToken is the canonical spelling used when rendering a set flag.
const TruthyToken = "true"

// FalsyToken is the canonical spelling used when rendering a clear flag.
const FalsyToken = "false"

// Loader reads a delimited CSV source or an Excel workbook into Records.
// Loading is a pure read: the source is never mutated.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger.With(slog.String("component", "loader"))}
}

// Load reads all rows from the source at path. Excel workbooks (.xlsx,
// .xlsm) read from the first sheet whose header row resolves; anything
// else is treated as CSV. Every unusable row is collected into a single
// aggregate MalformedInputError.
func (l *Loader) Load(ctx context.Context, path string) ([]Record, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var table [][]string
	var err error
	switch ext {
	case ".xlsx", ".xlsm":
		table, err = l.readWorkbook(path)
	default:
		table, err = l.readCSV(path)
	}
	if err != nil {
		return nil, err
	}

	rows, err := l.parseTable(path, table)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "loaded source",
		slog.String("path", path),
		slog.Int("rows", len(rows)),
	)
	return rows, nil
}

func (l *Loader) readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	table, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV %s: %w", path, err)
	}
	return table, nil
}

func (l *Loader) readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		if headerRowIndex(rows) >= 0 {
			l.logger.Debug("found data sheet", slog.String("sheet", name))
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no sheet in %s has a recognizable header row", path)
}

// headerRowIndex locates the first row that resolves the header column
// and at least one applied column through the alias table.
func headerRowIndex(table [][]string) int {
	for i, row := range table {
		cols := resolveColumns(row)
		if _, ok := cols[fieldHeader]; !ok {
			continue
		}
		_, t1 := cols[fieldAppliedT1]
		_, t := cols[fieldAppliedT]
		if t1 || t {
			return i
		}
	}
	return -1
}

// resolveColumns maps canonical field names to column indexes for one
// raw header row.
func resolveColumns(row []string) map[string]int {
	byAlias := make(map[string]string)
	for canonical, aliases := range fieldAliases {
		for _, a := range aliases {
			byAlias[a] = canonical
		}
	}

	cols := make(map[string]int)
	for i, cell := range row {
		key := strings.ToLower(strings.TrimSpace(cell))
		canonical, ok := byAlias[key]
		if !ok {
			continue
		}
		if _, dup := cols[canonical]; !dup {
			cols[canonical] = i
		}
	}
	return cols
}

// parseTable converts raw table rows into Records. Line numbers in row
// issues are 1-based positions in the source, counting the header row.
func (l *Loader) parseTable(source string, table [][]string) ([]Record, error) {
	headerIdx := headerRowIndex(table)
	if headerIdx < 0 {
		return nil, fmt.Errorf("source %s has no recognizable header row", source)
	}
	cols := resolveColumns(table[headerIdx])

	var records []Record
	var issues []apperrors.RowIssue

	for i := headerIdx + 1; i < len(table); i++ {
		row := table[i]
		if isBlankRow(row) {
			continue
		}
		rec, issue := parseRow(row, cols)
		if issue != "" {
			issues = append(issues, apperrors.RowIssue{Line: i + 1, Reason: issue})
			continue
		}
		records = append(records, rec)
	}

	if len(issues) > 0 {
		return nil, &apperrors.MalformedInputError{Source: source, Rows: issues}
	}
	return records, nil
}

// parseRow builds one Record. A row is malformed when its applied pair
// cannot be resolved: both values absent, or one absent with no delta
// column to back the missing one out.
func parseRow(row []string, cols map[string]int) (Record, string) {
	rec := Record{
		Center: cellString(row, cols, fieldCenter),
		Date:   cellString(row, cols, fieldDate),
		Header: cellString(row, cols, fieldHeader),
	}

	t1, hasT1 := cellFloat(row, cols, fieldAppliedT1)
	t, hasT := cellFloat(row, cols, fieldAppliedT)
	delta, hasDelta := cellFloat(row, cols, fieldDelta)

	switch {
	case hasT1 && hasT:
		rec.AppliedT1, rec.AppliedT = t1, t
	case !hasT1 && !hasT:
		return rec, "missing both applied_t1 and applied_t"
	case hasT && hasDelta:
		rec.AppliedT = t
		rec.AppliedT1 = t - delta
	case hasT1 && hasDelta:
		rec.AppliedT1 = t1
		rec.AppliedT = t1 + delta
	default:
		return rec, "missing one applied value with no delta to derive it"
	}

	if hasDelta {
		rec.Delta = delta
	} else {
		rec.Delta = rec.AppliedT - rec.AppliedT1
	}
	if pct, ok := cellFloat(row, cols, fieldPctChange); ok {
		rec.PctChange = &pct
	}
	if z, ok := cellFloat(row, cols, fieldZScore); ok {
		rec.ZScore = &z
	}
	rec.Flag = parseFlag(cellString(row, cols, fieldFlag))

	return rec, ""
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cellString(row []string, cols map[string]int, field string) string {
	idx, ok := cols[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// cellFloat parses a numeric cell, tolerating thousands separators as
// they appear in exported financial extracts.
func cellFloat(row []string, cols map[string]int, field string) (float64, bool) {
	raw := cellString(row, cols, field)
	if raw == "" {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFlag(raw string) bool {
	_, ok := truthyTokens[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}
