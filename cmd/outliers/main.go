package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"marginwatch/internal/margin"
	"marginwatch/internal/services"
)

type centerSummary struct {
	center string
	result *margin.EvaluationResult
}

func main() {
	var (
		csvPath = flag.String("csv", "data/sample_summary.csv", "source CSV or Excel file")
		centers = flag.String("centers", "NPM", "comma-separated list of centers to evaluate")
		absTh   = flag.Float64("abs", 5_000_000, "absolute delta threshold")
		pctTh   = flag.Float64("pct", 0.25, "percentage change threshold")
		zTh     = flag.Float64("z", 3.0, "z-score threshold")
		topN    = flag.Int("top", 20, "number of top outliers to report per center")
		outDir  = flag.String("out", "out", "output directory for artifacts")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger, *csvPath, *centers, margin.Thresholds{
		Abs: *absTh,
		Pct: *pctTh,
		Z:   *zTh,
	}, *topN, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run evaluates every requested center concurrently, one artifact per
// center, and prints a combined summary.
func run(ctx context.Context, logger *slog.Logger, csvPath, centerList string, th margin.Thresholds, topN int, outDir string) error {
	svc := services.NewOutlierService(logger)

	var centers []string
	for _, c := range strings.Split(centerList, ",") {
		if c = strings.TrimSpace(c); c != "" {
			centers = append(centers, c)
		}
	}
	if len(centers) == 0 {
		return fmt.Errorf("no centers specified")
	}

	var (
		mu        sync.Mutex
		summaries []centerSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, center := range centers {
		center := center
		g.Go(func() error {
			result, _, err := svc.Detect(gctx, services.DetectRequest{
				SourcePath: csvPath,
				Center:     center,
				Thresholds: th,
				TopN:       topN,
				OutputPath: filepath.Join(outDir, fmt.Sprintf("outliers_%s.csv", center)),
			})
			if err != nil {
				return fmt.Errorf("center %s: %w", center, err)
			}

			mu.Lock()
			summaries = append(summaries, centerSummary{center: center, result: result})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(os.Stdout, summaries)
	return nil
}

func printSummary(out *os.File, summaries []centerSummary) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CENTER\tTOTAL\tFLAGGED\tDATES\tARTIFACT")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			s.center,
			s.result.TotalCount,
			s.result.FlaggedCount,
			s.result.DatesAnalyzed,
			s.result.OutputFile,
		)
	}
	w.Flush()

	for _, s := range summaries {
		if len(s.result.TopOutliers) == 0 {
			continue
		}
		fmt.Fprintf(out, "\nTop outliers for %s:\n", s.center)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HEADER\tAPPLIED_t1\tAPPLIED_t\tΔ\t%Δ\tZ")
		for _, r := range s.result.TopOutliers {
			fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%.0f\t%s\t%s\n",
				r.Header, r.AppliedT1, r.AppliedT, r.Delta,
				formatMetric(r.PctChange), formatMetric(r.ZScore))
		}
		tw.Flush()
	}
}

func formatMetric(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}
