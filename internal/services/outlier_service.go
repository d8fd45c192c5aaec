package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	apperrors "marginwatch/internal/errors"
	"marginwatch/internal/margin"
)

// OutlierService is the caller side of the engine contract: it validates
// that the source exists, creates the output directory, and invokes the
// loader, evaluator and explainer. Invocations are stateless; concurrent
// calls targeting the same artifact path race on the overwrite and must
// be serialized by whoever issues them.
type OutlierService struct {
	loader    *margin.Loader
	evaluator *margin.Evaluator
	explainer *margin.Explainer
	logger    *slog.Logger
}

// NewOutlierService creates a new outlier service
func NewOutlierService(logger *slog.Logger) *OutlierService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutlierService{
		loader:    margin.NewLoader(logger),
		evaluator: margin.NewEvaluator(logger),
		explainer: margin.NewExplainer(logger),
		logger:    logger.With(slog.String("service", "outlier")),
	}
}

// DetectRequest carries the parameters of one detection run.
type DetectRequest struct {
	SourcePath string
	Center     string
	Thresholds margin.Thresholds
	TopN       int
	OutputPath string
	Header     string // optional: also explain this account
}

// Detect runs outlier detection over the source and, when a header is
// supplied, derives its explanation from the same loaded rows.
func (s *OutlierService) Detect(ctx context.Context, req DetectRequest) (*margin.EvaluationResult, *margin.Explanation, error) {
	if _, err := os.Stat(req.SourcePath); err != nil {
		return nil, nil, apperrors.SourceNotFoundError(req.SourcePath)
	}
	if dir := filepath.Dir(req.OutputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, apperrors.FileSystemError("create output directory", err)
		}
	}

	rows, err := s.loader.Load(ctx, req.SourcePath)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.evaluator.Evaluate(ctx, rows, req.Center, req.Thresholds, req.TopN, req.OutputPath)
	if err != nil {
		return nil, nil, err
	}

	var explanation *margin.Explanation
	if req.Header != "" {
		explanation, err = s.explainer.Explain(ctx, rows, req.Center, req.Header, req.Thresholds)
		if err != nil {
			return nil, nil, err
		}
	}

	s.logger.InfoContext(ctx, "detection run complete",
		slog.String("source", req.SourcePath),
		slog.String("center", req.Center),
		slog.Int("flagged", result.FlaggedCount),
		slog.Int("total", result.TotalCount),
	)
	return result, explanation, nil
}

// Explain derives the rationale for a single account without running a
// full evaluation or writing an artifact.
func (s *OutlierService) Explain(ctx context.Context, sourcePath, center, header string, th margin.Thresholds) (*margin.Explanation, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, apperrors.SourceNotFoundError(sourcePath)
	}

	rows, err := s.loader.Load(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	return s.explainer.Explain(ctx, rows, center, header, th)
}

// ArtifactPath resolves the artifact location for the download endpoint.
// The file is served as bytes; its contents are never parsed back into a
// response.
func (s *OutlierService) ArtifactPath(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", apperrors.NewWithDetails(http.StatusNotFound, "NOT_FOUND", "artifact not found", path)
	}
	return path, nil
}
