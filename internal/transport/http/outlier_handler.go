package http

import (
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"marginwatch/internal/config"
	apierrors "marginwatch/internal/errors"
	"marginwatch/internal/margin"
	"marginwatch/internal/services"
)

// OutlierHandler handles outlier detection HTTP requests
type OutlierHandler struct {
	service      *services.OutlierService
	defaults     config.DetectionConfig
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewOutlierHandler creates a new outlier handler
func NewOutlierHandler(service *services.OutlierService, defaults config.DetectionConfig, logger *slog.Logger) *OutlierHandler {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &OutlierHandler{
		service:      service,
		defaults:     defaults,
		validate:     v,
		logger:       logger.With(slog.String("handler", "outlier")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// RegisterRoutes registers the outlier routes
func (h *OutlierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/outlierv1", h.Status)
	r.Post("/outlierv1", h.Detect)
	// Legacy route kept for backward compatibility
	r.Get("/outlier", h.Status)
	r.Post("/outlier", h.Detect)
	r.Post("/explain", h.Explain)
	r.Get("/api/outliers/download", h.Download)
}

// outlierRequest carries the parsed and validated detection parameters.
type outlierRequest struct {
	Mode         string  `json:"mode" validate:"required,oneof=rules ai"`
	Center       string  `json:"center" validate:"required"`
	Header       string  `json:"header"`
	CSVPath      string  `json:"csv_path" validate:"required"`
	OutCSV       string  `json:"out_csv" validate:"required"`
	AbsThreshold float64 `json:"abs_threshold" validate:"gte=0"`
	PctThreshold float64 `json:"pct_threshold" validate:"gte=0"`
	ZThreshold   float64 `json:"z_threshold" validate:"gte=0"`
	TopN         int     `json:"top_n" validate:"gt=0"`
	Query        string  `json:"query"`
}

// outlierResponse is the structured result of a detection run.
type outlierResponse struct {
	Success       bool                `json:"success"`
	Mode          string              `json:"mode"`
	Center        string              `json:"center"`
	OutputFile    string              `json:"output_file"`
	Query         string              `json:"query,omitempty"`
	FlaggedCount  int                 `json:"flagged_count"`
	TotalCount    int                 `json:"total_count"`
	DatesAnalyzed string              `json:"dates_analyzed"`
	TopOutliers   []margin.Record     `json:"top_outliers"`
	Explanation   *margin.Explanation `json:"explanation,omitempty"`
}

// Status handles GET /outlierv1
func (h *OutlierHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "ready",
		"message": "Submit POST request with parameters",
	})
}

// Detect handles POST /outlierv1
func (h *OutlierHandler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := h.parseRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	// AI-based detection is a declared surface with no implementation
	// upstream; report it as such rather than guessing.
	if req.Mode == "ai" {
		h.errorHandler.HandleError(w, r, apierrors.ErrModeNotImplemented)
		return
	}

	h.logger.InfoContext(ctx, "detection requested",
		slog.String("center", req.Center),
		slog.String("csv_path", req.CSVPath),
		slog.Int("top_n", req.TopN),
	)

	result, explanation, err := h.service.Detect(ctx, services.DetectRequest{
		SourcePath: req.CSVPath,
		Center:     req.Center,
		Thresholds: margin.Thresholds{Abs: req.AbsThreshold, Pct: req.PctThreshold, Z: req.ZThreshold},
		TopN:       req.TopN,
		OutputPath: req.OutCSV,
		Header:     req.Header,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, outlierResponse{
		Success:       true,
		Mode:          req.Mode,
		Center:        req.Center,
		OutputFile:    result.OutputFile,
		Query:         req.Query,
		FlaggedCount:  result.FlaggedCount,
		TotalCount:    result.TotalCount,
		DatesAnalyzed: result.DatesAnalyzed,
		TopOutliers:   result.TopOutliers,
		Explanation:   explanation,
	})
}

// Explain handles POST /explain
func (h *OutlierHandler) Explain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	csvPath := formValue(r, "csv_path", h.defaults.SourcePath)
	center := formValue(r, "center", h.defaults.Center)
	header := r.FormValue("header")
	if header == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("header", "Header account ID is required"))
		return
	}

	th, err := h.parseThresholds(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	explanation, err := h.service.Explain(ctx, csvPath, center, header, th)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"success":     true,
		"center":      center,
		"header":      header,
		"explanation": explanation,
	})
}

// Download handles GET /api/outliers/download. The artifact is streamed
// as-is; its contents are never parsed back into a response.
func (h *OutlierHandler) Download(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.ArtifactPath(h.defaults.ArtifactPath)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="outliers_rules.csv"`)
	http.ServeFile(w, r, path)
}

// parseRequest extracts and validates the detection parameters from the
// form body, applying the configured defaults for absent fields.
func (h *OutlierHandler) parseRequest(r *http.Request) (*outlierRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, apierrors.InvalidRequestWithError(err)
	}

	req := &outlierRequest{
		Mode:    formValue(r, "mode", "rules"),
		Center:  formValue(r, "center", h.defaults.Center),
		Header:  r.FormValue("header"),
		CSVPath: formValue(r, "csv_path", h.defaults.SourcePath),
		OutCSV:  formValue(r, "out_csv", h.defaults.ArtifactPath),
		Query:   r.FormValue("query"),
	}

	var err error
	if req.AbsThreshold, err = formFloat(r, "abs_threshold", h.defaults.AbsThreshold); err != nil {
		return nil, err
	}
	if req.PctThreshold, err = formFloat(r, "pct_threshold", h.defaults.PctThreshold); err != nil {
		return nil, err
	}
	if req.ZThreshold, err = formFloat(r, "z_threshold", h.defaults.ZThreshold); err != nil {
		return nil, err
	}
	if req.TopN, err = formInt(r, "top_n", h.defaults.TopN); err != nil {
		return nil, err
	}

	if err := h.validate.Struct(req); err != nil {
		var fields []apierrors.ValidationError
		for _, fe := range err.(validator.ValidationErrors) {
			fields = append(fields, apierrors.ValidationError{
				Field:   fe.Field(),
				Message: validationMessage(fe),
			})
		}
		return nil, apierrors.NewValidationErrors(fields)
	}
	return req, nil
}

func (h *OutlierHandler) parseThresholds(r *http.Request) (margin.Thresholds, error) {
	abs, err := formFloat(r, "abs_threshold", h.defaults.AbsThreshold)
	if err != nil {
		return margin.Thresholds{}, err
	}
	pct, err := formFloat(r, "pct_threshold", h.defaults.PctThreshold)
	if err != nil {
		return margin.Thresholds{}, err
	}
	z, err := formFloat(r, "z_threshold", h.defaults.ZThreshold)
	if err != nil {
		return margin.Thresholds{}, err
	}
	return margin.Thresholds{Abs: abs, Pct: pct, Z: z}, nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

func formFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER",
			"Invalid parameter value: "+key, raw)
	}
	return v, nil
}

func formInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_PARAMETER",
			"Invalid parameter value: "+key, raw)
	}
	return v, nil
}
