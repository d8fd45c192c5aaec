package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/render"

	"marginwatch/internal/middleware"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError maps any error to a structured response and renders it
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	render.Render(w, r, NewErrorResponse(h.ToAPIError(err)))
}

// ToAPIError converts domain and generic errors to an APIError
func (h *ErrorHandler) ToAPIError(err error) *APIError {
	// Already an APIError
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	// Context errors
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return New(http.StatusGatewayTimeout, "TIMEOUT", "The request took too long to process and was cancelled")
	}

	// Domain error taxonomy
	var malformed *MalformedInputError
	if errors.As(err, &malformed) {
		return NewWithDetails(
			http.StatusUnprocessableEntity,
			"MALFORMED_INPUT",
			fmt.Sprintf("Source %s contains %d unusable rows", malformed.Source, len(malformed.Rows)),
			malformed.Rows,
		)
	}

	var invalid *InvalidParameterError
	if errors.As(err, &invalid) {
		return NewWithDetails(
			http.StatusBadRequest,
			"INVALID_PARAMETER",
			invalid.Error(),
			ValidationError{Field: invalid.Param, Message: invalid.Reason},
		)
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return NewWithDetails(
			http.StatusNotFound,
			"ACCOUNT_NOT_FOUND",
			notFound.Error(),
			map[string]interface{}{"center": notFound.Center, "header": notFound.Header, "matches": notFound.Matches},
		)
	}

	var persist *PersistenceError
	if errors.As(err, &persist) {
		return NewWithDetails(
			http.StatusInternalServerError,
			"PERSISTENCE_ERROR",
			persist.Error(),
			persist.Path,
		)
	}

	return New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred while processing your request")
}

// HandlePanic recovers from panics and renders a 500 response
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	apiErr := ErrInternalServer
	if h.includeStack {
		apiErr = NewWithDetails(
			http.StatusInternalServerError,
			"INTERNAL_SERVER_ERROR",
			"Internal server error",
			fmt.Sprintf("%v", recovered),
		)
	}
	render.Render(w, r, NewErrorResponse(apiErr))
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewErrorResponse(ErrNotFound))
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewErrorResponse(New(
		http.StatusMethodNotAllowed,
		"METHOD_NOT_ALLOWED",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
	)))
}
