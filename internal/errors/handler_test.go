package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAPIError(t *testing.T) {
	handler := NewErrorHandler(nil, false)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "api error passes through",
			err:        ErrModeNotImplemented,
			wantStatus: http.StatusNotImplemented,
			wantCode:   "MODE_NOT_IMPLEMENTED",
		},
		{
			name: "malformed input",
			err: &MalformedInputError{
				Source: "in.csv",
				Rows:   []RowIssue{{Line: 2, Reason: "missing both applied_t1 and applied_t"}},
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "MALFORMED_INPUT",
		},
		{
			name:       "invalid parameter",
			err:        NewInvalidParameter("top_n", 0, "must be positive"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PARAMETER",
		},
		{
			name:       "not found",
			err:        &NotFoundError{Center: "NPM", Header: "ACC-1"},
			wantStatus: http.StatusNotFound,
			wantCode:   "ACCOUNT_NOT_FOUND",
		},
		{
			name:       "persistence",
			err:        &PersistenceError{Path: "out.csv", Err: fmt.Errorf("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "PERSISTENCE_ERROR",
		},
		{
			name:       "wrapped domain error",
			err:        fmt.Errorf("evaluate: %w", NewInvalidParameter("abs_threshold", -1.0, "must be non-negative")),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PARAMETER",
		},
		{
			name:       "context deadline",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "TIMEOUT",
		},
		{
			name:       "unknown error",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_SERVER_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := handler.ToAPIError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestHandleError(t *testing.T) {
	handler := NewErrorHandler(nil, false)

	req := httptest.NewRequest(http.MethodPost, "/outlierv1", nil)
	rec := httptest.NewRecorder()

	handler.HandleError(rec, req, NewInvalidParameter("top_n", -5, "must be positive"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_PARAMETER")
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestHandlePanic(t *testing.T) {
	handler := NewErrorHandler(nil, false)

	req := httptest.NewRequest(http.MethodGet, "/outlierv1", nil)
	rec := httptest.NewRecorder()

	handler.HandlePanic(rec, req, "boom")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestAPIErrorRender(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad request")
	assert.Equal(t, "bad request", err.Error())

	rec := httptest.NewRecorder()
	WriteError(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}
