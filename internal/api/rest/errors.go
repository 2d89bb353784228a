package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/clabconsole/clabconsole-backend/internal/k8s"
	"github.com/clabconsole/clabconsole-backend/internal/layout"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/export"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/logger"
	"github.com/clabconsole/clabconsole-backend/internal/service"
	"github.com/clabconsole/clabconsole-backend/internal/topology"
)

// APIError represents a structured API error response
type APIError struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Error codes for common scenarios
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeSuperseded       = "SUPERSEDED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeCircuitBreaker   = "CIRCUIT_BREAKER_OPEN"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeLayoutRejected   = "LAYOUT_REJECTED"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

// respondStructuredError sends a structured error response with error code and details
func respondStructuredError(w http.ResponseWriter, status int, code, message string, requestID string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := APIError{
		Error:     message,
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	}
	json.NewEncoder(w).Encode(err)
}

// respondErrorWithCode is a convenience wrapper for structured errors
func respondErrorWithCode(w http.ResponseWriter, status int, code, message string, requestID string) {
	respondStructuredError(w, status, code, message, requestID, nil)
}

// ClassifyError maps pipeline and cluster errors to an HTTP status and error code.
func ClassifyError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict, ErrCodeSuperseded
	case errors.Is(err, topology.ErrUnknownView),
		errors.Is(err, layout.ErrUnknownDirection),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, layout.ErrLayoutRejected):
		return http.StatusInternalServerError, ErrCodeLayoutRejected
	case errors.Is(err, k8s.ErrCircuitOpen):
		return http.StatusServiceUnavailable, ErrCodeCircuitBreaker
	case errors.Is(err, context.DeadlineExceeded), apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge
	case apierrors.IsNotFound(err):
		return http.StatusNotFound, ErrCodeNotFound
	case apierrors.IsForbidden(err):
		return http.StatusForbidden, ErrCodeForbidden
	case apierrors.IsUnauthorized(err):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case apierrors.IsAlreadyExists(err), apierrors.IsConflict(err):
		return http.StatusConflict, ErrCodeConflict
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return http.StatusUnprocessableEntity, ErrCodeValidationFailed
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

// respondError writes err as a structured error. Server-side failures are logged with the
// request id so the console's error banner can be correlated with the log line.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := ClassifyError(err)
	requestID := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"code", code,
			"error", err,
		)
	}
	respondErrorWithCode(w, status, code, err.Error(), requestID)
}

// respondBadRequest reports an invalid path, query or body parameter.
func respondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, message, logger.FromContext(r.Context()))
}
