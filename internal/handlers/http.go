package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/weeklyvote/internal/errors"
	"github.com/abrezinsky/weeklyvote/internal/services"
)

// Error codes for standardized API error responses
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// Retry-After hints for throttled votes, in seconds
const (
	burstRetryAfter = 60
	rateRetryAfter  = 3600
)

// APIError represents an error with an HTTP status code and error code
type APIError struct {
	Status     int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
	RetryAfter int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Common errors
var (
	ErrUnauthorized   = &APIError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: "Unauthorized"}
	ErrInternalServer = &APIError{Status: http.StatusInternalServerError, Code: ErrCodeInternalServer, Message: "Internal server error"}
)

// serviceStatus maps admission, scan and scoring codes to HTTP statuses
var serviceStatus = map[string]int{
	services.ErrUnauthenticated.Code:       http.StatusUnauthorized,
	services.ErrUnauthorized.Code:          http.StatusUnauthorized,
	services.ErrEmailUnconfirmed.Code:      http.StatusForbidden,
	services.ErrSelfVoteForbidden.Code:     http.StatusForbidden,
	services.ErrFraudBlocked.Code:          http.StatusForbidden,
	services.ErrQuotaExhausted.Code:        http.StatusForbidden,
	services.ErrSubmissionNotFound.Code:    http.StatusNotFound,
	services.ErrPeriodNotFound.Code:        http.StatusNotFound,
	services.ErrDuplicateVote.Code:         http.StatusConflict,
	services.ErrSubmissionNotApproved.Code: http.StatusConflict,
	services.ErrVotingWindowClosed.Code:    http.StatusConflict,
	services.ErrRateLimited.Code:           http.StatusTooManyRequests,
	services.ErrBurstLimited.Code:          http.StatusTooManyRequests,
	services.ErrInvalidScoreRange.Code:     http.StatusBadRequest,
}

// BadRequest creates a 400 error with custom message
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: message}
}

// NotFound creates a 404 error with custom message
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: message}
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondOK writes a 200 OK JSON response
func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, data)
}

// respondCreated writes a 201 Created JSON response
func respondCreated(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusCreated, data)
}

// respondError writes an error response
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	respondJSON(w, apiErr.Status, apiErr)
}

// decodeJSON decodes JSON from request body into the target
func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if err == io.EOF {
			return BadRequest("Request body is empty")
		}
		return BadRequest("Invalid JSON: " + err.Error())
	}
	return nil
}

// parseIntParam extracts and parses an integer URL parameter
func parseIntParam(r *http.Request, name string) (int, error) {
	param := chi.URLParam(r, name)
	if param == "" {
		return 0, BadRequest("Missing " + name + " parameter")
	}
	id, err := strconv.Atoi(param)
	if err != nil || id <= 0 {
		return 0, BadRequest("Invalid " + name + " parameter")
	}
	return id, nil
}

// toAPIError logs unexpected failures before converting them
func (h *Handlers) toAPIError(err error) *APIError {
	apiErr := ToAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError && h.Log != nil {
		h.Log.Error("Request failed", "error", err)
	}
	return apiErr
}

// ToAPIError converts service errors to appropriate API errors
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var svcErr *services.ServiceError
	if stderrors.As(err, &svcErr) {
		status, ok := serviceStatus[svcErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		out := &APIError{Status: status, Code: svcErr.Code, Message: svcErr.Message}
		switch svcErr.Code {
		case services.ErrBurstLimited.Code:
			out.RetryAfter = burstRetryAfter
		case services.ErrRateLimited.Code:
			out.RetryAfter = rateRetryAfter
		}
		return out
	}

	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		switch appErr.Kind {
		case errors.ErrNotFound:
			return NotFound(appErr.Message)
		case errors.ErrValidation, errors.ErrInvalidInput:
			return &APIError{Status: http.StatusBadRequest, Code: ErrCodeValidation, Message: appErr.Message}
		case errors.ErrConflict:
			return &APIError{Status: http.StatusConflict, Code: ErrCodeConflict, Message: appErr.Message}
		case errors.ErrUnauthorized:
			return &APIError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: appErr.Message}
		default:
			return &APIError{Status: http.StatusInternalServerError, Code: ErrCodeStorage, Message: appErr.Message}
		}
	}

	return ErrInternalServer
}
