// errors.go - JSON error responses for the transfer API
package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/storage"
)

// APIError is the body of every failed request. The chunked storage client
// surfaces Message as the record's failure reason.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newAPIError(status int, code, message string, cause error) *APIError {
	err := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadRequestError creates a 400 error
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError creates a 400 error naming the offending field
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR", "validation failed for field: "+field, nil)
}

// NewNotFoundError creates a 404 error
func NewNotFoundError(resource string, id string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewConflictError creates a 409 error for uploads that clash with server state
func NewConflictError(message string, cause error) *APIError {
	return newAPIError(http.StatusConflict, "CONFLICT", message, cause)
}

// NewInternalError creates a 500 error
func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// NewServiceUnavailableError creates a 503 error for optional server parts
// that are not configured
func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// storeError maps a file store failure on resource id to a response. Unknown
// failures become a 500 described by action.
func storeError(err error, resource, id, action string) *APIError {
	switch {
	case errors.Is(err, storage.ErrInvalidUploadID):
		return NewValidationError("uploadId")
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError(resource, id)
	case errors.Is(err, storage.ErrUploadInProgress):
		return NewConflictError("upload is already being completed", err)
	case errors.Is(err, storage.ErrMissingChunk):
		return NewBadRequestError("upload is incomplete", err)
	default:
		return NewInternalError(action, err)
	}
}

// ErrorHandler renders every handler error as an APIError.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = newAPIError(httpErr.Code, "HTTP_ERROR", fmt.Sprint(httpErr.Message), nil)
	default:
		apiErr = newAPIError(http.StatusInternalServerError, "UNKNOWN_ERROR", "An unexpected error occurred", nil)
		if exposeDetails() {
			apiErr.Details = err.Error()
		}
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logging.Logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"code", apiErr.Code,
			"error", err)
	}

	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		logging.Logger.Warn("failed to write error response", "error", err)
	}
}

// exposeDetails reports whether unexpected error text may reach clients
func exposeDetails() bool {
	return os.Getenv("APP_ENV") != "prod"
}
