// errors.go - Structured error handling for API responses
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "not_found",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewOutOfSpaceError reports a declared upload size over the user's quota
func NewOutOfSpaceError() *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "out_of_space",
		Message: "not enough storage space for this upload",
	}
}

// NewNoSuchCollectionError reports an unknown forced target collection
func NewNoSuchCollectionError(name string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "no_such_collection",
		Message: fmt.Sprintf("collection not found: %s", name),
	}
}

// NewNoArchiveDataError reports an archive with no recognizable recordings
func NewNoArchiveDataError() *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "no_archive_data",
		Message: "no importable archive data found",
	}
}

// NewIncompleteUploadError reports a stream shorter than its declared size
func NewIncompleteUploadError(expected, actual int64) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "incomplete_upload",
		Message: "received fewer bytes than declared",
		Details: fmt.Sprintf("expected %d bytes, received %d", expected, actual),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "conflict",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "http_error",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "unknown_error",
			Message: "An unexpected error occurred",
		}
	}

	// Send JSON response
	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
