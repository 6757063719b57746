// handlers_upload.go - Archive upload and status polling handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/webarchive/backend/internal/importer"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	importer *importer.Importer
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(im *importer.Importer) UploadHandler {
	return &UploadHandlerImpl{importer: im}
}

// HandleUpload accepts a raw archive stream and starts the import
// pipeline. The synchronous response carries only the upload id and target
// collection; progress is polled via HandleUploadStatus.
//
// Query parameters: user (required), filename, force-coll.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	user := c.QueryParam("user")
	if user == "" {
		return NewBadRequestError("user is required", nil)
	}

	filename := c.QueryParam("filename")
	if filename == "" {
		filename = "upload.warc"
	}
	forceColl := c.QueryParam("force-coll")

	size := c.Request().ContentLength
	if declared := c.QueryParam("size"); declared != "" {
		if n, err := strconv.ParseInt(declared, 10, 64); err == nil {
			size = n
		}
	}
	if size <= 0 {
		return NewBadRequestError("upload size must be declared", nil)
	}

	result, err := h.importer.UploadFile(c.Request().Context(),
		user, c.Request().Body, size, filename, forceColl)
	if err != nil {
		return uploadError(err, forceColl)
	}

	return c.JSON(http.StatusOK, result)
}

// HandleUploadStatus returns the progress snapshot for an in-flight or
// recently finished upload.
func (h *UploadHandlerImpl) HandleUploadStatus(c echo.Context) error {
	user := c.QueryParam("user")
	if user == "" {
		return NewBadRequestError("user is required", nil)
	}
	uploadID := c.Param("upload_id")

	status, ok := h.importer.Tracker().Read(c.Request().Context(), user, uploadID)
	if !ok {
		return NewNotFoundError("upload", uploadID)
	}
	return c.JSON(http.StatusOK, status)
}

// uploadError maps pipeline precondition errors onto API error codes.
func uploadError(err error, forceColl string) error {
	var incomplete *importer.IncompleteUploadError
	switch {
	case errors.Is(err, importer.ErrOutOfSpace):
		return NewOutOfSpaceError()
	case errors.Is(err, importer.ErrNoSuchCollection):
		return NewNoSuchCollectionError(forceColl)
	case errors.Is(err, importer.ErrNoArchiveData):
		return NewNoArchiveDataError()
	case errors.As(err, &incomplete):
		return NewIncompleteUploadError(incomplete.Expected, incomplete.Actual)
	default:
		return NewInternalError("upload failed", err)
	}
}
