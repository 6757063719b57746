// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// UploadHandler handles archive upload operations
type UploadHandler interface {
	HandleUpload(c echo.Context) error
	HandleUploadStatus(c echo.Context) error
}

// CollectionHandler handles collection and recording CRUD
type CollectionHandler interface {
	HandleCreateCollection(c echo.Context) error
	HandleListCollections(c echo.Context) error
	HandleGetCollection(c echo.Context) error
	HandleUpdateCollection(c echo.Context) error
	HandleDeleteCollection(c echo.Context) error
	HandleListRecordings(c echo.Context) error
	HandleGetRecording(c echo.Context) error
	HandleListPages(c echo.Context) error
	HandleListBookmarkLists(c echo.Context) error
	HandleListBookmarks(c echo.Context) error
}

// ContentHandler dispatches archived-content replay requests
type ContentHandler interface {
	HandleContent(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
