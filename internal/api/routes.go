// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/webarchive/backend/internal/config"
	"github.com/webarchive/backend/internal/domain"
	"github.com/webarchive/backend/internal/importer"
	"github.com/webarchive/backend/internal/replay"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    *domain.Store
	Importer *importer.Importer
	Renderer replay.Renderer
	Config   *config.AppConfig
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Health      HealthHandler
	Upload      UploadHandler
	Collections CollectionHandler
	Content     ContentHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(deps.Version),
		Upload:      NewUploadHandler(deps.Importer),
		Collections: NewCollectionHandler(deps.Store),
		Content:     NewContentHandler(deps.Renderer),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// Archive upload routes
	uploadGroup := e.Group("/api/v1/upload")
	uploadGroup.PUT("", handlers.Upload.HandleUpload)
	uploadGroup.GET("/:upload_id", handlers.Upload.HandleUploadStatus)

	// Collection and recording routes
	collGroup := e.Group("/api/v1/collections")
	collGroup.POST("", handlers.Collections.HandleCreateCollection)
	collGroup.GET("", handlers.Collections.HandleListCollections)
	collGroup.GET("/:coll", handlers.Collections.HandleGetCollection)
	collGroup.PATCH("/:coll", handlers.Collections.HandleUpdateCollection)
	collGroup.DELETE("/:coll", handlers.Collections.HandleDeleteCollection)
	collGroup.GET("/:coll/recordings", handlers.Collections.HandleListRecordings)
	collGroup.GET("/:coll/recordings/:rec", handlers.Collections.HandleGetRecording)
	collGroup.GET("/:coll/pages", handlers.Collections.HandleListPages)
	collGroup.GET("/:coll/lists", handlers.Collections.HandleListBookmarkLists)
	e.GET("/api/v1/lists/:list/bookmarks", handlers.Collections.HandleListBookmarks)

	// Replay dispatch, matched last
	e.GET("/:user/:coll/*", handlers.Content.HandleContent)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
