// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/plc-visualizer/uploader/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store   storage.Store
	Catalog Catalog
	Jobs    JobRunner
	Hub     *realtime.Hub
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Upload UploadHandler
	Files  FileHandler
	Jobs   JobHandler
	Events EventsHandler
}

// NewHandlers creates all handler instances. Jobs, Catalog and Hub are optional.
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Catalog, deps.Hub),
		Upload: NewUploadHandler(deps.Store, deps.Jobs),
		Files:  NewFileHandler(deps.Store, deps.Catalog),
	}
	if deps.Jobs != nil {
		h.Jobs = NewJobHandler(deps.Jobs)
	}
	if deps.Hub != nil {
		h.Events = NewWebSocketHandler(deps.Hub)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers, allowDelete bool) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	files := e.Group("/api/files")
	files.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	files.GET("/upload/:uploadId/chunks", handlers.Upload.HandleChunkStatus)
	files.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	files.GET("/usage", handlers.Files.HandleUsage)
	files.GET("/recent", handlers.Files.HandleRecentFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	if allowDelete {
		files.DELETE("/:id", handlers.Files.HandleDeleteFile)
	}

	if handlers.Jobs != nil {
		e.GET("/api/jobs/:id", handlers.Jobs.HandleGetJob)
	}
	if handlers.Events != nil {
		e.GET("/api/ws/events", handlers.Events.HandleEvents)
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, allowedOrigins []string, bodyLimit string) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}
}
