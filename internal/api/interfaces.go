// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/processing"
)

// UploadHandler handles the chunked upload protocol
type UploadHandler interface {
	HandleUploadChunk(c echo.Context) error
	HandleChunkStatus(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
}

// FileHandler handles stored file operations
type FileHandler interface {
	HandleUsage(c echo.Context) error
	HandleRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// JobHandler handles processing job lookups
type JobHandler interface {
	HandleGetJob(c echo.Context) error
}

// EventsHandler streams processing events
type EventsHandler interface {
	HandleEvents(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Catalog is the file ledger used for usage queries and health checks
type Catalog interface {
	Usage(ctx context.Context, org string) (*models.Usage, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// JobRunner starts and reports processing jobs
type JobRunner interface {
	StartJob(info *models.FileInfo) *processing.Job
	GetJob(id string) (*processing.Job, bool)
}
