// handlers_files.go - Stored file handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/storage"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store   storage.Store
	catalog Catalog
}

// NewFileHandler creates a new file handler. catalog may be nil.
func NewFileHandler(store storage.Store, catalog Catalog) FileHandler {
	return &FileHandlerImpl{
		store:   store,
		catalog: catalog,
	}
}

// HandleUsage reports the bytes and names an organisation already stores
func (h *FileHandlerImpl) HandleUsage(c echo.Context) error {
	if h.catalog == nil {
		return NewServiceUnavailableError("file catalog is not configured")
	}

	usage, err := h.catalog.Usage(c.Request().Context(), c.QueryParam("org"))
	if err != nil {
		return NewInternalError("failed to compute usage", err)
	}

	return c.JSON(http.StatusOK, usage)
}

// HandleRecentFiles returns the most recently stored files
func (h *FileHandlerImpl) HandleRecentFiles(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return storeError(err, "file", id, "failed to read file")
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a file and its ledger entry
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return storeError(err, "file", id, "failed to delete file")
	}

	if h.catalog != nil {
		if err := h.catalog.Delete(c.Request().Context(), id); err != nil {
			logging.Logger.Warn("failed to remove catalog entry", "file", id, "error", err)
		}
	}

	return c.NoContent(http.StatusNoContent)
}
