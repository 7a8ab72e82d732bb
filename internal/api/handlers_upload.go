// handlers_upload.go - Chunked upload protocol handlers
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/storage"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store storage.Store
	jobs  JobRunner
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, jobs JobRunner) UploadHandler {
	return &UploadHandlerImpl{
		store: store,
		jobs:  jobs,
	}
}

// HandleUploadChunk accepts one multipart chunk of a chunked upload
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	uploadID := c.FormValue("uploadId")
	if uploadID == "" {
		return NewValidationError("uploadId")
	}

	chunkIndex, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no chunk data provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open chunk", err)
	}
	defer src.Close()

	if err := h.store.SaveChunk(uploadID, chunkIndex, src); err != nil {
		return storeError(err, "upload", uploadID, "failed to save chunk")
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleChunkStatus lists the chunks already received for an upload
func (h *UploadHandlerImpl) HandleChunkStatus(c echo.Context) error {
	uploadID := c.Param("uploadId")
	if uploadID == "" {
		return NewValidationError("uploadId")
	}

	received, err := h.store.ReceivedChunks(uploadID)
	if err != nil {
		return storeError(err, "upload", uploadID, "failed to list chunks")
	}

	return c.JSON(http.StatusOK, chunkStatusResponse{
		UploadID: uploadID,
		Received: received,
	})
}

// HandleCompleteUpload assembles the chunks and starts async processing
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	info, err := h.store.CompleteChunkedUpload(req.UploadID, req.Name, req.TotalChunks)
	if err != nil {
		return storeError(err, "upload", req.UploadID, "failed to assemble chunks")
	}

	// the chunks are gone by now, so the client has to start over
	if req.Size > 0 && info.Size != req.Size {
		h.store.Delete(info.ID)
		return NewConflictError("assembled size does not match",
			fmt.Errorf("expected %d bytes, assembled %d", req.Size, info.Size))
	}

	stored := *info
	stored.Org = req.Org
	if h.jobs != nil {
		stored.Status = "processing"
	}
	h.store.Register(&stored)

	resp := completeUploadResponse{FileInfo: &stored}
	if h.jobs != nil {
		job := h.jobs.StartJob(&stored)
		resp.JobID = job.ID
	}

	return c.JSON(http.StatusCreated, resp)
}

// Request/Response types

type chunkStatusResponse struct {
	UploadID string `json:"uploadId"`
	Received []int  `json:"received"`
}

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
	Size        int64  `json:"size"`
	Org         string `json:"org"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

type completeUploadResponse struct {
	*models.FileInfo
	JobID string `json:"jobId,omitempty"`
}
