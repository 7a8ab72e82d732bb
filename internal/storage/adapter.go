// Package storage provides the transfer backends used by the upload engine and the
// file store used by the transfer server.
package storage

import (
	"context"
	"errors"

	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/validation"
)

var (
	// ErrUnknownBackend is returned by New for an unsupported backend kind.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidUploadID is returned for upload ids that cannot name a chunk directory.
	ErrInvalidUploadID = errors.New("invalid upload id")

	// ErrUploadInProgress is returned when a chunked upload is already being assembled.
	ErrUploadInProgress = errors.New("upload is already being assembled")

	// ErrMissingChunk is returned when a chunked upload is completed before all
	// chunks arrived.
	ErrMissingChunk = errors.New("missing chunk")
)

// ProgressFunc receives transfer progress as a percentage in [0,100].
type ProgressFunc func(pct int)

// Adapter transfers a file's bytes and returns a stable identifier for it.
// onProgress may be called zero or more times with non-decreasing values before
// Upload returns.
type Adapter interface {
	Upload(ctx context.Context, file *models.File, onProgress ProgressFunc) (string, error)
}

// Validator is implemented by adapters with backend-specific constraints. It is
// consulted after the generic policy evaluation accepted a file.
type Validator interface {
	ValidateFile(file *models.File, policy validation.Policy) validation.Result
}
