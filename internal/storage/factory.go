package storage

import (
	"context"
	"fmt"
	"strings"
)

// Backend kinds accepted by New.
const (
	BackendMock    = "mock"
	BackendLocal   = "local"
	BackendChunked = "chunked"
	BackendMinIO   = "minio"
)

// Config selects and configures one backend.
type Config struct {
	Backend  string
	LocalDir string
	Chunked  ChunkedOptions
	MinIO    MinIOConfig
}

// New builds the configured adapter. The backend is chosen once here; an unknown
// kind or missing settings fail immediately.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMock:
		return NewMockAdapter(), nil
	case BackendLocal:
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("local storage: directory is required")
		}
		return NewLocalStore(cfg.LocalDir)
	case BackendChunked, "":
		return NewChunkedAdapter(cfg.Chunked)
	case BackendMinIO, "s3":
		return NewMinIOAdapter(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
