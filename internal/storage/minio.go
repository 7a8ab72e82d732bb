package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/validation"
)

// MaxObjectSize is the largest single object S3-compatible stores accept.
const MaxObjectSize int64 = 5 << 40

// MinIOConfig configures the object store adapter.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string // Key prefix, e.g. the organisation
}

// MinIOAdapter uploads files straight to an S3-compatible bucket.
type MinIOAdapter struct {
	client *minio.Client
	bucket string
	prefix string
}

var (
	_ Adapter   = (*MinIOAdapter)(nil)
	_ Validator = (*MinIOAdapter)(nil)
)

// NewMinIOAdapter connects to the store and makes sure the bucket exists.
func NewMinIOAdapter(ctx context.Context, cfg MinIOConfig) (*MinIOAdapter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio storage: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio storage: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIOAdapter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectKey builds "{prefix}/{uuid}{ext}".
func (m *MinIOAdapter) ObjectKey(name string) string {
	key := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	if m.prefix == "" {
		return key
	}
	return m.prefix + "/" + key
}

// Upload puts the file as a single object; the returned id is the object key.
func (m *MinIOAdapter) Upload(ctx context.Context, file *models.File, onProgress ProgressFunc) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer src.Close()

	tracker := newProgressTracker(file.Size, 0, 100, onProgress)
	tracker.Start()

	key := m.ObjectKey(file.Name)
	_, err = m.client.PutObject(ctx, m.bucket, key, src, file.Size, minio.PutObjectOptions{
		ContentType:  file.MimeType,
		Progress:     tracker,
		UserMetadata: map[string]string{"original-name": file.Name},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s to minio: %w", file.Name, err)
	}
	return key, nil
}

// ValidateFile rejects files above the single-object limit.
func (m *MinIOAdapter) ValidateFile(file *models.File, _ validation.Policy) validation.Result {
	if file.Size > MaxObjectSize {
		return validation.Reject(models.StatusExceded,
			fmt.Sprintf("object store limit is %s", humanize.IBytes(uint64(MaxObjectSize))))
	}
	return validation.Accept()
}
