// Package processing runs the server-side work on stored files and reports it as
// processing events.
package processing

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/zeebo/xxh3"
)

// Status represents the processing job status.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusFingerprint   Status = "fingerprinting"
	StatusDecompressing Status = "decompressing"
	StatusCataloguing   Status = "cataloguing"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job represents an async processing job for one stored file.
type Job struct {
	ID            string           `json:"id"`
	FileID        string           `json:"fileId"`
	FileName      string           `json:"fileName"`
	Status        Status           `json:"status"`
	Progress      int              `json:"progress"`
	Stage         string           `json:"stage"`
	StageProgress int              `json:"stageProgress"`
	FileInfo      *models.FileInfo `json:"fileInfo,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

// Store defines what the manager needs from the file store.
type Store interface {
	GetFilePath(id string) (string, error)
	Register(info *models.FileInfo)
}

// Catalog records processed files.
type Catalog interface {
	Record(ctx context.Context, info *models.FileInfo) error
}

// Manager handles async processing jobs.
type Manager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	store     Store
	catalog   Catalog
	publisher realtime.Publisher
	log       *slog.Logger

	// Minimum interval between progress events within a stage.
	throttle time.Duration
	wg       sync.WaitGroup
}

// NewManager creates a new processing manager. catalog and publisher may be nil.
func NewManager(store Store, catalog Catalog, publisher realtime.Publisher) *Manager {
	return &Manager{
		jobs:      make(map[string]*Job),
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		log:       logging.Logger.With("component", "processing"),
		throttle:  100 * time.Millisecond,
	}
}

// StartJob begins async processing of a stored file.
func (m *Manager) StartJob(info *models.FileInfo) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		FileID:    info.ID,
		FileName:  info.Name,
		Status:    StatusQueued,
		Stage:     "queued",
		FileInfo:  info,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processJob(job)
	}()

	return m.copyJob(job)
}

// GetJob retrieves a copy of a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.copyJob(job), true
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) copyJob(job *Job) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *job
	if job.FileInfo != nil {
		info := *job.FileInfo
		cp.FileInfo = &info
	}
	return &cp
}

func (m *Manager) processJob(job *Job) {
	ctx := context.Background()
	log := m.log.With("job", job.ID[:8], "file", job.FileID)
	log.Info("starting processing", "name", job.FileName)

	path, err := m.store.GetFilePath(job.FileID)
	if err != nil {
		m.markJobError(ctx, job, fmt.Sprintf("file not found: %v", err))
		return
	}

	info := *job.FileInfo

	// Stage 1: fingerprint
	m.updateJobStatus(ctx, job, StatusFingerprint, "fingerprinting", 0)
	fingerprint, err := m.fingerprint(ctx, job, path)
	if err != nil {
		m.markJobError(ctx, job, fmt.Sprintf("failed to fingerprint file: %v", err))
		return
	}
	info.Fingerprint = fingerprint
	m.updateJobStatus(ctx, job, StatusFingerprint, "fingerprinting", 100)

	// Stage 2: decompress gzip payloads
	gz, err := isGzip(path)
	if err != nil {
		m.markJobError(ctx, job, fmt.Sprintf("failed to read file: %v", err))
		return
	}
	if gz {
		m.updateJobStatus(ctx, job, StatusDecompressing, "decompressing file", 0)
		size, err := m.decompressFileWithProgress(ctx, job, path, info.Size)
		if err != nil {
			m.markJobError(ctx, job, fmt.Sprintf("failed to decompress file: %v", err))
			return
		}
		info.Size = size
		info.Name = strings.TrimSuffix(info.Name, ".gz")
		log.Info("decompressed", "size", size)
	}
	m.updateJobStatus(ctx, job, StatusDecompressing, "decompressing file", 100)

	// Stage 3: catalogue
	m.updateJobStatus(ctx, job, StatusCataloguing, "cataloguing", 0)
	info.Status = "processed"
	m.store.Register(&info)
	if m.catalog != nil {
		if err := m.catalog.Record(ctx, &info); err != nil {
			m.markJobError(ctx, job, fmt.Sprintf("failed to catalogue file: %v", err))
			return
		}
	}

	m.markJobComplete(ctx, job, &info)
	log.Info("processing complete", "size", info.Size, "fingerprint", fingerprint)
}

// fingerprint hashes the stored file with xxh3.
func (m *Manager) fingerprint(ctx context.Context, job *Job, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	h := xxh3.New()
	r := &stageReader{r: f, total: st.Size(), report: func(pct int) {
		m.updateJobStatus(ctx, job, StatusFingerprint, "fingerprinting", pct)
	}, throttle: m.throttle}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func isGzip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	magic := make([]byte, 2)
	n, err := io.ReadFull(f, magic)
	if n < 2 {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return magic[0] == 0x1f && magic[1] == 0x8b, nil
}

// decompressFileWithProgress replaces a gzip file with its content and returns
// the decompressed size. Progress follows the compressed bytes consumed.
func (m *Manager) decompressFileWithProgress(ctx context.Context, job *Job, path string, compressedSize int64) (int64, error) {
	compressedFile, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer compressedFile.Close()

	counted := &stageReader{r: compressedFile, total: compressedSize, report: func(pct int) {
		m.updateJobStatus(ctx, job, StatusDecompressing, "decompressing file", min(pct, 99))
	}, throttle: m.throttle}

	reader, err := gzip.NewReader(bufio.NewReader(counted))
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(outFile, reader)
	outFile.Close()
	if err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("read error: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return 0, err
	}
	return written, nil
}

// updateJobStatus updates job progress and publishes it when it grew.
func (m *Manager) updateJobStatus(ctx context.Context, job *Job, status Status, stage string, stageProgress int) {
	m.mu.Lock()
	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Fingerprinting: 0-40%, Decompressing: 40-90%, Cataloguing: 90-100%
	progress := job.Progress
	switch status {
	case StatusFingerprint:
		progress = stageProgress * 40 / 100
	case StatusDecompressing:
		progress = 40 + stageProgress*50/100
	case StatusCataloguing:
		progress = 90 + stageProgress*10/100
	}
	grew := progress > job.Progress
	if grew {
		job.Progress = progress
	}
	fileID := job.FileID
	m.mu.Unlock()

	if grew {
		m.publish(ctx, models.ProcessingEvent{Type: models.EventProgress, ID: fileID, Progress: progress})
	}
}

// markJobComplete marks job as complete and announces it.
func (m *Manager) markJobComplete(ctx context.Context, job *Job, info *models.FileInfo) {
	m.mu.Lock()
	job.Status = StatusComplete
	job.Progress = 100
	job.FileInfo = info
	now := time.Now()
	job.CompletedAt = &now
	fileID := job.FileID
	m.mu.Unlock()

	m.publish(ctx, models.ProcessingEvent{Type: models.EventComplete, ID: fileID, Progress: 100})
}

// markJobError marks job as failed and announces it.
func (m *Manager) markJobError(ctx context.Context, job *Job, errMsg string) {
	m.mu.Lock()
	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	fileID := job.FileID
	m.mu.Unlock()

	m.log.Error("job failed", "job", job.ID[:8], "error", errMsg)
	m.publish(ctx, models.ProcessingEvent{Type: models.EventError, ID: fileID, Message: errMsg})
}

func (m *Manager) publish(ctx context.Context, ev models.ProcessingEvent) {
	if m.publisher == nil {
		return
	}
	ev.Timestamp = time.Now().UnixMilli()
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.log.Warn("failed to publish event", "type", ev.Type, "file", ev.ID, "error", err)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}

// stageReader reports the share of total read so far, at most once per throttle.
type stageReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     time.Time
	throttle time.Duration
	report   func(pct int)
}

func (s *stageReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)
	if s.total > 0 && n > 0 && time.Since(s.last) >= s.throttle {
		s.last = time.Now()
		s.report(int(min(s.read, s.total) * 100 / s.total))
	}
	return n, err
}
