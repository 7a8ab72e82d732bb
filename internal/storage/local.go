package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plc-visualizer/uploader/internal/models"
)

// Store defines the file store used by the transfer server.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
	Register(info *models.FileInfo)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	ReceivedChunks(uploadID string) ([]int, error)
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
}

// LocalStore implements Store using the local filesystem. It also works as a
// client-side Adapter that copies files into its upload directory.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo

	assembling map[string]struct{} // upload ids with a running CompleteChunkedUpload
}

var (
	_ Store   = (*LocalStore)(nil)
	_ Adapter = (*LocalStore)(nil)
)

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir:  uploadDir,
		files:      make(map[string]*models.FileInfo),
		assembling: make(map[string]struct{}),
	}, nil
}

// Upload copies the file into the store, reporting byte progress over 0-100.
func (s *LocalStore) Upload(ctx context.Context, file *models.File, onProgress ProgressFunc) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer src.Close()

	tracker := newProgressTracker(file.Size, 0, 100, onProgress)
	tracker.Start()

	info, err := s.Save(file.Name, &countingReader{r: &ctxReader{ctx: ctx, r: src}, tracker: tracker})
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Save saves a file to the local filesystem.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}

	s.Register(info)
	return info, nil
}

// Register adds or replaces file metadata.
func (s *LocalStore) Register(info *models.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return info, nil
}

// List returns the most recent files.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

func (s *LocalStore) chunkDir(uploadID string) (string, error) {
	// uploadID ends up in a path
	if uploadID == "" || strings.ContainsAny(uploadID, `/\`) || strings.Contains(uploadID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidUploadID, uploadID)
	}
	return filepath.Join(s.uploadDir, "chunks", uploadID), nil
}

// SaveChunk saves a single chunk to a temporary location. Chunks are written to a
// temp file and renamed so a half-written chunk never counts as received.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %d", chunkIndex)
	}
	chunkDir, err := s.chunkDir(uploadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.CreateTemp(chunkDir, "partial_*")
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	tmp := f.Name()

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing chunk: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing chunk: %w", err)
	}

	return os.Rename(tmp, path)
}

// ReceivedChunks lists the chunk indexes already stored for an upload.
func (s *LocalStore) ReceivedChunks(uploadID string) ([]int, error) {
	chunkDir, err := s.chunkDir(uploadID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(chunkDir)
	if os.IsNotExist(err) {
		return []int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk directory: %w", err)
	}

	received := make([]int, 0, len(entries))
	for _, e := range entries {
		idx, ok := strings.CutPrefix(e.Name(), "chunk_")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(idx); err == nil {
			received = append(received, n)
		}
	}
	sort.Ints(received)
	return received, nil
}

// CompleteChunkedUpload assembles all chunks into a final file. A second call for
// the same upload while the first runs fails with ErrUploadInProgress.
func (s *LocalStore) CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	chunkDir, err := s.chunkDir(uploadID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, busy := s.assembling[uploadID]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUploadInProgress, uploadID)
	}
	s.assembling[uploadID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.assembling, uploadID)
		s.mu.Unlock()
	}()

	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}
	defer out.Close()

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i))
		in, err := os.Open(chunkPath)
		if os.IsNotExist(err) {
			os.Remove(finalPath)
			return nil, fmt.Errorf("%w: %d of %d", ErrMissingChunk, i, totalChunks)
		}
		if err != nil {
			os.Remove(finalPath)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}

		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			os.Remove(finalPath)
			return nil, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		totalSize += n
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       totalSize,
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}
	s.Register(info)

	os.RemoveAll(chunkDir)

	return info, nil
}

// ctxReader stops a copy once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
