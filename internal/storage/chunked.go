package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plc-visualizer/uploader/internal/models"
)

const (
	// DefaultChunkSize matches the transfer server's expectations.
	DefaultChunkSize = 5 << 20

	// DefaultProgressCeiling is the share of the bar reported for the byte transfer.
	// The remainder belongs to server-side processing.
	DefaultProgressCeiling = 50

	defaultChunkRetries = 2
)

// uploadNamespace seeds deterministic resumable upload ids.
var uploadNamespace = uuid.MustParse("6f1c7a2e-3b1d-4c55-9a57-0d2f2b8f4e11")

// ChunkedOptions configures a ChunkedAdapter.
type ChunkedOptions struct {
	ServerURL       string
	ChunkSize       int64
	Retries         int // Extra attempts per chunk; 0 selects the default, negative disables retries
	ProgressCeiling int
	Org             string
	Client          *http.Client
}

// ChunkedAdapter uploads files to the transfer server in chunks. Chunks the server
// already holds for the same upload id are skipped, so a repeated upload of the
// same file resumes where it stopped.
type ChunkedAdapter struct {
	base      string
	chunkSize int64
	retries   int
	ceiling   int
	org       string
	client    *http.Client

	mu       sync.Mutex
	inFlight map[string]bool
}

var _ Adapter = (*ChunkedAdapter)(nil)

// NewChunkedAdapter validates opts and returns an adapter.
func NewChunkedAdapter(opts ChunkedOptions) (*ChunkedAdapter, error) {
	if opts.ServerURL == "" {
		return nil, errors.New("chunked storage: server URL is required")
	}
	u, err := url.Parse(opts.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("chunked storage: invalid server URL %q", opts.ServerURL)
	}

	a := &ChunkedAdapter{
		base:      strings.TrimRight(opts.ServerURL, "/"),
		chunkSize: opts.ChunkSize,
		retries:   opts.Retries,
		ceiling:   opts.ProgressCeiling,
		org:       opts.Org,
		client:    opts.Client,
		inFlight:  make(map[string]bool),
	}
	if a.chunkSize <= 0 {
		a.chunkSize = DefaultChunkSize
	}
	if a.retries < 0 {
		a.retries = 0
	} else if opts.Retries == 0 {
		a.retries = defaultChunkRetries
	}
	if a.ceiling <= 0 || a.ceiling > 100 {
		a.ceiling = DefaultProgressCeiling
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: 5 * time.Minute}
	}
	return a, nil
}

// uploadID derives a stable id from the file identity so interrupted uploads can
// resume. A concurrent upload of an identical file gets a random id.
func (a *ChunkedAdapter) uploadID(file *models.File) (string, func()) {
	key := fmt.Sprintf("%s|%d|%d", file.Name, file.Size, file.ModTime.UnixNano())
	id := uuid.NewSHA1(uploadNamespace, []byte(key)).String()

	a.mu.Lock()
	if a.inFlight[id] {
		id = uuid.New().String()
	}
	a.inFlight[id] = true
	a.mu.Unlock()

	return id, func() {
		a.mu.Lock()
		delete(a.inFlight, id)
		a.mu.Unlock()
	}
}

// Upload sends the file chunk by chunk and asks the server to assemble it.
func (a *ChunkedAdapter) Upload(ctx context.Context, file *models.File, onProgress ProgressFunc) (string, error) {
	uploadID, release := a.uploadID(file)
	defer release()

	totalChunks := int((file.Size + a.chunkSize - 1) / a.chunkSize)
	if totalChunks == 0 {
		totalChunks = 1
	}

	received, err := a.receivedChunks(ctx, uploadID)
	if err != nil {
		return "", err
	}

	tracker := newProgressTracker(file.Size, 0, a.ceiling, onProgress)
	tracker.Start()

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer src.Close()

	buf := make([]byte, a.chunkSize)
	for i := 0; i < totalChunks; i++ {
		n, err := io.ReadFull(src, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !(errors.Is(err, io.EOF) && file.Size == 0) {
			return "", fmt.Errorf("reading chunk %d of %s: %w", i, file.Name, err)
		}

		if !received[i] {
			if err := a.sendChunkWithRetry(ctx, uploadID, i, buf[:n]); err != nil {
				return "", err
			}
		}
		tracker.Add(int64(n))
	}

	info, err := a.complete(ctx, uploadID, file, totalChunks)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (a *ChunkedAdapter) sendChunkWithRetry(ctx context.Context, uploadID string, index int, data []byte) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		if err = a.sendChunk(ctx, uploadID, index, data); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w", index, a.retries+1, err)
}

func (a *ChunkedAdapter) sendChunk(ctx context.Context, uploadID string, index int, data []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("uploadId", uploadID); err != nil {
		return err
	}
	if err := w.WriteField("chunkIndex", strconv.Itoa(index)); err != nil {
		return err
	}
	part, err := w.CreateFormFile("file", fmt.Sprintf("chunk_%d", index))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/files/upload/chunk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return a.do(req, http.StatusAccepted, nil)
}

type chunkStatus struct {
	UploadID string `json:"uploadId"`
	Received []int  `json:"received"`
}

func (a *ChunkedAdapter) receivedChunks(ctx context.Context, uploadID string) (map[int]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.base+"/api/files/upload/"+url.PathEscape(uploadID)+"/chunks", nil)
	if err != nil {
		return nil, err
	}

	var status chunkStatus
	if err := a.do(req, http.StatusOK, &status); err != nil {
		return nil, fmt.Errorf("querying received chunks: %w", err)
	}

	received := make(map[int]bool, len(status.Received))
	for _, idx := range status.Received {
		received[idx] = true
	}
	return received, nil
}

// CompleteRequest is the body of the upload completion call.
type CompleteRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
	Size        int64  `json:"size"`
	Org         string `json:"org,omitempty"`
}

func (a *ChunkedAdapter) complete(ctx context.Context, uploadID string, file *models.File, totalChunks int) (*models.FileInfo, error) {
	payload, err := json.Marshal(CompleteRequest{
		UploadID:    uploadID,
		Name:        file.Name,
		TotalChunks: totalChunks,
		Size:        file.Size,
		Org:         a.org,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/files/upload/complete", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var info models.FileInfo
	if err := a.do(req, http.StatusCreated, &info); err != nil {
		return nil, fmt.Errorf("completing upload of %s: %w", file.Name, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("completing upload of %s: server returned no id", file.Name)
	}
	return &info, nil
}

// Usage fetches what the organisation already stores on the server.
func (a *ChunkedAdapter) Usage(ctx context.Context) (*models.Usage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.base+"/api/files/usage?org="+url.QueryEscape(a.org), nil)
	if err != nil {
		return nil, err
	}

	var usage models.Usage
	if err := a.do(req, http.StatusOK, &usage); err != nil {
		return nil, fmt.Errorf("fetching usage: %w", err)
	}
	return &usage, nil
}

// serverError mirrors the transfer server's error body.
type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *ChunkedAdapter) do(req *http.Request, want int, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var se serverError
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &se) == nil && se.Message != "" {
			return fmt.Errorf("server responded %d: %s", resp.StatusCode, se.Message)
		}
		return fmt.Errorf("server responded %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
