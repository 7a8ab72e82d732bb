package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plc-visualizer/uploader/internal/models"
)

// MockAdapter is an in-process adapter for demos and tests. It reports the same
// progress steps for every file and never touches the network.
type MockAdapter struct {
	Steps []int
	Delay time.Duration // Pause between steps

	counter atomic.Int64

	mu       sync.Mutex
	failures map[string]string
	uploaded []string
}

var _ Adapter = (*MockAdapter)(nil)

// NewMockAdapter creates a MockAdapter reporting 25/50/75/100.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Steps:    []int{25, 50, 75, 100},
		failures: make(map[string]string),
	}
}

// FailOn makes uploads of the named file fail with message.
func (m *MockAdapter) FailOn(name, message string) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]string)
	}
	m.failures[name] = message
	return m
}

// Uploaded returns the names of files uploaded successfully, in completion order.
func (m *MockAdapter) Uploaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploaded...)
}

// Upload reports the configured steps and returns a "mock-N" id.
func (m *MockAdapter) Upload(ctx context.Context, file *models.File, onProgress ProgressFunc) (string, error) {
	m.mu.Lock()
	msg, fail := m.failures[file.Name]
	m.mu.Unlock()

	for i, step := range m.Steps {
		if fail && i == len(m.Steps)/2 {
			return "", errors.New(msg)
		}
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.Delay):
			}
		}
		if onProgress != nil {
			onProgress(step)
		}
	}
	if fail {
		return "", errors.New(msg)
	}

	id := fmt.Sprintf("mock-%d", m.counter.Add(1))

	m.mu.Lock()
	m.uploaded = append(m.uploaded, file.Name)
	m.mu.Unlock()

	return id, nil
}
