// Package testutil provides test doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/storage"
)

// Script describes how ScriptedAdapter handles one file name.
type Script struct {
	Steps []int         // Progress values reported in order
	ID    string        // Returned id; "id-<name>" when empty
	Err   error         // Returned instead of an id
	Gate  chan struct{} // When set, Upload blocks on it after the steps
}

// ScriptedAdapter is a storage.Adapter whose behaviour is set per file name.
// Unknown names report 0/25/50 and succeed.
type ScriptedAdapter struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   []string
	active  int
	peak    int
}

var _ storage.Adapter = (*ScriptedAdapter)(nil)

// NewScriptedAdapter creates an adapter without scripts.
func NewScriptedAdapter() *ScriptedAdapter {
	return &ScriptedAdapter{scripts: make(map[string]Script)}
}

// On sets the script for name.
func (a *ScriptedAdapter) On(name string, s Script) *ScriptedAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scripts[name] = s
	return a
}

// Upload implements storage.Adapter.
func (a *ScriptedAdapter) Upload(ctx context.Context, file *models.File, onProgress storage.ProgressFunc) (string, error) {
	a.mu.Lock()
	s, ok := a.scripts[file.Name]
	if !ok {
		s = Script{Steps: []int{0, 25, 50}}
	}
	a.calls = append(a.calls, file.Name)
	a.active++
	a.peak = max(a.peak, a.active)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.active--
		a.mu.Unlock()
	}()

	for _, step := range s.Steps {
		if onProgress != nil {
			onProgress(step)
		}
	}

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if s.Err != nil {
		return "", s.Err
	}
	if s.ID != "" {
		return s.ID, nil
	}
	return fmt.Sprintf("id-%s", file.Name), nil
}

// Calls returns the names passed to Upload in call order.
func (a *ScriptedAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// CallCount returns the number of Upload calls.
func (a *ScriptedAdapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// Peak returns the highest number of simultaneous uploads seen.
func (a *ScriptedAdapter) Peak() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peak
}

// Sized returns an in-memory file of size bytes.
func Sized(name string, size int) *models.File {
	return models.NewFileFromBytes(name, make([]byte, size))
}
