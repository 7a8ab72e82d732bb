package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/plc-visualizer/uploader/internal/models"
)

// Hub is an in-process event bus. The transfer server publishes processing events
// on it and the websocket stream fans them out; in tests it stands in for a
// remote channel.
type Hub struct {
	listeners
	running atomic.Bool
}

var (
	_ Adapter   = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// NewHub creates a stopped hub.
func NewHub() *Hub {
	return &Hub{}
}

// Start begins delivering events.
func (h *Hub) Start(context.Context) error {
	h.running.Store(true)
	return nil
}

// Stop stops delivery. Events published afterwards are dropped.
func (h *Hub) Stop() error {
	h.running.Store(false)
	return nil
}

// Running reports whether Publish currently delivers events.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Subscribe registers handlers for every published event.
func (h *Hub) Subscribe(handlers Handlers) func() {
	return h.subscribe(handlers)
}

// Listen registers a raw event listener.
func (h *Hub) Listen(fn func(models.ProcessingEvent)) func() {
	return h.add(fn)
}

// Publish delivers ev synchronously to every subscriber.
func (h *Hub) Publish(_ context.Context, ev models.ProcessingEvent) error {
	if !h.running.Load() {
		return ErrNotStarted
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	h.emit(ev)
	return nil
}

// Fanout publishes to several publishers; every one is tried and the first error
// is returned.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, ev models.ProcessingEvent) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
