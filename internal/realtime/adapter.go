// Package realtime delivers server-side processing events for stored files.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/plc-visualizer/uploader/internal/models"
)

var (
	// ErrNotStarted is returned when publishing on a channel that is not running.
	ErrNotStarted = errors.New("realtime channel not started")

	// ErrUnknownChannel is returned by New for an unsupported channel kind.
	ErrUnknownChannel = errors.New("unknown realtime channel")
)

// Handlers receives processing events. Nil fields are skipped.
type Handlers struct {
	OnProgress func(id string, pct int)
	OnComplete func(id string)
	OnError    func(id string, reason string)
}

func (h Handlers) dispatch(ev models.ProcessingEvent) {
	switch ev.Type {
	case models.EventProgress:
		if h.OnProgress != nil {
			h.OnProgress(ev.ID, ev.Progress)
		}
	case models.EventComplete:
		if h.OnComplete != nil {
			h.OnComplete(ev.ID)
		}
	case models.EventError:
		if h.OnError != nil {
			h.OnError(ev.ID, ev.Message)
		}
	}
}

// Adapter is a source of processing events.
type Adapter interface {
	Start(ctx context.Context) error
	Stop() error
	Subscribe(h Handlers) (unsubscribe func())
}

// Publisher emits processing events.
type Publisher interface {
	Publish(ctx context.Context, ev models.ProcessingEvent) error
}

// listeners is the subscription registry shared by every channel.
type listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(models.ProcessingEvent)
}

func (l *listeners) add(fn func(models.ProcessingEvent)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(models.ProcessingEvent))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// emit calls every listener outside the lock.
func (l *listeners) emit(ev models.ProcessingEvent) {
	l.mu.RLock()
	fns := make([]func(models.ProcessingEvent), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (l *listeners) subscribe(h Handlers) func() {
	return l.add(h.dispatch)
}
