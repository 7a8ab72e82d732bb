package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/models"
)

const (
	MsgTypeConnected = "connected"
	MsgTypeEvent     = "event"
	MsgTypePing      = "ping"
	MsgTypePong      = "pong"

	maxReconnectDelay = 30 * time.Second
)

// WebSocketChannel reads processing events from the transfer server's event
// stream. A dropped connection is re-dialled until Stop is called.
type WebSocketChannel struct {
	listeners

	url    string
	dialer *websocket.Dialer
	header http.Header
	log    *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Adapter = (*WebSocketChannel)(nil)

// NewWebSocketChannel creates a channel for url ("ws://host/api/ws/events").
func NewWebSocketChannel(url string) *WebSocketChannel {
	return &WebSocketChannel{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    logging.Logger.With("component", "realtime-ws"),
	}
}

// Subscribe registers handlers for received events.
func (w *WebSocketChannel) Subscribe(h Handlers) func() {
	return w.subscribe(h)
}

// Start dials the server. The first dial must succeed.
func (w *WebSocketChannel) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		return nil
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", w.url, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	w.conn = conn
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(loopCtx, conn, w.done)

	w.log.Info("connected", "url", w.url)
	return nil
}

// Stop closes the connection and waits for the reader to exit.
func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	if w.done == nil {
		w.mu.Unlock()
		return nil
	}
	cancel, done, conn := w.cancel, w.done, w.conn
	w.cancel, w.done, w.conn = nil, nil, nil
	w.mu.Unlock()

	cancel()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}
	<-done
	return nil
}

func (w *WebSocketChannel) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	delay := time.Second
	for {
		err := w.read(conn)
		if ctx.Err() != nil {
			return
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			w.log.Warn("connection lost", "error", err)
		}
		conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, _, err := w.dialer.DialContext(ctx, w.url, w.header)
			if err == nil {
				conn = next
				delay = time.Second
				break
			}
			w.log.Warn("reconnect failed", "error", err, "retry_in", delay)
			delay = min(delay*2, maxReconnectDelay)
		}

		w.mu.Lock()
		if w.cancel == nil {
			w.mu.Unlock()
			conn.Close()
			return
		}
		w.conn = conn
		w.mu.Unlock()
		w.log.Info("reconnected", "url", w.url)
	}
}

// read consumes frames until the connection fails.
func (w *WebSocketChannel) read(conn *websocket.Conn) error {
	for {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case MsgTypeEvent:
			var ev models.ProcessingEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				w.log.Warn("invalid event payload", "error", err)
				continue
			}
			w.emit(ev)
		case MsgTypeConnected, MsgTypePong:
		default:
			w.log.Debug("ignoring message", "type", msg.Type)
		}
	}
}
