package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/realtime"
)

// eventBuffer is how many events a slow client may lag behind before events
// are dropped for it.
const eventBuffer = 256

// WebSocketHandler streams processing events to connected clients
type WebSocketHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewWebSocketHandler creates a new event stream handler
func NewWebSocketHandler(hub *realtime.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		log: logging.Logger.With("component", "websocket"),
	}
}

// HandleEvents upgrades the connection and forwards every hub event to it
func (wsh *WebSocketHandler) HandleEvents(c echo.Context) error {
	// listen before the handshake completes so no event published after it is missed
	events := make(chan models.ProcessingEvent, eventBuffer)
	stop := wsh.hub.Listen(func(ev models.ProcessingEvent) {
		select {
		case events <- ev:
		default:
			wsh.log.Warn("client too slow, dropping event", "file", ev.ID, "type", ev.Type)
		}
	})
	defer stop()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	wsh.log.Info("client connected", "remote", c.RealIP())

	if err := wsh.sendMessage(ws, models.WSMessage{Type: realtime.MsgTypeConnected}); err != nil {
		return nil
	}

	// gorilla allows one writer; the reader hands pings to the loop below
	pings := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg models.WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsh.log.Warn("connection error", "error", err)
				}
				return
			}
			if msg.Type == realtime.MsgTypePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-done:
			wsh.log.Info("client disconnected", "remote", c.RealIP())
			return nil
		case <-pings:
			if err := wsh.sendMessage(ws, models.WSMessage{Type: realtime.MsgTypePong}); err != nil {
				return nil
			}
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := wsh.sendMessage(ws, models.WSMessage{Type: realtime.MsgTypeEvent, ID: ev.ID, Payload: payload}); err != nil {
				return nil
			}
		}
	}
}

var _ EventsHandler = (*WebSocketHandler)(nil)

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg models.WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Warn("failed to send message", "error", err)
		return err
	}
	return nil
}
