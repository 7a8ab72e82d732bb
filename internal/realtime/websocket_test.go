package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventServer pushes whatever is sent on events to every connected client.
func eventServer(t *testing.T, events <-chan models.ProcessingEvent) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteJSON(models.WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})
		for ev := range events {
			payload, _ := json.Marshal(ev)
			if err := ws.WriteJSON(models.WSMessage{Type: MsgTypeEvent, ID: ev.ID, Payload: payload}); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketChannel_ReceivesEvents(t *testing.T) {
	events := make(chan models.ProcessingEvent, 4)
	url := eventServer(t, events)

	ch := NewWebSocketChannel(url)

	var mu sync.Mutex
	var progress []int
	var completed []string
	ch.Subscribe(Handlers{
		OnProgress: func(id string, pct int) {
			mu.Lock()
			progress = append(progress, pct)
			mu.Unlock()
		},
		OnComplete: func(id string) {
			mu.Lock()
			completed = append(completed, id)
			mu.Unlock()
		},
	})

	require.NoError(t, ch.Start(context.Background()))

	events <- models.ProcessingEvent{Type: models.EventProgress, ID: "f1", Progress: 30}
	events <- models.ProcessingEvent{Type: models.EventComplete, ID: "f1"}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{30}, progress)
	assert.Equal(t, []string{"f1"}, completed)
	mu.Unlock()

	close(events)
	require.NoError(t, ch.Stop())
	require.NoError(t, ch.Stop())
}

func TestWebSocketChannel_StartFailsWithoutServer(t *testing.T) {
	ch := NewWebSocketChannel("ws://127.0.0.1:1/api/ws/events")
	assert.Error(t, ch.Start(context.Background()))
	assert.NoError(t, ch.Stop())
}
