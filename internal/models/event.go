package models

import "encoding/json"

// EventType identifies a realtime processing event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// ProcessingEvent is published by the server while a stored file is processed.
// Progress is the server-side percentage (0-100) for the processing phase only.
type ProcessingEvent struct {
	Type      EventType `json:"type" msgpack:"type"`
	ID        string    `json:"id" msgpack:"id"`
	Progress  int       `json:"progress,omitempty" msgpack:"progress,omitempty"`
	Message   string    `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp int64     `json:"timestamp" msgpack:"timestamp"` // Unix ms
}

// WSMessage is the envelope for every frame on the events websocket.
type WSMessage struct {
	Type      string          `json:"type"` // "connected", "event", "ping", "pong"
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
