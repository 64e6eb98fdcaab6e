package websocket

import (
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Pad events, same names as the hub kinds
	MessageTypeStatusUpdated   = MessageType(events.KindStatusUpdated)
	MessageTypeCommandExecuted = MessageType(events.KindCommandExecuted)
	MessageTypeOperationTiming = MessageType(events.KindOperationTiming)
	MessageTypeError           = MessageType(events.KindError)

	// Sent once after connect with the last known status
	MessageTypeStatusSnapshot MessageType = "status_snapshot"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// NewEventMessage wraps a hub event, keeping its timestamp.
func NewEventMessage(ev events.Event) Message {
	return Message{
		Type:      MessageType(ev.Kind()),
		Timestamp: ev.Time(),
		Data:      ev,
	}
}
