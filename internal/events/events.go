package events

import (
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
)

// Kind identifies an event on the wire (websocket, MQTT topics, logs).
type Kind string

const (
	KindStatusUpdated   Kind = "status_updated"
	KindCommandExecuted Kind = "command_executed"
	KindOperationTiming Kind = "operation_timing"
	KindError           Kind = "error"
)

// Event is a published domain event. Values are never mutated after publish.
type Event interface {
	Kind() Kind
	Time() time.Time
}

type StatusUpdated struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    types.PadStatus `json:"status"`
	Quick     bool            `json:"quick"`
}

func (e StatusUpdated) Kind() Kind      { return KindStatusUpdated }
func (e StatusUpdated) Time() time.Time { return e.Timestamp }

type CommandExecuted struct {
	Timestamp time.Time           `json:"timestamp"`
	Result    types.CommandResult `json:"result"`
}

func (e CommandExecuted) Kind() Kind      { return KindCommandExecuted }
func (e CommandExecuted) Time() time.Time { return e.Timestamp }

// OperationTiming is emitted once per gateway call, durations in milliseconds.
type OperationTiming struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	WaitMs    float64   `json:"wait_ms"`
	RunMs     float64   `json:"run_ms"`
	TotalMs   float64   `json:"total_ms"`
	Success   bool      `json:"success"`
}

func (e OperationTiming) Kind() Kind      { return KindOperationTiming }
func (e OperationTiming) Time() time.Time { return e.Timestamp }

type Error struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
}

func (e Error) Kind() Kind      { return KindError }
func (e Error) Time() time.Time { return e.Timestamp }

// Now is the clock used for event timestamps.
func Now() time.Time {
	return time.Now().UTC()
}
