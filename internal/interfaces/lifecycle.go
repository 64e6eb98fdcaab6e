package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
)

// SystemStatus represents the current daemon state
type SystemStatus struct {
	State            string          `json:"state"`
	Model            string          `json:"model"`
	DeviceAddress    string          `json:"device_address"`
	Polling          bool            `json:"polling"`
	Poller           pad.PollerStats `json:"poller"`
	Subscribers      int             `json:"subscribers"`
	WebsocketClients int             `json:"websocket_clients"`
	MQTTEnabled      bool            `json:"mqtt_enabled"`
	StartedAt        time.Time       `json:"started_at"`
}

// PadController is the pad surface exposed to the API layers.
type PadController interface {
	GetStatus(ctx context.Context, quick bool) (types.PadStatus, error)
	LatestStatus() (types.PadStatus, bool)
	Capabilities() types.Capabilities
	Dispatch(ctx context.Context, req pad.CommandRequest) (types.CommandResult, error)
	StartPolling(interval time.Duration) error
	StopPolling()
	Polling() bool
	PollerStats() pad.PollerStats
}

type LifecycleManager interface {
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
