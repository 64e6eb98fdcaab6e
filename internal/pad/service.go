package pad

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/gateway"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap"
)

// Service coordinates status reads and commands against one pad.
// All device calls go through the gateway; results are published on the hub.
type Service struct {
	device  Device
	hub     *events.Hub
	gateway *gateway.Gateway
	logger  *zap.Logger

	latest atomic.Pointer[types.PadStatus]

	pollMu sync.Mutex
	poller *Poller
}

func NewService(device Device, hub *events.Hub, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = events.NewHub(logger)
	}
	return &Service{
		device:  device,
		hub:     hub,
		gateway: gateway.New(hub, logger.Named("gateway")),
		logger:  logger,
	}
}

// Hub returns the event hub the service publishes on.
func (s *Service) Hub() *events.Hub {
	return s.hub
}

// Gateway returns the gateway guarding the device.
func (s *Service) Gateway() *gateway.Gateway {
	return s.gateway
}

// GetStatus reads the pad status. quick asks for the cheaper partial read.
func (s *Service) GetStatus(ctx context.Context, quick bool) (types.PadStatus, error) {
	status, err := gateway.Call(ctx, s.gateway, types.OpGetStatus, func() (types.PadStatus, error) {
		return s.device.Status(quick)
	})
	if err != nil {
		return types.PadStatus{}, err
	}
	s.recordStatus(status, quick)
	return status, nil
}

// tryGetStatus is a full read that only runs if the device is idle right
// now; otherwise it fails with gateway.ErrBusy and publishes nothing.
func (s *Service) tryGetStatus() (types.PadStatus, error) {
	status, err := gateway.TryCall(s.gateway, types.OpGetStatus, func() (types.PadStatus, error) {
		return s.device.Status(false)
	})
	if err != nil {
		return types.PadStatus{}, err
	}
	s.recordStatus(status, false)
	return status, nil
}

func (s *Service) recordStatus(status types.PadStatus, quick bool) {
	s.latest.Store(&status)
	s.hub.Publish(events.StatusUpdated{
		Timestamp: events.Now(),
		Status:    status,
		Quick:     quick,
	})
}

// LatestStatus returns the last successfully read status, if any.
func (s *Service) LatestStatus() (types.PadStatus, bool) {
	st := s.latest.Load()
	if st == nil {
		return types.PadStatus{}, false
	}
	return *st, true
}

func (s *Service) Start(ctx context.Context) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpStart, s.device.Start)
}

func (s *Service) Stop(ctx context.Context) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpStop, s.device.Stop)
}

func (s *Service) PowerOn(ctx context.Context) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpPowerOn, s.device.PowerOn)
}

func (s *Service) PowerOff(ctx context.Context) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpPowerOff, s.device.PowerOff)
}

func (s *Service) Lock(ctx context.Context) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpLock, s.device.Lock)
}

func (s *Service) Unlock(ctx context.Context) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpUnlock, s.device.Unlock)
}

// SetSpeed validates before admission; rejected values produce no events.
func (s *Service) SetSpeed(ctx context.Context, speedKmh float64) (types.CommandResult, error) {
	if err := types.ValidateSpeed("speed_kmh", speedKmh); err != nil {
		return types.CommandResult{}, err
	}
	return s.runCommand(ctx, types.OpSetSpeed, func() (types.CommandResult, error) {
		return s.device.SetSpeed(speedKmh)
	})
}

func (s *Service) SetStartSpeed(ctx context.Context, speedKmh float64) (types.CommandResult, error) {
	if err := types.ValidateSpeed("start_speed_kmh", speedKmh); err != nil {
		return types.CommandResult{}, err
	}
	return s.runCommand(ctx, types.OpSetStartSpeed, func() (types.CommandResult, error) {
		return s.device.SetStartSpeed(speedKmh)
	})
}

func (s *Service) SetMode(ctx context.Context, mode types.PadMode) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpSetMode, func() (types.CommandResult, error) {
		return s.device.SetMode(mode)
	})
}

func (s *Service) SetSensitivity(ctx context.Context, sensitivity types.PadSensitivity) (types.CommandResult, error) {
	return s.runCommand(ctx, types.OpSetSensitivity, func() (types.CommandResult, error) {
		return s.device.SetSensitivity(sensitivity)
	})
}

// Capabilities is a static read, it never touches the device.
func (s *Service) Capabilities() types.Capabilities {
	return s.device.Capabilities()
}

// Subscribe registers a new event subscriber. Close it when done.
func (s *Service) Subscribe() *events.Subscription {
	return s.hub.Subscribe()
}

// EventStream yields events until ctx is done or the loop breaks.
func (s *Service) EventStream(ctx context.Context) iter.Seq[events.Event] {
	return s.hub.Stream(ctx)
}

func (s *Service) runCommand(ctx context.Context, operation string, call func() (types.CommandResult, error)) (types.CommandResult, error) {
	result, err := gateway.Call(ctx, s.gateway, operation, call)
	if err != nil {
		return types.CommandResult{}, err
	}
	if result.Command == "" {
		result.Command = operation
	}

	s.hub.Publish(events.CommandExecuted{
		Timestamp: events.Now(),
		Result:    result,
	})
	return result, nil
}

// StartPolling starts the background poller. No-op if it already runs.
func (s *Service) StartPolling(interval time.Duration) error {
	if interval <= 0 {
		return types.NewValidationError(fmt.Sprintf("polling interval must be > 0, got %s", interval))
	}

	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if s.poller == nil {
		s.poller = NewPoller(s, s.logger.Named("poller"))
	}
	return s.poller.Start(interval)
}

// StopPolling stops the poller and waits until the loop has exited.
func (s *Service) StopPolling() {
	s.pollMu.Lock()
	p := s.poller
	s.pollMu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// Polling reports whether the background poller is running.
func (s *Service) Polling() bool {
	s.pollMu.Lock()
	p := s.poller
	s.pollMu.Unlock()

	return p != nil && p.IsRunning()
}

// PollerStats returns poll counters, zero if polling never started.
func (s *Service) PollerStats() PollerStats {
	s.pollMu.Lock()
	p := s.poller
	s.pollMu.Unlock()

	if p == nil {
		return PollerStats{}
	}
	return p.Stats()
}
