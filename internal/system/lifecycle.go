package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/api/rest"
	"github.com/KevinKickass/OpenWalkingPad/internal/api/websocket"
	"github.com/KevinKickass/OpenWalkingPad/internal/app"
	"github.com/KevinKickass/OpenWalkingPad/internal/config"
	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/interfaces"
	"github.com/KevinKickass/OpenWalkingPad/internal/metrics"
	"github.com/KevinKickass/OpenWalkingPad/internal/mqtt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LifecycleManager runs the daemon: poller, HTTP API, websocket fan-out,
// metrics, MQTT bridge and event log.
type LifecycleManager struct {
	config    *config.Config
	container *app.Container
	logger    *zap.Logger

	restServer *rest.Server
	wsHub      *websocket.Hub
	recorder   *metrics.Recorder
	mqttClient *mqtt.Client
	bridge     *mqtt.Bridge

	cancel context.CancelFunc
	group  *errgroup.Group

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(container *app.Container, logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleManager{
		config:       container.Config,
		container:    container,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts all components. The device is not contacted here; the
// poller reports connection problems as events.
func (lm *LifecycleManager) Start(parent context.Context) error {
	lm.logger.Info("Starting WalkingPad daemon")

	hub := lm.container.Hub
	service := lm.container.Service

	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	lm.cancel = cancel
	lm.group = g

	sink := events.NewLogSink(hub, lm.logger)
	g.Go(func() error { return sink.Run(gctx) })

	lm.recorder = metrics.NewRecorder(hub, lm.logger.Named("metrics"))
	g.Go(func() error { return lm.recorder.Run(gctx) })

	lm.wsHub = websocket.NewHub(hub, lm.logger.Named("websocket"))
	lm.wsHub.SetStatusProvider(service)
	g.Go(func() error { return lm.wsHub.Run(gctx) })

	if lm.config.MQTT.Enabled() {
		if err := lm.startMQTT(gctx, g); err != nil {
			return lm.abortStart(err)
		}
	}

	if err := service.StartPolling(lm.config.WalkingPad.PollingInterval); err != nil {
		return lm.abortStart(fmt.Errorf("failed to start poller: %w", err))
	}

	if err := lm.startRESTServer(); err != nil {
		return lm.abortStart(fmt.Errorf("failed to start REST API: %w", err))
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("device", lm.container.Client.Address()),
		zap.Duration("polling_interval", lm.config.WalkingPad.PollingInterval),
		zap.Bool("mqtt_enabled", lm.config.MQTT.Enabled()))

	return nil
}

// abortStart undoes a partial Start: poller stopped, consumers cancelled and
// awaited. The container stays open for Shutdown.
func (lm *LifecycleManager) abortStart(err error) error {
	lm.container.Service.StopPolling()
	lm.cancel()
	if waitErr := lm.group.Wait(); waitErr != nil {
		lm.logger.Debug("Consumer exited with error", zap.Error(waitErr))
	}
	lm.setError(err)
	return err
}

func (lm *LifecycleManager) startMQTT(ctx context.Context, g *errgroup.Group) error {
	cfg := lm.config.MQTT
	client, err := mqtt.NewClient(mqtt.ClientConfig{
		BrokerURL:         cfg.Broker,
		ClientID:          cfg.ClientID,
		Username:          cfg.Username,
		Password:          cfg.Password,
		AvailabilityTopic: mqtt.AvailabilityTopic(cfg.TopicRoot),
	}, lm.logger.Named("mqtt"))
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	lm.mqttClient = client
	lm.bridge = mqtt.NewBridge(lm.container.Hub, client, cfg.TopicRoot, byte(cfg.QoS), lm.logger.Named("mqtt"))

	g.Go(func() error { return lm.bridge.Run(ctx) })
	g.Go(func() error {
		if err := client.AwaitConnection(ctx); err != nil {
			return nil
		}
		if err := lm.bridge.ServeCommands(ctx, client, lm.container.Service); err != nil {
			// re-subscribed on the next connection
			lm.logger.Warn("MQTT command subscription failed", zap.Error(err))
		}
		return nil
	})
	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.container.Service, lm.wsHub, lm.recorder.Handler(), lm.logger.Named("rest"))
	return lm.restServer.Start()
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	// 1. Poller zuerst, ein laufender Read darf fertig werden
	lm.container.Service.StopPolling()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		if err := lm.restServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
	}

	// 3. MQTT offline melden
	if lm.mqttClient != nil {
		if err := lm.mqttClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt disconnect failed: %w", err))
		}
	}

	// 4. Consumers stoppen
	if lm.cancel != nil {
		lm.cancel()
	}

	done := make(chan error, 1)
	go func() {
		var err error
		if lm.group != nil {
			err = lm.group.Wait()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		errs = append(errs, errors.New("shutdown timeout exceeded"))
	}

	if err := lm.container.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		lm.logger.Info("Graceful shutdown completed")
	}
	return errors.Join(errs...)
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	if state == StateRunning {
		lm.startedAt = time.Now().UTC()
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

// State returns the current lifecycle state
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) broadcastStatus() {
	if lm.wsHub == nil {
		return
	}
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	startedAt := lm.startedAt
	lm.stateMu.RUnlock()

	service := lm.container.Service
	status := interfaces.SystemStatus{
		State:         state.String(),
		Model:         lm.config.WalkingPad.Model,
		DeviceAddress: lm.container.Client.Address(),
		Polling:       service.Polling(),
		Poller:        service.PollerStats(),
		Subscribers:   lm.container.Hub.SubscriberCount(),
		MQTTEnabled:   lm.config.MQTT.Enabled(),
		StartedAt:     startedAt,
	}
	if lm.wsHub != nil {
		status.WebsocketClients = lm.wsHub.GetClientCount()
	}
	return status
}
