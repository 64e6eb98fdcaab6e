// Package app wires configuration into a ready pad service.
package app

import (
	"fmt"

	"github.com/KevinKickass/OpenWalkingPad/internal/config"
	"github.com/KevinKickass/OpenWalkingPad/internal/devices"
	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/miio"
	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"github.com/KevinKickass/OpenWalkingPad/internal/walkingpad"
	"go.uber.org/zap"
)

// Container holds the components shared by the CLI, TUI and daemon.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Hub     *events.Hub
	Catalog *devices.Catalog
	Client  *miio.Client
	Adapter *walkingpad.Adapter
	Service *pad.Service
}

// Build creates the transport, adapter and service for cfg. Nothing
// touches the network until the first operation.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, types.NewConfigurationError("configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	token, err := miio.ParseToken(cfg.WalkingPad.Token)
	if err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("WALKINGPAD_TOKEN: %v", err))
	}

	catalog, err := devices.NewCatalog(cfg.Devices.SearchPaths, logger.Named("catalog"))
	if err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("failed to load pad profiles: %v", err))
	}

	client, err := miio.NewClient(cfg.WalkingPad.IP, token, cfg.WalkingPad.RequestTimeout, logger.Named("miio"))
	if err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("failed to create device client: %v", err))
	}

	caps := catalog.Capabilities(cfg.WalkingPad.Model)
	adapter := walkingpad.NewAdapter(client, cfg.WalkingPad.Model, caps, logger.Named("walkingpad"))

	hub := events.NewHub(logger.Named("hub"))
	service := pad.NewService(adapter, hub, logger.Named("service"))

	logger.Debug("Pad service ready",
		zap.String("address", client.Address()),
		zap.String("model", cfg.WalkingPad.Model),
		zap.Duration("request_timeout", cfg.WalkingPad.RequestTimeout))

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Hub:     hub,
		Catalog: catalog,
		Client:  client,
		Adapter: adapter,
		Service: service,
	}, nil
}

// Close stops polling, terminates subscribers and releases the socket.
func (c *Container) Close() error {
	c.Service.StopPolling()
	c.Hub.Close()
	if err := c.Adapter.Close(); err != nil {
		return fmt.Errorf("close device client: %w", err)
	}
	return nil
}
