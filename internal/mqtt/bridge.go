package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap"
)

// Publisher is the subset of Client the bridge publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
}

// Subscriber is the subset of Client used for the command topic.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error
}

// Dispatcher executes a named pad command.
type Dispatcher interface {
	Dispatch(ctx context.Context, req pad.CommandRequest) (types.CommandResult, error)
}

const publishTimeout = 5 * time.Second

// Bridge mirrors hub events to <root>/<kind> and accepts commands on
// <root>/command/<name>. Status updates are retained.
type Bridge struct {
	hub       *events.Hub
	publisher Publisher
	root      string
	qos       byte
	logger    *zap.Logger
}

func NewBridge(hub *events.Hub, publisher Publisher, root string, qos byte, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		hub:       hub,
		publisher: publisher,
		root:      normalizeRoot(root),
		qos:       qos,
		logger:    logger,
	}
}

// Topic returns the topic for an event kind.
func (b *Bridge) Topic(kind events.Kind) string {
	return b.root + "/" + string(kind)
}

// CommandFilter is the subscription filter for incoming commands.
func (b *Bridge) CommandFilter() string {
	return b.root + "/command/+"
}

// AvailabilityTopic carries the retained online/offline state.
func (b *Bridge) AvailabilityTopic() string {
	return AvailabilityTopic(b.root)
}

// AvailabilityTopic returns the availability topic below root.
func AvailabilityTopic(root string) string {
	return normalizeRoot(root) + "/availability"
}

func normalizeRoot(root string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return "walkingpad"
	}
	return root
}

// Run publishes events until ctx is cancelled or the hub closes.
func (b *Bridge) Run(ctx context.Context) error {
	for ev := range b.hub.Stream(ctx) {
		b.forward(ctx, ev)
	}
	return nil
}

func (b *Bridge) forward(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to encode event", zap.String("kind", string(ev.Kind())), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	retain := ev.Kind() == events.KindStatusUpdated
	if err := b.publisher.Publish(pubCtx, b.Topic(ev.Kind()), b.qos, retain, payload); err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("Failed to publish event",
				zap.String("topic", b.Topic(ev.Kind())),
				zap.Error(err))
		}
	}
}

// commandMessage is the optional JSON payload on a command topic.
// A plain string payload is taken as the value.
type commandMessage struct {
	Value string `json:"value"`
}

// ServeCommands subscribes to the command topic and dispatches to d.
// Results and failures reach subscribers through the usual events.
func (b *Bridge) ServeCommands(ctx context.Context, sub Subscriber, d Dispatcher) error {
	return sub.Subscribe(ctx, b.CommandFilter(), b.qos, func(ctx context.Context, topic string, payload []byte) {
		b.handleCommand(ctx, d, topic, payload)
	})
}

func (b *Bridge) handleCommand(ctx context.Context, d Dispatcher, topic string, payload []byte) {
	name := topic[strings.LastIndex(topic, "/")+1:]
	cmd, err := pad.ParseCommand(name)
	if err != nil {
		b.logger.Warn("Ignoring unknown command", zap.String("topic", topic))
		return
	}

	value := strings.TrimSpace(string(payload))
	var msg commandMessage
	if strings.HasPrefix(value, "{") {
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.logger.Warn("Invalid command payload", zap.String("topic", topic), zap.Error(err))
			return
		}
		value = msg.Value
	}

	result, err := d.Dispatch(ctx, pad.CommandRequest{Command: cmd, Value: value})
	if err != nil {
		level := zap.WarnLevel
		if errors.Is(err, types.ErrCommandValidation) {
			level = zap.InfoLevel
		}
		b.logger.Check(level, "MQTT command failed").Write(
			zap.String("command", string(cmd)),
			zap.Error(err))
		return
	}
	b.logger.Debug("MQTT command executed", zap.String("command", result.Command))
}
