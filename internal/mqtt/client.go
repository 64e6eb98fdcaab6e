package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"
)

// MessageHandler handles one received message.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// ClientConfig holds the broker connection settings.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 30.
	KeepAlive uint16

	// ConnectTimeout for each connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// AvailabilityTopic gets a retained "online" on connect and "offline" as will.
	AvailabilityTopic string
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
}

// Validate checks if the configuration is usable.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid broker url %q (want e.g. mqtt://host:1883)", c.BrokerURL)
	}
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	return nil
}

// Client is an auto-reconnecting MQTT v5 connection.
type Client struct {
	cfg    ClientConfig
	logger *zap.Logger
	cm     *autopaho.ConnectionManager

	mu       sync.RWMutex
	handlers map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	setDefaultConfig(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]subscription),
	}, nil
}

// Start begins connecting in the background. The connection is kept up
// until ctx is cancelled or Disconnect is called.
func (c *Client) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		WillMessage:                   c.willMessage(),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	c.logger.Info("Starting MQTT client",
		zap.String("broker", c.cfg.BrokerURL),
		zap.String("client_id", c.cfg.ClientID))

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm
	return nil
}

// AwaitConnection blocks until connected or ctx is done.
func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errors.New("client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *Client) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if c.cm == nil {
		return errors.New("client not started")
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// Subscribe registers handler for filter. Subscriptions are renewed on reconnect.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error {
	if c.cm == nil {
		return errors.New("client not started")
	}
	c.mu.Lock()
	c.handlers[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: qos}},
	}); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}
	c.logger.Info("Subscribed to topic", zap.String("topic", filter))
	return nil
}

// Disconnect publishes "offline" and closes the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	if c.cfg.AvailabilityTopic != "" {
		if err := c.Publish(ctx, c.cfg.AvailabilityTopic, 1, true, []byte("offline")); err != nil {
			c.logger.Debug("Failed to publish offline state", zap.Error(err))
		}
	}
	err := c.cm.Disconnect(ctx)
	c.logger.Info("MQTT client disconnected")
	return err
}

func (c *Client) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.logger.Info("MQTT connection established")

	if c.cfg.AvailabilityTopic != "" {
		if _, err := cm.Publish(context.Background(), &paho.Publish{
			Topic:   c.cfg.AvailabilityTopic,
			QoS:     1,
			Retain:  true,
			Payload: []byte("online"),
		}); err != nil {
			c.logger.Warn("Failed to publish availability", zap.Error(err))
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for filter, sub := range c.handlers {
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: sub.qos}},
		}); err != nil {
			c.logger.Error("Failed to re-subscribe", zap.String("topic", filter), zap.Error(err))
		}
	}
}

func (c *Client) onConnectError(err error) {
	c.logger.Warn("MQTT connection failed, retrying", zap.Error(err))
}

func (c *Client) onClientError(err error) {
	c.logger.Error("MQTT client error", zap.Error(err))
}

func (c *Client) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT server requested disconnect", zap.String("reason", reason))
}

func (c *Client) route(p paho.PublishReceived) (bool, error) {
	c.mu.RLock()
	var matched []MessageHandler
	for filter, sub := range c.handlers {
		if topicMatches(filter, p.Packet.Topic) {
			matched = append(matched, sub.handler)
		}
	}
	c.mu.RUnlock()

	if len(matched) == 0 {
		c.logger.Debug("Received message on unhandled topic", zap.String("topic", p.Packet.Topic))
	}
	for _, h := range matched {
		go h(context.Background(), p.Packet.Topic, p.Packet.Payload)
	}
	return true, nil
}

func (c *Client) willMessage() *paho.WillMessage {
	if c.cfg.AvailabilityTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.AvailabilityTopic,
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}
}

// topicMatches checks topic against a filter with + and # wildcards.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
