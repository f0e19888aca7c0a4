package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with Tilt Logic-specific functionality.
//
// It provides connection management, message publishing, subscription handling,
// and automatic reconnection with exponential backoff.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods; hand work that mutates
// engine state to the control loop instead of doing it inline.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload (typically JSON)
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// NewClient creates a disconnected client for the given configuration.
// Call Connect before publishing or subscribing.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
}

// SetLogger sets the logger used for connection and handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = logger
}

// Connect establishes a connection to the MQTT broker.
//
// It configures auto-reconnect with exponential backoff and restores
// active subscriptions whenever the connection is re-established.
//
// Returns:
//   - error: ErrConnectionFailed (wrapped) if the initial connect fails
func (c *Client) Connect() error {
	opts := buildClientOptions(c.cfg)

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.resubscribeAll()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logError("mqtt connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return nil
}

// Disconnect closes the broker connection gracefully, allowing pending
// operations a short quiesce period.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
}

// IsConnected reports whether the client currently has a broker connection.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Publish sends a message to the specified topic.
//
// Parameters:
//   - topic: Destination topic (must not be empty)
//   - payload: Message body
//   - qos: Delivery guarantee (0, 1, or 2)
//   - retained: Whether the broker retains the message for new subscribers
//
// Returns:
//   - error: ErrNotConnected, ErrInvalidTopic, ErrInvalidQoS, or a wrapped
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %v", ErrPublishFailed, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return nil
}

// Subscribe registers a handler for messages on a topic (wildcards allowed).
// The subscription survives reconnects.
//
// Returns:
//   - error: ErrNotConnected, ErrInvalidTopic, or a wrapped ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := c.subscribe(topic, qos, handler); err != nil {
		return err
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	return nil
}

// subscribe performs the actual paho subscription without tracking.
func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logError("mqtt handler error", "topic", msg.Topic(), "error", err)
		}
	})

	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	return nil
}

// resubscribeAll restores tracked subscriptions after a reconnect.
func (c *Client) resubscribeAll() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subMu.RUnlock()

	for _, s := range subs {
		if err := c.subscribe(s.topic, s.qos, s.handler); err != nil {
			c.logError("mqtt re-subscribe failed", "topic", s.topic, "error", err)
		}
	}
}

// logError logs via the configured logger, if any.
func (c *Client) logError(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
