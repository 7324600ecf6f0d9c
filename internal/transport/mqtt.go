package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sudior04/iot-backend/internal/apperr"
	"github.com/sudior04/iot-backend/internal/config"
)

// Handler processes one inbound message. A returned error is logged; it
// never stops the subscription.
type Handler func(topic string, payload []byte) error

// Client wraps the paho MQTT client. The ingestion pipeline owns this
// handle for publishing; inbound delivery goes through a single injected
// Handler — there is no back-registration between transport and service.
type Client struct {
	cli    mqtt.Client
	qos    byte
	logger *zap.Logger
}

// NewClient connects to the broker and ties disconnection to the fx
// lifecycle. Auto-reconnect is on; while disconnected, publishes fail
// with apperr.ErrTransportUnavailable and paho restores the subscription
// on reconnect.
func NewClient(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.BrokerURL).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.MQTT.BrokerURL))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("mqtt reconnecting", zap.String("broker", cfg.MQTT.BrokerURL))
	}

	cli := mqtt.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.MQTT.BrokerURL, token.Error())
	}

	client := &Client{
		cli:    cli,
		qos:    cfg.MQTT.QoS,
		logger: logger,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cli.Disconnect(250)
			logger.Info("mqtt disconnected")
			return nil
		},
	})

	return client, nil
}

// Subscribe registers the handler for every message matching the topic
// filter. Handler errors are logged per message; one bad message never
// stops ingestion of subsequent messages.
func (c *Client) Subscribe(topicFilter string, handler Handler) error {
	token := c.cli.Subscribe(topicFilter, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("failed to process message",
				zap.Error(err),
				zap.String("topic", msg.Topic()),
				zap.Int("body_size", len(msg.Payload())),
			)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topicFilter, token.Error())
	}

	c.logger.Info("subscribed", zap.String("topic", topicFilter))
	return nil
}

// Publish hands a payload to the transport. This is fire-and-forget:
// success means the broker accepted the publish, not that any device
// received it.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.cli.IsConnected() {
		return fmt.Errorf("%w: not connected to broker", apperr.ErrTransportUnavailable)
	}

	token := c.cli.Publish(topic, c.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: publish to %s: %v", apperr.ErrTransportUnavailable, topic, token.Error())
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up
func (c *Client) IsConnected() bool {
	return c.cli.IsConnected()
}
