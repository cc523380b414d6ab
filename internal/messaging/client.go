// Package messaging wraps the MQTT broker connection used for both inbound
// topic subscription and outbound publication. Generalized from
// internal/mqttclient/client.go (subscribe-only) to also publish, carrying
// each outbound message's partition-affinity key alongside its payload.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MessageHandler processes one inbound message for a given topic.
type MessageHandler func(topic string, payload []byte)

// Client wraps a connected MQTT broker session, subscribing to a fixed set
// of topics and publishing outbound messages.
type Client struct {
	conn      mqtt.Client
	topics    []string
	publishQoS byte
	connected atomic.Bool
	log       zerolog.Logger
	handler   MessageHandler
}

// Options configures Connect.
type Options struct {
	BrokerURL string
	ClientID  string
	Topics    []string
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Connect dials the broker and subscribes to opts.Topics, retrying
// automatically on connection loss.
func Connect(opts Options) (*Client, error) {
	c := &Client{
		topics:     opts.Topics,
		publishQoS: 1,
		log:        opts.Log,
	}
	if len(c.topics) == 0 {
		c.topics = []string{"#"}
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) SetMessageHandler(h MessageHandler) { c.handler = h }

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Strs("topics", c.topics).Msg("mqtt connected, subscribing")

	filters := make(map[string]byte, len(c.topics))
	for _, t := range c.topics {
		filters[t] = 1
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message received")
}

// envelope carries a message's partition-affinity key alongside its
// payload. The pinned MQTT client (v1.4.3, protocol 3.1.1) has no user-
// property mechanism, so key travels as a thin JSON wrapper rather than as
// an MQTT v5 property — the nearest equivalent this transport supports.
type envelope struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Publish sends payload to topic with the given partition-affinity key.
func (c *Client) Publish(ctx context.Context, topic, key string, payload []byte) error {
	wrapped, err := json.Marshal(envelope{Key: key, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding publish envelope: %w", err)
	}

	token := c.conn.Publish(topic, c.publishQoS, false, wrapped)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

// DecodeEnvelope extracts the key and inner payload from a message
// published via Publish. Consumers that only subscribe to this service's
// own outbound topics use this to recover the original payload.
func DecodeEnvelope(raw []byte) (key string, payload []byte, err error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", nil, err
	}
	return e.Key, e.Payload, nil
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

// PrefixTopics prepends env- to each bare topic name, matching the
// convention ENV-qualified topics use throughout this service.
func PrefixTopics(env string, topics ...string) []string {
	prefixed := make([]string, len(topics))
	for i, t := range topics {
		prefixed[i] = env + "-" + strings.TrimPrefix(t, env+"-")
	}
	return prefixed
}
