// Package mqtt connects to the sensor broker and dispatches each message
// under its own deadline.
package mqtt

import (
	"context"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultBroker         = "tcp://mosquitto:1883"
	defaultConnectTimeout = 15 * time.Second
	defaultMessageTimeout = 5 * time.Second

	// sensorQoS is at-least-once; a redelivered reading is stored twice.
	sensorQoS byte = 1
)

type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// ConnectTimeout bounds the initial connect. Zero means 15s.
	ConnectTimeout time.Duration
}

type Client struct {
	client paho.Client
}

// Message wraps a paho message for the ingest path.
type Message struct {
	paho.Message
}

// Handler processes one message. ctx expires after the subscription's
// message timeout.
type Handler func(ctx context.Context, msg Message)

// NormalizeBrokerURL maps mqtt:// and mqtts:// onto paho's tcp:// and ssl://.
func NormalizeBrokerURL(raw string) string {
	url := strings.TrimSpace(raw)
	switch {
	case url == "":
		return defaultBroker
	case strings.HasPrefix(url, "mqtt://"):
		return "tcp://" + strings.TrimPrefix(url, "mqtt://")
	case strings.HasPrefix(url, "mqtts://"):
		return "ssl://" + strings.TrimPrefix(url, "mqtts://")
	}
	return url
}

func clientOptions(o Options) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(NormalizeBrokerURL(o.BrokerURL))
	clientID := strings.TrimSpace(o.ClientID)
	if clientID == "" {
		clientID = "sensor-service-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(clientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Persistent session: the broker queues QoS 1 readings while we are offline.
	opts.SetCleanSession(false)
	opts.SetResumeSubs(true)

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("sensor broker connection lost", "error", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		slog.Info("sensor broker reconnecting", "client_id", clientID)
	}
	opts.OnConnect = func(_ paho.Client) {
		slog.Info("sensor broker connected", "client_id", clientID)
	}
	return opts
}

func Connect(o Options) (*Client, error) {
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	c := paho.NewClient(clientOptions(o))
	tok := c.Connect()
	if ok := tok.WaitTimeout(timeout); !ok {
		return nil, tok.Error()
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

// Subscribe delivers every message on topic to h. Messages that arrive
// after ctx is done are dropped.
func (c *Client) Subscribe(ctx context.Context, topic string, timeout time.Duration, h Handler) error {
	tok := c.client.Subscribe(topic, sensorQoS, dispatch(ctx, timeout, h))
	tok.Wait()
	return tok.Error()
}

// dispatch adapts h to paho's callback. A panicking handler is logged and
// does not take down paho's router goroutine.
func dispatch(ctx context.Context, timeout time.Duration, h Handler) paho.MessageHandler {
	if timeout <= 0 {
		timeout = defaultMessageTimeout
	}
	return func(_ paho.Client, msg paho.Message) {
		if ctx.Err() != nil {
			slog.Debug("dropping sensor message after shutdown", "topic", msg.Topic())
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("sensor message handler panicked", "topic", msg.Topic(), "panic", rec)
			}
		}()
		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		h(msgCtx, Message{Message: msg})
	}
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
