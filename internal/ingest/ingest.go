package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"sensor-service/internal/store"
	"sensor-service/internal/telemetry"
)

const DefaultTopicPrefix = "sensors/data/"

var ErrNotADataTopic = errors.New("not a sensor data topic")

type Ingester interface {
	Ingest(ctx context.Context, req telemetry.IngestRequest) (*store.Reading, error)
}

// Ingestor feeds MQTT sensor messages into the same Ingest path as HTTP.
type Ingestor struct {
	Telemetry    Ingester
	TopicPrefix  string
	AllowRetains bool
}

type MQTTMessage interface {
	Topic() string
	Payload() []byte
	Retained() bool
}

type payload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
	IPAddress   string   `json:"ip_address"`
}

func (i *Ingestor) HandleMessage(ctx context.Context, msg MQTTMessage) {
	topic := msg.Topic()
	if msg.Retained() && !i.AllowRetains {
		slog.Debug("sensor ingest ignoring retained", "topic", topic)
		return
	}

	mac, err := ParseMAC(i.TopicPrefix, topic)
	if err != nil {
		if errors.Is(err, ErrNotADataTopic) {
			return
		}
		slog.Warn("sensor ingest topic parse failed", "topic", topic, "error", err)
		return
	}

	raw := msg.Payload()
	if len(raw) == 0 {
		return
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("sensor ingest invalid json", "topic", topic, "mac", mac, "error", err)
		return
	}

	rd, err := i.Telemetry.Ingest(ctx, telemetry.IngestRequest{
		MACAddress:  mac,
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
		Pressure:    p.Pressure,
		IPAddress:   p.IPAddress,
		Source:      "mqtt",
	})
	if err != nil {
		slog.Warn("sensor ingest rejected", "topic", topic, "mac", mac, "error", err)
		return
	}
	slog.Debug("sensor reading stored", "device_id", rd.DeviceID, "ts", rd.Timestamp)
}

// ParseMAC returns the MAC encoded in the topic suffix after prefix.
func ParseMAC(prefix, topic string) (string, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if !strings.HasPrefix(topic, prefix) {
		return "", ErrNotADataTopic
	}
	mac := strings.Trim(strings.TrimPrefix(topic, prefix), "/")
	if mac == "" {
		return "", errors.New("empty mac address")
	}
	if strings.Contains(mac, "/") {
		return "", errors.New("nested topic below mac address")
	}
	return telemetry.NormalizeMAC(mac), nil
}

// SubscriptionTopic is the wildcard filter covering every device under prefix.
func SubscriptionTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return strings.TrimRight(prefix, "/") + "/+"
}
