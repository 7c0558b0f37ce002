// Package mqtt mirrors panel state onto an MQTT broker so external
// consumers (Home Assistant, Node-RED, recorders) can follow the farm
// without talking to the backend themselves. Publishing is one-way;
// commands still go through the panel API.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/display"
)

// Config holds MQTT publisher configuration. An empty Broker disables
// the publisher entirely.
type Config struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// Publisher pushes retained state snapshots to <prefix>/<device>/...
// topics, plus a retained bridge availability topic.
type Publisher struct {
	client pahomqtt.Client
	prefix string
	logger *slog.Logger
}

// NewPublisher connects to the broker and announces itself online.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
	}
	if p.prefix == "" {
		p.prefix = "smartfarm"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("farm-panel").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.prefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.logger.Info("MQTT connected")
			p.publish(p.prefix+"/bridge/state", []byte("online"), true)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	p.client = client
	return p, nil
}

// Stop announces offline state and disconnects.
func (p *Publisher) Stop() {
	p.publish(p.prefix+"/bridge/state", []byte("offline"), true)
	p.client.Disconnect(1000)
	p.logger.Info("MQTT publisher stopped")
}

// PublishDevices publishes the device roster.
func (p *Publisher) PublishDevices(devices []api.Device) {
	p.publish(p.prefix+"/devices", mustJSON(display.Devices(devices)), true)
}

// PublishSensors publishes the latest reading per sensor type for one
// device. Older readings from the same history window are dropped so
// the topic always carries a flat current-state object.
func (p *Publisher) PublishSensors(deviceName string, readings []display.SensorReading) {
	if deviceName == "" || len(readings) == 0 {
		return
	}
	topic := p.prefix + "/" + topicName(deviceName) + "/sensors"
	p.publish(topic, mustJSON(sensorSnapshot(readings)), true)
}

// PublishStatus publishes the actuator control status for one device.
func (p *Publisher) PublishStatus(deviceName string, st *api.ControlStatus) {
	if deviceName == "" || st == nil {
		return
	}
	topic := p.prefix + "/" + topicName(deviceName) + "/status"
	p.publish(topic, mustJSON(st), true)
}

type sensorValue struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
}

// sensorSnapshot keeps the newest reading per sensor type. Readings
// arrive newest-first within a cycle and cycles are ordered by the
// backend, so a later timestamp wins on conflict.
func sensorSnapshot(readings []display.SensorReading) map[string]sensorValue {
	snap := make(map[string]sensorValue)
	for _, r := range readings {
		prev, ok := snap[r.SensorType]
		if ok && prev.Timestamp >= r.Timestamp {
			continue
		}
		snap[r.SensorType] = sensorValue{
			Value:     r.Value,
			Unit:      r.Unit,
			Status:    r.Status,
			Timestamp: r.Timestamp,
		}
	}
	return snap
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) {
	token := p.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			p.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			p.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// topicName lowercases a device name and replaces whitespace so it is
// usable as a topic segment.
func topicName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "#", "_")
	s = strings.ReplaceAll(s, "+", "_")
	return s
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
