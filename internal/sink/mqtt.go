package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"screenqa/internal/pipeline"
	"screenqa/pkg/logx"
)

type MQTTConfig struct {
	Broker   string // host:port or full URL
	ClientID string
	Username string
	Password string
	Topic    string // records go to <Topic>/<provider>
	QoS      byte
	Retained bool
	Timeout  time.Duration
}

// publisher is the slice of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each record as JSON.
type MQTT struct {
	cfg    MQTTConfig
	client publisher
	close  func()
}

type mqttPayload struct {
	CaptureID string    `json:"capture_id"`
	Provider  string    `json:"provider"`
	Outcome   string    `json:"outcome"`
	Text      string    `json:"text"`
	ErrorKind string    `json:"error_kind,omitempty"`
	TookMS    int64     `json:"took_ms"`
	Time      time.Time `json:"time"`
}

// DialMQTT connects to the broker with auto-reconnect enabled.
func DialMQTT(cfg MQTTConfig, log logx.Logger) (*MQTT, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker is empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = "screenqa/results"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	log = log.With(logx.String("comp", "mqtt"), logx.String("broker", broker))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) { log.Info("mqtt connected") }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { log.Warn("mqtt connection lost", logx.Err(err)) }

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		c.Disconnect(0)
		return nil, errors.New("mqtt connection timeout")
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return &MQTT{cfg: cfg, client: c, close: func() { c.Disconnect(250) }}, nil
}

func (m *MQTT) Name() string     { return "mqtt" }
func (m *MQTT) Background() bool { return true }

func (m *MQTT) Deliver(ctx context.Context, d pipeline.Delivery) error {
	r := d.Record
	payload, err := json.Marshal(mqttPayload{
		CaptureID: r.CaptureID,
		Provider:  r.ProviderID,
		Outcome:   string(r.Outcome),
		Text:      r.Text(),
		ErrorKind: string(r.ErrKind),
		TookMS:    r.Took.Milliseconds(),
		Time:      r.Started.Add(r.Took),
	})
	if err != nil {
		return err
	}
	topic := strings.TrimRight(m.cfg.Topic, "/") + "/" + r.ProviderID
	tok := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retained, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tok.Done():
	case <-time.After(m.cfg.Timeout):
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return tok.Error()
}

func (m *MQTT) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}
