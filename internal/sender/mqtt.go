package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

type MQTTTransport struct {
	client    mqtt.Client
	cfg       MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMQTTTransport(cfg MQTTConfig, logger *slog.Logger) *MQTTTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &MQTTTransport{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		t.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	t.client = mqtt.NewClient(opts)
	return t
}

// Connect waits for the initial connection, honouring ctx and Close.
func (t *MQTTTransport) Connect(ctx context.Context) error {
	select {
	case <-t.stopCh:
		return fmt.Errorf("transport closed")
	default:
	}

	if t.IsConnected() {
		return nil
	}

	token := t.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stopCh:
			return fmt.Errorf("transport closed")
		default:
		}
	}
}

func (t *MQTTTransport) topic(sensorID string) string {
	if t.cfg.Topic != "" {
		return t.cfg.Topic
	}
	return telemetry.Topic(sensorID)
}

// Send publishes one reading with QoS 1.
func (t *MQTTTransport) Send(ctx context.Context, r telemetry.Reading) error {
	if !t.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	topic := t.topic(r.SensorID)
	token := t.client.Publish(topic, 1, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish reading: %w", token.Error())
	}

	t.logger.Info("reading published", "topic", topic, "sensor_id", r.SensorID)
	return nil
}

func (t *MQTTTransport) IsConnected() bool {
	t.mu.RLock()
	connected := t.connected
	t.mu.RUnlock()
	return connected && t.client.IsConnected()
}

// Close stops the transport. Idempotent.
func (t *MQTTTransport) Close() error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	if t.client != nil {
		t.client.Disconnect(250)
	}
	t.setConnected(false)
	return nil
}

func (t *MQTTTransport) setConnected(v bool) {
	t.mu.Lock()
	t.connected = v
	t.mu.Unlock()
}
