package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/types"
	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

// handleTimeout bounds how long one message may spend in the store.
const handleTimeout = 5 * time.Second

// Ingester is the part of the weather service a subscriber feeds.
type Ingester interface {
	Ingest(ctx context.Context, source string, in telemetry.Reading) (types.Reading, error)
	Reject(source string, err error)
}

type Subscriber struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	ingester Ingester
}

func NewSubscriber(cfg config.MQTTConfig, ingester Ingester, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		ingester: ingester,
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

	// Subscribing from the connect handler restores the subscription after an
	// auto-reconnect with a clean session.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
		if err := s.subscribe(); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect establishes the broker connection. The subscription is made by the
// connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

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
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.Topic
	qos := byte(1) // at least once

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// handleMessage decodes one payload and stores it through the ingester.
// Failures are logged and dropped; there is no redelivery.
func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var reading telemetry.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		s.ingester.Reject(metrics.SourceMQTT, err)
		s.logger.Warn("failed to parse telemetry message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if reading.SensorID == "" {
		if id, ok := telemetry.SensorFromTopic(topic); ok {
			reading.SensorID = id
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, handleTimeout)
	defer cancel()

	rec, err := s.ingester.Ingest(ctx, metrics.SourceMQTT, reading)
	if err != nil {
		s.logger.Warn("mqtt reading rejected",
			"topic", topic,
			"sensor_id", reading.SensorID,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed telemetry message",
		"id", rec.ID,
		"sensor_id", rec.SensorID,
		"timestamp", rec.Timestamp,
	)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.Topic)
		token.WaitTimeout(2 * time.Second)
	}

	// Not holding s.mu: the connection-lost callback takes it.
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.cancel()

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
