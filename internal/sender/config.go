package sender

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
)

const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"

	// SourceStdin reads serial lines from standard input.
	SourceStdin = "-"
	// SourceAuto picks the first ACM/USB serial port.
	SourceAuto = "auto"

	DefaultBaudRate = 115200
)

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	// Topic overrides weather/<sensor_id>/readings.
	Topic string `yaml:"topic"`
}

type Config struct {
	APIURL        string        `yaml:"api_url"`
	APIKey        string        `yaml:"api_key"`
	SensorID      string        `yaml:"sensor_id"`
	Source        string        `yaml:"source"`
	BaudRate      int           `yaml:"baud_rate"`
	Transport     string        `yaml:"transport"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Timeout       time.Duration `yaml:"timeout"`
	LogLevel      string        `yaml:"log_level"`
	MQTT          MQTTConfig    `yaml:"mqtt"`
}

// Load reads a YAML config file, fills defaults and validates it.
func Load(path string) (Config, error) {
	if path == "" {
		path = "sender.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SensorID == "" {
		c.SensorID = config.DefaultSensorID
	}
	if c.Source == "" {
		c.Source = "/dev/ttyACM0"
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "weather-sender-" + c.SensorID
	}
}

func (c Config) validate() error {
	if _, err := config.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.BaudRate < 0 {
		return fmt.Errorf("invalid baud_rate %d", c.BaudRate)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("invalid retry_attempts %d (must be >= 1)", c.RetryAttempts)
	}
	if c.RetryDelay < 0 || c.Timeout < 0 {
		return errors.New("retry_delay and timeout must not be negative")
	}

	switch c.Transport {
	case TransportHTTP:
		if c.APIURL == "" {
			return errors.New("api_url is required for the http transport")
		}
		u, err := url.Parse(c.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid api_url %q", c.APIURL)
		}
		if strings.TrimSpace(c.APIKey) == "" {
			return errors.New("api_key is required for the http transport")
		}
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required for the mqtt transport")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("invalid mqtt.port %d", c.MQTT.Port)
		}
	default:
		return fmt.Errorf("invalid transport %q (allowed: %s, %s)", c.Transport, TransportHTTP, TransportMQTT)
	}
	return nil
}
