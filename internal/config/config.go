package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSensorID is stored when an ingested reading carries no sensor_id.
	DefaultSensorID = "raspberry-pi-001"
	// DefaultListLimit is 24 hours of readings at a 5-minute cadence.
	DefaultListLimit = 288
	// DefaultDashboardRefresh is the dashboard polling interval.
	DefaultDashboardRefresh = 5 * time.Minute
)

// Supported values for DB_DRIVER.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	CORSOrigin string
	APIKey     string

	DefaultSensorID  string
	DefaultListLimit int
	DashboardRefresh time.Duration

	DB    DBConfig
	Redis RedisConfig
	MQTT  MQTTConfig
}

type DBConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	// Path is the sqlite file; only used when Driver is sqlite3 and DSN is empty.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a cache address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type MQTTConfig struct {
	Broker   string
	Port     int
	ClientID string
	Topic    string
}

// Enabled reports whether a broker was configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// IsDev reports whether error details may be exposed to clients.
func (c Config) IsDev() bool { return c.AppEnv == "dev" }

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := ParseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	httpAddr := env("HTTP_ADDR", "")
	if httpAddr == "" {
		port, err := envInt("PORT", 4000)
		if err != nil {
			return Config{}, err
		}
		if port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %d (allowed: 1-65535)", port)
		}
		httpAddr = ":" + strconv.Itoa(port)
	}

	apiKey := env("API_KEY", "")
	if apiKey == "" {
		return Config{}, errors.New("API_KEY must be set")
	}

	listLimit, err := envInt("DEFAULT_LIST_LIMIT", DefaultListLimit)
	if err != nil {
		return Config{}, err
	}
	if listLimit <= 0 {
		return Config{}, fmt.Errorf("invalid DEFAULT_LIST_LIMIT %d (must be > 0)", listLimit)
	}

	refresh, err := envDuration("DASHBOARD_REFRESH", DefaultDashboardRefresh)
	if err != nil {
		return Config{}, err
	}
	if refresh < 10*time.Second {
		return Config{}, fmt.Errorf("invalid DASHBOARD_REFRESH %s (must be >= 10s)", refresh)
	}

	dbCfg, err := loadDBConfig()
	if err != nil {
		return Config{}, err
	}
	redisCfg, err := loadRedisConfig()
	if err != nil {
		return Config{}, err
	}
	mqttCfg, err := loadMQTTConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:           appEnv,
		LogLevel:         level,
		HTTPAddr:         httpAddr,
		CORSOrigin:       env("CORS_ORIGIN", "*"),
		APIKey:           apiKey,
		DefaultSensorID:  env("DEFAULT_SENSOR_ID", DefaultSensorID),
		DefaultListLimit: listLimit,
		DashboardRefresh: refresh,
		DB:               dbCfg,
		Redis:            redisCfg,
		MQTT:             mqttCfg,
	}, nil
}

// LoadDBFromEnv reads only the database settings, for tools that never serve HTTP.
func LoadDBFromEnv() (DBConfig, error) {
	return loadDBConfig()
}

func loadDBConfig() (DBConfig, error) {
	driver := env("DB_DRIVER", DriverMySQL)
	defaultPort := 0
	switch driver {
	case DriverMySQL:
		defaultPort = 3306
	case DriverPostgres:
		defaultPort = 5432
	case DriverSQLite:
	default:
		return DBConfig{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: %s, %s, %s)", driver, DriverMySQL, DriverPostgres, DriverSQLite)
	}

	port, err := envInt("DB_PORT", defaultPort)
	if err != nil {
		return DBConfig{}, err
	}

	maxOpen, err := envInt("DB_CONNECTION_LIMIT", 10)
	if err != nil {
		return DBConfig{}, err
	}
	if maxOpen <= 0 {
		return DBConfig{}, fmt.Errorf("invalid DB_CONNECTION_LIMIT %d (must be > 0)", maxOpen)
	}
	maxIdle, err := envInt("DB_MAX_IDLE_CONNS", maxOpen)
	if err != nil {
		return DBConfig{}, err
	}
	lifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return DBConfig{}, err
	}
	logSQL, err := envBool("DB_LOG_SQL", false)
	if err != nil {
		return DBConfig{}, err
	}

	return DBConfig{
		Driver:          driver,
		DSN:             env("DB_DSN", ""),
		Host:            env("DB_HOST", "localhost"),
		Port:            port,
		User:            env("DB_USER", "weather_user"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            env("DB_NAME", "weather_db"),
		Path:            env("SQLITE_PATH", "data/weather.db"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
		LogSQL:          logSQL,
	}, nil
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := envInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := envDuration("CACHE_TTL", 24*time.Hour)
	if err != nil {
		return RedisConfig{}, err
	}
	if ttl <= 0 {
		return RedisConfig{}, fmt.Errorf("invalid CACHE_TTL %s (must be > 0)", ttl)
	}
	return RedisConfig{
		Addr:     env("REDIS_ADDR", ""),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      ttl,
	}, nil
}

func loadMQTTConfig() (MQTTConfig, error) {
	port, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return MQTTConfig{}, err
	}
	return MQTTConfig{
		Broker:   env("MQTT_BROKER", ""),
		Port:     port,
		ClientID: env("MQTT_CLIENT_ID", "weather-monitor-server"),
		Topic:    env("MQTT_TOPIC", "weather/+/readings"),
	}, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

// ParseLogLevel maps debug/info/warn/error onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
