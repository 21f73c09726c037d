package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// clearEnv resets every variable LoadFromEnv reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "LOG_LEVEL", "PORT", "HTTP_ADDR", "CORS_ORIGIN", "API_KEY",
		"DEFAULT_SENSOR_ID", "DEFAULT_LIST_LIMIT", "DASHBOARD_REFRESH",
		"DB_DRIVER", "DB_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"SQLITE_PATH", "DB_CONNECTION_LIMIT", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_LOG_SQL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL",
		"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("API_KEY", "secret")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.HTTPAddr != ":4000" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":4000")
	}
	if got.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %q, want %q", got.CORSOrigin, "*")
	}
	if got.DefaultSensorID != "raspberry-pi-001" {
		t.Errorf("DefaultSensorID = %q", got.DefaultSensorID)
	}
	if got.DefaultListLimit != 288 {
		t.Errorf("DefaultListLimit = %d, want 288", got.DefaultListLimit)
	}
	if got.DashboardRefresh != 5*time.Minute {
		t.Errorf("DashboardRefresh = %s, want 5m", got.DashboardRefresh)
	}

	db := got.DB
	if db.Driver != DriverMySQL || db.Host != "localhost" || db.Port != 3306 {
		t.Errorf("DB = %+v, want mysql on localhost:3306", db)
	}
	if db.User != "weather_user" || db.Name != "weather_db" {
		t.Errorf("DB user/name = %q/%q", db.User, db.Name)
	}
	if db.MaxOpenConns != 10 || db.MaxIdleConns != 10 {
		t.Errorf("DB pool = %d/%d, want 10/10", db.MaxOpenConns, db.MaxIdleConns)
	}

	if got.Redis.Enabled() {
		t.Errorf("Redis.Enabled() = true, want false")
	}
	if got.Redis.TTL != 24*time.Hour {
		t.Errorf("Redis.TTL = %s, want 24h", got.Redis.TTL)
	}
	if got.MQTT.Enabled() {
		t.Errorf("MQTT.Enabled() = true, want false")
	}
	if got.MQTT.Topic != "weather/+/readings" {
		t.Errorf("MQTT.Topic = %q", got.MQTT.Topic)
	}
}

func TestLoadFromEnv_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "   ")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "API_KEY") {
		t.Fatalf("LoadFromEnv() error = %v, want API_KEY error", err)
	}
}

func TestLoadFromEnv_AppEnv(t *testing.T) {
	tests := []struct {
		name    string
		appEnv  string
		want    string
		wantErr bool
	}{
		{name: "dev", appEnv: "dev", want: "dev"},
		{name: "prod with whitespace", appEnv: "\nprod\t", want: "prod"},
		{name: "staging", appEnv: "staging", wantErr: true},
		{name: "uppercase", appEnv: "DEV", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", tt.appEnv)

			got, err := LoadFromEnv()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v, want nil", err)
			}
			if got.AppEnv != tt.want {
				t.Errorf("AppEnv = %q, want %q", got.AppEnv, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_LogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("LOG_LEVEL", tt.in)

			got, err := LoadFromEnv()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v", err)
			}
			if got.LogLevel != tt.want {
				t.Errorf("LogLevel = %v, want %v", got.LogLevel, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_HTTPAddr(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		httpAddr string
		want     string
		wantErr  bool
	}{
		{name: "port", port: "8081", want: ":8081"},
		{name: "addr wins", port: "8081", httpAddr: "127.0.0.1:9000", want: "127.0.0.1:9000"},
		{name: "non numeric", port: "abc", wantErr: true},
		{name: "out of range", port: "70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PORT", tt.port)
			t.Setenv("HTTP_ADDR", tt.httpAddr)

			got, err := LoadFromEnv()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v", err)
			}
			if got.HTTPAddr != tt.want {
				t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_DBDriver(t *testing.T) {
	tests := []struct {
		driver   string
		wantPort int
		wantErr  bool
	}{
		{driver: "mysql", wantPort: 3306},
		{driver: "pgx", wantPort: 5432},
		{driver: "sqlite3", wantPort: 0},
		{driver: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DB_DRIVER", tt.driver)

			got, err := LoadFromEnv()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v", err)
			}
			if got.DB.Driver != tt.driver || got.DB.Port != tt.wantPort {
				t.Errorf("DB = %s:%d, want %s:%d", got.DB.Driver, got.DB.Port, tt.driver, tt.wantPort)
			}
		})
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DEFAULT_LIST_LIMIT", "0"},
		{"DEFAULT_LIST_LIMIT", "many"},
		{"DASHBOARD_REFRESH", "1s"},
		{"DASHBOARD_REFRESH", "soon"},
		{"DB_CONNECTION_LIMIT", "-1"},
		{"DB_CONN_MAX_LIFETIME", "forever"},
		{"DB_LOG_SQL", "maybe"},
		{"REDIS_DB", "x"},
		{"CACHE_TTL", "0s"},
		{"MQTT_PORT", "port"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want non-nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestLoadFromEnv_Optional(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("MQTT_BROKER", "broker.local")
	t.Setenv("DB_LOG_SQL", "true")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if !got.Redis.Enabled() || got.Redis.TTL != time.Hour {
		t.Errorf("Redis = %+v", got.Redis)
	}
	if !got.MQTT.Enabled() || got.MQTT.Port != 1883 {
		t.Errorf("MQTT = %+v", got.MQTT)
	}
	if !got.DB.LogSQL {
		t.Errorf("DB.LogSQL = false, want true")
	}
}
