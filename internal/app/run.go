package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/ihong9059/raspberry-weather-monitor/internal/cache"
	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/db"
	"github.com/ihong9059/raspberry-weather-monitor/internal/httpapi"
	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/migrate"
	weather "github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/service"
	weatherviews "github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/views"
	"github.com/ihong9059/raspberry-weather-monitor/internal/mqtt"
)

const (
	cachePrefix     = "weather:latest:"
	shutdownTimeout = 10 * time.Second
	mqttConnectWait = 5 * time.Second
	dbOpenAttempts  = 10
)

func Run(ctx context.Context, cfg config.Config, version string, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.DB.Driver,
		"dbHost", cfg.DB.Host,
		"dbName", cfg.DB.Name,
		"dbMaxOpenConns", cfg.DB.MaxOpenConns,
		"redisAddr", cfg.Redis.Addr,
		"mqttBroker", cfg.MQTT.Broker,
		"mqttTopic", cfg.MQTT.Topic,
	)

	dialect, err := db.DialectFor(cfg.DB.Driver)
	if err != nil {
		return err
	}

	dbConn, err := openWithRetry(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()
	logger.Info("database connection successful", "driver", cfg.DB.Driver)

	applied, err := migrate.Run(ctx, dbConn, dialect, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations up to date", "applied", len(applied))

	if err := weatherviews.LoadTemplates(); err != nil {
		return err
	}

	m := metrics.New()

	latestCache, closeCache := newCache(ctx, cfg.Redis, m, logger)
	defer closeCache()

	mux := httpapi.NewMux(dbConn, version, m, logger)
	weatherService := weather.RegisterFeature(mux, weather.Deps{
		DB:      dbConn,
		Dialect: dialect,
		Config:  cfg,
		Version: version,
		Cache:   latestCache,
		Metrics: m,
		Logger:  logger,
	})

	var subscriber *mqtt.Subscriber
	if cfg.MQTT.Enabled() {
		subscriber = mqtt.NewSubscriber(cfg.MQTT, weatherService, logger)
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectWait)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			// HTTP ingestion keeps working without the broker.
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, httpapi.NewHandler(cfg, mux, m, logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// openWithRetry waits for the database to accept connections; a freshly
// started database container can take a while.
func openWithRetry(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	var conn *sql.DB
	op := func() error {
		var err error
		conn, err = db.Open(cfg, logger)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, dbOpenAttempts-1), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying", "wait", wait, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return conn, nil
}

// newCache returns a nil cache when Redis is not configured. An unreachable
// Redis is not fatal: the breaker keeps requests on the database.
func newCache(ctx context.Context, cfg config.RedisConfig, m *metrics.Metrics, logger *slog.Logger) (service.LatestCache, func()) {
	if !cfg.Enabled() {
		return nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	latest := cache.NewLatest(client, cache.Options{
		Prefix:        cachePrefix,
		TTL:           cfg.TTL,
		OnStateChange: m.BreakerState,
		Logger:        logger,
	})
	m.BreakerState("redis", 0)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable (latest-reading cache degraded)", "addr", cfg.Addr, "error", err)
	} else {
		logger.Info("redis connected", "addr", cfg.Addr)
	}

	return latest, func() {
		if err := latest.Close(); err != nil {
			logger.Error("redis close", "error", err)
		}
	}
}
