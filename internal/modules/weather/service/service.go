package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/cache"
	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/repository"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/types"
	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

const (
	MinTemperature = -40.0
	MaxTemperature = 80.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

// Cache keys. Sensor keys carry a prefix so no sensor name can collide
// with the across-sensors key.
const (
	allSensorsKey   = "all"
	sensorKeyPrefix = "sensor:"
)

// LatestCache is the subset of *cache.Latest the service needs.
type LatestCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Offer(ctx context.Context, key string, ts time.Time, payload []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

type Options struct {
	DefaultSensorID string
	DefaultLimit    int
	// Cache is optional; nil disables the latest-reading cache.
	Cache   LatestCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

type Service struct {
	repository      repository.WeatherRepository
	cache           LatestCache
	metrics         *metrics.Metrics
	logger          *slog.Logger
	defaultSensorID string
	defaultLimit    int
	now             func() time.Time

	// dirty holds cache keys whose last write failed. Reads skip the
	// cache for them until a write succeeds again.
	dirty sync.Map
}

func NewService(repo repository.WeatherRepository, opts Options) *Service {
	if opts.DefaultSensorID == "" {
		opts.DefaultSensorID = config.DefaultSensorID
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = config.DefaultListLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repository:      repo,
		cache:           opts.Cache,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		defaultSensorID: opts.DefaultSensorID,
		defaultLimit:    opts.DefaultLimit,
		now:             opts.Now,
	}
}

func (s *Service) DefaultSensorID() string { return s.defaultSensorID }

// Validate applies the ingestion rules in order; the first failure wins.
func (s *Service) Validate(in telemetry.Reading) (types.NewReading, error) {
	if in.Temperature == nil || in.Humidity == nil {
		return types.NewReading{}, invalid(ReasonMissingFields, "temperature and humidity are required")
	}
	temp, hum := *in.Temperature, *in.Humidity
	if math.IsNaN(temp) || temp < MinTemperature || temp > MaxTemperature {
		return types.NewReading{}, invalid(ReasonTemperatureRange, "temperature out of range (-40 ~ 80°C)")
	}
	if math.IsNaN(hum) || hum < MinHumidity || hum > MaxHumidity {
		return types.NewReading{}, invalid(ReasonHumidityRange, "humidity out of range (0 ~ 100%)")
	}

	ts := s.now()
	if in.Timestamp != "" {
		parsed, err := ParseTime(in.Timestamp)
		if err != nil {
			return types.NewReading{}, invalid(ReasonInvalidTimestamp, "invalid timestamp")
		}
		ts = parsed
	}

	sensorID := in.SensorID
	if sensorID == "" {
		sensorID = s.defaultSensorID
	}

	return types.NewReading{
		Temperature: temp,
		Humidity:    hum,
		Timestamp:   truncate(ts),
		SensorID:    sensorID,
	}, nil
}

// Ingest validates and stores one reading. source labels metrics (http, mqtt).
func (s *Service) Ingest(ctx context.Context, source string, in telemetry.Reading) (types.Reading, error) {
	nr, err := s.Validate(in)
	if err != nil {
		s.Reject(source, err)
		return types.Reading{}, err
	}

	id, err := s.repository.InsertReading(ctx, nr)
	if err != nil {
		return types.Reading{}, fmt.Errorf("store reading: %w", err)
	}
	s.metrics.ReadingIngested(source)

	rec := types.Reading{
		ID:          id,
		Temperature: nr.Temperature,
		Humidity:    nr.Humidity,
		Timestamp:   nr.Timestamp,
		SensorID:    nr.SensorID,
	}
	s.offer(ctx, rec)

	s.logger.Debug("reading stored",
		"source", source,
		"id", id,
		"sensor_id", rec.SensorID,
		"timestamp", rec.Timestamp,
	)
	return rec, nil
}

// Reject counts a reading refused before it reached validation (e.g. an undecodable body)
// or by validation itself.
func (s *Service) Reject(source string, err error) {
	reason := ReasonInvalidBody
	var ve *ValidationError
	if errors.As(err, &ve) {
		reason = ve.Reason
	}
	s.metrics.ReadingRejected(source, reason)
}

// List returns the newest limit readings matching f, oldest first.
// limit <= 0 selects the configured default.
func (s *Service) List(ctx context.Context, f types.Filter, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	readings, err := s.repository.ListReadings(ctx, f, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	slices.Reverse(readings)
	return readings, nil
}

// Latest returns the newest reading, optionally for one sensor. The cache is
// consulted first; any cache failure falls back to the store.
func (s *Service) Latest(ctx context.Context, sensorID string) (types.Reading, error) {
	key := cacheKey(sensorID)

	switch {
	case s.cache == nil:
		s.metrics.CacheLookup(metrics.CacheDisabled)
	case s.isDirty(key):
		s.metrics.CacheLookup(metrics.CacheMiss)
	default:
		if rec, ok := s.cached(ctx, key); ok {
			return rec, nil
		}
	}

	rec, err := s.repository.LatestReading(ctx, sensorID)
	if errors.Is(err, repository.ErrNoReadings) {
		return types.Reading{}, ErrNotFound
	}
	if err != nil {
		return types.Reading{}, fmt.Errorf("latest reading: %w", err)
	}

	if s.cache != nil {
		s.offerKey(ctx, key, rec)
	}
	return rec, nil
}

// Stats aggregates readings matching f, rounded to two decimals.
func (s *Service) Stats(ctx context.Context, f types.Filter) (types.Stats, error) {
	st, err := s.repository.Stats(ctx, f)
	if err != nil {
		return types.Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	for _, p := range []**float64{
		&st.AvgTemperature, &st.MinTemperature, &st.MaxTemperature,
		&st.AvgHumidity, &st.MinHumidity, &st.MaxHumidity,
	} {
		*p = round2(*p)
	}
	return st, nil
}

func (s *Service) cached(ctx context.Context, key string) (types.Reading, bool) {
	b, err := s.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		s.metrics.CacheLookup(metrics.CacheMiss)
		return types.Reading{}, false
	case err != nil:
		s.metrics.CacheLookup(metrics.CacheError)
		s.logger.Warn("latest cache read failed", "key", key, "error", err)
		return types.Reading{}, false
	}

	var rec types.Reading
	if err := json.Unmarshal(b, &rec); err != nil {
		s.metrics.CacheLookup(metrics.CacheError)
		s.logger.Warn("latest cache entry unreadable", "key", key, "error", err)
		return types.Reading{}, false
	}
	s.metrics.CacheLookup(metrics.CacheHit)
	return rec, true
}

func (s *Service) offer(ctx context.Context, rec types.Reading) {
	if s.cache == nil {
		return
	}
	s.offerKey(ctx, cacheKey(rec.SensorID), rec)
	s.offerKey(ctx, allSensorsKey, rec)
}

func (s *Service) offerKey(ctx context.Context, key string, rec types.Reading) {
	b, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("encode reading for cache", "error", err)
		return
	}
	if _, err := s.cache.Offer(ctx, key, rec.Timestamp, b); err != nil {
		s.dirty.Store(key, struct{}{})
		s.logger.Warn("latest cache write failed", "key", key, "error", err)
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Debug("latest cache invalidate failed", "key", key, "error", err)
		}
		return
	}
	// A refused offer leaves a newer entry in place, so the key is clean either way.
	s.dirty.Delete(key)
}

func (s *Service) isDirty(key string) bool {
	_, ok := s.dirty.Load(key)
	return ok
}

func cacheKey(sensorID string) string {
	if sensorID == "" {
		return allSensorsKey
	}
	return sensorKeyPrefix + sensorID
}

// round2 rounds half away from zero to two decimals.
func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}
