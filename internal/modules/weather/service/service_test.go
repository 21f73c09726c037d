package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/cache"
	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/repository"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/types"
	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 123_456_789, time.UTC)

type mockRepo struct {
	inserted  []types.NewReading
	insertErr error

	listed    []types.Reading
	listErr   error
	lastLimit int
	lastF     types.Filter

	latest      types.Reading
	latestErr   error
	latestCalls int

	stats    types.Stats
	statsErr error
}

func (m *mockRepo) InsertReading(_ context.Context, r types.NewReading) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, r)
	return int64(len(m.inserted)), nil
}

func (m *mockRepo) ListReadings(_ context.Context, f types.Filter, limit int) ([]types.Reading, error) {
	m.lastF, m.lastLimit = f, limit
	return m.listed, m.listErr
}

func (m *mockRepo) LatestReading(_ context.Context, _ string) (types.Reading, error) {
	m.latestCalls++
	return m.latest, m.latestErr
}

func (m *mockRepo) Stats(_ context.Context, f types.Filter) (types.Stats, error) {
	m.lastF = f
	return m.stats, m.statsErr
}

type cacheEntry struct {
	ts      time.Time
	payload []byte
}

// fakeCache mimics the compare-and-set semantics of the Redis cache.
type fakeCache struct {
	entries map[string]cacheEntry
	getErr  error

	// failOffers makes the next n Offer calls fail.
	failOffers int
	deleted    []string
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]cacheEntry{}} }

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.entries[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return e.payload, nil
}

func (f *fakeCache) Offer(_ context.Context, key string, ts time.Time, payload []byte) (bool, error) {
	if f.failOffers > 0 {
		f.failOffers--
		return false, errors.New("connection refused")
	}
	if e, ok := f.entries[key]; ok && e.ts.After(ts) {
		return false, nil
	}
	f.entries[key] = cacheEntry{ts: ts, payload: payload}
	return true, nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.entries, key)
	return nil
}

func f64(v float64) *float64 { return &v }

func newTestService(repo *mockRepo, c LatestCache) *Service {
	opts := Options{Now: func() time.Time { return fixedNow }, Metrics: metrics.New()}
	if c != nil {
		opts.Cache = c
	}
	return NewService(repo, opts)
}

func TestIngest_ValidationOrder(t *testing.T) {
	tests := []struct {
		name       string
		in         telemetry.Reading
		wantReason string
		wantMsg    string
	}{
		{
			name:       "missing both",
			in:         telemetry.Reading{},
			wantReason: ReasonMissingFields,
			wantMsg:    "temperature and humidity are required",
		},
		{
			name:       "missing humidity beats bad temperature",
			in:         telemetry.Reading{Temperature: f64(500)},
			wantReason: ReasonMissingFields,
			wantMsg:    "temperature and humidity are required",
		},
		{
			name:       "temperature too low",
			in:         telemetry.Reading{Temperature: f64(-40.01), Humidity: f64(50)},
			wantReason: ReasonTemperatureRange,
			wantMsg:    "temperature out of range (-40 ~ 80°C)",
		},
		{
			name:       "temperature before humidity",
			in:         telemetry.Reading{Temperature: f64(81), Humidity: f64(101)},
			wantReason: ReasonTemperatureRange,
			wantMsg:    "temperature out of range (-40 ~ 80°C)",
		},
		{
			name:       "humidity too high",
			in:         telemetry.Reading{Temperature: f64(20), Humidity: f64(100.5)},
			wantReason: ReasonHumidityRange,
			wantMsg:    "humidity out of range (0 ~ 100%)",
		},
		{
			name:       "humidity negative",
			in:         telemetry.Reading{Temperature: f64(20), Humidity: f64(-1)},
			wantReason: ReasonHumidityRange,
			wantMsg:    "humidity out of range (0 ~ 100%)",
		},
		{
			name:       "NaN temperature",
			in:         telemetry.Reading{Temperature: f64(math.NaN()), Humidity: f64(1)},
			wantReason: ReasonTemperatureRange,
			wantMsg:    "temperature out of range (-40 ~ 80°C)",
		},
		{
			name:       "bad timestamp",
			in:         telemetry.Reading{Temperature: f64(20), Humidity: f64(50), Timestamp: "yesterday"},
			wantReason: ReasonInvalidTimestamp,
			wantMsg:    "invalid timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			svc := newTestService(repo, nil)

			_, err := svc.Ingest(context.Background(), metrics.SourceHTTP, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Reason != tt.wantReason || ve.Message != tt.wantMsg {
				t.Errorf("got (%s, %q), want (%s, %q)", ve.Reason, ve.Message, tt.wantReason, tt.wantMsg)
			}
			if len(repo.inserted) != 0 {
				t.Errorf("rejected reading was stored: %+v", repo.inserted)
			}
		})
	}
}

func TestIngest_BoundsInclusive(t *testing.T) {
	for _, in := range []telemetry.Reading{
		{Temperature: f64(-40), Humidity: f64(0)},
		{Temperature: f64(80), Humidity: f64(100)},
	} {
		repo := &mockRepo{}
		if _, err := newTestService(repo, nil).Ingest(context.Background(), metrics.SourceHTTP, in); err != nil {
			t.Errorf("Ingest(%v, %v) err = %v", *in.Temperature, *in.Humidity, err)
		}
	}
}

func TestIngest_Defaults(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo, nil)

	got, err := svc.Ingest(context.Background(), metrics.SourceHTTP,
		telemetry.Reading{Temperature: f64(23.5), Humidity: f64(55.2)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	wantTS := fixedNow.Truncate(time.Millisecond)
	if got.ID != 1 || got.SensorID != "raspberry-pi-001" || !got.Timestamp.Equal(wantTS) {
		t.Errorf("Ingest = %+v", got)
	}
	if len(repo.inserted) != 1 || repo.inserted[0].SensorID != "raspberry-pi-001" {
		t.Errorf("inserted = %+v", repo.inserted)
	}
}

func TestIngest_ExplicitTimestampAndSensor(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo, nil)

	got, err := svc.Ingest(context.Background(), metrics.SourceMQTT, telemetry.Reading{
		SensorID:    "esp32-02",
		Temperature: f64(1),
		Humidity:    f64(2),
		Timestamp:   "2024-01-02T03:04:05.6789+09:00",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := time.Date(2024, 1, 1, 18, 4, 5, 678_000_000, time.UTC)
	if !got.Timestamp.Equal(want) || got.SensorID != "esp32-02" {
		t.Errorf("Ingest = %+v, want ts %v", got, want)
	}
}

func TestIngest_StoreError(t *testing.T) {
	repo := &mockRepo{insertErr: errors.New("disk full")}
	_, err := newTestService(repo, nil).Ingest(context.Background(), metrics.SourceHTTP,
		telemetry.Reading{Temperature: f64(1), Humidity: f64(1)})
	if err == nil || IsValidation(err) || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestList_ReversesAndDefaultsLimit(t *testing.T) {
	repo := &mockRepo{listed: []types.Reading{{ID: 3}, {ID: 2}, {ID: 1}}}
	svc := newTestService(repo, nil)

	got, err := svc.List(context.Background(), types.Filter{SensorID: "x"}, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.lastLimit != 288 {
		t.Errorf("limit = %d, want default 288", repo.lastLimit)
	}
	if repo.lastF.SensorID != "x" {
		t.Errorf("filter = %+v", repo.lastF)
	}
	if len(got) != 3 || got[0].ID != 1 || got[2].ID != 3 {
		t.Errorf("List = %+v, want ascending ids", got)
	}

	if _, err := svc.List(context.Background(), types.Filter{}, 5); err != nil {
		t.Fatalf("List: %v", err)
	}
	if repo.lastLimit != 5 {
		t.Errorf("explicit limit = %d, want 5", repo.lastLimit)
	}
}

func TestList_EmptyIsNonNil(t *testing.T) {
	got, err := newTestService(&mockRepo{}, nil).List(context.Background(), types.Filter{}, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List = %#v, want empty non-nil", got)
	}
}

func TestLatest_NotFound(t *testing.T) {
	repo := &mockRepo{latestErr: repository.ErrNoReadings}
	_, err := newTestService(repo, nil).Latest(context.Background(), "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLatest_CacheFillAndHit(t *testing.T) {
	stored := types.Reading{ID: 9, Temperature: 21, Humidity: 40, Timestamp: fixedNow, SensorID: "s1"}
	repo := &mockRepo{latest: stored}
	fc := newFakeCache()
	svc := newTestService(repo, fc)

	got, err := svc.Latest(context.Background(), "s1")
	if err != nil || got.ID != 9 {
		t.Fatalf("Latest = %+v, %v", got, err)
	}
	if _, ok := fc.entries[cacheKey("s1")]; !ok {
		t.Fatal("miss did not populate cache")
	}

	got, err = svc.Latest(context.Background(), "s1")
	if err != nil || got.ID != 9 || !got.Timestamp.Equal(fixedNow) {
		t.Fatalf("cached Latest = %+v, %v", got, err)
	}
	if repo.latestCalls != 1 {
		t.Errorf("store calls = %d, want 1", repo.latestCalls)
	}
}

func TestLatest_CacheErrorFallsBack(t *testing.T) {
	repo := &mockRepo{latest: types.Reading{ID: 4}}
	fc := newFakeCache()
	fc.getErr = errors.New("breaker open")
	svc := newTestService(repo, fc)

	got, err := svc.Latest(context.Background(), "")
	if err != nil || got.ID != 4 {
		t.Fatalf("Latest = %+v, %v", got, err)
	}
	if repo.latestCalls != 1 {
		t.Errorf("store calls = %d, want 1", repo.latestCalls)
	}
}

func TestIngest_OffersNewestOnly(t *testing.T) {
	repo := &mockRepo{}
	fc := newFakeCache()
	svc := newTestService(repo, fc)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, metrics.SourceHTTP, telemetry.Reading{
		SensorID: "s1", Temperature: f64(30), Humidity: f64(30), Timestamp: "2024-06-01T10:00:00Z",
	}); err != nil {
		t.Fatalf("Ingest newer: %v", err)
	}
	if _, err := svc.Ingest(ctx, metrics.SourceHTTP, telemetry.Reading{
		SensorID: "s1", Temperature: f64(10), Humidity: f64(10), Timestamp: "2024-06-01T09:00:00Z",
	}); err != nil {
		t.Fatalf("Ingest older: %v", err)
	}

	for _, key := range []string{cacheKey("s1"), allSensorsKey} {
		var rec types.Reading
		if err := json.Unmarshal(fc.entries[key].payload, &rec); err != nil {
			t.Fatalf("decode %s: %v", key, err)
		}
		if rec.Temperature != 30 {
			t.Errorf("cache[%s].Temperature = %v, want the newer 30", key, rec.Temperature)
		}
	}
}

func TestLatest_FailedOfferBypassesCache(t *testing.T) {
	repo := &mockRepo{}
	fc := newFakeCache()
	svc := newTestService(repo, fc)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, metrics.SourceHTTP, telemetry.Reading{
		SensorID: "s1", Temperature: f64(10), Humidity: f64(50), Timestamp: "2024-06-01T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("Ingest first: %v", err)
	}
	if _, ok := fc.entries[allSensorsKey]; !ok {
		t.Fatal("first reading was not cached")
	}

	// Both offers for the second reading fail. The DEL may fail as well
	// when Redis is down, so the stale entries are restored after it.
	fc.failOffers = 2
	second, err := svc.Ingest(ctx, metrics.SourceHTTP, telemetry.Reading{
		SensorID: "s1", Temperature: f64(23.5), Humidity: f64(55), Timestamp: "2024-06-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Ingest second: %v", err)
	}
	if len(fc.deleted) != 2 {
		t.Errorf("invalidated keys = %v, want both", fc.deleted)
	}
	stale, _ := json.Marshal(first)
	fc.entries[allSensorsKey] = cacheEntry{ts: first.Timestamp, payload: stale}
	fc.entries[cacheKey("s1")] = cacheEntry{ts: first.Timestamp, payload: stale}
	repo.latest = second

	for _, sensor := range []string{"", "s1"} {
		got, err := svc.Latest(ctx, sensor)
		if err != nil {
			t.Fatalf("Latest(%q): %v", sensor, err)
		}
		if got.Temperature != 23.5 {
			t.Errorf("Latest(%q).Temperature = %v, want 23.5", sensor, got.Temperature)
		}
	}
	if repo.latestCalls != 2 {
		t.Errorf("store calls = %d, want 2", repo.latestCalls)
	}

	// The store fill repaired the cache, so the next read is a hit.
	got, err := svc.Latest(ctx, "")
	if err != nil || got.Temperature != 23.5 {
		t.Fatalf("Latest after repair = %+v, %v", got, err)
	}
	if repo.latestCalls != 2 {
		t.Errorf("store calls after repair = %d, want 2", repo.latestCalls)
	}
}

func TestCacheKey_NoCollision(t *testing.T) {
	if cacheKey("") == cacheKey("all") {
		t.Errorf("sensor %q shares the across-sensors key %q", "all", allSensorsKey)
	}
	if got := cacheKey("s1"); got != "sensor:s1" {
		t.Errorf("cacheKey(s1) = %q", got)
	}
}

func TestStats_Rounds(t *testing.T) {
	repo := &mockRepo{stats: types.Stats{
		TotalRecords:   3,
		AvgTemperature: f64(22.005),
		MinTemperature: f64(20),
		MaxTemperature: f64(24.444),
		AvgHumidity:    f64(-1.125),
		MinHumidity:    f64(40),
		MaxHumidity:    f64(60),
	}}
	st, err := newTestService(repo, nil).Stats(context.Background(), types.Filter{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if *st.MaxTemperature != 24.44 {
		t.Errorf("MaxTemperature = %v, want 24.44", *st.MaxTemperature)
	}
	if *st.AvgHumidity != -1.13 {
		t.Errorf("AvgHumidity = %v, want -1.13 (half away from zero)", *st.AvgHumidity)
	}
	if *st.MinTemperature != 20 {
		t.Errorf("MinTemperature = %v", *st.MinTemperature)
	}
}

func TestStats_EmptyStaysNull(t *testing.T) {
	st, err := newTestService(&mockRepo{}, nil).Stats(context.Background(), types.Filter{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalRecords != 0 || st.AvgTemperature != nil || st.MaxHumidity != nil {
		t.Errorf("Stats = %+v, want zero count and nil aggregates", st)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-01-02T03:04:05Z", want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{in: "2024-01-02T03:04:05.5Z", want: time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.UTC)},
		{in: "2024-01-02T12:04:05+09:00", want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{in: "2024-01-02T03:04:05", want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{in: "2024-01-02T03:04", want: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)},
		{in: "2024-01-02 03:04:05", want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{in: " 2024-01-02 ", want: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{in: "02/01/2024", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTime(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTime(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTime(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("ParseTime(%q) = %v, want %v UTC", tt.in, got, tt.want)
			}
		})
	}
}
