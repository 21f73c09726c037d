package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ihong9059/raspberry-weather-monitor/internal/db"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/select-readings.sql
var selectReadingsSQL string

//go:embed sql/select-stats.sql
var selectStatsSQL string

// ErrNoReadings is returned by LatestReading when nothing matches.
var ErrNoReadings = errors.New("no readings")

type WeatherRepository interface {
	InsertReading(ctx context.Context, r types.NewReading) (int64, error)
	// ListReadings returns at most limit readings, newest first.
	ListReadings(ctx context.Context, f types.Filter, limit int) ([]types.Reading, error)
	LatestReading(ctx context.Context, sensorID string) (types.Reading, error)
	Stats(ctx context.Context, f types.Filter) (types.Stats, error)
}

type repositoryImpl struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewRepository(conn *sql.DB, dialect db.Dialect) WeatherRepository {
	return &repositoryImpl{db: conn, dialect: dialect}
}

func (r *repositoryImpl) InsertReading(ctx context.Context, in types.NewReading) (int64, error) {
	args := []any{in.SensorID, in.Temperature, in.Humidity, in.Timestamp.UTC()}

	if r.dialect.ReturningID() {
		var id int64
		q := r.dialect.Rebind(strings.TrimSpace(insertReadingSQL) + " RETURNING id")
		if err := r.db.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert reading: %w", err)
		}
		return id, nil
	}

	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(insertReadingSQL), args...)
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert reading: last insert id: %w", err)
	}
	return id, nil
}

func (r *repositoryImpl) ListReadings(ctx context.Context, f types.Filter, limit int) ([]types.Reading, error) {
	where, args := buildWhere(f)
	q := strings.TrimSpace(selectReadingsSQL) + where + "\nORDER BY recorded_at DESC, id DESC\nLIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()

	out := make([]types.Reading, 0)
	for rows.Next() {
		rec, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("list readings: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return out, nil
}

func (r *repositoryImpl) LatestReading(ctx context.Context, sensorID string) (types.Reading, error) {
	where, args := buildWhere(types.Filter{SensorID: sensorID})
	q := strings.TrimSpace(selectReadingsSQL) + where + "\nORDER BY recorded_at DESC, id DESC\nLIMIT 1"

	rec, err := scanReading(r.db.QueryRowContext(ctx, r.dialect.Rebind(q), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Reading{}, ErrNoReadings
	}
	if err != nil {
		return types.Reading{}, fmt.Errorf("latest reading: %w", err)
	}
	return rec, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, f types.Filter) (types.Stats, error) {
	where, args := buildWhere(f)
	q := strings.TrimSpace(selectStatsSQL) + where

	var st types.Stats
	var avgT, minT, maxT, avgH, minH, maxH sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q), args...).
		Scan(&st.TotalRecords, &avgT, &minT, &maxT, &avgH, &minH, &maxH)
	if err != nil {
		return types.Stats{}, fmt.Errorf("reading stats: %w", err)
	}

	st.AvgTemperature = nullable(avgT)
	st.MinTemperature = nullable(minT)
	st.MaxTemperature = nullable(maxT)
	st.AvgHumidity = nullable(avgH)
	st.MinHumidity = nullable(minH)
	st.MaxHumidity = nullable(maxH)
	return st, nil
}

// buildWhere adds one clause per present filter, in a fixed order.
func buildWhere(f types.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Start != nil {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		clauses = append(clauses, "recorded_at <= ?")
		args = append(args, f.End.UTC())
	}
	if f.SensorID != "" {
		clauses = append(clauses, "sensor_id = ?")
		args = append(args, f.SensorID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(s rowScanner) (types.Reading, error) {
	var rec types.Reading
	if err := s.Scan(&rec.ID, &rec.Temperature, &rec.Humidity, &rec.Timestamp, &rec.SensorID); err != nil {
		return types.Reading{}, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
