package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/service"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/types"
	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

const maxBodyBytes = 64 << 10

// parseFilter reads start, end and sensor_id. Absent values add no constraint.
func parseFilter(r *http.Request) (types.Filter, error) {
	q := r.URL.Query()
	var f types.Filter

	if s := q.Get("start"); s != "" {
		t, err := service.ParseTime(s)
		if err != nil {
			return types.Filter{}, errors.New("invalid 'start' (expected ISO 8601 time)")
		}
		f.Start = &t
	}
	if s := q.Get("end"); s != "" {
		t, err := service.ParseTime(s)
		if err != nil {
			return types.Filter{}, errors.New("invalid 'end' (expected ISO 8601 time)")
		}
		f.End = &t
	}
	f.SensorID = strings.TrimSpace(q.Get("sensor_id"))
	return f, nil
}

// parseLimit returns 0 when limit is absent, leaving the default to the service.
func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	return n, nil
}

// decodeReading accepts JSON or form-encoded bodies. An empty body decodes to
// an empty reading so the service reports the missing fields.
func decodeReading(w http.ResponseWriter, r *http.Request) (telemetry.Reading, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		return decodeForm(r)
	}

	var in jsonReading
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return telemetry.Reading{}, nil
		}
		return telemetry.Reading{}, err
	}
	if dec.More() {
		return telemetry.Reading{}, errors.New("trailing data after JSON body")
	}
	return telemetry.Reading{
		SensorID:    in.SensorID,
		Temperature: in.Temperature.v,
		Humidity:    in.Humidity.v,
		Timestamp:   in.Timestamp,
	}, nil
}

// jsonReading is the JSON upload body. Measurements may be numbers or
// numeric strings.
type jsonReading struct {
	SensorID    string    `json:"sensor_id"`
	Temperature flexFloat `json:"temperature"`
	Humidity    flexFloat `json:"humidity"`
	Timestamp   string    `json:"timestamp"`
}

// flexFloat decodes a JSON number or a string holding one. null and ""
// leave it unset.
type flexFloat struct{ v *float64 }

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		f.v = nil
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		f.v = &n
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("expected number, got %s", b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		f.v = nil
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expected number, got %q", s)
	}
	f.v = &n
	return nil
}

func decodeForm(r *http.Request) (telemetry.Reading, error) {
	if err := r.ParseForm(); err != nil {
		return telemetry.Reading{}, err
	}
	in := telemetry.Reading{
		SensorID:  r.PostForm.Get("sensor_id"),
		Timestamp: r.PostForm.Get("timestamp"),
	}
	var err error
	if in.Temperature, err = formFloat(r, "temperature"); err != nil {
		return telemetry.Reading{}, err
	}
	if in.Humidity, err = formFloat(r, "humidity"); err != nil {
		return telemetry.Reading{}, err
	}
	return in, nil
}

func formFloat(r *http.Request, key string) (*float64, error) {
	s := strings.TrimSpace(r.PostForm.Get(key))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	return &v, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(types.TimestampLayout)
}
