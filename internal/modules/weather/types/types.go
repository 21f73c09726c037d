package types

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the wire format of every timestamp the API emits:
// UTC with exactly three fractional digits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Reading is one stored temperature/humidity sample.
type Reading struct {
	ID          int64     `json:"id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
	SensorID    string    `json:"sensor_id"`
}

// MarshalJSON writes Timestamp in TimestampLayout. The output still decodes
// with the default time.Time decoder.
func (r Reading) MarshalJSON() ([]byte, error) {
	type plain Reading
	return json.Marshal(struct {
		plain
		Timestamp string `json:"timestamp"`
	}{plain(r), r.Timestamp.UTC().Format(TimestampLayout)})
}

// NewReading is a validated reading ready to be inserted.
type NewReading struct {
	Temperature float64
	Humidity    float64
	Timestamp   time.Time
	SensorID    string
}

// Filter narrows list and stats queries. Nil bounds and an empty sensor id add no clause.
type Filter struct {
	Start    *time.Time
	End      *time.Time
	SensorID string
}

// Stats aggregates a window of readings. Aggregates are nil when the window is empty.
type Stats struct {
	TotalRecords   int64    `json:"total_records"`
	AvgTemperature *float64 `json:"avg_temperature"`
	MinTemperature *float64 `json:"min_temperature"`
	MaxTemperature *float64 `json:"max_temperature"`
	AvgHumidity    *float64 `json:"avg_humidity"`
	MinHumidity    *float64 `json:"min_humidity"`
	MaxHumidity    *float64 `json:"max_humidity"`
}
