// Package telemetry holds the wire shape of a reading as devices send it,
// over HTTP or MQTT.
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Reading is the upload payload. Temperature and Humidity are pointers so a
// missing field can be told apart from zero. Timestamp is kept as sent and
// parsed by the server.
type Reading struct {
	SensorID    string   `json:"sensor_id,omitempty"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

// New builds a complete reading stamped with ts in UTC.
func New(sensorID string, temperature, humidity float64, ts time.Time) Reading {
	return Reading{
		SensorID:    sensorID,
		Temperature: &temperature,
		Humidity:    &humidity,
		Timestamp:   ts.UTC().Format(time.RFC3339Nano),
	}
}

// Topic is the MQTT topic a sensor publishes its readings on.
func Topic(sensorID string) string {
	return fmt.Sprintf("weather/%s/readings", sensorID)
}

// SensorFromTopic extracts the sensor id from weather/<id>/readings.
func SensorFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "weather" || parts[2] != "readings" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
