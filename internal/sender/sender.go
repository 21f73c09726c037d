// Package sender reads the sensor board's serial output and uploads each
// reading to the weather API, over HTTP or MQTT.
package sender

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

type Transport interface {
	Send(ctx context.Context, r telemetry.Reading) error
	Close() error
}

type Options struct {
	SensorID string
	// Once stops after the first parsed reading.
	Once   bool
	Now    func() time.Time
	Logger *slog.Logger
}

// ErrNoReading is returned in once mode when the source ends without a reading.
var ErrNoReading = errors.New("source ended without a reading")

// Run forwards every reading line in src until EOF or ctx is done and returns
// how many were delivered. Send failures are logged and do not stop the loop,
// except in once mode where the error is returned.
func Run(ctx context.Context, src io.Reader, t Transport, opts Options) (int, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sent := 0
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		line := scanner.Text()
		temperature, humidity, err := ParseLine(line)
		if errors.Is(err, ErrNotReading) {
			if line != "" {
				logger.Debug("device output", "line", line)
			}
			continue
		}
		if err != nil {
			logger.Warn("unparsable reading line", "line", line, "error", err)
			continue
		}

		reading := telemetry.New(opts.SensorID, temperature, humidity, opts.Now())
		if err := t.Send(ctx, reading); err != nil {
			if opts.Once {
				return sent, err
			}
			logger.Error("reading dropped", "temperature", temperature, "humidity", humidity, "error", err)
			continue
		}
		sent++
		if opts.Once {
			return sent, nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		return sent, fmt.Errorf("read source: %w", err)
	}
	if opts.Once {
		return sent, ErrNoReading
	}
	return sent, nil
}
