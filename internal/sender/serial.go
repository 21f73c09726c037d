package sender

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.bug.st/serial"
)

// ErrNoPort is returned when source is auto and no likely device is attached.
var ErrNoPort = errors.New("no serial port found (looked for ACM or USB devices)")

// OpenSource opens the configured line source: stdin, a named serial port,
// or the first ACM/USB port when source is auto.
func OpenSource(cfg Config, logger *slog.Logger) (io.ReadCloser, error) {
	if logger == nil {
		logger = slog.Default()
	}

	port := cfg.Source
	switch port {
	case SourceStdin:
		return io.NopCloser(os.Stdin), nil
	case SourceAuto:
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("list serial ports: %w", err)
		}
		if port, err = pickPort(ports); err != nil {
			return nil, err
		}
		logger.Info("serial port detected", "port", port)
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return p, nil
}

// pickPort returns the first port that looks like a USB serial device.
func pickPort(ports []string) (string, error) {
	for _, p := range ports {
		if strings.Contains(p, "ACM") || strings.Contains(p, "USB") {
			return p, nil
		}
	}
	return "", ErrNoPort
}
