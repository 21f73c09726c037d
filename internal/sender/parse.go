package sender

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotReading marks a serial line that carries no measurement (boot banners,
// driver errors, blank lines).
var ErrNotReading = errors.New("not a reading line")

// ParseLine parses the device line format TEMP:<celsius>,HUMIDITY:<percent>.
func ParseLine(line string) (temperature, humidity float64, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "TEMP:") {
		return 0, 0, ErrNotReading
	}

	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed reading %q", line)
	}
	temperature, err = field(parts[0], "TEMP")
	if err != nil {
		return 0, 0, err
	}
	humidity, err = field(parts[1], "HUMIDITY")
	if err != nil {
		return 0, 0, err
	}
	return temperature, humidity, nil
}

func field(part, name string) (float64, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
	if !ok || key != name {
		return 0, fmt.Errorf("expected %s:<value>, got %q", name, part)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%s value %q: %w", name, value, err)
	}
	return v, nil
}
