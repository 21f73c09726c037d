package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
)

// NewHandler wraps mux in the middleware chain. The outermost layer runs first.
func NewHandler(cfg config.Config, mux http.Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var h http.Handler = mux
	h = cors(cfg.CORSOrigin)(h)
	h = recoverer(logger, cfg.IsDev())(h)
	h = instrument(m)(h)
	h = requestLogger(logger)(h)
	h = requestID(h)
	return h
}

func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
