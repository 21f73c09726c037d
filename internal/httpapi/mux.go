package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/utils"
)

type notFoundResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Path    string `json:"path"`
}

// NewMux registers the health, metrics and fallback routes. Feature modules add
// their own routes afterwards. m may be nil, in which case /metrics is not served.
func NewMux(db *sql.DB, version string, m *metrics.Metrics, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, version, logger)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	mux.HandleFunc("/", handleNotFound)
	return mux
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusNotFound, notFoundResponse{
		Success: false,
		Error:   "resource not found",
		Path:    r.URL.Path,
	})
}
