package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/utils"
)

const pingTimeout = 2 * time.Second

type healthchecker interface {
	handleHealth(w http.ResponseWriter, r *http.Request)
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db      *sql.DB
	version string
	logger  *slog.Logger
	now     func() time.Time
}

func NewHealthchecker(db *sql.DB, version string, logger *slog.Logger) healthchecker {
	return &healthcheckerImpl{db: db, version: version, logger: logger, now: time.Now}
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// handleHealth reports liveness without touching the database.
func (h *healthcheckerImpl) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Weather Monitoring API is running",
		Timestamp: h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Version:   h.version,
	})
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, version string, logger *slog.Logger) {
	healthchecker := NewHealthchecker(db, version, logger)
	mux.HandleFunc("GET /api/health", healthchecker.handleHealth)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
