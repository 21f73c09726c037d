package controller

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/service"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/types"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/views"
	"github.com/ihong9059/raspberry-weather-monitor/internal/utils"
)

type ingestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	DataID    int64  `json:"data_id"`
	Timestamp string `json:"timestamp"`
}

type listResponse struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    []types.Reading `json:"data"`
}

type latestResponse struct {
	Success bool          `json:"success"`
	Data    types.Reading `json:"data"`
}

type statsResponse struct {
	Success bool        `json:"success"`
	Stats   types.Stats `json:"stats"`
}

func (c *weatherControllerImpl) handleIngest(w http.ResponseWriter, r *http.Request) {
	in, err := decodeReading(w, r)
	if err != nil {
		c.service.Reject(metrics.SourceHTTP, err)
		c.logger.Debug("ingest: undecodable body", "error", err)
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := c.service.Ingest(r.Context(), metrics.SourceHTTP, in)
	if err != nil {
		c.writeServiceError(w, r, "ingest", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, ingestResponse{
		Success:   true,
		Message:   "data saved successfully",
		DataID:    rec.ID,
		Timestamp: formatTimestamp(rec.Timestamp),
	})
}

func (c *weatherControllerImpl) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.service.List(r.Context(), f, limit)
	if err != nil {
		c.writeServiceError(w, r, "list", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, listResponse{Success: true, Count: len(readings), Data: readings})
}

func (c *weatherControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := c.service.Latest(r.Context(), strings.TrimSpace(r.URL.Query().Get("sensor_id")))
	if err != nil {
		c.writeServiceError(w, r, "latest", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, latestResponse{Success: true, Data: rec})
}

func (c *weatherControllerImpl) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := c.service.Stats(r.Context(), f)
	if err != nil {
		c.writeServiceError(w, r, "stats", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, statsResponse{Success: true, Stats: st})
}

func (c *weatherControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := views.NewDashboardData(c.opts.Version, c.service.DefaultSensorID(), c.opts.DashboardRefresh)

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		c.logger.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		c.logger.Error("dashboard: write response failed", "error", err)
	}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (c *weatherControllerImpl) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		utils.WriteError(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, service.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, service.ErrNotFound.Error())
	default:
		c.logger.Error(op+" failed", "path", r.URL.Path, "error", err)
		utils.WriteInternalError(w, err, c.opts.ShowErrorDetails)
	}
}
