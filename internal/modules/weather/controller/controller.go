package controller

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ihong9059/raspberry-weather-monitor/internal/auth"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/service"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/views"
)

type WeatherController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type Options struct {
	APIKey string
	// ShowErrorDetails adds the cause of 500s to responses (development only).
	ShowErrorDetails bool
	Version          string
	DashboardRefresh time.Duration
	Logger           *slog.Logger
}

type weatherControllerImpl struct {
	service *service.Service
	opts    Options
	logger  *slog.Logger
}

func NewWeatherController(svc *service.Service, opts Options) WeatherController {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &weatherControllerImpl{service: svc, opts: opts, logger: logger}
}

func (c *weatherControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/weather/data", auth.RequireAPIKey(c.opts.APIKey, http.HandlerFunc(c.handleIngest)))
	mux.HandleFunc("GET /api/weather/data", c.handleList)
	mux.HandleFunc("GET /api/weather/latest", c.handleLatest)
	mux.HandleFunc("GET /api/weather/stats", c.handleStats)
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.Handle("GET /static/", views.StaticHandler())
}
