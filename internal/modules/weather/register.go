package weather

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/db"
	"github.com/ihong9059/raspberry-weather-monitor/internal/metrics"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/controller"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/repository"
	"github.com/ihong9059/raspberry-weather-monitor/internal/modules/weather/service"
)

type Deps struct {
	DB      *sql.DB
	Dialect db.Dialect
	Config  config.Config
	Version string
	// Cache may be nil.
	Cache   service.LatestCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// RegisterFeature wires the weather module onto mux and returns its service so
// other ingestion paths (MQTT) can share it.
func RegisterFeature(mux *http.ServeMux, deps Deps) *service.Service {
	weatherRepository := repository.NewRepository(deps.DB, deps.Dialect)
	weatherService := service.NewService(weatherRepository, service.Options{
		DefaultSensorID: deps.Config.DefaultSensorID,
		DefaultLimit:    deps.Config.DefaultListLimit,
		Cache:           deps.Cache,
		Metrics:         deps.Metrics,
		Logger:          deps.Logger,
	})
	weatherController := controller.NewWeatherController(weatherService, controller.Options{
		APIKey:           deps.Config.APIKey,
		ShowErrorDetails: deps.Config.IsDev(),
		Version:          deps.Version,
		DashboardRefresh: deps.Config.DashboardRefresh,
		Logger:           deps.Logger,
	})
	weatherController.RegisterRoutes(mux)
	return weatherService
}
