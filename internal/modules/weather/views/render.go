package views

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"
)

//go:embed templates static
var viewsFS embed.FS

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"to_json": func(v any) (template.JS, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return template.JS(b), nil
	},
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// StaticHandler serves the embedded JS and CSS under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(viewsFS, "static")
	if err != nil {
		// static is embedded at build time; a failure here is a build defect
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

// QuickRange is one of the preset time-window buttons.
type QuickRange struct {
	Hours int    `json:"hours"`
	Label string `json:"label"`
}

var DefaultQuickRanges = []QuickRange{
	{Hours: 1, Label: "1 hour"},
	{Hours: 6, Label: "6 hours"},
	{Hours: 24, Label: "24 hours"},
	{Hours: 72, Label: "3 days"},
	{Hours: 168, Label: "7 days"},
}

// ClientConfig is injected into the page as JSON for app.js.
type ClientConfig struct {
	DefaultSensorID string       `json:"defaultSensorId"`
	RefreshMillis   int64        `json:"refreshMillis"`
	DefaultHours    int          `json:"defaultHours"`
	QuickRanges     []QuickRange `json:"quickRanges"`
}

type DashboardData struct {
	Title   string
	Version string
	Client  ClientConfig
}

// NewDashboardData builds the page model with the default 24 hour window.
func NewDashboardData(version, sensorID string, refresh time.Duration) *DashboardData {
	return &DashboardData{
		Title:   "Weather Monitor",
		Version: version,
		Client: ClientConfig{
			DefaultSensorID: sensorID,
			RefreshMillis:   refresh.Milliseconds(),
			DefaultHours:    24,
			QuickRanges:     DefaultQuickRanges,
		},
	}
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	if data == nil {
		return errors.New("dashboard: nil data")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}
