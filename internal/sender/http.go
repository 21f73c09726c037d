package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ihong9059/raspberry-weather-monitor/internal/auth"
	"github.com/ihong9059/raspberry-weather-monitor/internal/telemetry"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Code, e.Body)
}

type HTTPTransport struct {
	url      string
	apiKey   string
	attempts int
	delay    time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPTransport(cfg Config, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		url:      cfg.APIURL,
		apiKey:   cfg.APIKey,
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

type ingestResponse struct {
	DataID int64 `json:"data_id"`
}

// Send POSTs one reading. Network errors and 5xx answers are retried with
// exponential backoff up to the configured attempts; 4xx answers are final.
func (t *HTTPTransport) Send(ctx context.Context, r telemetry.Reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(auth.HeaderAPIKey, t.apiKey)

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			var out ingestResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.logger.Warn("reading sent but response undecodable", "error", err)
				return nil
			}
			t.logger.Info("reading sent",
				"data_id", out.DataID,
				"temperature", *r.Temperature,
				"humidity", *r.Humidity,
				"attempt", attempt,
			)
			return nil
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.delay
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.attempts-1)), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		t.logger.Warn("send failed, retrying",
			"attempt", attempt,
			"max_attempts", t.attempts,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return fmt.Errorf("send reading after %d attempt(s): %w", attempt, err)
	}
	return nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
