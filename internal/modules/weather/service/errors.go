package service

import "errors"

// ErrNotFound means the query matched no reading.
var ErrNotFound = errors.New("no data available")

// Rejection reasons, also used as metric labels.
const (
	ReasonInvalidBody      = "invalid_body"
	ReasonMissingFields    = "missing_fields"
	ReasonTemperatureRange = "temperature_range"
	ReasonHumidityRange    = "humidity_range"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonInvalidQuery     = "invalid_query"
)

// ValidationError is a client error; Message is safe to return verbatim.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(reason, msg string) *ValidationError {
	return &ValidationError{Reason: reason, Message: msg}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
