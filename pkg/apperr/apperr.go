// Package apperr holds the error taxonomy shared by the data gateway and the
// recommendation pipeline. Transports map errors to status codes with Kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUpstreamUnavailable is returned when a provider failed after retries and
// synthetic fallback is disabled.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// AuthError means the token exchange with a provider failed.
type AuthError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s auth failed: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s auth failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError is the backpressure signal of the rate limiter. RetryAfter is
// the time left until the current window resets.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// UpstreamError is a failed call to a data provider. StatusCode is zero for
// network errors and timeouts.
type UpstreamError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Endpoint, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Provider, e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Endpoint, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable: network errors, 5xx and 429. Any other 4xx fails immediately.
func (e *UpstreamError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CalculationError flags an impossible derived state (e.g. zero capacity).
// It is never masked.
type CalculationError struct {
	Message string
}

func NewCalculation(format string, args ...any) *CalculationError {
	return &CalculationError{Message: fmt.Sprintf(format, args...)}
}

func (e *CalculationError) Error() string { return "calculation: " + e.Message }

const (
	KindValidation  = "validation"
	KindAuth        = "auth"
	KindRateLimited = "rate_limited"
	KindUpstream    = "upstream"
	KindCalculation = "calculation"
	KindInternal    = "internal"
)

// Kind classifies err for status mapping and metric labels.
func Kind(err error) string {
	var (
		ve *ValidationError
		ae *AuthError
		re *RateLimitError
		ue *UpstreamError
		ce *CalculationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &re):
		return KindRateLimited
	case errors.As(err, &ae):
		return KindAuth
	case errors.As(err, &ce):
		return KindCalculation
	case errors.As(err, &ue), errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstream
	default:
		return KindInternal
	}
}

// HTTPStatus maps an error to the status code used by the HTTP transport.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindAuth, KindUpstream:
		return http.StatusServiceUnavailable
	case KindCalculation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
