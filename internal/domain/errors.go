package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAllProvidersExhausted is returned when every provider in the chain failed.
	ErrAllProvidersExhausted = errors.New("all geocoding providers exhausted")

	// ErrPinNotFound is returned by a PinStore when no pin has the requested ID.
	ErrPinNotFound = errors.New("pin not found")

	// ErrUnauthorized is returned when a shared-secret check fails.
	ErrUnauthorized = errors.New("unauthorized")
)

// InvalidCoordinateError reports a latitude or longitude that failed validation.
// It is never retried.
type InvalidCoordinateError struct {
	Field  string // "lat" or "lon"
	Value  string
	Reason string
}

func (e *InvalidCoordinateError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid coordinate: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid coordinate: %s=%s %s", e.Field, e.Value, e.Reason)
}

// ProviderTimeoutError reports a provider attempt that exceeded its deadline.
type ProviderTimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Provider, e.Timeout)
}

// ProviderHTTPError reports a transport failure or a non-2xx response.
// StatusCode is zero when no response was received.
type ProviderHTTPError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderHTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *ProviderHTTPError) Unwrap() error { return e.Err }

// ProviderParseError reports a response body that could not be decoded or
// did not contain a usable location.
type ProviderParseError struct {
	Provider string
	Err      error
}

func (e *ProviderParseError) Error() string {
	return fmt.Sprintf("%s: parse response: %v", e.Provider, e.Err)
}

func (e *ProviderParseError) Unwrap() error { return e.Err }

// IsInvalidCoordinate reports whether err is, or wraps, an InvalidCoordinateError.
func IsInvalidCoordinate(err error) bool {
	var target *InvalidCoordinateError
	return errors.As(err, &target)
}
