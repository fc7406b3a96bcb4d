package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrProviderUnavailable is returned when the provider keeps answering 503
	// after all retry attempts are exhausted.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrMissingCredentials is returned by New when a credential field is empty.
	ErrMissingCredentials = errors.New("missing credentials")
)

// ErrorClass represents a classification of provider responses.
type ErrorClass string

const (
	// ErrorClassUnavailable represents 503 Service Unavailable, the only
	// status that is retried.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors other than 503.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ProviderError is a fatal non-200 response from the provider.
type ProviderError struct {
	StatusCode int
	Endpoint   string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error (status %d) on %s: %v", e.StatusCode, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("provider error (status %d) on %s", e.StatusCode, e.Endpoint)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Class returns the error class of the status code.
func (e *ProviderError) Class() ErrorClass {
	return classifyStatus(e.StatusCode)
}

// IsTransient reports whether a status code is absorbed by retrying.
func IsTransient(statusCode int) bool {
	return statusCode == http.StatusServiceUnavailable
}

// classifyStatus categorizes a non-200 status for logs and metrics.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusServiceUnavailable:
		return ErrorClassUnavailable
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
