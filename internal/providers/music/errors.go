package music

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("music: api key is required")
	// ErrInvalidURL is returned when an endpoint URL cannot be constructed.
	ErrInvalidURL = errors.New("music: invalid url")
	// ErrInvalidCredentials is returned when the provider answers 401.
	ErrInvalidCredentials = errors.New("music: invalid api key")
	// ErrTimeout is returned after the poll budget is spent without a terminal status.
	ErrTimeout = errors.New("music: generation timed out")
)

// APIError carries a non-success HTTP status or envelope code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("music: api error %d: %s", e.StatusCode, e.Message)
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("music: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidResponseError reports a body that is well-formed HTTP but not a usable answer.
type InvalidResponseError struct {
	Detail string
	Err    error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("music: invalid response: %s: %v", e.Detail, e.Err)
	}
	return "music: invalid response: " + e.Detail
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// JobFailedError is returned when the provider reports a failed generation.
type JobFailedError struct {
	Status       string
	ErrorCode    string
	ErrorMessage string
}

func (e *JobFailedError) Error() string {
	if e.ErrorMessage != "" {
		return fmt.Sprintf("music: generation failed (%s): %s", e.Status, e.ErrorMessage)
	}
	return fmt.Sprintf("music: generation failed (%s)", e.Status)
}
