package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrProviderFailure = errors.New("provider failure")
	ErrNotConfigured   = errors.New("provider not configured")
	ErrJobFinished     = errors.New("job already finished")
)
