package handlers

import (
	"context"
	"errors"
	"net/http"

	"sampler/internal/domain"
	"sampler/internal/narration"
	"sampler/internal/providers/chat"
	"sampler/internal/providers/music"
	"sampler/internal/providers/search"
)

// fail maps service and provider errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var validation *music.ValidationError
	var musicAPI *music.APIError
	var searchAPI *search.APIError
	switch {
	case errors.As(err, &validation):
		a.json(w, http.StatusBadRequest, map[string]any{"error": map[string]string{
			"code":    "invalid_" + validation.Field,
			"message": validation.Reason,
			"field":   validation.Field,
		}})
		return
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, narration.ErrSessionNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	case errors.Is(err, music.ErrMissingAPIKey), errors.Is(err, search.ErrMissingAPIKey),
		errors.Is(err, chat.ErrMissingAPIKey), errors.Is(err, domain.ErrNotConfigured):
		a.error(w, http.StatusServiceUnavailable, "not_configured", "provider is not configured")
		return
	case errors.Is(err, chat.ErrEmptyPrompt):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, music.ErrInvalidCredentials), errors.Is(err, search.ErrInvalidAPIKey),
		errors.Is(err, chat.ErrInvalidAPIKey):
		a.error(w, http.StatusBadGateway, "provider_auth", "provider rejected the api key")
		return
	case errors.Is(err, search.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		a.error(w, http.StatusTooManyRequests, "provider_rate_limited", "provider rate limit exceeded")
		return
	case errors.Is(err, search.ErrModelNotAvailable):
		a.error(w, http.StatusBadRequest, "model_not_available", "model not available")
		return
	case errors.As(err, &musicAPI), errors.As(err, &searchAPI), errors.Is(err, domain.ErrProviderFailure):
		a.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("http: provider error")
		a.error(w, http.StatusBadGateway, "provider_error", err.Error())
		return
	case errors.Is(err, context.Canceled):
		return
	}
	a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
	a.error(w, http.StatusInternalServerError, "internal", "internal error")
}
