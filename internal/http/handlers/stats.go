package handlers

import (
	"net/http"
)

func (a *App) MusicStats(w http.ResponseWriter, r *http.Request) {
	if a.Stats == nil {
		a.error(w, http.StatusServiceUnavailable, "not_configured", "job statistics are not available")
		return
	}
	st, err := a.Stats.Stats(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: load music stats")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, st)
}
