package handlers

import (
	"net/http"
	"time"

	"sampler/internal/infra/credentials"
)

type integrationStatus struct {
	Provider   string     `json:"provider"`
	Configured bool       `json:"configured"`
	Source     string     `json:"source,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Integrations reports which providers have an api key, without exposing it.
func (a *App) Integrations(w http.ResponseWriter, r *http.Request) {
	stored := map[string]time.Time{}
	if a.Credentials != nil {
		infos, err := a.Credentials.ListProviders(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		for _, info := range infos {
			stored[info.Provider] = info.UpdatedAt
		}
	}
	env := map[string]string{
		credentials.ProviderMusic:  a.Config.MusicAPIKey,
		credentials.ProviderSearch: a.Config.SearchAPIKey,
		credentials.ProviderChat:   a.Config.OpenAIAPIKey,
	}
	items := make([]integrationStatus, 0, len(credentials.Providers))
	for _, p := range credentials.Providers {
		st := integrationStatus{Provider: p}
		if at, ok := stored[p]; ok {
			st.Configured, st.Source, st.UpdatedAt = true, "database", &at
		} else if env[p] != "" {
			st.Configured, st.Source = true, "environment"
		}
		items = append(items, st)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
