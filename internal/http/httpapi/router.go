package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"sampler/internal/http/handlers"
	"sampler/internal/infra"
	"sampler/internal/metrics"
	"sampler/internal/middleware"
)

// Options configures the cross-cutting middleware of the router.
type Options struct {
	Logger         infra.Logger
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	// Limiter guards the endpoints that call paid providers. Nil disables it.
	Limiter       middleware.Limiter
	CountryLookup middleware.CountryLookup
	DefaultLocale string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	limited := func(h http.HandlerFunc) http.Handler {
		if opts.Limiter == nil {
			return h
		}
		return middleware.RateLimit(opts.Limiter, opts.Logger)(h)
	}

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	r.Get("/v1/integrations", app.Integrations)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/music", func(r chi.Router) {
		r.Method(http.MethodPost, "/generate", limited(app.MusicGenerate))
		r.Get("/models", app.MusicModels)
		r.Get("/stats", app.MusicStats)
		r.Get("/jobs/{job_id}", app.MusicJob)
		r.Get("/jobs/{job_id}/archive", app.MusicArchive)
	})

	r.Method(http.MethodPost, "/v1/search", limited(app.Search))
	r.Method(http.MethodPost, "/v1/chat", limited(app.Chat))

	r.Route("/v1/narration/sessions", func(r chi.Router) {
		r.Post("/", app.NarrationCreate)
		r.Get("/{session_id}", app.NarrationState)
		r.Delete("/{session_id}", app.NarrationDelete)
		r.Post("/{session_id}/frames", app.NarrationFrame)
	})

	return r
}
