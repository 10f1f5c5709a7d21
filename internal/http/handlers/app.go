package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"

	"sampler/internal/domain"
	"sampler/internal/infra"
	"sampler/internal/infra/credentials"
	"sampler/internal/metrics"
	"sampler/internal/narration"
	"sampler/internal/providers/chat"
	"sampler/internal/providers/music"
	"sampler/internal/providers/search"
	"sampler/pkg/zip"
)

// MusicJobs starts and reads music generation jobs. *jobs.Service implements it.
type MusicJobs interface {
	Start(ctx context.Context, slot string, req music.GenerationRequest) (*domain.MusicJob, error)
	Get(ctx context.Context, jobID string) (*domain.JobSnapshot, error)
}

// TrackArchiver collects the audio of a finished job. *jobs.Archiver implements it.
type TrackArchiver interface {
	Assets(ctx context.Context, jobID string, artifacts []music.Artifact) ([]zip.Asset, error)
}

// JobStats summarises stored jobs. *repo.MusicJobRepositoryPG implements it.
type JobStats interface {
	Stats(ctx context.Context) (domain.MusicJobStats, error)
}

// Searcher answers web-grounded questions. *search.Client implements it.
type Searcher interface {
	Send(ctx context.Context, q search.Query) (*search.Answer, error)
	Stream(ctx context.Context, q search.Query) iter.Seq2[search.Chunk, error]
}

// Chatter answers multimodal prompts. *chat.Client implements it.
type Chatter interface {
	Send(ctx context.Context, p chat.Prompt) (string, error)
	Stream(ctx context.Context, p chat.Prompt) iter.Seq2[string, error]
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type App struct {
	Config      infra.Config
	Logger      *infra.Logger
	Metrics     *metrics.Metrics
	Jobs        MusicJobs
	Archiver    TrackArchiver
	Stats       JobStats
	Searcher    Searcher
	Chatter     Chatter
	Narration   *narration.Sessions
	Credentials *credentials.Store
	Checks      map[string]HealthCheck
}

func NewApp(cfg infra.Config, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{Config: cfg, Logger: logger, Checks: map[string]HealthCheck{}}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": map[string]string{"code": code, "message": message}})
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

const maxJSONBody = 8 << 20
