package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sampler/internal/domain"
	"sampler/internal/jobs"
	"sampler/internal/providers/music"
	"sampler/pkg/zip"
)

type musicGenerateRequest struct {
	Slot                string   `json:"slot"`
	Prompt              string   `json:"prompt"`
	Style               string   `json:"style"`
	Title               string   `json:"title"`
	NegativeTags        string   `json:"negative_tags"`
	CustomMode          bool     `json:"custom_mode"`
	Instrumental        bool     `json:"instrumental"`
	Model               string   `json:"model"`
	VocalGender         string   `json:"vocal_gender"`
	StyleWeight         *float64 `json:"style_weight"`
	WeirdnessConstraint *float64 `json:"weirdness_constraint"`
	AudioWeight         *float64 `json:"audio_weight"`
}

type musicJobAccepted struct {
	JobID string          `json:"job_id"`
	Slot  string          `json:"slot"`
	State domain.JobState `json:"state"`
}

type trackResponse struct {
	music.Artifact
	DurationText string `json:"duration_text"`
}

type musicJobResponse struct {
	JobID          string          `json:"job_id"`
	Slot           string          `json:"slot"`
	State          domain.JobState `json:"state"`
	ProviderStatus string          `json:"provider_status,omitempty"`
	Attempts       int             `json:"attempts"`
	TaskID         string          `json:"task_id,omitempty"`
	Error          string          `json:"error,omitempty"`
	Tracks         []trackResponse `json:"tracks,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type modelResponse struct {
	ID          music.Model `json:"id"`
	DisplayName string      `json:"display_name"`
	MaxPrompt   int         `json:"max_prompt"`
	MaxStyle    int         `json:"max_style"`
	MaxTitle    int         `json:"max_title"`
	Default     bool        `json:"default"`
}

func (a *App) MusicGenerate(w http.ResponseWriter, r *http.Request) {
	var req musicGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	model, err := music.ParseModel(req.Model)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_model", err.Error())
		return
	}
	gender, err := music.ParseVocalGender(req.VocalGender)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_vocal_gender", err.Error())
		return
	}
	slot := strings.TrimSpace(req.Slot)
	if slot == "" {
		slot = strings.TrimSpace(r.Header.Get("X-Slot"))
	}
	job, err := a.Jobs.Start(r.Context(), slot, music.GenerationRequest{
		Prompt:              req.Prompt,
		Style:               req.Style,
		Title:               req.Title,
		NegativeTags:        req.NegativeTags,
		CustomMode:          req.CustomMode,
		Instrumental:        req.Instrumental,
		Model:               model,
		VocalGender:         gender,
		StyleWeight:         req.StyleWeight,
		WeirdnessConstraint: req.WeirdnessConstraint,
		AudioWeight:         req.AudioWeight,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, musicJobAccepted{JobID: job.ID, Slot: job.Slot, State: job.State})
}

func (a *App) MusicJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.loadSnapshot(w, r)
	if !ok {
		return
	}
	artifacts, err := jobs.Artifacts(snap)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := musicJobResponse{
		JobID:          snap.ID,
		Slot:           snap.Slot,
		State:          snap.State,
		ProviderStatus: snap.ProviderStatus,
		Attempts:       snap.Attempts,
		TaskID:         snap.TaskID,
		Error:          snap.Error,
		UpdatedAt:      snap.UpdatedAt,
	}
	for _, art := range artifacts {
		resp.Tracks = append(resp.Tracks, trackResponse{Artifact: art, DurationText: music.FormatDuration(art.Duration)})
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) MusicArchive(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.loadSnapshot(w, r)
	if !ok {
		return
	}
	if snap.State != domain.JobStateSucceeded {
		a.error(w, http.StatusConflict, "not_ready", fmt.Sprintf("job is %s", snap.State))
		return
	}
	artifacts, err := jobs.Artifacts(snap)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets, err := a.Archiver.Assets(r.Context(), snap.ID, artifacts)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", snap.ID).Msg("http: archive failed")
		a.error(w, http.StatusBadGateway, "archive_failed", "failed to download tracks")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=music-%s.zip", snap.ID))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", snap.ID).Msg("http: archive write interrupted")
	}
}

func (a *App) MusicModels(w http.ResponseWriter, r *http.Request) {
	var items []modelResponse
	for _, m := range music.Models() {
		l, _ := music.LimitsFor(m)
		items = append(items, modelResponse{
			ID:          m,
			DisplayName: l.DisplayName,
			MaxPrompt:   l.MaxPrompt,
			MaxStyle:    l.MaxStyle,
			MaxTitle:    l.MaxTitle,
			Default:     m == music.DefaultModel,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) loadSnapshot(w http.ResponseWriter, r *http.Request) (*domain.JobSnapshot, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	if _, err := uuid.Parse(jobID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	snap, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return snap, true
}
