package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"sampler/internal/middleware"
	"sampler/internal/narration"
)

const maxFrameBytes = 4 << 20

type narrationSessionRequest struct {
	Locale string `json:"locale"`
}

type frameRequest struct {
	Image string `json:"image"`
}

type frameResponse struct {
	Decision narration.Decision `json:"decision"`
	State    narration.State    `json:"state"`
}

func (a *App) NarrationCreate(w http.ResponseWriter, r *http.Request) {
	var req narrationSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	japanese := strings.HasPrefix(strings.ToLower(locale), middleware.LocaleJapanese)
	id := a.Narration.Create(japanese)
	a.json(w, http.StatusCreated, map[string]any{"session_id": id, "japanese": japanese})
}

// NarrationFrame accepts a JPEG either as the raw body or as base64 JSON.
func (a *App) NarrationFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	frame, ok := a.readFrame(w, r)
	if !ok {
		return
	}
	decision, err := a.Narration.Offer(id, frame)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	state, err := a.Narration.State(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if decision == narration.DecisionSent {
		code = http.StatusAccepted
	}
	a.json(w, code, frameResponse{Decision: decision, State: state})
}

func (a *App) NarrationState(w http.ResponseWriter, r *http.Request) {
	state, err := a.Narration.State(chi.URLParam(r, "session_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, state)
}

func (a *App) NarrationDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Narration.Delete(chi.URLParam(r, "session_id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) readFrame(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, maxFrameBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		data, err := io.ReadAll(body)
		if err != nil || len(data) == 0 {
			a.error(w, http.StatusBadRequest, "invalid_frame", "frame body is empty or too large")
			return nil, false
		}
		return data, true
	}
	var req frameRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return nil, false
	}
	data, err := decodeImage(req.Image)
	if err != nil || len(data) == 0 {
		a.error(w, http.StatusBadRequest, "invalid_frame", "image must be base64 encoded")
		return nil, false
	}
	return data, true
}
