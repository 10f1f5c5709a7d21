package handlers

import (
	"net/http"
	"strings"

	"sampler/internal/middleware"
	"sampler/internal/providers/search"
)

type searchRequest struct {
	Query       string           `json:"query"`
	Messages    []search.Message `json:"messages"`
	Model       string           `json:"model"`
	Recency     string           `json:"recency"`
	Domains     []string         `json:"domains"`
	Temperature *float64         `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Country     string           `json:"country"`
	Stream      bool             `json:"stream"`
}

type searchResponse struct {
	Content      string   `json:"content"`
	Citations    []string `json:"citations"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

type searchChunk struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
	Done      bool     `json:"done"`
}

func (a *App) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !a.decode(w, r, &req) {
		return
	}
	q, ok := a.searchQuery(w, r, req)
	if !ok {
		return
	}
	if req.Stream {
		a.searchStream(w, r, q)
		return
	}
	answer, err := a.Searcher.Send(r.Context(), q)
	a.Metrics.SearchServed("send", err == nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	citations := answer.Citations
	if citations == nil {
		citations = []string{}
	}
	a.json(w, http.StatusOK, searchResponse{Content: answer.Content, Citations: citations, FinishReason: answer.FinishReason})
}

func (a *App) searchStream(w http.ResponseWriter, r *http.Request, q search.Query) {
	sse, ok := newSSEWriter(w)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	for chunk, err := range a.Searcher.Stream(r.Context(), q) {
		if err != nil {
			a.Metrics.SearchServed("stream", false)
			if !sse.started {
				a.fail(w, r, err)
				return
			}
			_ = sse.event("error", map[string]string{"message": err.Error()})
			return
		}
		if werr := sse.data(searchChunk{Content: chunk.Content, Citations: chunk.Citations, Done: chunk.Done}); werr != nil {
			return
		}
	}
	a.Metrics.SearchServed("stream", true)
	sse.done()
}

func (a *App) searchQuery(w http.ResponseWriter, r *http.Request, req searchRequest) (search.Query, bool) {
	msgs := req.Messages
	if text := strings.TrimSpace(req.Query); text != "" {
		msgs = append(msgs, search.Message{Role: "user", Content: text})
	}
	if len(msgs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "query or messages required")
		return search.Query{}, false
	}
	for _, m := range msgs {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "unsupported message role "+m.Role)
			return search.Query{}, false
		}
	}
	model := search.Model(strings.TrimSpace(req.Model))
	if model != "" {
		if _, ok := search.Models[model]; !ok {
			a.error(w, http.StatusBadRequest, "invalid_model", "unsupported model")
			return search.Query{}, false
		}
	}
	recency, err := search.ParseRecency(req.Recency)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_recency", err.Error())
		return search.Query{}, false
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature >= 2) {
		a.error(w, http.StatusBadRequest, "invalid_temperature", "temperature must be in [0, 2)")
		return search.Query{}, false
	}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = middleware.CountryFromContext(r.Context())
	}
	return search.Query{
		Messages:     msgs,
		Model:        model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Recency:      recency,
		DomainFilter: req.Domains,
		Country:      country,
	}, true
}
