package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"sampler/internal/providers/chat"
)

const maxChatImages = 8

type chatRequest struct {
	Text      string   `json:"text"`
	System    string   `json:"system"`
	Images    []string `json:"images"`
	ImageURLs []string `json:"image_urls"`
	Detail    string   `json:"detail"`
	MaxTokens int      `json:"max_tokens"`
	Stream    bool     `json:"stream"`
}

func (a *App) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Images)+len(req.ImageURLs) > maxChatImages {
		a.error(w, http.StatusBadRequest, "too_many_images", "at most 8 images per prompt")
		return
	}
	detail, err := chat.ParseDetail(req.Detail)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_detail", err.Error())
		return
	}
	prompt := chat.Prompt{
		Text:      req.Text,
		System:    req.System,
		ImageURLs: req.ImageURLs,
		Detail:    detail,
		MaxTokens: req.MaxTokens,
	}
	for _, img := range req.Images {
		data, err := decodeImage(img)
		if err != nil {
			a.error(w, http.StatusBadRequest, "invalid_image", "images must be base64 encoded")
			return
		}
		prompt.Images = append(prompt.Images, data)
	}

	if !req.Stream {
		reply, err := a.Chatter.Send(r.Context(), prompt)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.json(w, http.StatusOK, map[string]string{"content": reply})
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	for delta, err := range a.Chatter.Stream(r.Context(), prompt) {
		if err != nil {
			if !sse.started {
				a.fail(w, r, err)
				return
			}
			_ = sse.event("error", map[string]string{"message": err.Error()})
			return
		}
		if werr := sse.data(map[string]string{"delta": delta}); werr != nil {
			return
		}
	}
	sse.done()
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx >= 0 {
			s = s[idx+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
