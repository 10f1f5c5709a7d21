package jobs

import "sampler/internal/providers/music"

// requestRecord is the stored form of a GenerationRequest.
type requestRecord struct {
	Prompt              string   `json:"prompt,omitempty"`
	Style               string   `json:"style,omitempty"`
	Title               string   `json:"title,omitempty"`
	NegativeTags        string   `json:"negative_tags,omitempty"`
	CustomMode          bool     `json:"custom_mode"`
	Instrumental        bool     `json:"instrumental"`
	Model               string   `json:"model"`
	VocalGender         string   `json:"vocal_gender,omitempty"`
	StyleWeight         *float64 `json:"style_weight,omitempty"`
	WeirdnessConstraint *float64 `json:"weirdness_constraint,omitempty"`
	AudioWeight         *float64 `json:"audio_weight,omitempty"`
}

func recordFromRequest(req music.GenerationRequest) requestRecord {
	model := req.Model
	if model == "" {
		model = music.DefaultModel
	}
	return requestRecord{
		Prompt:              req.Prompt,
		Style:               req.Style,
		Title:               req.Title,
		NegativeTags:        req.NegativeTags,
		CustomMode:          req.CustomMode,
		Instrumental:        req.Instrumental,
		Model:               string(model),
		VocalGender:         string(req.VocalGender),
		StyleWeight:         req.StyleWeight,
		WeirdnessConstraint: req.WeirdnessConstraint,
		AudioWeight:         req.AudioWeight,
	}
}

func (r requestRecord) toRequest() music.GenerationRequest {
	return music.GenerationRequest{
		Prompt:              r.Prompt,
		Style:               r.Style,
		Title:               r.Title,
		NegativeTags:        r.NegativeTags,
		CustomMode:          r.CustomMode,
		Instrumental:        r.Instrumental,
		Model:               music.Model(r.Model),
		VocalGender:         music.VocalGender(r.VocalGender),
		StyleWeight:         r.StyleWeight,
		WeirdnessConstraint: r.WeirdnessConstraint,
		AudioWeight:         r.AudioWeight,
	}
}
