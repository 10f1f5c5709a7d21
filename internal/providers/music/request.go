package music

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// GenerationRequest is the user's intent for one generation job.
type GenerationRequest struct {
	Prompt       string
	Style        string
	Title        string
	NegativeTags string
	CustomMode   bool
	Instrumental bool
	Model        Model
	VocalGender  VocalGender

	// Optional tuning knobs in the [0, 1] range.
	StyleWeight         *float64
	WeirdnessConstraint *float64
	AudioWeight         *float64
}

// ValidationError reports the first field that breaks the model limits.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("music: invalid %s: %s", e.Field, e.Reason)
}

// Validate applies the per-model limits. In custom mode style and title are
// required and the prompt holds lyrics unless the track is instrumental.
// Otherwise the prompt is a free-form description and is always required.
func (r GenerationRequest) Validate() error {
	model := r.Model
	if model == "" {
		model = DefaultModel
	}
	limits, ok := LimitsFor(model)
	if !ok {
		return &ValidationError{Field: "model", Reason: fmt.Sprintf("unsupported model %q", model)}
	}

	if r.CustomMode {
		if err := checkLength("style", r.Style, limits.MaxStyle); err != nil {
			return err
		}
		if err := checkLength("title", r.Title, limits.MaxTitle); err != nil {
			return err
		}
		if !r.Instrumental {
			if err := checkLength("prompt", r.Prompt, limits.MaxPrompt); err != nil {
				return err
			}
		}
	} else if err := checkLength("prompt", r.Prompt, limits.MaxPrompt); err != nil {
		return err
	}

	weights := []struct {
		name  string
		value *float64
	}{
		{"style_weight", r.StyleWeight},
		{"weirdness_constraint", r.WeirdnessConstraint},
		{"audio_weight", r.AudioWeight},
	}
	for _, w := range weights {
		if w.value != nil && (*w.value < 0 || *w.value > 1) {
			return &ValidationError{Field: w.name, Reason: "must be between 0 and 1"}
		}
	}
	return nil
}

// TextLength counts code points after NFC normalisation.
func TextLength(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

func checkLength(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	if n := TextLength(value); n > max {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%d characters exceeds limit of %d", n, max)}
	}
	return nil
}

type generatePayload struct {
	CustomMode          bool     `json:"customMode"`
	Instrumental        bool     `json:"instrumental"`
	Model               string   `json:"model"`
	CallBackURL         string   `json:"callBackUrl"`
	Prompt              *string  `json:"prompt,omitempty"`
	Style               *string  `json:"style,omitempty"`
	Title               *string  `json:"title,omitempty"`
	NegativeTags        *string  `json:"negativeTags,omitempty"`
	VocalGender         *string  `json:"vocalGender,omitempty"`
	StyleWeight         *float64 `json:"styleWeight,omitempty"`
	WeirdnessConstraint *float64 `json:"weirdnessConstraint,omitempty"`
	AudioWeight         *float64 `json:"audioWeight,omitempty"`
}

func (r GenerationRequest) payload(callbackURL string) generatePayload {
	model := r.Model
	if model == "" {
		model = DefaultModel
	}
	p := generatePayload{
		CustomMode:          r.CustomMode,
		Instrumental:        r.Instrumental,
		Model:               string(model),
		CallBackURL:         callbackURL,
		StyleWeight:         r.StyleWeight,
		WeirdnessConstraint: r.WeirdnessConstraint,
		AudioWeight:         r.AudioWeight,
	}
	if !r.CustomMode || !r.Instrumental {
		p.Prompt = stringPtr(r.Prompt)
	}
	if r.CustomMode {
		p.Style = stringPtr(r.Style)
		p.Title = stringPtr(r.Title)
	}
	if strings.TrimSpace(r.NegativeTags) != "" {
		p.NegativeTags = stringPtr(r.NegativeTags)
	}
	if r.VocalGender != VocalAuto {
		p.VocalGender = stringPtr(string(r.VocalGender))
	}
	return p
}

func stringPtr(s string) *string {
	return &s
}
