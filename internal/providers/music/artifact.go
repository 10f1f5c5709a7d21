package music

import "fmt"

// JobHandle is the provider task identifier returned by Submit.
type JobHandle string

// Artifact is one generated track.
type Artifact struct {
	ID             string  `json:"id"`
	URL            string  `json:"url"`
	StreamURL      string  `json:"stream_url,omitempty"`
	ImageURL       string  `json:"image_url,omitempty"`
	Title          string  `json:"title"`
	Tags           string  `json:"tags"`
	Duration       float64 `json:"duration"`
	ModelName      string  `json:"model_name,omitempty"`
	GeneratedLyric string  `json:"prompt,omitempty"`
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
