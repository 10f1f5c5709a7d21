package music

import (
	"fmt"
	"sort"
	"strings"
)

// Model identifies a generation model accepted by the provider.
type Model string

const (
	ModelV3_5 Model = "V3_5"
	ModelV4   Model = "V4"
	ModelV4_5 Model = "V4_5"
)

// DefaultModel is used when a request leaves the model empty.
const DefaultModel = ModelV3_5

// MaxTitleLength applies to every model.
const MaxTitleLength = 80

// Limits describes the per-model input bounds, counted in code points.
type Limits struct {
	DisplayName string
	MaxPrompt   int
	MaxStyle    int
	MaxTitle    int
}

var modelLimits = map[Model]Limits{
	ModelV3_5: {DisplayName: "V3.5 - Balanced (4 min)", MaxPrompt: 3000, MaxStyle: 200, MaxTitle: MaxTitleLength},
	ModelV4:   {DisplayName: "V4 - High Quality (4 min)", MaxPrompt: 3000, MaxStyle: 200, MaxTitle: MaxTitleLength},
	ModelV4_5: {DisplayName: "V4.5 - Advanced (8 min)", MaxPrompt: 5000, MaxStyle: 1000, MaxTitle: MaxTitleLength},
}

// LimitsFor returns the bounds of the given model.
func LimitsFor(m Model) (Limits, bool) {
	l, ok := modelLimits[m]
	return l, ok
}

// Models lists the supported models in a stable order.
func Models() []Model {
	out := make([]Model, 0, len(modelLimits))
	for m := range modelLimits {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseModel accepts the wire value ("V4_5") or the dotted form ("V4.5").
func ParseModel(raw string) (Model, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultModel, nil
	}
	candidate := Model(strings.ToUpper(strings.ReplaceAll(raw, ".", "_")))
	if _, ok := modelLimits[candidate]; !ok {
		return "", fmt.Errorf("music: unsupported model %q", raw)
	}
	return candidate, nil
}

// VocalGender selects the singing voice. The zero value lets the provider decide.
type VocalGender string

const (
	VocalAuto   VocalGender = ""
	VocalMale   VocalGender = "m"
	VocalFemale VocalGender = "f"
)

// ParseVocalGender maps user input to a VocalGender.
func ParseVocalGender(raw string) (VocalGender, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return VocalAuto, nil
	case "m", "male":
		return VocalMale, nil
	case "f", "female":
		return VocalFemale, nil
	default:
		return "", fmt.Errorf("music: unsupported vocal gender %q", raw)
	}
}

// DisplayName returns the label shown to users.
func (g VocalGender) DisplayName() string {
	switch g {
	case VocalMale:
		return "Male"
	case VocalFemale:
		return "Female"
	default:
		return "Auto"
	}
}
