package music

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	half := 0.5
	tooHeavy := 1.5
	tests := []struct {
		name  string
		req   GenerationRequest
		field string
	}{
		{name: "simple prompt", req: GenerationRequest{Prompt: "lofi beats"}},
		{name: "simple missing prompt", req: GenerationRequest{Prompt: "   "}, field: "prompt"},
		{name: "simple prompt at v3.5 limit", req: GenerationRequest{Prompt: strings.Repeat("a", 3000)}},
		{name: "simple prompt over v3.5 limit", req: GenerationRequest{Prompt: strings.Repeat("a", 3001)}, field: "prompt"},
		{name: "v4.5 allows longer prompt", req: GenerationRequest{Model: ModelV4_5, Prompt: strings.Repeat("a", 5000)}},
		{name: "custom requires style", req: GenerationRequest{CustomMode: true, Title: "t", Prompt: "p"}, field: "style"},
		{name: "custom requires title", req: GenerationRequest{CustomMode: true, Style: "s", Prompt: "p"}, field: "title"},
		{name: "custom title over limit", req: GenerationRequest{CustomMode: true, Style: "s", Title: strings.Repeat("t", 81), Prompt: "p"}, field: "title"},
		{name: "custom vocal requires lyrics", req: GenerationRequest{CustomMode: true, Style: "s", Title: "t"}, field: "prompt"},
		{name: "custom instrumental needs no lyrics", req: GenerationRequest{CustomMode: true, Instrumental: true, Style: "s", Title: "t"}},
		{name: "style limit v4", req: GenerationRequest{Model: ModelV4, CustomMode: true, Style: strings.Repeat("s", 201), Title: "t", Prompt: "p"}, field: "style"},
		{name: "style limit v4.5", req: GenerationRequest{Model: ModelV4_5, CustomMode: true, Style: strings.Repeat("s", 1000), Title: "t", Prompt: "p"}},
		{name: "unknown model", req: GenerationRequest{Model: "V9", Prompt: "p"}, field: "model"},
		{name: "weight in range", req: GenerationRequest{Prompt: "p", StyleWeight: &half}},
		{name: "weight out of range", req: GenerationRequest{Prompt: "p", AudioWeight: &tooHeavy}, field: "audio_weight"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestTextLengthCountsCodePoints(t *testing.T) {
	assert.Equal(t, 3, TextLength("日本語"))
	// e + combining acute composes to a single code point.
	assert.Equal(t, 1, TextLength("e\u0301"))
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("v4.5")
	require.NoError(t, err)
	assert.Equal(t, ModelV4_5, m)

	m, err = ParseModel("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, m)

	_, err = ParseModel("v2")
	assert.Error(t, err)

	limits, ok := LimitsFor(ModelV4)
	require.True(t, ok)
	assert.Equal(t, "V4 - High Quality (4 min)", limits.DisplayName)
	assert.Equal(t, []Model{ModelV3_5, ModelV4, ModelV4_5}, Models())
}

func TestParseVocalGender(t *testing.T) {
	for raw, want := range map[string]VocalGender{"": VocalAuto, "Male": VocalMale, "f": VocalFemale} {
		got, err := ParseVocalGender(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseVocalGender("robot")
	assert.Error(t, err)
	assert.Equal(t, "Female", VocalFemale.DisplayName())
	assert.Equal(t, "Auto", VocalAuto.DisplayName())
}
