package music

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts the generate and record-info endpoints.
type fakeProvider struct {
	mu           sync.Mutex
	submitStatus int
	submitBody   string
	records      []string
	statusCalls  int
	lastPayload  map[string]any
	lastAuth     string
	lastTaskID   string
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAuth = r.Header.Get("Authorization")
	switch r.URL.Path {
	case "/api/v1/generate":
		raw, _ := io.ReadAll(r.Body)
		f.lastPayload = map[string]any{}
		_ = json.Unmarshal(raw, &f.lastPayload)
		status := f.submitStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		body := f.submitBody
		if body == "" {
			body = `{"code":200,"msg":"success","data":{"taskId":"abc123"}}`
		}
		_, _ = io.WriteString(w, body)
	case "/api/v1/generate/record-info":
		f.lastTaskID = r.URL.Query().Get("taskId")
		idx := f.statusCalls
		f.statusCalls++
		if idx >= len(f.records) {
			idx = len(f.records) - 1
		}
		_, _ = io.WriteString(w, f.records[idx])
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func newTestClient(t *testing.T, fake *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return client
}

func recordJSON(status string, entries string) string {
	if entries == "" {
		return `{"code":200,"msg":"success","data":{"taskId":"abc123","status":"` + status + `","response":null}}`
	}
	return `{"code":200,"msg":"success","data":{"taskId":"abc123","status":"` + status + `","response":{"sunoData":` + entries + `}}}`
}

func TestSubmitSendsPayload(t *testing.T) {
	fake := &fakeProvider{}
	client := newTestClient(t, fake)

	handle, err := client.Submit(t.Context(), GenerationRequest{
		Prompt:       "[Verse] hello",
		Style:        "lofi",
		Title:        "Night",
		CustomMode:   true,
		Instrumental: true,
		Model:        ModelV4_5,
		VocalGender:  VocalFemale,
	})
	require.NoError(t, err)
	assert.Equal(t, JobHandle("abc123"), handle)
	assert.Equal(t, "Bearer test-key", fake.lastAuth)

	p := fake.lastPayload
	assert.Equal(t, true, p["customMode"])
	assert.Equal(t, true, p["instrumental"])
	assert.Equal(t, "V4_5", p["model"])
	assert.Equal(t, "lofi", p["style"])
	assert.Equal(t, "Night", p["title"])
	assert.Equal(t, "f", p["vocalGender"])
	assert.Equal(t, "https://example.com/callback", p["callBackUrl"])
	assert.NotContains(t, p, "prompt", "instrumental custom requests omit the prompt")
	assert.NotContains(t, p, "negativeTags")
}

func TestSubmitNonCustomOmitsStyleAndTitle(t *testing.T) {
	fake := &fakeProvider{}
	client := newTestClient(t, fake)

	_, err := client.Submit(t.Context(), GenerationRequest{
		Prompt:       "a calm piano piece",
		Style:        "ignored",
		Title:        "ignored",
		NegativeTags: "metal",
	})
	require.NoError(t, err)
	p := fake.lastPayload
	assert.Equal(t, "a calm piano piece", p["prompt"])
	assert.Equal(t, "V3_5", p["model"])
	assert.Equal(t, "metal", p["negativeTags"])
	assert.NotContains(t, p, "style")
	assert.NotContains(t, p, "title")
	assert.NotContains(t, p, "vocalGender")
}

func TestSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"msg":"bad key"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
			},
		},
		{
			name:   "http error keeps raw body",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				assert.Equal(t, "upstream down", apiErr.Message)
			},
		},
		{
			name: "envelope code",
			body: `{"code":429,"msg":"insufficient credits","data":null}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, 429, apiErr.StatusCode)
				assert.Equal(t, "insufficient credits", apiErr.Message)
			},
		},
		{
			name: "missing task id",
			body: `{"code":200,"msg":"success","data":{}}`,
			check: func(t *testing.T, err error) {
				var invalid *InvalidResponseError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, "no task id in response", invalid.Detail)
			},
		},
		{
			name: "undecodable body",
			body: `<html>`,
			check: func(t *testing.T, err error) {
				var invalid *InvalidResponseError
				require.ErrorAs(t, err, &invalid)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeProvider{submitStatus: tc.status, submitBody: tc.body}
			client := newTestClient(t, fake)
			_, err := client.Submit(t.Context(), GenerationRequest{Prompt: "x"})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestSubmitNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client, err := NewClient(Options{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Submit(t.Context(), GenerationRequest{Prompt: "x"})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestNewClientRejectsInvalidBaseURL(t *testing.T) {
	_, err := NewClient(Options{APIKey: "k", BaseURL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestSubmitWithoutKey(t *testing.T) {
	client, err := NewClient(Options{})
	require.NoError(t, err)
	_, err = client.Submit(t.Context(), GenerationRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCheckStatusDecodesEntries(t *testing.T) {
	fake := &fakeProvider{records: []string{recordJSON("SUCCESS", `[
		{"id":"a","audioUrl":"https://cdn/a.mp3","title":"A","tags":"pop","duration":125.4,"streamAudioUrl":"https://cdn/a.m3u8"},
		{"id":"b","audioUrl":null,"title":"B"},
		{"id":"c","audioUrl":"https://cdn/c.mp3"}
	]`)}}
	client := newTestClient(t, fake)

	record, err := client.CheckStatus(t.Context(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", fake.lastTaskID)
	assert.Equal(t, "SUCCESS", record.Status)
	require.Len(t, record.Artifacts, 2)
	assert.Equal(t, Artifact{ID: "a", URL: "https://cdn/a.mp3", StreamURL: "https://cdn/a.m3u8", Title: "A", Tags: "pop", Duration: 125.4}, record.Artifacts[0])
	assert.Equal(t, Artifact{ID: "c", URL: "https://cdn/c.mp3", Title: "Untitled"}, record.Artifacts[1])
}

func TestCheckStatusAcceptsAudioDataKey(t *testing.T) {
	body := `{"code":200,"msg":"success","data":{"taskId":"abc123","status":"SUCCESS","response":{"audioData":[{"id":"x","audioUrl":"https://cdn/x.mp3"}]},"errorCode":null}}`
	fake := &fakeProvider{records: []string{body}}
	client := newTestClient(t, fake)

	record, err := client.CheckStatus(t.Context(), "abc123")
	require.NoError(t, err)
	require.Len(t, record.Artifacts, 1)
	assert.Equal(t, "x", record.Artifacts[0].ID)
}

func TestCheckStatusMissingData(t *testing.T) {
	fake := &fakeProvider{records: []string{`{"code":200,"msg":"success","data":null}`}}
	client := newTestClient(t, fake)

	_, err := client.CheckStatus(t.Context(), "abc123")
	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	assert.True(t, strings.Contains(invalid.Error(), "missing data"))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{0: "0:00", 5.9: "0:05", 65: "1:05", 125.4: "2:05", 3600: "60:00", -3: "0:00"}
	for in, want := range cases {
		assert.Equal(t, want, FormatDuration(in), "FormatDuration(%v)", in)
	}
}
