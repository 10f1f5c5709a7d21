package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenAI struct {
	status int
	body   string
	events []string
	last   openai.ChatCompletionRequest
	auth   string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	f.auth = r.Header.Get("Authorization")
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &f.last)
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
		return
	}
	if f.last.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range f.events {
			_, _ = io.WriteString(w, "data: "+ev+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, f.body)
}

func newTestClient(t *testing.T, f *fakeOpenAI) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return c
}

func TestSendTextPrompt(t *testing.T) {
	f := &fakeOpenAI{body: `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"},"finish_reason":"stop"}]}`}
	c := newTestClient(t, f)

	out, err := c.Send(context.Background(), Prompt{Text: "hi", System: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, "Bearer sk-test", f.auth)
	assert.Equal(t, openai.GPT4o, f.last.Model)
	require.Len(t, f.last.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, f.last.Messages[0].Role)
	assert.Equal(t, "hi", f.last.Messages[1].Content)
}

func TestSendImagesAsDataURLs(t *testing.T) {
	f := &fakeOpenAI{body: `{"choices":[{"message":{"role":"assistant","content":"a cat"}}]}`}
	c := newTestClient(t, f)

	_, err := c.Send(context.Background(), Prompt{
		Text:      "what is this?",
		Images:    [][]byte{[]byte("jpeg-1")},
		ImageURLs: []string{"https://img.example/cat.jpg"},
		Detail:    DetailLow,
		MaxTokens: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, 80, f.last.MaxTokens)
	require.Len(t, f.last.Messages, 1)
	parts := f.last.Messages[0].MultiContent
	require.Len(t, parts, 3)
	assert.Equal(t, openai.ChatMessagePartTypeText, parts[0].Type)
	assert.Equal(t, DataURL([]byte("jpeg-1")), parts[1].ImageURL.URL)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,"))
	assert.Equal(t, openai.ImageURLDetailLow, parts[1].ImageURL.Detail)
	assert.Equal(t, "https://img.example/cat.jpg", parts[2].ImageURL.URL)
}

func TestStreamYieldsDeltas(t *testing.T) {
	f := &fakeOpenAI{events: []string{
		`{"choices":[{"index":0,"delta":{"content":"A "}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"dog"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}}
	c := newTestClient(t, f)

	var got []string
	for delta, err := range c.Stream(context.Background(), Prompt{Text: "describe"}) {
		require.NoError(t, err)
		got = append(got, delta)
	}
	assert.Equal(t, []string{"A ", "dog"}, got)
	assert.True(t, f.last.Stream)
}

func TestUnauthorizedMapsToInvalidKey(t *testing.T) {
	f := &fakeOpenAI{
		status: http.StatusUnauthorized,
		body:   `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
	}
	c := newTestClient(t, f)

	_, err := c.Send(context.Background(), Prompt{Text: "hi"})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	for _, err := range c.Stream(context.Background(), Prompt{Text: "hi"}) {
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	}
}

func TestOtherAPIErrorsAreWrapped(t *testing.T) {
	f := &fakeOpenAI{
		status: http.StatusInternalServerError,
		body:   `{"error":{"message":"overloaded","type":"server_error"}}`,
	}
	c := newTestClient(t, f)
	_, err := c.Send(context.Background(), Prompt{Text: "hi"})
	require.Error(t, err)
	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.HTTPStatusCode)
}

func TestRequestValidation(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), Prompt{Text: "hi"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err = NewClient(Options{APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), Prompt{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestParseDetail(t *testing.T) {
	d, err := ParseDetail("")
	require.NoError(t, err)
	assert.Equal(t, DetailAuto, d)
	d, err = ParseDetail("HIGH")
	require.NoError(t, err)
	assert.Equal(t, DetailHigh, d)
	_, err = ParseDetail("ultra")
	assert.Error(t, err)
}
