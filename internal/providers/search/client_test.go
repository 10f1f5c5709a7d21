package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{APIKey: "pplx-test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func userQuery(text string) Query {
	return Query{Messages: []Message{{Role: "user", Content: text}}}
}

func TestSendBuildsRequestAndDecodesAnswer(t *testing.T) {
	var payload map[string]any
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &payload))
		_, _ = io.WriteString(w, `{"citations":["https://a.example","https://b.example"],
			"choices":[{"message":{"role":"assistant","content":"Tokyo is sunny."},"finish_reason":"stop"}]}`)
	})

	q := userQuery("weather in tokyo")
	q.Recency = RecencyDay
	q.Country = "jp"
	q.DomainFilter = []string{"weather.example"}
	answer, err := c.Send(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "Bearer pplx-test", auth)
	assert.Equal(t, "sonar", payload["model"])
	assert.Equal(t, false, payload["stream"])
	assert.InDelta(t, 0.2, payload["temperature"], 1e-9)
	assert.Equal(t, "day", payload["search_recency_filter"])
	assert.Equal(t, []any{"weather.example"}, payload["search_domain_filter"])
	loc := payload["web_search_options"].(map[string]any)["user_location"].(map[string]any)
	assert.Equal(t, "JP", loc["country"])

	assert.Equal(t, "Tokyo is sunny.", answer.Content)
	assert.Equal(t, "stop", answer.FinishReason)
	assert.Len(t, answer.Citations, 2)
}

func TestSendOmitsOptionalFilters(t *testing.T) {
	var payload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})
	answer, err := c.Send(context.Background(), userQuery("hi"))
	require.NoError(t, err)
	assert.Empty(t, answer.Content)
	assert.NotContains(t, payload, "search_recency_filter")
	assert.NotContains(t, payload, "web_search_options")
	assert.NotContains(t, payload, "search_domain_filter")
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
		apiMsg string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrInvalidAPIKey},
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "unknown model", status: http.StatusNotFound, want: ErrModelNotAvailable},
		{name: "string error", status: http.StatusBadRequest, body: `{"error":"bad filter"}`, apiMsg: "bad filter"},
		{name: "object error", status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`, apiMsg: "boom"},
		{name: "raw body", status: http.StatusBadGateway, body: "upstream down", apiMsg: "upstream down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.Send(context.Background(), userQuery("q"))
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.apiMsg, apiErr.Message)
		})
	}
}

func TestMissingKeyAndMessages(t *testing.T) {
	c, err := NewClient(Options{})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), userQuery("q"))
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err = NewClient(Options{APIKey: "k"})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), Query{})
	assert.Error(t, err)
}

func sse(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, strings.Join(lines, "\n")+"\n")
	}
}

func collect(t *testing.T, c *Client) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	for chunk, err := range c.Stream(context.Background(), userQuery("q")) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestStreamAccumulatesContentAndCitations(t *testing.T) {
	c := newTestClient(t, sse(
		": keep-alive",
		`data: {"citations":["https://a.example"],"choices":[{"delta":{"content":"Hel"}}]}`,
		"",
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{"content":"!"},"finish_reason":"stop"}]}`,
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	))
	chunks, err := collect(t, c)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	var text strings.Builder
	for _, ch := range chunks {
		text.WriteString(ch.Content)
		assert.Equal(t, []string{"https://a.example"}, ch.Citations)
	}
	assert.Equal(t, "Hello!", text.String())
	assert.True(t, chunks[2].Done)
	assert.False(t, chunks[0].Done)
}

func TestStreamStopsAtDone(t *testing.T) {
	c := newTestClient(t, sse(
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		"data: [DONE]",
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
	))
	chunks, err := collect(t, c)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].Content)
}

func TestStreamRejectsNonDataLines(t *testing.T) {
	c := newTestClient(t, sse(
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		"event: message",
	))
	chunks, err := collect(t, c)
	assert.ErrorIs(t, err, ErrInvalidStream)
	assert.Len(t, chunks, 1)
}

func TestStreamSurfacesStatusErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := collect(t, c)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestStreamConsumerCanStopEarly(t *testing.T) {
	c := newTestClient(t, sse(
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
	))
	n := 0
	for _, err := range c.Stream(context.Background(), userQuery("q")) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestParseRecency(t *testing.T) {
	r, err := ParseRecency(" Week ")
	require.NoError(t, err)
	assert.Equal(t, RecencyWeek, r)

	r, err = ParseRecency("")
	require.NoError(t, err)
	assert.Equal(t, RecencyNone, r)

	_, err = ParseRecency("year")
	assert.Error(t, err)
}
