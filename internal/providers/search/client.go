package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"sampler/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("search: api key is required")
	// ErrInvalidAPIKey is returned for HTTP 401.
	ErrInvalidAPIKey = errors.New("search: invalid api key")
	// ErrRateLimited is returned for HTTP 429.
	ErrRateLimited = errors.New("search: rate limit exceeded")
	// ErrModelNotAvailable is returned for HTTP 404.
	ErrModelNotAvailable = errors.New("search: model not available")
	// ErrInvalidStream is returned for a stream line that is not server-sent data.
	ErrInvalidStream = errors.New("search: invalid stream format")
)

// APIError carries any other non-2xx answer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search: api error (%d): %s", e.StatusCode, e.Message)
}

// Model names an online search model.
type Model string

const (
	ModelSonar             Model = "sonar"
	ModelSonarPro          Model = "sonar-pro"
	ModelSonarReasoning    Model = "sonar-reasoning"
	ModelSonarReasoningPro Model = "sonar-reasoning-pro"
)

// Models lists the accepted models with their display names.
var Models = map[Model]string{
	ModelSonar:             "Sonar",
	ModelSonarPro:          "Sonar Pro",
	ModelSonarReasoning:    "Sonar Reasoning",
	ModelSonarReasoningPro: "Sonar Reasoning Pro",
}

// Recency restricts results to a time window. The zero value disables the filter.
type Recency string

const (
	RecencyNone  Recency = ""
	RecencyHour  Recency = "hour"
	RecencyDay   Recency = "day"
	RecencyWeek  Recency = "week"
	RecencyMonth Recency = "month"
)

// ParseRecency validates a recency filter.
func ParseRecency(raw string) (Recency, error) {
	switch r := Recency(strings.ToLower(strings.TrimSpace(raw))); r {
	case RecencyNone, RecencyHour, RecencyDay, RecencyWeek, RecencyMonth:
		return r, nil
	default:
		return "", fmt.Errorf("search: unsupported recency %q", raw)
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query describes one search request.
type Query struct {
	Messages     []Message
	Model        Model
	Temperature  *float64
	MaxTokens    int
	Recency      Recency
	DomainFilter []string
	// Country is an ISO 3166 alpha-2 code used to localise results.
	Country string
}

// Answer is a complete, non-streamed result.
type Answer struct {
	Content      string
	Citations    []string
	FinishReason string
}

// Chunk is one streamed increment. Citations holds the latest full list.
type Chunk struct {
	Content   string
	Citations []string
	Done      bool
}

// Options configures the search client.
type Options struct {
	APIKey             string
	BaseURL            string
	Model              Model
	DefaultTemperature float64
	DomainFilter       []string
	HTTPClient         *http.Client
	Logger             *infra.Logger
	RequestTimeout     time.Duration
}

// Client talks to an OpenAI-style chat completions endpoint with web search.
type Client struct {
	apiKey       string
	endpoint     string
	model        Model
	temperature  float64
	domainFilter []string
	httpClient   *http.Client
	logger       *infra.Logger
}

type chatRequest struct {
	Model                  string         `json:"model"`
	Messages               []Message      `json:"messages"`
	Stream                 bool           `json:"stream"`
	Temperature            float64        `json:"temperature"`
	MaxTokens              int            `json:"max_tokens,omitempty"`
	TopP                   float64        `json:"top_p"`
	TopK                   int            `json:"top_k"`
	PresencePenalty        float64        `json:"presence_penalty"`
	FrequencyPenalty       float64        `json:"frequency_penalty"`
	SearchDomainFilter     []string       `json:"search_domain_filter,omitempty"`
	ReturnImages           bool           `json:"return_images"`
	ReturnRelatedQuestions bool           `json:"return_related_questions"`
	SearchRecencyFilter    string         `json:"search_recency_filter,omitempty"`
	WebSearchOptions       *webSearchOpts `json:"web_search_options,omitempty"`
}

type webSearchOpts struct {
	UserLocation struct {
		Country string `json:"country"`
	} `json:"user_location"`
}

type chatResponse struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

type streamResponse struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	model := opts.Model
	if model == "" {
		model = ModelSonar
	}
	temperature := opts.DefaultTemperature
	if temperature <= 0 {
		temperature = 0.2
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		endpoint:     baseURL + "/chat/completions",
		model:        model,
		temperature:  temperature,
		domainFilter: opts.DomainFilter,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Send performs a non-streamed search.
func (c *Client) Send(ctx context.Context, q Query) (*Answer, error) {
	resp, err := c.post(ctx, q, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	answer := &Answer{Citations: decoded.Citations}
	if len(decoded.Choices) > 0 {
		answer.Content = decoded.Choices[0].Message.Content
		answer.FinishReason = decoded.Choices[0].FinishReason
	}
	c.logger.Debug().
		Str("model", string(c.modelFor(q))).
		Int("citations", len(answer.Citations)).
		Msg("search: answered")
	return answer, nil
}

// Stream performs a streamed search. The sequence ends after a chunk with
// Done set, at "[DONE]", or with a single error.
func (c *Client) Stream(ctx context.Context, q Query) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		resp, err := c.post(ctx, q, true)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		defer resp.Body.Close()

		var citations []string
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				yield(Chunk{}, fmt.Errorf("%w: %q", ErrInvalidStream, truncate(line, 64)))
				return
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}
			var event streamResponse
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				yield(Chunk{}, fmt.Errorf("search: decode stream event: %w", err))
				return
			}
			if event.Citations != nil {
				citations = event.Citations
			}
			chunk := Chunk{Citations: citations}
			if len(event.Choices) > 0 {
				chunk.Content = event.Choices[0].Delta.Content
				if reason := event.Choices[0].FinishReason; reason != nil && *reason != "" {
					chunk.Done = true
					c.logger.Debug().Str("finish_reason", *reason).Msg("search: stream finished")
				}
			}
			if chunk.Content == "" && !chunk.Done && event.Citations == nil {
				continue
			}
			if !yield(chunk, nil) || chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			yield(Chunk{}, fmt.Errorf("search: read stream: %w", err))
		}
	}
}

func (c *Client) modelFor(q Query) Model {
	if q.Model != "" {
		return q.Model
	}
	return c.model
}

func (c *Client) post(ctx context.Context, q Query, stream bool) (*http.Response, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if len(q.Messages) == 0 {
		return nil, errors.New("search: at least one message is required")
	}
	temperature := c.temperature
	if q.Temperature != nil {
		temperature = *q.Temperature
	}
	domains := q.DomainFilter
	if len(domains) == 0 {
		domains = c.domainFilter
	}
	payload := chatRequest{
		Model:               string(c.modelFor(q)),
		Messages:            q.Messages,
		Stream:              stream,
		Temperature:         temperature,
		MaxTokens:           q.MaxTokens,
		TopP:                0.9,
		FrequencyPenalty:    1,
		SearchDomainFilter:  domains,
		SearchRecencyFilter: string(q.Recency),
	}
	if country := strings.ToUpper(strings.TrimSpace(q.Country)); len(country) == 2 {
		payload.WebSearchOptions = &webSearchOpts{}
		payload.WebSearchOptions.UserLocation.Country = country
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("search: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: http request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, statusError(resp.StatusCode, raw)
	}
	return resp, nil
}

func statusError(code int, raw []byte) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrModelNotAvailable
	}
	return &APIError{StatusCode: code, Message: errorMessage(raw)}
}

// errorMessage extracts {"error": "..."} or {"error": {"message": "..."}}.
func errorMessage(raw []byte) string {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "unknown error"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
