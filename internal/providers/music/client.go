package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sampler/internal/infra"
)

const (
	defaultBaseURL     = "https://api.sunoapi.org"
	defaultCallbackURL = "https://example.com/callback"

	generatePath   = "/api/v1/generate"
	recordInfoPath = "/api/v1/generate/record-info"

	envelopeOK = 200
)

// Options configures the music generation client.
type Options struct {
	APIKey         string
	BaseURL        string
	CallbackURL    string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits generation jobs and queries their status.
type Client struct {
	apiKey      string
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	logger      *infra.Logger
}

// TaskRecord is the decoded answer of one status query.
type TaskRecord struct {
	TaskID       string
	Status       string
	Artifacts    []Artifact
	ErrorCode    string
	ErrorMessage string
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type submitData struct {
	TaskID string `json:"taskId"`
}

type recordData struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Response *struct {
		AudioData []audioEntry `json:"audioData"`
		SunoData  []audioEntry `json:"sunoData"`
	} `json:"response"`
	ErrorCode    json.RawMessage `json:"errorCode"`
	ErrorMessage *string         `json:"errorMessage"`
}

type audioEntry struct {
	ID             string   `json:"id"`
	AudioURL       *string  `json:"audioUrl"`
	StreamAudioURL string   `json:"streamAudioUrl"`
	ImageURL       string   `json:"imageUrl"`
	Title          *string  `json:"title"`
	Tags           *string  `json:"tags"`
	Duration       *float64 `json:"duration"`
	ModelName      string   `json:"modelName"`
	Prompt         string   `json:"prompt"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidURL, opts.BaseURL)
	}
	callbackURL := strings.TrimSpace(opts.CallbackURL)
	if callbackURL == "" {
		callbackURL = defaultCallbackURL
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		callbackURL: callbackURL,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit sends the request and returns the provider task identifier.
// The request is not validated here; callers run Validate first.
func (c *Client) Submit(ctx context.Context, req GenerationRequest) (JobHandle, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	body, err := json.Marshal(req.payload(c.callbackURL))
	if err != nil {
		return "", fmt.Errorf("music: encode request: %w", err)
	}
	endpoint, err := c.endpoint(generatePath, nil)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var data submitData
	if err := c.do(httpReq, &data); err != nil {
		return "", err
	}
	taskID := strings.TrimSpace(data.TaskID)
	if taskID == "" {
		return "", &InvalidResponseError{Detail: "no task id in response"}
	}
	c.logger.Debug().
		Str("task_id", taskID).
		Str("model", string(req.Model)).
		Bool("custom_mode", req.CustomMode).
		Msg("music: submitted generation")
	return JobHandle(taskID), nil
}

// CheckStatus performs a single status query for the task.
func (c *Client) CheckStatus(ctx context.Context, handle JobHandle) (*TaskRecord, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	endpoint, err := c.endpoint(recordInfoPath, url.Values{"taskId": {string(handle)}})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	var data recordData
	if err := c.do(httpReq, &data); err != nil {
		return nil, err
	}
	record := &TaskRecord{
		TaskID:    data.TaskID,
		Status:    data.Status,
		ErrorCode: rawScalar(data.ErrorCode),
	}
	if data.ErrorMessage != nil {
		record.ErrorMessage = *data.ErrorMessage
	}
	if data.Response != nil {
		entries := data.Response.SunoData
		if len(entries) == 0 {
			entries = data.Response.AudioData
		}
		record.Artifacts = artifactsFrom(entries)
	}
	return record, nil
}

// GenerateAndWait submits the request and polls until a terminal outcome.
func (c *Client) GenerateAndWait(ctx context.Context, req GenerationRequest, opts PollOptions) ([]Artifact, error) {
	handle, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewPoller(c, c.logger).Await(ctx, handle, opts)
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// do executes the request, maps HTTP and envelope failures and decodes data into out.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidCredentials
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &InvalidResponseError{Detail: "decode envelope", Err: err}
	}
	if env.Code != envelopeOK {
		return &APIError{StatusCode: env.Code, Message: env.Msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &InvalidResponseError{Detail: "missing data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &InvalidResponseError{Detail: "decode data", Err: err}
	}
	return nil
}

// artifactsFrom keeps provider order and drops entries without an audio URL.
func artifactsFrom(entries []audioEntry) []Artifact {
	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if e.AudioURL == nil || strings.TrimSpace(*e.AudioURL) == "" {
			continue
		}
		a := Artifact{
			ID:             e.ID,
			URL:            *e.AudioURL,
			StreamURL:      e.StreamAudioURL,
			ImageURL:       e.ImageURL,
			Title:          "Untitled",
			ModelName:      e.ModelName,
			GeneratedLyric: e.Prompt,
		}
		if e.Title != nil {
			a.Title = *e.Title
		}
		if e.Tags != nil {
			a.Tags = *e.Tags
		}
		if e.Duration != nil {
			a.Duration = *e.Duration
		}
		out = append(out, a)
	}
	return out
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
