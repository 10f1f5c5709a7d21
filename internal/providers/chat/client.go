package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"sampler/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("chat: api key is required")
	// ErrInvalidAPIKey is returned when the provider rejects the credentials.
	ErrInvalidAPIKey = errors.New("chat: invalid api key")
	// ErrEmptyPrompt is returned for a prompt without text or images.
	ErrEmptyPrompt = errors.New("chat: prompt is empty")
)

// Detail selects the resolution at which images are analysed.
type Detail string

const (
	DetailAuto Detail = "auto"
	DetailLow  Detail = "low"
	DetailHigh Detail = "high"
)

// ParseDetail validates an image detail value. Empty means auto.
func ParseDetail(raw string) (Detail, error) {
	switch d := Detail(strings.ToLower(strings.TrimSpace(raw))); d {
	case "":
		return DetailAuto, nil
	case DetailAuto, DetailLow, DetailHigh:
		return d, nil
	default:
		return "", fmt.Errorf("chat: unsupported detail %q", raw)
	}
}

// Prompt is a single user turn with optional images.
type Prompt struct {
	Text string
	// Images are JPEG encoded frames or photos.
	Images    [][]byte
	ImageURLs []string
	System    string
	Detail    Detail
	MaxTokens int
}

// Options configures the chat client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client sends multimodal prompts to an OpenAI compatible endpoint.
type Client struct {
	api    *openai.Client
	model  string
	hasKey bool
	logger *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	cfg := openai.DefaultConfig(key)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.GPT4o
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		model:  model,
		hasKey: key != "",
		logger: logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.hasKey
}

// Send returns the full reply to p.
func (c *Client) Send(ctx context.Context, p Prompt) (string, error) {
	req, err := c.request(p)
	if err != nil {
		return "", err
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	c.logger.Debug().
		Str("model", c.model).
		Int("images", len(p.Images)+len(p.ImageURLs)).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat: answered")
	return resp.Choices[0].Message.Content, nil
}

// Stream yields reply deltas until the provider finishes. A failure ends the
// sequence with a single error.
func (c *Client) Stream(ctx context.Context, p Prompt) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := c.request(p)
		if err != nil {
			yield("", err)
			return
		}
		req.Stream = true
		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", mapError(err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", mapError(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(choice.Delta.Content, nil) {
					return
				}
			}
			if choice.FinishReason != "" {
				c.logger.Debug().Str("finish_reason", string(choice.FinishReason)).Msg("chat: stream finished")
				return
			}
		}
	}
}

func (c *Client) request(p Prompt) (openai.ChatCompletionRequest, error) {
	if !c.hasKey {
		return openai.ChatCompletionRequest{}, ErrMissingAPIKey
	}
	if strings.TrimSpace(p.Text) == "" && len(p.Images) == 0 && len(p.ImageURLs) == 0 {
		return openai.ChatCompletionRequest{}, ErrEmptyPrompt
	}
	return openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  buildMessages(p),
		MaxTokens: p.MaxTokens,
	}, nil
}

func buildMessages(p Prompt) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if system := strings.TrimSpace(p.System); system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	if len(p.Images) == 0 && len(p.ImageURLs) == 0 {
		return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Text})
	}

	detail := p.Detail
	if detail == "" {
		detail = DetailAuto
	}
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: p.Text}}
	for _, img := range p.Images {
		parts = append(parts, imagePart(DataURL(img), detail))
	}
	for _, u := range p.ImageURLs {
		parts = append(parts, imagePart(u, detail))
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
}

func imagePart(url string, detail Detail) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    url,
			Detail: openai.ImageURLDetail(detail),
		},
	}
}

// DataURL embeds a JPEG image as a data URL.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
		return ErrInvalidAPIKey
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized {
		return ErrInvalidAPIKey
	}
	return fmt.Errorf("chat: completion: %w", err)
}
