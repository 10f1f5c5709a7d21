package narration

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"sampler/internal/infra"
	"sampler/internal/metrics"
	"sampler/internal/providers/chat"
)

const (
	DefaultProcessInterval    = 500 * time.Millisecond
	DefaultAccumulateInterval = time.Second
	DefaultMaxFrames          = 2
	DefaultMaxTokens          = 80
)

// Decision reports what Offer did with a frame.
type Decision string

const (
	DecisionDropped     Decision = "dropped"
	DecisionAccumulated Decision = "accumulated"
	DecisionSent        Decision = "sent"
)

// Streamer streams a reply to a multimodal prompt. *chat.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, p chat.Prompt) iter.Seq2[string, error]
}

// Options tunes a Narrator. Zero values take the defaults.
type Options struct {
	ProcessInterval    time.Duration
	AccumulateInterval time.Duration
	MaxFrames          int
	MaxTokens          int
	Japanese           bool
	Now                func() time.Time
	Logger             *infra.Logger
	Metrics            *metrics.Metrics
}

// State is a point-in-time view of a narrator.
type State struct {
	Text      string    `json:"text"`
	Previous  string    `json:"previous,omitempty"`
	Sending   bool      `json:"sending"`
	Pending   int       `json:"pending_frames"`
	Japanese  bool      `json:"japanese"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Narrator turns a stream of camera frames into a running narration. At most
// one narration request is in flight; frames arriving meanwhile are sampled
// and sent with the next request.
type Narrator struct {
	client  Streamer
	opts    Options
	logger  *infra.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	lastProcessed   time.Time
	lastAccumulated time.Time
	frames          [][]byte
	sending         bool
	resetText       bool
	text            string
	previous        string
	hasPrevious     bool
	updatedAt       time.Time
	closed          bool
}

// NewNarrator returns a narrator that streams through client.
func NewNarrator(client Streamer, opts Options) *Narrator {
	if opts.ProcessInterval <= 0 {
		opts.ProcessInterval = DefaultProcessInterval
	}
	if opts.AccumulateInterval <= 0 {
		opts.AccumulateInterval = DefaultAccumulateInterval
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Narrator{
		client:    client,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		updatedAt: opts.Now(),
	}
}

// Offer hands a JPEG frame to the narrator.
func (n *Narrator) Offer(frame []byte) Decision {
	decision := n.offer(frame)
	n.metrics.NarrationFrame(string(decision))
	return decision
}

func (n *Narrator) offer(frame []byte) Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || len(frame) == 0 {
		return DecisionDropped
	}

	now := n.opts.Now()
	if !n.lastProcessed.IsZero() && now.Sub(n.lastProcessed) < n.opts.ProcessInterval {
		return DecisionDropped
	}
	n.lastProcessed = now

	if n.sending {
		if !n.lastAccumulated.IsZero() && now.Sub(n.lastAccumulated) < n.opts.AccumulateInterval {
			return DecisionDropped
		}
		n.frames = append(n.frames, frame)
		n.lastAccumulated = now
		return DecisionAccumulated
	}

	n.frames = append(n.frames, frame)
	batch := n.frames
	if len(batch) > n.opts.MaxFrames {
		batch = batch[len(batch)-n.opts.MaxFrames:]
	}
	n.frames = nil
	n.sending = true

	prompt := chat.Prompt{
		Text:      narrationPrompt(n.previousLocked(), n.opts.Japanese),
		Images:    batch,
		Detail:    chat.DetailLow,
		MaxTokens: n.opts.MaxTokens,
	}
	n.wg.Add(1)
	go n.narrate(prompt)
	return DecisionSent
}

func (n *Narrator) previousLocked() *string {
	if !n.hasPrevious {
		return nil
	}
	prev := n.previous
	return &prev
}

func (n *Narrator) narrate(prompt chat.Prompt) {
	defer n.wg.Done()
	started := n.opts.Now()

	for delta, err := range n.client.Stream(n.ctx, prompt) {
		if err != nil {
			n.fail(err)
			return
		}
		n.mu.Lock()
		if n.resetText {
			n.text = delta
			n.resetText = false
		} else {
			n.text += delta
		}
		n.updatedAt = n.opts.Now()
		n.mu.Unlock()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ctx.Err() != nil {
		n.sending = false
		return
	}
	n.previous = n.text
	n.hasPrevious = true
	n.sending = false
	n.resetText = true
	n.updatedAt = n.opts.Now()
	n.logger.Debug().
		Int("images", len(prompt.Images)).
		Dur("elapsed", n.opts.Now().Sub(started)).
		Str("text", n.text).
		Msg("narration: completed")
}

func (n *Narrator) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sending = false
	if n.ctx.Err() != nil {
		return
	}
	n.text = err.Error()
	n.resetText = true
	n.updatedAt = n.opts.Now()
	n.logger.Warn().Err(err).Msg("narration: request failed")
}

// Text returns the narration currently shown.
func (n *Narrator) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text
}

// State returns a snapshot of the narrator.
func (n *Narrator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return State{
		Text:      n.text,
		Previous:  n.previous,
		Sending:   n.sending,
		Pending:   len(n.frames),
		Japanese:  n.opts.Japanese,
		UpdatedAt: n.updatedAt,
	}
}

// Close cancels the in-flight request and waits for it to return.
func (n *Narrator) Close() {
	n.mu.Lock()
	n.closed = true
	n.frames = nil
	n.mu.Unlock()
	n.cancel()
	n.wg.Wait()
}

func narrationPrompt(previous *string, japanese bool) string {
	if japanese {
		prev := "なし"
		if previous != nil {
			prev = *previous
		}
		return fmt.Sprintf(`これは動画の連続したフレームです。
前のフレームの内容を踏まえて、動画の流れに沿ったナレーションを80文字以内でつけてください。
- 前のフレームの説明: %s
- 前のフレームと同じ状況の描写は省略し、変わった部分について描写してください。
- 文字があれば読んでください。読めなければ描写不要です。
- 「現在のフレームでは」といった接頭辞は省略してください。`, prev)
	}
	prev := "None"
	if previous != nil {
		prev = *previous
	}
	return fmt.Sprintf(`This is a sequence of video frames.
Please add a narration in 20 words that follow the flow of the video, considering the content of the previous frame.
- Description of the previous frame: %s
- Omit descriptions of unchanged situations from the previous frame, and describe only what has changed.
- If there are any texts, please read them. If not readable, no description is needed.
- Omit prefixes like "In the current frame".`, prev)
}
