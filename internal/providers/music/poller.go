package music

import (
	"context"
	"iter"
	"time"

	"sampler/internal/infra"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 60
)

// StatusChecker performs a single status query. *Client implements it.
type StatusChecker interface {
	CheckStatus(ctx context.Context, handle JobHandle) (*TaskRecord, error)
}

// PollOptions tunes one poll loop.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// FailureStatuses extends FAILED and ERROR with further terminal failure strings.
	FailureStatuses []string
	// OnStatus is called by Await for every observed status, in fetch order.
	OnStatus func(Status)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Poller drives the query/wait loop for a submitted task.
type Poller struct {
	checker StatusChecker
	logger  *infra.Logger
}

// NewPoller builds a poller over the given checker. A nil logger discards output.
func NewPoller(checker StatusChecker, logger *infra.Logger) *Poller {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Poller{checker: checker, logger: logger}
}

// Statuses returns the lazy sequence of observations for handle. Every range
// over the sequence starts polling from the first attempt.
//
// The sequence ends after a Succeeded status, after a Failed status (yielded
// together with a *JobFailedError), or with a single error: ErrTimeout once
// MaxAttempts queries returned non-terminal statuses, ctx.Err() on
// cancellation, or the query error. No query is issued after ctx is done.
func (p *Poller) Statuses(ctx context.Context, handle JobHandle, opts PollOptions) iter.Seq2[Status, error] {
	opts = opts.withDefaults()
	cls := newClassifier(opts.FailureStatuses)

	return func(yield func(Status, error) bool) {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				yield(Status{}, err)
				return
			}

			record, err := p.checker.CheckStatus(ctx, handle)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(Status{}, err)
				return
			}

			status := Status{
				State:        cls.classify(record.Status),
				Raw:          record.Status,
				Attempt:      attempt,
				ErrorCode:    record.ErrorCode,
				ErrorMessage: record.ErrorMessage,
			}
			p.logger.Debug().
				Str("task_id", string(handle)).
				Int("attempt", attempt).
				Str("status", record.Status).
				Str("state", status.State.String()).
				Msg("music: polled task")

			switch status.State {
			case StateSucceeded:
				if len(record.Artifacts) == 0 {
					yield(Status{}, &InvalidResponseError{Detail: "no audio data"})
					return
				}
				status.Artifacts = record.Artifacts
				yield(status, nil)
				return
			case StateFailed:
				yield(status, &JobFailedError{
					Status:       record.Status,
					ErrorCode:    record.ErrorCode,
					ErrorMessage: record.ErrorMessage,
				})
				return
			}

			if !yield(status, nil) {
				return
			}
			if attempt == opts.MaxAttempts {
				break
			}

			if timer == nil {
				timer = time.NewTimer(opts.Interval)
			} else {
				timer.Reset(opts.Interval)
			}
			select {
			case <-ctx.Done():
				yield(Status{}, ctx.Err())
				return
			case <-timer.C:
			}
		}
		yield(Status{}, ErrTimeout)
	}
}

// Await drains Statuses and returns the artifacts of a successful task.
func (p *Poller) Await(ctx context.Context, handle JobHandle, opts PollOptions) ([]Artifact, error) {
	for status, err := range p.Statuses(ctx, handle, opts) {
		if status.Attempt > 0 && opts.OnStatus != nil {
			opts.OnStatus(status)
		}
		if err != nil {
			return nil, err
		}
		if status.State == StateSucceeded {
			return status.Artifacts, nil
		}
	}
	return nil, ErrTimeout
}
