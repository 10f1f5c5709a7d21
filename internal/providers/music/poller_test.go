package music

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChecker struct {
	mu      sync.Mutex
	records []*TaskRecord
	errs    []error
	calls   int
	onCall  func(n int)
}

func (s *scriptedChecker) CheckStatus(ctx context.Context, handle JobHandle) (*TaskRecord, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(idx + 1)
	}
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx >= len(s.records) {
		idx = len(s.records) - 1
	}
	return s.records[idx], nil
}

func (s *scriptedChecker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastOptions() PollOptions {
	return PollOptions{Interval: time.Millisecond, MaxAttempts: 5}
}

func TestAwaitPendingThenSuccess(t *testing.T) {
	fake := &fakeProvider{records: []string{
		recordJSON("PENDING", ""),
		recordJSON("SUCCESS", `[{"id":"1","audioUrl":"u1","title":"T","tags":"x","duration":125}]`),
	}}
	client := newTestClient(t, fake)

	var seen []Status
	opts := fastOptions()
	opts.OnStatus = func(s Status) { seen = append(seen, s) }

	artifacts, err := client.GenerateAndWait(t.Context(), GenerationRequest{Prompt: "song"}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls())
	assert.Equal(t, "abc123", fake.lastTaskID)
	require.Equal(t, []Artifact{{ID: "1", URL: "u1", Title: "T", Tags: "x", Duration: 125}}, artifacts)
	assert.Equal(t, "2:05", FormatDuration(artifacts[0].Duration))

	require.Len(t, seen, 2)
	assert.Equal(t, StatePending, seen[0].State)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, StateSucceeded, seen[1].State)
	assert.Equal(t, 2, seen[1].Attempt)
}

func TestGenerateUnauthorizedIssuesNoStatusQuery(t *testing.T) {
	fake := &fakeProvider{submitStatus: 401, records: []string{recordJSON("PENDING", "")}}
	client := newTestClient(t, fake)

	_, err := client.GenerateAndWait(t.Context(), GenerationRequest{Prompt: "song"}, fastOptions())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, fake.calls())
}

func TestAwaitPreservesOrderAndDropsMissingURLs(t *testing.T) {
	checker := &scriptedChecker{records: []*TaskRecord{{
		Status: "success",
		Artifacts: []Artifact{
			{ID: "b", URL: "ub", Title: "B"},
			{ID: "a", URL: "ua", Title: "A"},
		},
	}}}
	artifacts, err := NewPoller(checker, nil).Await(t.Context(), "h", fastOptions())
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "b", artifacts[0].ID)
	assert.Equal(t, "a", artifacts[1].ID)
}

func TestAwaitEmptySuccessIsInvalidResponse(t *testing.T) {
	checker := &scriptedChecker{records: []*TaskRecord{{Status: "SUCCESS"}}}
	_, err := NewPoller(checker, nil).Await(t.Context(), "h", fastOptions())

	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "no audio data", invalid.Detail)
	assert.Equal(t, 1, checker.count())
}

func TestAwaitFailureStopsImmediately(t *testing.T) {
	for _, raw := range []string{"FAILED", "failed", "Error", "ERROR"} {
		t.Run(raw, func(t *testing.T) {
			checker := &scriptedChecker{records: []*TaskRecord{
				{Status: "PROCESSING"},
				{Status: raw, ErrorMessage: "content rejected"},
				{Status: "SUCCESS", Artifacts: []Artifact{{ID: "late", URL: "u"}}},
			}}
			_, err := NewPoller(checker, nil).Await(t.Context(), "h", fastOptions())

			var failed *JobFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, raw, failed.Status)
			assert.Equal(t, "content rejected", failed.ErrorMessage)
			assert.Equal(t, 2, checker.count())
		})
	}
}

func TestAwaitConfiguredFailureStatus(t *testing.T) {
	checker := &scriptedChecker{records: []*TaskRecord{{Status: "SENSITIVE_WORD_ERROR"}}}

	opts := fastOptions()
	_, err := NewPoller(checker, nil).Await(t.Context(), "h", opts)
	assert.ErrorIs(t, err, ErrTimeout, "unknown statuses are non-terminal by default")

	checker = &scriptedChecker{records: []*TaskRecord{{Status: "SENSITIVE_WORD_ERROR"}}}
	opts.FailureStatuses = []string{"sensitive_word_error"}
	_, err = NewPoller(checker, nil).Await(t.Context(), "h", opts)
	var failed *JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 1, checker.count())
}

func TestAwaitTimesOutAfterExactlyMaxAttempts(t *testing.T) {
	checker := &scriptedChecker{records: []*TaskRecord{{Status: "TEXT_SUCCESS"}}}
	opts := PollOptions{Interval: time.Millisecond, MaxAttempts: 3}

	var seen int
	opts.OnStatus = func(s Status) {
		seen++
		assert.Equal(t, StateProcessing, s.State)
	}
	_, err := NewPoller(checker, nil).Await(t.Context(), "h", opts)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, checker.count())
	assert.Equal(t, 3, seen)
}

func TestAwaitCancelDuringWaitStopsQuerying(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	checker := &scriptedChecker{records: []*TaskRecord{{Status: "PENDING"}}}
	opts := PollOptions{Interval: time.Hour, MaxAttempts: 10}
	opts.OnStatus = func(Status) { cancel() }

	done := make(chan error, 1)
	go func() {
		_, err := NewPoller(checker, nil).Await(ctx, "h", opts)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("await did not return after cancel")
	}
	assert.Equal(t, 1, checker.count())
}

func TestAwaitCancelledBeforeStartIssuesNoQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	checker := &scriptedChecker{records: []*TaskRecord{{Status: "PENDING"}}}

	_, err := NewPoller(checker, nil).Await(ctx, "h", fastOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, checker.count())
}

func TestAwaitQueryErrorIsTerminal(t *testing.T) {
	boom := &APIError{StatusCode: 500, Message: "boom"}
	checker := &scriptedChecker{
		records: []*TaskRecord{{Status: "PENDING"}},
		errs:    []error{nil, boom},
	}
	_, err := NewPoller(checker, nil).Await(t.Context(), "h", fastOptions())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 2, checker.count())
}

func TestStatusesIsRestartable(t *testing.T) {
	checker := &scriptedChecker{records: []*TaskRecord{{Status: "PENDING"}}}
	seq := NewPoller(checker, nil).Statuses(t.Context(), "h", fastOptions())

	for range 2 {
		for status, err := range seq {
			require.NoError(t, err)
			assert.Equal(t, 1, status.Attempt)
			break
		}
	}
	assert.Equal(t, 2, checker.count())
}

func TestStatusesStopsWhenConsumerStops(t *testing.T) {
	checker := &scriptedChecker{records: []*TaskRecord{{Status: "PENDING"}}}
	seq := NewPoller(checker, nil).Statuses(t.Context(), "h", PollOptions{Interval: time.Hour})
	for _, err := range seq {
		require.False(t, errors.Is(err, ErrTimeout))
		break
	}
	assert.Equal(t, 1, checker.count())
}

func TestClassifier(t *testing.T) {
	c := newClassifier(nil)
	cases := map[string]State{
		"SUCCESS":        StateSucceeded,
		"success":        StateSucceeded,
		"FAILED":         StateFailed,
		"error":          StateFailed,
		"PENDING":        StatePending,
		"TEXT_SUCCESS":   StateProcessing,
		"FIRST_SUCCESS":  StateProcessing,
		"something-else": StateProcessing,
	}
	for raw, want := range cases {
		assert.Equal(t, want, c.classify(raw), raw)
	}
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePending.Terminal())
}
