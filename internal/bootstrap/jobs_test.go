package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sampler/internal/domain"
	"sampler/internal/infra"
	"sampler/internal/jobs"
)

type flakyBroadcaster struct {
	calls atomic.Int32
}

func (b *flakyBroadcaster) Publish(ctx context.Context, n domain.SlotNotice) error { return nil }

func (b *flakyBroadcaster) Subscribe(ctx context.Context, handle func(domain.SlotNotice)) error {
	b.calls.Add(1)
	return errors.New("connection reset")
}

func TestSubscribeStopsWithContext(t *testing.T) {
	b := &flakyBroadcaster{}
	st := &Stack{Broadcaster: b, Service: &jobs.Service{}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- st.Subscribe(ctx, infra.NopLogger()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancellation")
	}
	if b.calls.Load() != 1 {
		t.Fatalf("expected one subscribe attempt, got %d", b.calls.Load())
	}
}

func TestChecksSkipMissingRedis(t *testing.T) {
	st := &Stack{}
	checks := st.Checks()
	if _, ok := checks["redis"]; ok {
		t.Fatal("redis check registered without a client")
	}
	if _, ok := checks["postgres"]; !ok {
		t.Fatal("postgres check missing")
	}
}
