package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"sampler/internal/domain"
	"sampler/internal/metrics"
)

var (
	// ErrSuperseded is the cancel cause of a loop replaced by a newer job in its slot.
	ErrSuperseded = errors.New("jobs: superseded by a newer job in the same slot")
	// ErrShutdown is the cancel cause used by Runner.Shutdown.
	ErrShutdown = errors.New("jobs: runner shutting down")
)

type slotRun struct {
	jobID   string
	created time.Time
	cancel  context.CancelCauseFunc
	done    chan struct{}
}

// Runner keeps at most one active loop per slot.
type Runner struct {
	base    context.Context
	stop    context.CancelCauseFunc
	metrics *metrics.Metrics

	mu    sync.Mutex
	slots map[string]*slotRun
	wg    sync.WaitGroup
}

// NewRunner returns an idle runner. m may be nil.
func NewRunner(m *metrics.Metrics) *Runner {
	base, stop := context.WithCancelCause(context.Background())
	return &Runner{base: base, stop: stop, metrics: m, slots: map[string]*slotRun{}}
}

// Launch runs fn for jobID in slot. A loop already occupying the slot is
// cancelled with ErrSuperseded and fn starts only after that loop returned.
// A job created before the slot's current owner does not take the slot: fn
// runs at once with a context already cancelled by ErrSuperseded. fn is
// always called, so a loop cancelled before it started still records its
// outcome.
func (r *Runner) Launch(slot, jobID string, created time.Time, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancelCause(r.base)
	run := &slotRun{jobID: jobID, created: created, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	prev := r.slots[slot]
	if prev != nil && domain.JobPrecedes(created, jobID, prev.created, prev.jobID) {
		r.wg.Add(1)
		r.mu.Unlock()
		cancel(ErrSuperseded)
		go func() {
			defer r.wg.Done()
			defer cancel(nil)
			fn(ctx)
		}()
		return
	}
	r.slots[slot] = run
	r.wg.Add(1)
	r.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
	}

	go func() {
		defer r.wg.Done()
		defer close(run.done)
		defer func() {
			r.mu.Lock()
			if r.slots[slot] == run {
				delete(r.slots, slot)
			}
			r.mu.Unlock()
			cancel(nil)
		}()

		if prev != nil {
			<-prev.done
		}
		if ctx.Err() == nil {
			r.metrics.SlotStarted()
			defer r.metrics.SlotStopped()
		}
		fn(ctx)
	}()
}

// CancelSlot cancels the loop in slot when it belongs to a job created before
// the noticed owner. Notices about older or equal jobs are ignored, so a late
// notice never cancels a newer loop. It reports whether a loop was cancelled.
func (r *Runner) CancelSlot(slot, ownerID string, ownerCreated time.Time) bool {
	r.mu.Lock()
	run := r.slots[slot]
	r.mu.Unlock()
	if run == nil || run.jobID == ownerID {
		return false
	}
	if !domain.JobPrecedes(run.created, run.jobID, ownerCreated, ownerID) {
		return false
	}
	run.cancel(ErrSuperseded)
	return true
}

// Active returns the job currently owning slot.
func (r *Runner) Active(slot string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.slots[slot]
	if !ok {
		return "", false
	}
	return run.jobID, true
}

// Shutdown cancels every loop and waits for them to return or ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop(ErrShutdown)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
