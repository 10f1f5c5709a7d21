package domain

import (
	"context"
	"time"
)

// MusicJobRepository persists music generation jobs.
type MusicJobRepository interface {
	Create(ctx context.Context, job *MusicJob) error
	MarkSubmitted(ctx context.Context, jobID, taskID string) error
	RecordPoll(ctx context.Context, jobID, providerStatus string, attempt int) error
	// Complete returns ErrJobFinished when the job already reached a terminal state.
	Complete(ctx context.Context, jobID string, state JobState, errMsg *string, resultJSON []byte) error
	GetByID(ctx context.Context, jobID string) (*MusicJob, error)
	// CancelSlot marks every unfinished job in slot created before exceptID
	// (see JobPrecedes) as cancelled.
	CancelSlot(ctx context.Context, slot, exceptID string) ([]string, error)
	// ClaimStale returns an unfinished job untouched for staleAfter, bumping
	// its updated_at so other claimers skip it. ErrNotFound when none.
	ClaimStale(ctx context.Context, staleAfter time.Duration) (*MusicJob, error)
}

// StatusCache keeps the latest snapshot of each job for cheap reads.
type StatusCache interface {
	Put(ctx context.Context, snap JobSnapshot) error
	Get(ctx context.Context, jobID string) (*JobSnapshot, error)
}

// SlotNotice announces that jobID now owns slot. CreatedAt orders notices so
// receivers only give up loops of older jobs.
type SlotNotice struct {
	Slot      string    `json:"slot"`
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SlotBroadcaster fans supersession notices out to every process.
type SlotBroadcaster interface {
	Publish(ctx context.Context, notice SlotNotice) error
	Subscribe(ctx context.Context, handle func(SlotNotice)) error
}
