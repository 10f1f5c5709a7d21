package domain

import (
	"encoding/json"
	"time"
)

// JobState enumerates the lifecycle of a music generation job.
type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateSubmitted JobState = "SUBMITTED"
	JobStatePolling   JobState = "POLLING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateTimedOut  JobState = "TIMED_OUT"
	JobStateCancelled JobState = "CANCELLED"
)

// Terminal reports whether the job can no longer change.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateTimedOut, JobStateCancelled:
		return true
	default:
		return false
	}
}

// MusicJob is one generation request bound to a UI slot.
type MusicJob struct {
	ID             string
	Slot           string
	TaskID         string
	State          JobState
	ProviderStatus string
	Attempts       int
	RequestJSON    []byte
	ResultJSON     []byte
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobPrecedes reports whether job a was created before job b. Equal creation
// times fall back to the id so every node orders two jobs the same way.
func JobPrecedes(aCreated time.Time, aID string, bCreated time.Time, bID string) bool {
	if !aCreated.Equal(bCreated) {
		return aCreated.Before(bCreated)
	}
	return aID < bID
}

// JobSnapshot is the cached, client-facing view of a job.
type JobSnapshot struct {
	ID             string          `json:"job_id"`
	Slot           string          `json:"slot"`
	State          JobState        `json:"state"`
	ProviderStatus string          `json:"provider_status,omitempty"`
	Attempts       int             `json:"attempts"`
	TaskID         string          `json:"task_id,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Snapshot converts the job to its cached view.
func (j *MusicJob) Snapshot() JobSnapshot {
	return JobSnapshot{
		ID:             j.ID,
		Slot:           j.Slot,
		State:          j.State,
		ProviderStatus: j.ProviderStatus,
		Attempts:       j.Attempts,
		TaskID:         j.TaskID,
		Result:         j.ResultJSON,
		Error:          j.ErrorMessage,
		UpdatedAt:      j.UpdatedAt,
	}
}

// MusicJobStats summarises the job table.
type MusicJobStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
	Cancelled int64 `json:"cancelled"`
	Last24h   int64 `json:"last_24h"`
}
