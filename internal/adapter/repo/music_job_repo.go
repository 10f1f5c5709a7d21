package repo

import (
	"context"
	"fmt"
	"time"

	"sampler/internal/domain"
	"sampler/internal/infra"
	"sampler/internal/sqlinline"
)

// MusicJobRepositoryPG implements domain.MusicJobRepository.
type MusicJobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewMusicJobRepository creates a repository over marked inline queries.
func NewMusicJobRepository(sql infra.SQLExecutor) *MusicJobRepositoryPG {
	return &MusicJobRepositoryPG{sql: sql}
}

// Create inserts a new job record and fills its timestamps.
func (r *MusicJobRepositoryPG) Create(ctx context.Context, job *domain.MusicJob) error {
	if job.State == "" {
		job.State = domain.JobStateQueued
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertMusicJob, job.ID, job.Slot, string(job.State), job.RequestJSON)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("repo: insert music job: %w", err)
	}
	return nil
}

// MarkSubmitted stores the provider task id.
func (r *MusicJobRepositoryPG) MarkSubmitted(ctx context.Context, jobID, taskID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QMarkMusicJobSubmitted, jobID, taskID); err != nil {
		return fmt.Errorf("repo: mark submitted: %w", err)
	}
	return nil
}

// RecordPoll stores the latest provider status and attempt number.
func (r *MusicJobRepositoryPG) RecordPoll(ctx context.Context, jobID, providerStatus string, attempt int) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QRecordMusicJobPoll, jobID, providerStatus, attempt); err != nil {
		return fmt.Errorf("repo: record poll: %w", err)
	}
	return nil
}

// Complete moves an unfinished job into a terminal state. It returns
// domain.ErrJobFinished when no unfinished row matched.
func (r *MusicJobRepositoryPG) Complete(ctx context.Context, jobID string, state domain.JobState, errMsg *string, resultJSON []byte) error {
	if !state.Terminal() {
		return fmt.Errorf("repo: complete with non-terminal state %q", state)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteMusicJob, jobID, string(state), errMsg, nullableBytes(resultJSON))
	if err != nil {
		return fmt.Errorf("repo: complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobFinished
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *MusicJobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.MusicJob, error) {
	job, err := scanMusicJob(r.sql.QueryRow(ctx, sqlinline.QSelectMusicJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: get music job: %w", err)
	}
	return job, nil
}

// CancelSlot cancels unfinished jobs of slot other than exceptID and returns their ids.
func (r *MusicJobRepositoryPG) CancelSlot(ctx context.Context, slot, exceptID string) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCancelMusicSlot, slot, exceptID)
	if err != nil {
		return nil, fmt.Errorf("repo: cancel slot: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo: scan cancelled id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimStale claims the oldest unfinished job nobody touched for staleAfter.
func (r *MusicJobRepositoryPG) ClaimStale(ctx context.Context, staleAfter time.Duration) (*domain.MusicJob, error) {
	job, err := scanMusicJob(r.sql.QueryRow(ctx, sqlinline.QClaimStaleMusicJob, staleAfter.Seconds()))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: claim stale job: %w", err)
	}
	return job, nil
}

// Stats counts jobs by outcome.
func (r *MusicJobRepositoryPG) Stats(ctx context.Context) (domain.MusicJobStats, error) {
	var st domain.MusicJobStats
	err := r.sql.QueryRow(ctx, sqlinline.QMusicJobStats).Scan(
		&st.Total, &st.Active, &st.Succeeded, &st.Failed, &st.TimedOut, &st.Cancelled, &st.Last24h,
	)
	if err != nil {
		return domain.MusicJobStats{}, fmt.Errorf("repo: music job stats: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMusicJob(row rowScanner) (*domain.MusicJob, error) {
	var (
		job   domain.MusicJob
		state string
	)
	if err := row.Scan(
		&job.ID,
		&job.Slot,
		&job.TaskID,
		&state,
		&job.ProviderStatus,
		&job.Attempts,
		&job.RequestJSON,
		&job.ResultJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.State = domain.JobState(state)
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
