package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sampler/internal/domain"
	"sampler/internal/infra"
	"sampler/internal/metrics"
	"sampler/internal/providers/music"
)

// DefaultSlot is used when a caller does not name a slot.
const DefaultSlot = "default"

const persistTimeout = 10 * time.Second

// Generator submits jobs and answers status queries. *music.Client implements it.
type Generator interface {
	Submit(ctx context.Context, req music.GenerationRequest) (music.JobHandle, error)
	music.StatusChecker
}

// Options configures a Service.
type Options struct {
	Poll    music.PollOptions
	Logger  *infra.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service owns the lifecycle of music generation jobs.
type Service struct {
	gen         Generator
	poller      *music.Poller
	repo        domain.MusicJobRepository
	cache       domain.StatusCache
	broadcaster domain.SlotBroadcaster
	runner      *Runner
	poll        music.PollOptions
	logger      *infra.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Result is the persisted payload of a successful job.
type Result struct {
	Artifacts []music.Artifact `json:"artifacts"`
}

// NewService wires the job lifecycle. broadcaster may be nil for a single process.
func NewService(gen Generator, repo domain.MusicJobRepository, cache domain.StatusCache, broadcaster domain.SlotBroadcaster, runner *Runner, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		gen:         gen,
		poller:      music.NewPoller(gen, logger),
		repo:        repo,
		cache:       cache,
		broadcaster: broadcaster,
		runner:      runner,
		poll:        opts.Poll,
		logger:      logger,
		metrics:     opts.Metrics,
		now:         now,
	}
}

// Start records a new job for slot, supersedes older jobs in that slot and
// launches submit and poll in the background.
func (s *Service) Start(ctx context.Context, slot string, req music.GenerationRequest) (*domain.MusicJob, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	slot = strings.TrimSpace(slot)
	if slot == "" {
		slot = DefaultSlot
	}
	raw, err := json.Marshal(recordFromRequest(req))
	if err != nil {
		return nil, fmt.Errorf("jobs: encode request: %w", err)
	}
	job := &domain.MusicJob{
		ID:          uuid.NewString(),
		Slot:        slot,
		State:       domain.JobStateQueued,
		RequestJSON: raw,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	cancelled, err := s.repo.CancelSlot(ctx, slot, job.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("slot", slot).Msg("jobs: cancel previous jobs failed")
	}
	for _, id := range cancelled {
		s.putSnapshot(ctx, domain.JobSnapshot{
			ID:        id,
			Slot:      slot,
			State:     domain.JobStateCancelled,
			Error:     ErrSuperseded.Error(),
			UpdatedAt: s.now(),
		})
	}

	s.putSnapshot(ctx, job.Snapshot())
	s.launch(*job, req)

	if s.broadcaster != nil {
		if err := s.broadcaster.Publish(ctx, domain.SlotNotice{Slot: slot, JobID: job.ID, CreatedAt: job.CreatedAt}); err != nil {
			s.logger.Warn().Err(err).Str("slot", slot).Msg("jobs: publish slot notice failed")
		}
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("slot", slot).
		Int("superseded", len(cancelled)).
		Msg("jobs: started")
	return job, nil
}

// Resume restarts polling from the first attempt for a job left unfinished by
// a stopped process. A job without a task id is submitted again.
func (s *Service) Resume(ctx context.Context, job *domain.MusicJob) error {
	if job == nil || job.State.Terminal() {
		return nil
	}
	if owner, busy := s.runner.Active(job.Slot); busy && owner != job.ID {
		msg := ErrSuperseded.Error()
		if err := s.repo.Complete(ctx, job.ID, domain.JobStateCancelled, &msg, nil); err != nil && !errors.Is(err, domain.ErrJobFinished) {
			return err
		}
		job.State = domain.JobStateCancelled
		job.ErrorMessage = msg
		s.putSnapshot(ctx, job.Snapshot())
		return nil
	}
	var rec requestRecord
	if err := json.Unmarshal(job.RequestJSON, &rec); err != nil {
		msg := "stored request is unreadable"
		if cerr := s.repo.Complete(ctx, job.ID, domain.JobStateFailed, &msg, nil); cerr != nil && !errors.Is(cerr, domain.ErrJobFinished) {
			return cerr
		}
		return fmt.Errorf("jobs: decode stored request: %w", err)
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("slot", job.Slot).
		Str("task_id", job.TaskID).
		Msg("jobs: resuming")
	s.launch(*job, rec.toRequest())
	return nil
}

// HandleNotice cancels the local loop of a slot claimed by a newer job
// elsewhere. Notices arriving after a newer local start are ignored.
func (s *Service) HandleNotice(n domain.SlotNotice) {
	if s.runner.CancelSlot(n.Slot, n.JobID, n.CreatedAt) {
		s.logger.Info().Str("slot", n.Slot).Str("owner", n.JobID).Msg("jobs: slot taken over")
	}
}

// Get returns the latest snapshot, preferring the cache.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	if snap, err := s.cache.Get(ctx, jobID); err == nil {
		return snap, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: cache read failed")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	snap := job.Snapshot()
	s.putSnapshot(ctx, snap)
	return &snap, nil
}

// Artifacts decodes the tracks of a finished snapshot.
func Artifacts(snap *domain.JobSnapshot) ([]music.Artifact, error) {
	if snap == nil || len(snap.Result) == 0 {
		return nil, nil
	}
	var res Result
	if err := json.Unmarshal(snap.Result, &res); err != nil {
		return nil, fmt.Errorf("jobs: decode result: %w", err)
	}
	return res.Artifacts, nil
}

func (s *Service) launch(job domain.MusicJob, req music.GenerationRequest) {
	s.runner.Launch(job.Slot, job.ID, job.CreatedAt, func(ctx context.Context) {
		s.execute(ctx, &job, req)
	})
}

func (s *Service) execute(ctx context.Context, job *domain.MusicJob, req music.GenerationRequest) {
	started := s.now()
	logger := s.logger.With().Str("job_id", job.ID).Str("slot", job.Slot).Logger()

	if err := ctx.Err(); err != nil {
		s.finish(ctx, job, err, nil, started)
		return
	}

	handle := music.JobHandle(job.TaskID)
	if handle == "" {
		h, err := s.gen.Submit(ctx, req)
		s.metrics.MusicSubmitted(err == nil)
		if err != nil {
			s.finish(ctx, job, err, nil, started)
			return
		}
		handle = h
		job.TaskID = string(h)
		job.State = domain.JobStateSubmitted
		job.UpdatedAt = s.now()
		if err := s.repo.MarkSubmitted(ctx, job.ID, job.TaskID); err != nil {
			logger.Warn().Err(err).Msg("jobs: persist task id failed")
		}
		s.putSnapshot(ctx, job.Snapshot())
		logger.Debug().Str("task_id", job.TaskID).Msg("jobs: submitted")
	}

	for status, err := range s.poller.Statuses(ctx, handle, s.poll) {
		if status.Attempt > 0 {
			s.metrics.MusicPolled(status.State.String())
			job.ProviderStatus = status.Raw
			job.Attempts = status.Attempt
			job.State = domain.JobStatePolling
			job.UpdatedAt = s.now()
			if perr := s.repo.RecordPoll(ctx, job.ID, status.Raw, status.Attempt); perr != nil && ctx.Err() == nil {
				logger.Warn().Err(perr).Msg("jobs: persist poll failed")
			}
			if !status.State.Terminal() {
				s.putSnapshot(ctx, job.Snapshot())
			}
		}
		if err != nil {
			s.finish(ctx, job, err, nil, started)
			return
		}
		if status.State == music.StateSucceeded {
			s.finish(ctx, job, nil, status.Artifacts, started)
			return
		}
	}
}

func (s *Service) finish(ctx context.Context, job *domain.MusicJob, err error, artifacts []music.Artifact, started time.Time) {
	logger := s.logger.With().Str("job_id", job.ID).Str("slot", job.Slot).Logger()
	state, msg := outcome(ctx, err)
	if state == "" {
		logger.Info().Msg("jobs: stopped by shutdown, left for resume")
		return
	}

	var result []byte
	if len(artifacts) > 0 {
		raw, merr := json.Marshal(Result{Artifacts: artifacts})
		if merr != nil {
			state, msg = domain.JobStateFailed, fmt.Sprintf("encode result: %v", merr)
		} else {
			result = raw
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}
	if err := s.repo.Complete(writeCtx, job.ID, state, msgPtr, result); errors.Is(err, domain.ErrJobFinished) {
		s.adoptStored(writeCtx, job, state)
		return
	} else if err != nil {
		logger.Error().Err(err).Str("state", string(state)).Msg("jobs: persist outcome failed")
	}
	job.State = state
	job.ErrorMessage = msg
	job.ResultJSON = result
	job.UpdatedAt = s.now()
	s.putSnapshot(writeCtx, job.Snapshot())
	s.metrics.MusicFinished(string(state), s.now().Sub(started))

	event := logger.Info()
	if state != domain.JobStateSucceeded {
		event = logger.Warn().Err(err)
	}
	event.Str("state", string(state)).Int("tracks", len(artifacts)).Msg("jobs: finished")
}

// adoptStored caches the repository's view of a job that another writer
// already finished, so the cache never reports an outcome the store rejected.
func (s *Service) adoptStored(ctx context.Context, job *domain.MusicJob, rejected domain.JobState) {
	logger := s.logger.With().Str("job_id", job.ID).Str("slot", job.Slot).Logger()
	stored, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("jobs: reload finished job failed")
		return
	}
	s.putSnapshot(ctx, stored.Snapshot())
	logger.Info().
		Str("state", string(stored.State)).
		Str("rejected", string(rejected)).
		Msg("jobs: already finished elsewhere")
}

// outcome maps a loop result to a terminal state. An empty state means the
// process is shutting down and the job must stay resumable.
func outcome(ctx context.Context, err error) (domain.JobState, string) {
	switch {
	case err == nil:
		return domain.JobStateSucceeded, ""
	case ctx.Err() != nil:
		if errors.Is(context.Cause(ctx), ErrSuperseded) {
			return domain.JobStateCancelled, ErrSuperseded.Error()
		}
		return "", ""
	case errors.Is(err, music.ErrTimeout):
		return domain.JobStateTimedOut, err.Error()
	default:
		return domain.JobStateFailed, err.Error()
	}
}

func (s *Service) putSnapshot(ctx context.Context, snap domain.JobSnapshot) {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = s.now()
	}
	if err := s.cache.Put(ctx, snap); err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Str("job_id", snap.ID).Msg("jobs: cache write failed")
	}
}
