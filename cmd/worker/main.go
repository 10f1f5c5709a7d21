package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sampler/internal/bootstrap"
	"sampler/internal/domain"
	"sampler/internal/infra"
	"sampler/internal/jobs"
	"sampler/internal/metrics"
)

// maxClaimsPerTick bounds how many stale jobs one tick resumes.
const maxClaimsPerTick = 20

type jobWorker struct {
	repo       domain.MusicJobRepository
	service    *jobs.Service
	logger     infra.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func main() {
	infra.LoadDotEnv()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.NewStack(ctx, cfg, &logger, metrics.New())
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to initialise job stack")
	}
	defer stack.Close()

	worker := &jobWorker{
		repo:       stack.Repo,
		service:    stack.Service,
		logger:     logger,
		interval:   cfg.WorkerClaimInterval,
		staleAfter: cfg.WorkerStaleAfter,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return stack.Subscribe(gctx, &logger) })
	g.Go(func() error { return worker.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stack.Runner.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: job loops did not stop in time")
	}
	logger.Info().Msg("worker: stopped")
}

// Run resumes jobs abandoned by stopped processes until ctx is done.
func (w *jobWorker) Run(ctx context.Context) error {
	w.logger.Info().
		Dur("interval", w.interval).
		Dur("stale_after", w.staleAfter).
		Msg("worker: started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.claimBatch(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *jobWorker) claimBatch(ctx context.Context) {
	for range maxClaimsPerTick {
		if ctx.Err() != nil {
			return
		}
		job, err := w.repo.ClaimStale(ctx, w.staleAfter)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			return
		}
		w.handleJob(ctx, job)
	}
}

func (w *jobWorker) handleJob(ctx context.Context, job *domain.MusicJob) {
	w.logger.Info().
		Str("job_id", job.ID).
		Str("slot", job.Slot).
		Str("state", string(job.State)).
		Msg("worker: picked job")
	if err := w.service.Resume(ctx, job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: resume failed")
	}
}
