// Package bootstrap wires the music job stack shared by the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sampler/internal/adapter/cache"
	"sampler/internal/adapter/repo"
	"sampler/internal/domain"
	"sampler/internal/infra"
	"sampler/internal/infra/credentials"
	"sampler/internal/jobs"
	"sampler/internal/metrics"
	"sampler/internal/providers/music"
)

// Stack is everything needed to run and observe music jobs.
type Stack struct {
	Pool        *pgxpool.Pool
	SQL         *infra.SQLRunner
	Redis       *redis.Client
	Credentials *credentials.Store
	Repo        *repo.MusicJobRepositoryPG
	Cache       domain.StatusCache
	Broadcaster domain.SlotBroadcaster
	Music       *music.Client
	Runner      *jobs.Runner
	Service     *jobs.Service
}

// NewStack connects postgres and redis (when configured) and builds the job
// service. Close releases the connections.
func NewStack(ctx context.Context, cfg *infra.Config, logger *infra.Logger, m *metrics.Metrics) (*Stack, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect database: %w", err)
	}
	sql := infra.NewSQLRunner(pool, *logger)
	st := &Stack{Pool: pool, SQL: sql, Credentials: credentials.NewStore(sql)}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: redis unavailable, using process-local cache")
	}
	if rdb != nil {
		st.Redis = rdb
		rc := cache.NewRedisStatusCache(rdb, cache.DefaultStatusTTL)
		st.Cache, st.Broadcaster = rc, rc
	} else {
		mc := cache.NewMemoryStatusCache()
		st.Cache, st.Broadcaster = mc, mc
	}

	key, err := st.Credentials.KeyOrEnv(ctx, credentials.ProviderMusic, cfg.MusicAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: failed to load music api key from store")
	}
	st.Music, err = music.NewClient(music.Options{
		APIKey:      key,
		BaseURL:     cfg.MusicBaseURL,
		CallbackURL: cfg.MusicCallbackURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("bootstrap: configure music client: %w", err)
	}
	if !st.Music.HasCredentials() {
		logger.Warn().Msg("bootstrap: music api key missing, generation requests will fail")
	}

	st.Repo = repo.NewMusicJobRepository(sql)
	st.Runner = jobs.NewRunner(m)
	st.Service = jobs.NewService(st.Music, st.Repo, st.Cache, st.Broadcaster, st.Runner, jobs.Options{
		Poll: music.PollOptions{
			Interval:        cfg.MusicPollInterval,
			MaxAttempts:     cfg.MusicMaxAttempts,
			FailureStatuses: cfg.MusicFailureStatuses,
		},
		Logger:  logger,
		Metrics: m,
	})
	return st, nil
}

// Subscribe forwards slot notices from other processes to the service until
// ctx is done. A lost subscription only disables cross-process supersession,
// so it is retried instead of returned.
func (s *Stack) Subscribe(ctx context.Context, logger *infra.Logger) error {
	for {
		err := s.Broadcaster.Subscribe(ctx, s.Service.HandleNotice)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn().Err(err).Msg("bootstrap: slot subscription lost, retrying")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}

// Checks returns health probes for the connected backends.
func (s *Stack) Checks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"postgres": s.Pool.Ping,
	}
	if s.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return s.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases the database and redis connections.
func (s *Stack) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
