package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sampler/internal/domain"
)

const (
	statusKeyPrefix = "music_job:"
	slotChannel     = "music:slot-owner"

	// DefaultStatusTTL keeps finished jobs readable for an hour after their last update.
	DefaultStatusTTL = time.Hour
)

// RedisStatusCache implements domain.StatusCache and domain.SlotBroadcaster.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusCache wraps client. A non-positive ttl selects DefaultStatusTTL.
func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(jobID string) string {
	return statusKeyPrefix + jobID
}

// Put stores the snapshot under music_job:<id>.
func (c *RedisStatusCache) Put(ctx context.Context, snap domain.JobSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(snap.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set snapshot: %w", err)
	}
	return nil
}

// Get returns domain.ErrNotFound when the key is absent or expired.
func (c *RedisStatusCache) Get(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	raw, err := c.client.Get(ctx, statusKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("cache: get snapshot: %w", err)
	}
	var snap domain.JobSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("cache: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Publish announces a new slot owner to every subscribed process.
func (c *RedisStatusCache) Publish(ctx context.Context, notice domain.SlotNotice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("cache: encode notice: %w", err)
	}
	if err := c.client.Publish(ctx, slotChannel, raw).Err(); err != nil {
		return fmt.Errorf("cache: publish notice: %w", err)
	}
	return nil
}

// Subscribe delivers notices to handle until ctx is done.
func (c *RedisStatusCache) Subscribe(ctx context.Context, handle func(domain.SlotNotice)) error {
	sub := c.client.Subscribe(ctx, slotChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("cache: subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var notice domain.SlotNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				continue
			}
			handle(notice)
		}
	}
}

var (
	_ domain.StatusCache     = (*RedisStatusCache)(nil)
	_ domain.SlotBroadcaster = (*RedisStatusCache)(nil)
)
