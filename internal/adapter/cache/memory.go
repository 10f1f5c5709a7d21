package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"sampler/internal/domain"
)

const memorySweepEvery = time.Minute

type memoryEntry struct {
	snap    domain.JobSnapshot
	expires time.Time
}

// MemoryStatusCache is the process-local fallback used when Redis is not
// configured. Snapshots expire after DefaultStatusTTL like their Redis keys.
type MemoryStatusCache struct {
	mu        sync.RWMutex
	snaps     map[string]memoryEntry
	subs      []func(domain.SlotNotice)
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{
		snaps: map[string]memoryEntry{},
		ttl:   DefaultStatusTTL,
		now:   time.Now,
	}
}

func (c *MemoryStatusCache) Put(ctx context.Context, snap domain.JobSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !now.Before(c.nextSweep) {
		for id, e := range c.snaps {
			if !now.Before(e.expires) {
				delete(c.snaps, id)
			}
		}
		c.nextSweep = now.Add(memorySweepEvery)
	}
	c.snaps[snap.ID] = memoryEntry{snap: snap, expires: now.Add(c.ttl)}
	return nil
}

func (c *MemoryStatusCache) Get(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	c.mu.RLock()
	e, ok := c.snaps[jobID]
	now := c.now()
	c.mu.RUnlock()
	if !ok || !now.Before(e.expires) {
		return nil, domain.ErrNotFound
	}
	snap := e.snap
	return &snap, nil
}

func (c *MemoryStatusCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snaps)
}

// Publish delivers the notice synchronously to local subscribers.
func (c *MemoryStatusCache) Publish(ctx context.Context, notice domain.SlotNotice) error {
	c.mu.RLock()
	subs := slices.Clone(c.subs)
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(notice)
	}
	return nil
}

// Subscribe registers handle and blocks until ctx is done.
func (c *MemoryStatusCache) Subscribe(ctx context.Context, handle func(domain.SlotNotice)) error {
	c.mu.Lock()
	c.subs = append(c.subs, handle)
	c.mu.Unlock()
	<-ctx.Done()
	return nil
}

var (
	_ domain.StatusCache     = (*MemoryStatusCache)(nil)
	_ domain.SlotBroadcaster = (*MemoryStatusCache)(nil)
)
